package query

import (
	"errors"
	"iter"
	"slices"
	"time"
)

// memNode is an in-memory Node used by the engine tests.
type memNode struct {
	path      string
	typ       string
	fields    map[string]any
	parent    *memNode
	parentErr error
	refs      map[string]*memNode
	refErr    error
}

func (n *memNode) Path() string { return n.path }
func (n *memNode) Type() string { return n.typ }

func (n *memNode) Field(name string) (any, bool) {
	v, ok := n.fields[name]
	return v, ok
}

func (n *memNode) Parent() (Node, error) {
	if n.parentErr != nil {
		return nil, n.parentErr
	}
	if n.parent == nil {
		return nil, nil
	}
	return n.parent, nil
}

func (n *memNode) Reference(field string) (Node, error) {
	if n.refErr != nil {
		return nil, n.refErr
	}
	if r, ok := n.refs[field]; ok && r != nil {
		return r, nil
	}
	return nil, nil
}

func (n *memNode) Snapshot() map[string]any {
	out := map[string]any{"@path": n.path, "@type": n.typ}
	for k, v := range n.fields {
		out[k] = v
	}
	return out
}

// memExec returns canned nodes and remembers the queries it was given.
type memExec struct {
	nodes        []Node
	err          error
	structured   []string
	ancestorPath []string
}

func (e *memExec) RunStructured(text string) (iter.Seq[Node], error) {
	e.structured = append(e.structured, text)
	if e.err != nil {
		return nil, e.err
	}
	return slices.Values(e.nodes), nil
}

func (e *memExec) RunAncestorPath(text string) (iter.Seq[Node], error) {
	e.ancestorPath = append(e.ancestorPath, text)
	if e.err != nil {
		return nil, e.err
	}
	return slices.Values(e.nodes), nil
}

type recordingObserver struct {
	skipped []SkipReason
	served  []Window
	errs    []error
}

func (o *recordingObserver) QueryServed(_ Mode, _ time.Duration, w Window, err error) {
	o.served = append(o.served, w)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) NodeSkipped(r SkipReason) {
	o.skipped = append(o.skipped, r)
}

var errBroken = errors.New("broken")

// formTree builds /Forms/f<i> forms, each holding one answer whose question
// is "Diagnosis".
func formTree(values ...string) (forms []*memNode, answers []Node) {
	root := &memNode{path: "/Forms", typ: "Folder"}
	question := &memNode{path: "/Questionnaires/q/diagnosis", typ: "Question", fields: map[string]any{"text": "Diagnosis"}}
	for i, v := range values {
		form := &memNode{path: "/Forms/f" + string(rune('0'+i)), typ: "Form", parent: root, fields: map[string]any{"subject": "s"}}
		answer := &memNode{
			path:   form.path + "/a",
			typ:    "Answer",
			parent: form,
			fields: map[string]any{"value": []string{v}},
			refs:   map[string]*memNode{"question": question},
		}
		forms = append(forms, form)
		answers = append(answers, answer)
	}
	return forms, answers
}

func collect(seq iter.Seq[Record]) []Record {
	var out []Record
	for r := range seq {
		out = append(out, r)
	}
	return out
}
