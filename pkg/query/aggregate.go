package query

import (
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cardsdata/formquery/pkg/log"
)

// SkipReason says why quick search dropped a matched node.
type SkipReason string

const (
	SkipNoMatch       SkipReason = "no_match"
	SkipNoQuestion    SkipReason = "no_question"
	SkipQuestionError SkipReason = "question_error"
	SkipNoAncestor    SkipReason = "no_ancestor"
	SkipAncestorError SkipReason = "ancestor_error"
)

// Field names quick search reads on answer nodes.
const (
	FieldValue    = "value"
	FieldNote     = "note"
	FieldQuestion = "question"
	FieldText     = "text"
)

var lower = cases.Lower(language.Und)

// Aggregator runs quick searches: it finds answers whose value or note
// contains the needle and reports each one at the level of its owning
// aggregate. Two matching answers in the same form yield two records.
type Aggregator struct {
	exec     Executor
	settings Settings
	observer Observer
	logger   *log.Logger
}

func NewAggregator(exec Executor, settings Settings, observer Observer) *Aggregator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Aggregator{
		exec:     exec,
		settings: settings.withDefaults(),
		observer: observer,
		logger:   log.ForService("quicksearch"),
	}
}

// QuickQuery returns the ancestor-path query selecting every node under the
// forms root whose lower-cased value or note contains q.
func (a *Aggregator) QuickQuery(q string, escape bool) string {
	needle := Escape(lower.String(q), DialectAncestorPath, escape)
	return fmt.Sprintf("/jcr:root%s//*[jcr:like(fn:lower-case(@%s), '%%%s%%') or jcr:like(fn:lower-case(@%s), '%%%s%%')]",
		strings.TrimSuffix(a.settings.FormsRoot, "/"), FieldValue, needle, FieldNote, needle)
}

// Aggregate runs the quick search for q. The returned sequence is lazy and
// single-use; nodes that cannot be decorated are skipped and reported to the
// observer, never returned as errors.
func (a *Aggregator) Aggregate(q string, escape bool) (iter.Seq[Record], error) {
	if strings.TrimSpace(q) == "" {
		return empty, nil
	}

	nodes, err := a.exec.RunAncestorPath(a.QuickQuery(q, escape))
	if err != nil {
		return nil, fmt.Errorf("%w: quick search: %w", ErrExecution, err)
	}

	return func(yield func(Record) bool) {
		for n := range nodes {
			rec, reason, err := a.decorate(n, q)
			if reason != "" {
				l := a.logger.With("path", n.Path()).With("reason", string(reason))
				if err != nil {
					l.Debugf("skipping node: %v", err)
				} else {
					l.Debugf("skipping node")
				}
				a.observer.NodeSkipped(reason)
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}, nil
}

func (a *Aggregator) decorate(n Node, q string) (Record, SkipReason, error) {
	matched, isNote := "", false
	if v, ok := firstContaining(n, FieldValue, q); ok {
		matched = v
	} else if v, ok := firstContaining(n, FieldNote, q); ok {
		matched, isNote = v, true
	} else {
		return Record{}, SkipNoMatch, nil
	}

	question, ok, err := questionLabel(n)
	if err != nil {
		return Record{}, SkipQuestionError, err
	}
	if !ok {
		return Record{}, SkipNoQuestion, nil
	}

	ancestor, err := FindAncestorOfType(n, a.settings.AggregateType)
	if err != nil {
		return Record{}, SkipAncestorError, err
	}
	if ancestor == nil {
		return Record{}, SkipNoAncestor, nil
	}

	m, ok := BuildContext(matched, q, a.settings.ContextWindow)
	if !ok {
		return Record{}, SkipNoMatch, nil
	}
	m.Question = question
	m.IsNotes = isNote
	return NewRecord(ancestor, &m), "", nil
}

// questionLabel reads the text of the question n answers. ok is false when
// the reference or its text is missing; an empty text is still a label.
func questionLabel(n Node) (label string, ok bool, err error) {
	qn, err := n.Reference(FieldQuestion)
	if err != nil {
		return "", false, fmt.Errorf("following %s reference: %w", FieldQuestion, err)
	}
	if qn == nil {
		return "", false, nil
	}
	v, ok := qn.Field(FieldText)
	if !ok {
		return "", false, nil
	}
	if s := StringsOf(v); len(s) > 0 {
		return s[0], true, nil
	}
	return "", false, nil
}

func firstContaining(n Node, field, q string) (string, bool) {
	v, ok := n.Field(field)
	if !ok {
		return "", false
	}
	for _, s := range StringsOf(v) {
		if containsFold(s, q) {
			return s, true
		}
	}
	return "", false
}

// StringsOf flattens a field value into its string candidates. Numbers and
// booleans are formatted; nulls and objects yield nothing.
func StringsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := scalarString(e); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarString(v); ok {
			return []string{s}
		}
		return nil
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func empty(func(Record) bool) {}
