package query

import (
	"encoding/json"
	"errors"
	"iter"
	"maps"
)

var (
	// ErrDecode marks a request parameter with malformed percent-encoding.
	ErrDecode = errors.New("malformed query parameter")
	// ErrExecution wraps every failure reported by the Executor.
	ErrExecution = errors.New("query execution failed")
)

// MatchKey is the field quick-search rows carry their MatchMetadata under.
const MatchKey = "lfs:queryMatch"

// Node is a read-only handle on a repository node.
type Node interface {
	Path() string
	Type() string
	// Field returns a string or a []string, and false when the field is absent.
	Field(name string) (any, bool)
	// Parent returns nil with a nil error at the root.
	Parent() (Node, error)
	// Reference follows a reference field. It returns nil with a nil error
	// when the field is absent.
	Reference(field string) (Node, error)
	Snapshot() map[string]any
}

// Executor runs the two query dialects the engine needs.
type Executor interface {
	RunStructured(text string) (iter.Seq[Node], error)
	RunAncestorPath(text string) (iter.Seq[Node], error)
}

type MatchMetadata struct {
	Question string `json:"question"`
	Before   string `json:"before"`
	Text     string `json:"text"`
	After    string `json:"after"`
	IsNotes  bool   `json:"isNotes"`
}

// Record is one result row: a node's fields, plus match metadata for quick
// search. Fields are read from the node only when the record is rendered,
// so records that fall outside the page cost nothing beyond the count.
type Record struct {
	node  Node
	Match *MatchMetadata
}

func NewRecord(n Node, match *MatchMetadata) Record {
	return Record{node: n, Match: match}
}

func (r Record) Node() Node {
	return r.node
}

// Fields returns a copy of the node snapshot with the match metadata added.
func (r Record) Fields() map[string]any {
	var fields map[string]any
	if r.node != nil {
		fields = maps.Clone(r.node.Snapshot())
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	if r.Match != nil {
		fields[MatchKey] = r.Match
	}
	return fields
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// Window describes the page cut out of a fully counted result sequence.
// Offset and Limit are the values the caller asked for, before clamping.
type Window struct {
	Offset   int64
	Limit    int64
	Returned int64
	Total    int64
}

type Response struct {
	Req          string   `json:"req"`
	Offset       int64    `json:"offset"`
	Limit        int64    `json:"limit"`
	ReturnedRows int64    `json:"returnedrows"`
	TotalRows    int64    `json:"totalrows"`
	Rows         []Record `json:"rows"`
}
