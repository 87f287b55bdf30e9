package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cardsdata/formquery/pkg/query"
)

// Node is a read-only handle on a stored node. Fields are loaded with the
// handle; parents and references are fetched on demand.
type Node struct {
	repo       *Repository
	id         int64
	uuid       string
	path       string
	parentPath string
	name       string
	typ        string
	superType  string
	fields     map[string]any
	createdAt  time.Time
}

var _ query.Node = (*Node)(nil)

func (n *Node) ID() int64            { return n.id }
func (n *Node) UUID() string         { return n.uuid }
func (n *Node) Path() string         { return n.path }
func (n *Node) Name() string         { return n.name }
func (n *Node) Type() string         { return n.typ }
func (n *Node) SuperType() string    { return n.superType }
func (n *Node) CreatedAt() time.Time { return n.createdAt }

// Field returns a string, a []string when every element of a list is a
// string, or the decoded JSON value otherwise.
func (n *Node) Field(name string) (any, bool) {
	v, ok := n.fields[name]
	return v, ok
}

// Parent returns nil at the top of the tree.
func (n *Node) Parent() (query.Node, error) {
	if n.parentPath == "" {
		return nil, nil
	}
	p, err := n.repo.NodeByPath(n.parentPath)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Reference resolves a field holding a node UUID or an absolute path. An
// absent or empty field yields nil; a value naming no node is ErrNotFound.
func (n *Node) Reference(field string) (query.Node, error) {
	v, ok := n.fields[field]
	if !ok {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %s of %s is not a reference", field, n.path)
	}
	s = strings.TrimSpace(s)

	var (
		target *Node
		err    error
	)
	switch {
	case s == "":
		return nil, nil
	case strings.HasPrefix(s, "/"):
		target, err = n.repo.NodeByPath(s)
	default:
		if _, perr := uuid.Parse(s); perr != nil {
			return nil, fmt.Errorf("field %s of %s: %q is not a reference", field, n.path, s)
		}
		target, err = n.repo.NodeByUUID(s)
	}
	if err != nil {
		return nil, err
	}
	return target, nil
}

// Snapshot returns the fields plus the node's identity under @-keys.
func (n *Node) Snapshot() map[string]any {
	out := maps.Clone(n.fields)
	if out == nil {
		out = make(map[string]any, 5)
	}
	out["@path"] = n.path
	out["@name"] = n.name
	out["@type"] = n.typ
	out["@uuid"] = n.uuid
	if n.superType != "" {
		out["@superType"] = n.superType
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

// timeLayouts are the forms created_at may come back in.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (r *Repository) scanNode(s rowScanner) (*Node, error) {
	var (
		n          = &Node{repo: r}
		parentPath sql.NullString
		fieldsJSON string
		created    sql.NullString
	)
	if err := s.Scan(&n.id, &n.uuid, &n.path, &parentPath, &n.name, &n.typ, &n.superType, &fieldsJSON, &created); err != nil {
		return nil, err
	}
	n.parentPath = parentPath.String

	if err := json.Unmarshal([]byte(fieldsJSON), &n.fields); err != nil {
		return nil, fmt.Errorf("decoding fields of %s: %w", n.path, err)
	}
	for k, v := range n.fields {
		n.fields[k] = normalizeValue(v)
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, created.String); err == nil {
			n.createdAt = t
			break
		}
	}
	return n, nil
}

// normalizeValue turns JSON string arrays into []string.
func normalizeValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}
