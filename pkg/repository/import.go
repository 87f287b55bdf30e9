package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// RefPrefix marks a string field value as a path to be replaced by the
// UUID of the node it names.
const RefPrefix = "ref:"

// defaultSuperTypes are applied when an imported node names no super type.
var defaultSuperTypes = map[string]string{
	"Form":          "Resource",
	"Subject":       "Resource",
	"Questionnaire": "Resource",
}

// ImportDocument is the YAML (or JSON) layout accepted by Import.
type ImportDocument struct {
	// Root is the existing node the tree is attached under; "/" by default.
	Root  string       `yaml:"root"`
	Nodes []ImportNode `yaml:"nodes"`
}

type ImportNode struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Super    string         `yaml:"super"`
	UUID     string         `yaml:"uuid"`
	Fields   map[string]any `yaml:"fields"`
	Children []ImportNode   `yaml:"children"`
}

type ImportResult struct {
	Nodes      int
	References int
}

// pendingNode is an ImportNode with its final path and identity.
type pendingNode struct {
	uuid       string
	path       string
	parentPath string
	name       string
	typ        string
	superType  string
	fields     map[string]any
}

// Import reads a node tree and stores it in one transaction. References
// ("ref:/path") may point at nodes of the same document or already stored.
func (r *Repository) Import(rd io.Reader) (*ImportResult, error) {
	var doc ImportDocument
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &ImportResult{}, nil
		}
		return nil, fmt.Errorf("decoding import document: %w", err)
	}
	return r.ImportDocument(&doc)
}

func (r *Repository) ImportDocument(doc *ImportDocument) (*ImportResult, error) {
	root := strings.TrimSuffix(strings.TrimSpace(doc.Root), "/")
	if root == "" {
		root = "/"
	}
	if !strings.HasPrefix(root, "/") {
		return nil, fmt.Errorf("import root %q is not absolute", doc.Root)
	}

	var nodes []*pendingNode
	if err := flatten(doc.Nodes, root, &nodes); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				r.logger.Warnf("failed to rollback import transaction: %v", err)
			}
		}
	}()

	if root != "/" {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM nodes WHERE path = ?", root).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking import root: %w", err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("%w: import root %s", ErrNotFound, root)
		}
	}

	byPath := make(map[string]string, len(nodes))
	for _, n := range nodes {
		byPath[n.path] = n.uuid
	}
	resolve := func(path string) (string, error) {
		if id, ok := byPath[path]; ok {
			return id, nil
		}
		var id string
		err := tx.QueryRow("SELECT uuid FROM nodes WHERE path = ?", path).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: reference to %s", ErrNotFound, path)
		}
		if err != nil {
			return "", fmt.Errorf("resolving reference to %s: %w", path, err)
		}
		byPath[path] = id
		return id, nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO nodes (uuid, path, parent_path, name, node_type, super_type, fields, folded, search_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Warnf("failed to close statement: %v", err)
		}
	}()

	ftsStmt, err := tx.Prepare("INSERT INTO nodes_fts (rowid, body) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("preparing index statement: %w", err)
	}
	defer func() {
		if err := ftsStmt.Close(); err != nil {
			r.logger.Warnf("failed to close index statement: %v", err)
		}
	}()

	result := &ImportResult{}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, n := range nodes {
		refs, err := resolveRefs(n.fields, resolve)
		if err != nil {
			return nil, fmt.Errorf("importing %s: %w", n.path, err)
		}
		result.References += refs

		fieldsJSON, err := json.Marshal(n.fields)
		if err != nil {
			return nil, fmt.Errorf("encoding fields of %s: %w", n.path, err)
		}
		foldedJSON, err := json.Marshal(foldValue(n.fields))
		if err != nil {
			return nil, fmt.Errorf("encoding folded fields of %s: %w", n.path, err)
		}
		body := searchText(n.fields)

		var parent any
		if n.parentPath != "/" {
			parent = n.parentPath
		}
		res, err := stmt.Exec(n.uuid, n.path, parent, n.name, n.typ, n.superType,
			string(fieldsJSON), string(foldedJSON), fold(body), now)
		if err != nil {
			return nil, fmt.Errorf("inserting %s: %w", n.path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading id of %s: %w", n.path, err)
		}
		if _, err := ftsStmt.Exec(id, body); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", n.path, err)
		}
		result.Nodes++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	committed = true

	r.logger.Infof("imported %d nodes (%d references) under %s", result.Nodes, result.References, root)
	return result, nil
}

// flatten assigns names, paths and identities depth first, parents before
// children.
func flatten(children []ImportNode, parentPath string, out *[]*pendingNode) error {
	taken := make(map[string]int)
	for _, in := range children {
		if in.Type == "" {
			return fmt.Errorf("node %q under %s has no type", in.Name, parentPath)
		}

		name := in.Name
		if name == "" {
			name = slug.Make(titleOf(in))
			if name == "" {
				name = strings.ToLower(in.Type)
			}
			if n := taken[name]; n > 0 {
				taken[name] = n + 1
				name = name + "-" + strconv.Itoa(n+1)
			}
		}
		if strings.ContainsAny(name, "/[]") {
			return fmt.Errorf("invalid node name %q under %s", name, parentPath)
		}
		if taken[name] > 0 && in.Name != "" {
			return fmt.Errorf("duplicate node name %q under %s", name, parentPath)
		}
		taken[name]++

		id := in.UUID
		if id == "" {
			id = uuid.NewString()
		} else if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("node %s: invalid uuid %q", name, id)
		}

		super := in.Super
		if super == "" {
			super = defaultSuperTypes[in.Type]
		}

		path := "/" + name
		if parentPath != "/" {
			path = parentPath + "/" + name
		}

		fields := in.Fields
		if fields == nil {
			fields = make(map[string]any)
		}

		*out = append(*out, &pendingNode{
			uuid:       id,
			path:       path,
			parentPath: parentPath,
			name:       name,
			typ:        in.Type,
			superType:  super,
			fields:     fields,
		})

		if err := flatten(in.Children, path, out); err != nil {
			return err
		}
	}
	return nil
}

// titleOf picks the text a generated name is derived from.
func titleOf(n ImportNode) string {
	for _, key := range []string{"title", "text", "name"} {
		if s, ok := n.Fields[key].(string); ok && s != "" {
			return s
		}
	}
	return n.Type
}

// resolveRefs replaces "ref:/path" strings in place and counts them.
func resolveRefs(fields map[string]any, resolve func(string) (string, error)) (int, error) {
	count := 0
	var walk func(v any) (any, error)
	walk = func(v any) (any, error) {
		switch t := v.(type) {
		case string:
			path, ok := strings.CutPrefix(t, RefPrefix)
			if !ok {
				return t, nil
			}
			id, err := resolve(path)
			if err != nil {
				return nil, err
			}
			count++
			return id, nil
		case []any:
			for i, e := range t {
				r, err := walk(e)
				if err != nil {
					return nil, err
				}
				t[i] = r
			}
			return t, nil
		default:
			return v, nil
		}
	}

	for k, v := range fields {
		r, err := walk(v)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", k, err)
		}
		fields[k] = r
	}
	return count, nil
}
