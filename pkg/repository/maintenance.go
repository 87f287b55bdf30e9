package repository

import (
	"encoding/json"
	"fmt"
)

// IntegrityCheck runs SQLite's integrity check and the relevance index's own
// consistency check. It returns the problems found; none means healthy.
func (r *Repository) IntegrityCheck() ([]string, error) {
	rows, err := r.db.Query("PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("running integrity check: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scanning integrity check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.db.Exec("INSERT INTO nodes_fts(nodes_fts, rank) VALUES('integrity-check', 1)"); err != nil {
		problems = append(problems, fmt.Sprintf("relevance index: %v", err))
	}
	return problems, nil
}

// Reindex rebuilds the relevance index from the stored fields and returns
// the number of indexed nodes.
func (r *Repository) Reindex() (int, error) {
	type entry struct {
		id     int64
		fields string
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				r.logger.Warnf("failed to rollback reindex transaction: %v", err)
			}
		}
	}()

	rows, err := tx.Query("SELECT id, fields FROM nodes ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("reading nodes: %w", err)
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.fields); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scanning node: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("closing rows: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM nodes_fts"); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO nodes_fts (rowid, body) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing index statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Warnf("failed to close index statement: %v", err)
		}
	}()

	for _, e := range entries {
		var fields map[string]any
		if err := json.Unmarshal([]byte(e.fields), &fields); err != nil {
			return 0, fmt.Errorf("decoding fields of node %d: %w", e.id, err)
		}
		if _, err := stmt.Exec(e.id, searchText(fields)); err != nil {
			return 0, fmt.Errorf("indexing node %d: %w", e.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reindex: %w", err)
	}
	committed = true

	r.logger.Infof("reindexed %d nodes", len(entries))
	return len(entries), nil
}
