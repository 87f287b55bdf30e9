package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"slices"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cardsdata/formquery/pkg/db"
	"github.com/cardsdata/formquery/pkg/log"
	"github.com/cardsdata/formquery/pkg/query"
)

// Repository is the sqlite-backed node tree. It implements query.Executor.
type Repository struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

var _ query.Executor = (*Repository)(nil)

type openOptions struct {
	migrate bool
}

type Option func(*openOptions)

// WithoutMigrations opens the database as it is, leaving schema changes to
// the caller.
func WithoutMigrations() Option {
	return func(o *openOptions) { o.migrate = false }
}

// Open opens (creating if needed) the repository at path and brings its
// schema up to date.
func Open(path string, opts ...Option) (*Repository, error) {
	o := openOptions{migrate: true}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
		"PRAGMA mmap_size = 268435456", // 256MB mmap
	}
	// Per-connection pragmas only reach the connection that ran them.
	conn.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	r := &Repository{
		db:     conn,
		path:   path,
		logger: log.ForService("repository"),
	}

	if o.migrate {
		if err := db.InitializeDatabase(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for migrations.
func (r *Repository) DB() *sql.DB {
	return r.db
}

func (r *Repository) Path() string {
	return r.path
}

// RunStructured runs a query of the SQL2 subset.
func (r *Repository) RunStructured(text string) (iter.Seq[query.Node], error) {
	sel, err := parseStructured(text)
	if err != nil {
		return nil, err
	}
	return r.run(sel)
}

// RunAncestorPath runs a query of the XPath subset.
func (r *Repository) RunAncestorPath(text string) (iter.Seq[query.Node], error) {
	sel, err := parseAncestorPath(text)
	if err != nil {
		return nil, err
	}
	return r.run(sel)
}

// run executes the compiled selection and reads every row before returning,
// so the sequence holds no connection while the caller iterates.
func (r *Repository) run(sel *selection) (iter.Seq[query.Node], error) {
	stmt, args, err := compile(sel)
	if err != nil {
		return nil, err
	}
	r.logger.Debugf("sql: %s %v", stmt, args)

	nodes, err := r.queryNodes(stmt, args...)
	if err != nil {
		return nil, err
	}
	return func(yield func(query.Node) bool) {
		for _, n := range nodes {
			if !yield(n) {
				return
			}
		}
	}, nil
}

func (r *Repository) queryNodes(stmt string, args ...any) ([]*Node, error) {
	rows, err := r.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var nodes []*Node
	for rows.Next() {
		n, err := r.scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *Repository) nodeWhere(column, value string) (*Node, error) {
	row := r.db.QueryRow("SELECT "+nodeColumns+" FROM nodes n WHERE n."+column+" = ?", value)
	n, err := r.scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, column, value)
	}
	if err != nil {
		return nil, fmt.Errorf("loading node by %s: %w", column, err)
	}
	return n, nil
}

func (r *Repository) NodeByPath(path string) (*Node, error) {
	return r.nodeWhere("path", path)
}

func (r *Repository) NodeByUUID(id string) (*Node, error) {
	return r.nodeWhere("uuid", id)
}

// Children returns the direct children of path in insertion order.
func (r *Repository) Children(path string) ([]*Node, error) {
	if path == "/" {
		return r.queryNodes("SELECT " + nodeColumns + " FROM nodes n WHERE n.parent_path IS NULL ORDER BY n.id")
	}
	return r.queryNodes("SELECT "+nodeColumns+" FROM nodes n WHERE n.parent_path = ? ORDER BY n.id", path)
}

type Stats struct {
	Path      string         `json:"path"`
	SizeBytes int64          `json:"size_bytes"`
	Total     int            `json:"total_nodes"`
	ByType    map[string]int `json:"by_type"`
	FTSRows   int            `json:"fts_rows"`
}

// Types returns the node types in Stats, sorted.
func (s *Stats) Types() []string {
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (r *Repository) Stats() (*Stats, error) {
	stats := &Stats{Path: r.path, ByType: make(map[string]int)}

	rows, err := r.db.Query("SELECT node_type, COUNT(*) FROM nodes GROUP BY node_type")
	if err != nil {
		return nil, fmt.Errorf("counting nodes: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warnf("failed to close rows: %v", err)
		}
	}()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scanning node count: %w", err)
		}
		stats.ByType[typ] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM nodes_fts").Scan(&stats.FTSRows); err != nil {
		return nil, fmt.Errorf("counting index rows: %w", err)
	}

	if fi, err := os.Stat(r.path); err == nil {
		stats.SizeBytes = fi.Size()
	}
	return stats, nil
}

// Optimize merges the relevance index segments and refreshes planner statistics.
func (r *Repository) Optimize() error {
	steps := []string{
		"INSERT INTO nodes_fts(nodes_fts) VALUES('optimize')",
		"PRAGMA optimize",
		"ANALYZE",
	}
	for _, s := range steps {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("running %q: %w", s, err)
		}
	}
	return nil
}

func (r *Repository) Vacuum() error {
	_, err := r.db.Exec("VACUUM")
	return err
}

func (r *Repository) WALCheckpoint() error {
	_, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Migrations returns a migration manager bound to this database.
func (r *Repository) Migrations() *db.MigrationManager {
	return db.NewMigrationManager(r.db)
}
