// Package sqlite provides a relational forest.NodeStore on SQLite.
//
// Each node is one row of tree_node. Ids come from AUTOINCREMENT, which never
// hands out an id twice even after rollbacks.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jacentio/grove/forest"
)

const schema = `
CREATE TABLE IF NOT EXISTS tree_node (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT      NOT NULL,
	parent_id  INTEGER   NULL REFERENCES tree_node(id),
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tree_node_parent ON tree_node(parent_id);
`

// Store is a SQLite-backed node store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file::memory:?_foreign_keys=on"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer, and every :memory: connection is its own
	// database, so the pool holds exactly one connection.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create checks the parent and inserts the node in one transaction.
func (s *Store) Create(ctx context.Context, label string, parentID *int64) (forest.Node, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return forest.Node{}, forest.Unavailable("begin", err)
	}
	defer tx.Rollback()

	if parentID != nil {
		var found int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM tree_node WHERE id = ?", *parentID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return forest.Node{}, &forest.ParentNotFoundError{ParentID: *parentID}
		}
		if err != nil {
			return forest.Node{}, forest.Unavailable("check parent", err)
		}
	}

	createdAt := s.now().UTC()
	result, err := tx.ExecContext(ctx,
		"INSERT INTO tree_node (label, parent_id, created_at) VALUES (?, ?, ?)",
		label, nullableID(parentID), createdAt,
	)
	if err != nil {
		return forest.Node{}, forest.Unavailable("insert", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return forest.Node{}, forest.Unavailable("insert", err)
	}

	if err := tx.Commit(); err != nil {
		return forest.Node{}, forest.Unavailable("commit", err)
	}

	node := forest.Node{ID: id, Label: label, CreatedAt: createdAt}
	if parentID != nil {
		node.ParentID = forest.Int64(*parentID)
	}
	return node, nil
}

// FetchAll reads every row in one query, ordered by id.
func (s *Store) FetchAll(ctx context.Context) ([]forest.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, label, parent_id, created_at FROM tree_node ORDER BY id")
	if err != nil {
		return nil, forest.Unavailable("fetch", err)
	}
	defer rows.Close()

	nodes := []forest.Node{}
	for rows.Next() {
		var (
			n      forest.Node
			parent sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.Label, &parent, &n.CreatedAt); err != nil {
			return nil, forest.Unavailable("scan row", err)
		}
		if parent.Valid {
			n.ParentID = forest.Int64(parent.Int64)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, forest.Unavailable("fetch", err)
	}
	return nodes, nil
}

// Exists reports whether a row with id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM tree_node WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, forest.Unavailable("exists", err)
	}
	return exists, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
