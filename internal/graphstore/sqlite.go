package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/emailcraft/drip/pkg/api"
)

// SQLite is a Store backed by SQLite, storing each graph as one JSON
// document. The caller provides an *sql.DB using a SQLite driver such as
// "modernc.org/sqlite".
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite initializes the graphs table and returns a new SQLite store.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS graphs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			doc BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) SaveGraph(ctx context.Context, g *api.Graph) (*api.Graph, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	cp := *g
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	doc, err := json.Marshal(&cp)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, name, doc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, doc = excluded.doc, updated_at = excluded.updated_at`,
		cp.ID, cp.Name, doc, time.Now().UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *SQLite) GetGraph(ctx context.Context, id string) (*api.Graph, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM graphs WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrGraphNotFound
		}
		return nil, err
	}
	var g api.Graph
	if err := json.Unmarshal(doc, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SQLite) ListGraphs(ctx context.Context) ([]*api.Graph, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM graphs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.Graph
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var g api.Graph
		if err := json.Unmarshal(doc, &g); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteGraph(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return api.ErrGraphNotFound
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
