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

// Postgres is a Store backed by PostgreSQL, storing each graph as one JSONB
// document. The caller provides an *sql.DB using a Postgres driver such as
// "github.com/jackc/pgx/v5/stdlib".
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres initializes the graphs table and returns a new Postgres store.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	s := &Postgres{db: db}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS graphs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			doc JSONB NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
	); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Postgres) SaveGraph(ctx context.Context, g *api.Graph) (*api.Graph, error) {
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		cp.ID, cp.Name, doc, time.Now().UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Postgres) GetGraph(ctx context.Context, id string) (*api.Graph, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM graphs WHERE id = $1`, id).Scan(&doc)
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

func (s *Postgres) ListGraphs(ctx context.Context) ([]*api.Graph, error) {
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

func (s *Postgres) DeleteGraph(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = $1`, id)
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

func (s *Postgres) Close() error { return s.db.Close() }
