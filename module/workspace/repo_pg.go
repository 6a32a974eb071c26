package workspace

import (
	"context"
	"errors"
	"time"

	"PNotepad/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS workspace (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	live       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS workspace_owner_idx ON workspace (owner, created_at);
`

const pgColumns = `id, name, owner, content, live, created_at, updated_at`

type PgRepo struct {
	pool *pgxpool.Pool
}

func NewPgRepo(pool *pgxpool.Pool) *PgRepo { return &PgRepo{pool: pool} }

// Migrate creates the table if it is missing.
func (r *PgRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, pgSchema); err != nil {
		return errs.WrapMsg(err, "migrate workspace table")
	}
	return nil
}

func (r *PgRepo) Create(ctx context.Context, w *Workspace) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO workspace (`+pgColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.Name, w.Owner, w.Content, w.Live, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return errs.ErrStore.WrapCause(err, false, "insert workspace", "id", w.ID)
	}
	return nil
}

func (r *PgRepo) Get(ctx context.Context, id string) (*Workspace, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM workspace WHERE id = $1`, id)
	w, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	if err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "select workspace", "id", id)
	}
	return w, nil
}

func (r *PgRepo) ListByOwner(ctx context.Context, owner string) ([]*Workspace, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pgColumns+` FROM workspace WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "list workspaces", "owner", owner)
	}
	defer rows.Close()
	out := make([]*Workspace, 0)
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, errs.ErrStore.WrapCause(err, true, "scan workspace")
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "list workspaces", "owner", owner)
	}
	return out, nil
}

func (r *PgRepo) SaveContent(ctx context.Context, id, content string, at time.Time) error {
	return r.exec1(ctx, id, `UPDATE workspace SET content = $2, updated_at = $3 WHERE id = $1`, id, content, at)
}

func (r *PgRepo) SetLive(ctx context.Context, id string, live bool, at time.Time) error {
	return r.exec1(ctx, id, `UPDATE workspace SET live = $2, updated_at = $3 WHERE id = $1`, id, live, at)
}

// exec1 runs an update that must touch exactly one row.
func (r *PgRepo) exec1(ctx context.Context, id, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return errs.ErrStore.WrapCause(err, true, "update workspace", "id", id)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	return nil
}

func scanWorkspace(row pgx.Row) (*Workspace, error) {
	var w Workspace
	if err := row.Scan(&w.ID, &w.Name, &w.Owner, &w.Content, &w.Live, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
