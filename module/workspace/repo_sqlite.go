package workspace

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"PNotepad/tools/errs"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS workspace (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	live       INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS workspace_owner_idx ON workspace (owner, created_at);
`

// sqliteLayout is fixed width so stored timestamps sort lexically.
const sqliteLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SqliteRepo keeps workspaces in a single file.
type SqliteRepo struct {
	db *sql.DB
}

// OpenSqlite opens (and creates) the database at path.
func OpenSqlite(path string) (*SqliteRepo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.WrapMsg(err, "sqlite mkdir", "dir", dir)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errs.WrapMsg(err, "sqlite open", "path", path)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errs.WrapMsg(err, "sqlite schema", "path", path)
	}
	return &SqliteRepo{db: db}, nil
}

func (r *SqliteRepo) Close() error { return r.db.Close() }

func (r *SqliteRepo) Create(ctx context.Context, w *Workspace) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workspace (`+pgColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Owner, w.Content, w.Live, sqliteTime(w.CreatedAt), sqliteTime(w.UpdatedAt))
	if err != nil {
		if _, gerr := r.Get(ctx, w.ID); gerr == nil {
			return errs.ErrBadRequest.WrapMsg("workspace exists", "id", w.ID)
		}
		return errs.ErrStore.WrapCause(err, false, "insert workspace", "id", w.ID)
	}
	return nil
}

func (r *SqliteRepo) Get(ctx context.Context, id string) (*Workspace, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pgColumns+` FROM workspace WHERE id = ?`, id)
	w, err := scanSqlite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	if err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "select workspace", "id", id)
	}
	return w, nil
}

func (r *SqliteRepo) ListByOwner(ctx context.Context, owner string) ([]*Workspace, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgColumns+` FROM workspace WHERE owner = ? ORDER BY created_at`, owner)
	if err != nil {
		return nil, errs.ErrStore.WrapCause(err, true, "list workspaces", "owner", owner)
	}
	defer rows.Close()
	out := make([]*Workspace, 0)
	for rows.Next() {
		w, err := scanSqlite(rows)
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

func (r *SqliteRepo) SaveContent(ctx context.Context, id, content string, at time.Time) error {
	return r.exec1(ctx, id, `UPDATE workspace SET content = ?, updated_at = ? WHERE id = ?`, content, sqliteTime(at), id)
}

func (r *SqliteRepo) SetLive(ctx context.Context, id string, live bool, at time.Time) error {
	return r.exec1(ctx, id, `UPDATE workspace SET live = ?, updated_at = ? WHERE id = ?`, live, sqliteTime(at), id)
}

func (r *SqliteRepo) exec1(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.ErrStore.WrapCause(err, true, "update workspace", "id", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	return nil
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSqlite(row sqliteScanner) (*Workspace, error) {
	var (
		w                Workspace
		created, updated string
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Owner, &w.Content, &w.Live, &created, &updated); err != nil {
		return nil, err
	}
	w.CreatedAt, _ = time.Parse(sqliteLayout, created)
	w.UpdatedAt, _ = time.Parse(sqliteLayout, updated)
	return &w, nil
}

func sqliteTime(t time.Time) string { return t.UTC().Format(sqliteLayout) }
