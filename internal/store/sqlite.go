package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection; a single writer connection keeps
	// them in effect for every statement.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	package_name TEXT NOT NULL DEFAULT '',
	status       INTEGER NOT NULL DEFAULT 0,
	payload      TEXT NOT NULL,
	result       TEXT,
	error        TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS arrow_heads (
	task_id TEXT NOT NULL REFERENCES tasks(id),
	seq     INTEGER NOT NULL,
	lon     REAL NOT NULL,
	lat     REAL NOT NULL,
	bearing REAL NOT NULL,
	PRIMARY KEY (task_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, nt NewTask) (*model.Task, error) {
	if !json.Valid(nt.Payload) {
		return nil, eris.New("sqlite: task payload is not valid JSON")
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, type, package_name, status, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, nt.Type, nt.PackageName, int(model.TaskStatusNotStarted), string(nt.Payload), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert task")
	}

	return &model.Task{
		ID:          id,
		Type:        nt.Type,
		PackageName: nt.PackageName,
		Status:      model.TaskStatusNotStarted,
		Payload:     json.RawMessage(nt.Payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, package_name, status, payload, result, error, created_at, updated_at FROM tasks WHERE id = ?`,
		id,
	)
	return scanTask(row)
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := `SELECT id, type, package_name, status, payload, result, error, created_at, updated_at FROM tasks WHERE 1=1`
	var args []any

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, int(*filter.Status))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.PackageName != "" {
		query += ` AND package_name = ?`
		args = append(args, filter.PackageName)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		int(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update task status %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) ClaimTask(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		int(model.TaskStatusStarted), time.Now().UTC(), id, int(model.TaskStatusNotStarted),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) CompleteTask(ctx context.Context, id string, layer *arrowline.Layer) error {
	result, heads, err := summarize(id, layer)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET result = ?, error = NULL, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), int(model.TaskStatusDone), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete task %s", id)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM arrow_heads WHERE task_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: clear arrow heads %s", id)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO arrow_heads (task_id, seq, lon, lat, bearing) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare arrow head insert")
	}
	defer stmt.Close()

	for _, h := range heads {
		if _, err := stmt.ExecContext(ctx, h.TaskID, h.Seq, h.Lon, h.Lat, h.Bearing); err != nil {
			return eris.Wrapf(err, "sqlite: insert arrow head %d", h.Seq)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) FailTask(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		reason, int(model.TaskStatusFailed), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail task %s", id)
	}
	return checkRowsAffected(res, id)
}

// RequeueStale compares updated_at as text. Every write stores UTC times in
// the driver's single format, so text order is time order.
func (s *SQLiteStore) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		int(model.TaskStatusNotStarted), time.Now().UTC(), int(model.TaskStatusStarted), before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: requeue stale tasks")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "rows affected")
}

func (s *SQLiteStore) ListArrowHeads(ctx context.Context, taskID string) ([]model.ArrowHead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, seq, lon, lat, bearing FROM arrow_heads WHERE task_id = ? ORDER BY seq`,
		taskID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list arrow heads %s", taskID)
	}
	defer rows.Close()

	var heads []model.ArrowHead
	for rows.Next() {
		var h model.ArrowHead
		if err := rows.Scan(&h.TaskID, &h.Seq, &h.Lon, &h.Lat, &h.Bearing); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan arrow head")
		}
		heads = append(heads, h)
	}
	return heads, eris.Wrap(rows.Err(), "sqlite: list arrow heads iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrTaskNotFound, "sqlite: task %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*model.Task, error) {
	var t model.Task
	var status int
	var payload string
	var resultJSON, errText sql.NullString

	err := row.Scan(&t.ID, &t.Type, &t.PackageName, &status, &payload, &resultJSON, &errText, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrTaskNotFound, "sqlite: get task")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan task")
	}

	t.Status = model.TaskStatus(status)
	t.Payload = json.RawMessage(payload)
	t.Error = errText.String
	if resultJSON.Valid {
		t.Result = &model.TaskResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), t.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &t, nil
}
