package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/db"
	"github.com/sells-group/arrowline/internal/model"
)

// PostgresStore implements Store using pgxpool. Arrow heads and lines are
// stored as PostGIS geometries.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
	// PrepareStatements prepares the hot queries on each new connection. The
	// tables must already exist.
	PrepareStatements bool `yaml:"prepare_statements" mapstructure:"prepare_statements"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_task":        `INSERT INTO tasks (id, type, package_name, status, payload, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_task":           `SELECT id, type, package_name, status, payload, result, error, created_at, updated_at FROM tasks WHERE id = $1`,
	"update_task_status": `UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3`,
	"claim_task":         `UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
	"fail_task":          `UPDATE tasks SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
}

var (
	arrowHeadColumns = []string{"task_id", "seq", "bearing", "geom"}

	arrowLineUpsert = db.UpsertConfig{
		Table:        "arrow_lines",
		Columns:      []string{"task_id", "points", "polyline", "geom", "updated_at"},
		ConflictKeys: []string{"task_id"},
	}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	if poolCfg != nil && poolCfg.PrepareStatements {
		pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			for name, sql := range preparedStatements {
				if _, err := conn.Prepare(ctx, name, sql); err != nil {
					return eris.Wrapf(err, "postgres: prepare %s", name)
				}
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Stat returns connection pool statistics, or nil when the store is not
// backed by a pgxpool.
func (s *PostgresStore) Stat() *pgxpool.Stat {
	if p, ok := s.pool.(*pgxpool.Pool); ok {
		return p.Stat()
	}
	return nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	type         TEXT NOT NULL,
	package_name TEXT NOT NULL DEFAULT '',
	status       SMALLINT NOT NULL DEFAULT 0,
	payload      JSONB NOT NULL,
	result       JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS arrow_heads (
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	seq     INTEGER NOT NULL,
	bearing DOUBLE PRECISION NOT NULL,
	geom    geometry(Point, 4326) NOT NULL,
	PRIMARY KEY (task_id, seq)
);

CREATE TABLE IF NOT EXISTS arrow_lines (
	task_id    TEXT PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
	points     INTEGER NOT NULL,
	polyline   TEXT NOT NULL,
	geom       geometry(LineString, 4326),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_type ON tasks(type);
CREATE INDEX IF NOT EXISTS idx_arrow_heads_geom ON arrow_heads USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_arrow_lines_geom ON arrow_lines USING GIST (geom);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, nt NewTask) (*model.Task, error) {
	if !json.Valid(nt.Payload) {
		return nil, eris.New("postgres: task payload is not valid JSON")
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, type, package_name, status, payload, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, nt.Type, nt.PackageName, int16(model.TaskStatusNotStarted), nt.Payload, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert task")
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

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, type, package_name, status, payload, result, error, created_at, updated_at FROM tasks WHERE id = $1`,
		id,
	)
	t, err := scanPgTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrTaskNotFound, "postgres: task %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get task %s", id)
	}
	return t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := `SELECT id, type, package_name, status, payload, result, error, created_at, updated_at FROM tasks WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, int16(*filter.Status))
		argIdx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.PackageName != "" {
		query += fmt.Sprintf(` AND package_name = $%d`, argIdx)
		args = append(args, filter.PackageName)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3`,
		int16(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update task status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTaskNotFound, "postgres: task %s", id)
	}
	return nil
}

func (s *PostgresStore) ClaimTask(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		int16(model.TaskStatusStarted), time.Now().UTC(), id, int16(model.TaskStatusNotStarted),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim task %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTask records the result and replaces the task's arrow heads and
// line in one transaction.
func (s *PostgresStore) CompleteTask(ctx context.Context, id string, layer *arrowline.Layer) error {
	result, heads, err := summarize(id, layer)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	headRows := make([][]any, 0, len(heads))
	for _, h := range heads {
		geom, err := db.EncodeEWKB(orb.Point{h.Lon, h.Lat})
		if err != nil {
			return err
		}
		headRows = append(headRows, []any{h.TaskID, int32(h.Seq), h.Bearing, geom})
	}

	var lineGeom []byte
	if len(layer.Line) >= 2 {
		if lineGeom, err = db.EncodeEWKB(layer.Line); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE tasks SET result = $1, error = NULL, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, int16(model.TaskStatusDone), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTaskNotFound, "postgres: task %s", id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM arrow_heads WHERE task_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: clear arrow heads %s", id)
	}
	if _, err := db.CopyFrom(ctx, tx, "arrow_heads", arrowHeadColumns, headRows); err != nil {
		return err
	}

	lineRow := []any{id, int32(len(layer.Line)), result.Polyline, lineGeom, time.Now().UTC()}
	if _, err := db.Upsert(ctx, tx, arrowLineUpsert, [][]any{lineRow}); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) FailTask(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reason, int16(model.TaskStatusFailed), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail task %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTaskNotFound, "postgres: task %s", id)
	}
	return nil
}

func (s *PostgresStore) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2 WHERE status = $3 AND updated_at < $4`,
		int16(model.TaskStatusNotStarted), time.Now().UTC(), int16(model.TaskStatusStarted), before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: requeue stale tasks")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListArrowHeads(ctx context.Context, taskID string) ([]model.ArrowHead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, seq, bearing, ST_AsEWKB(geom) FROM arrow_heads WHERE task_id = $1 ORDER BY seq`,
		taskID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list arrow heads %s", taskID)
	}
	defer rows.Close()

	var heads []model.ArrowHead
	for rows.Next() {
		var h model.ArrowHead
		var seq int32
		var geom []byte
		if err := rows.Scan(&h.TaskID, &seq, &h.Bearing, &geom); err != nil {
			return nil, eris.Wrap(err, "postgres: scan arrow head")
		}
		p, err := db.DecodeEWKBPoint(geom)
		if err != nil {
			return nil, err
		}
		h.Seq = int(seq)
		h.Lon, h.Lat = p.Lon(), p.Lat()
		heads = append(heads, h)
	}
	return heads, eris.Wrap(rows.Err(), "postgres: list arrow heads iterate")
}

func scanPgTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status int16
	var payload []byte
	var resultNull *[]byte
	var errText *string

	if err := row.Scan(&t.ID, &t.Type, &t.PackageName, &status, &payload, &resultNull, &errText, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	t.Payload = json.RawMessage(payload)
	if errText != nil {
		t.Error = *errText
	}
	if resultNull != nil {
		t.Result = &model.TaskResult{}
		if err := json.Unmarshal(*resultNull, t.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &t, nil
}
