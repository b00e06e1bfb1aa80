package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for an upsert.
type UpsertConfig struct {
	Table        string   // target table (e.g., "public.arrow_lines")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// Upsert inserts rows with a single INSERT ... ON CONFLICT DO UPDATE. Pass a
// pgx.Tx to make it part of a transaction.
func Upsert(ctx context.Context, q Querier, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query, args, err := buildUpsert(cfg, rows)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

func buildUpsert(cfg UpsertConfig, rows [][]any) (string, []any, error) {
	if len(cfg.Columns) == 0 {
		return "", nil, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", nil, eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	args := make([]any, 0, len(rows)*len(cfg.Columns))
	tuples := make([]string, len(rows))
	for i, row := range rows {
		if len(row) != len(cfg.Columns) {
			return "", nil, eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(row), len(cfg.Columns))
		}
		placeholders := make([]string, len(row))
		for j, v := range row {
			args = append(args, v)
			placeholders[j] = fmt.Sprintf("$%d", len(args))
		}
		tuples[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	action := "DO NOTHING"
	if len(updateCols) > 0 {
		setClauses := make([]string, len(updateCols))
		for i, col := range updateCols {
			id := pgx.Identifier{col}.Sanitize()
			setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", id, id)
		}
		action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(tuples, ", "),
		quoteAndJoin(cfg.ConflictKeys),
		action,
	)
	return query, args, nil
}

// sanitizeTable handles schema-qualified table names like "public.arrow_lines".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
