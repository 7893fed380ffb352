package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/helmsman-ops/console/core/protocol"
)

// Correlation ids are only unique within one console run; the database
// outlives the process, so rows carry the owning run's id and the key is
// the (run, correlation) pair.
const schema = `
CREATE TABLE IF NOT EXISTS history (
	run_id         TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	spec_type      TEXT NOT NULL,
	spec           TEXT NOT NULL,
	state          TEXT NOT NULL,
	result_code    INTEGER,
	started_at     INTEGER NOT NULL,
	finished_at    INTEGER NOT NULL,
	output         TEXT NOT NULL,
	PRIMARY KEY (run_id, correlation_id)
);
CREATE INDEX IF NOT EXISTS idx_history_finished ON history(finished_at DESC);
`

type sqliteStore struct {
	db        *sql.DB
	retention Retention
	runID     string
}

// NewSQLiteStore creates a durable Store at the given path. The database is
// opened with WAL and a busy timeout, restricted to a single connection,
// matching how the rest of the file-backed state is kept private to the
// owning process.
func NewSQLiteStore(ctx context.Context, path string, retention Retention) (Store, error) {
	if err := retention.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap history schema: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("chmod history db: %w", err)
	}

	return &sqliteStore{
		db:        db,
		retention: retention,
		runID:     uuid.Must(uuid.NewV7()).String(),
	}, nil
}

func (s *sqliteStore) Append(ctx context.Context, entry Entry) error {
	specJSON, err := json.Marshal(entry.Spec)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}

	var resultCode any
	if entry.ResultCode != nil {
		resultCode = *entry.ResultCode
	}

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO history(run_id, correlation_id, spec_type, spec, state, result_code, started_at, finished_at, output)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, s.runID, entry.CorrelationID, entry.Spec.Type, string(specJSON), entry.State, resultCode,
		entry.StartedAt.UnixMilli(), entry.FinishedAt.UnixMilli(), entry.Output)
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.CorrelationID)
	}

	if s.retention.Mode == RetentionCapped {
		if _, err := s.db.ExecContext(ctx, `
DELETE FROM history WHERE rowid NOT IN (
	SELECT rowid FROM history ORDER BY finished_at DESC, rowid DESC LIMIT ?
)`, s.retention.Cap); err != nil {
			return fmt.Errorf("evict history entries: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) Query(ctx context.Context, filter Filter, page Page) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if filter.SpecType != "" {
		where = append(where, "spec_type = ?")
		args = append(args, filter.SpecType)
	}
	if len(filter.States) > 0 {
		placeholders := strings.Repeat("?,", len(filter.States))
		where = append(where, fmt.Sprintf("state IN (%s)", placeholders[:len(placeholders)-1]))
		for _, state := range filter.States {
			args = append(args, state)
		}
	}

	query := "SELECT correlation_id, spec, state, result_code, started_at, finished_at, output FROM history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY finished_at DESC, rowid DESC"

	limit := page.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			specJSON   string
			resultCode sql.NullInt64
			startedAt  int64
			finishedAt int64
		)
		if err := rows.Scan(&entry.CorrelationID, &specJSON, &entry.State, &resultCode, &startedAt, &finishedAt, &entry.Output); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		var spec protocol.CommandSpec
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			return nil, fmt.Errorf("decode spec for %s: %w", entry.CorrelationID, err)
		}
		entry.Spec = spec
		if resultCode.Valid {
			code := int(resultCode.Int64)
			entry.ResultCode = &code
		}
		entry.StartedAt = time.UnixMilli(startedAt).UTC()
		entry.FinishedAt = time.UnixMilli(finishedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return entries, nil
}

// AmendResultCode only touches rows written by this run: a correlation id
// from an earlier process may reuse the same string.
func (s *sqliteStore) AmendResultCode(ctx context.Context, correlationID string, code int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE history SET result_code = ? WHERE run_id = ? AND correlation_id = ?", code, s.runID, correlationID)
	if err != nil {
		return fmt.Errorf("amend history entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("amend history entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, correlationID)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
