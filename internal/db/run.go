package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soochol/minizaps/internal/zaps"
)

// ErrRunNotFound is returned by GetRun when no row matches.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, workflow_name, status, trigger_type, trigger_payload, logs, retry_count, max_retries, current_step, created_at, updated_at`

// CreateRun stores a new run record.
func (d *DB) CreateRun(ctx context.Context, r *zaps.RunRecord) error {
	payloadJSON, logsJSON, err := encodeRunJSON(r)
	if err != nil {
		return err
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.WorkflowName, string(r.Status), string(r.TriggerType),
		string(payloadJSON), string(logsJSON), r.RetryCount, r.MaxRetries, r.CurrentStep,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (d *DB) GetRun(ctx context.Context, id string) (*zaps.RunRecord, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// UpdateRun overwrites the mutable columns of an existing run record.
// A record missing from the table is inserted so the mirror converges.
func (d *DB) UpdateRun(ctx context.Context, r *zaps.RunRecord) error {
	payloadJSON, logsJSON, err := encodeRunJSON(r)
	if err != nil {
		return err
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   logs = EXCLUDED.logs,
		   retry_count = EXCLUDED.retry_count,
		   current_step = EXCLUDED.current_step,
		   updated_at = EXCLUDED.updated_at`,
		r.ID, r.WorkflowName, string(r.Status), string(r.TriggerType),
		string(payloadJSON), string(logsJSON), r.RetryCount, r.MaxRetries, r.CurrentStep,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]*zaps.RunRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []*zaps.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return result, nil
}

// MarkOrphanedRunsFailed fails every run left STARTED or RETRYING by a
// previous process and appends message to its logs.
func (d *DB) MarkOrphanedRunsFailed(ctx context.Context, message string) (int64, error) {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflow_runs
		 SET status = $1, logs = logs || to_jsonb($2::text), updated_at = NOW()
		 WHERE status IN ($3, $4)`,
		string(zaps.RunStatusFailed), message,
		string(zaps.RunStatusStarted), string(zaps.RunStatusRetrying),
	)
	if err != nil {
		return 0, fmt.Errorf("mark orphaned runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*zaps.RunRecord, error) {
	r := &zaps.RunRecord{}
	var status, triggerType string
	var payloadJSON, logsJSON []byte

	if err := s.Scan(&r.ID, &r.WorkflowName, &status, &triggerType,
		&payloadJSON, &logsJSON, &r.RetryCount, &r.MaxRetries, &r.CurrentStep,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Status = zaps.RunStatus(status)
	r.TriggerType = zaps.TriggerType(triggerType)
	if err := json.Unmarshal(payloadJSON, &r.TriggerPayload); err != nil {
		return nil, fmt.Errorf("decode trigger_payload: %w", err)
	}
	if err := json.Unmarshal(logsJSON, &r.Logs); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	if r.Logs == nil {
		r.Logs = []string{}
	}
	return r, nil
}

// encodeRunJSON returns the JSONB columns. Callers pass them as strings;
// lib/pq sends []byte parameters as bytea.
func encodeRunJSON(r *zaps.RunRecord) (payload, logs []byte, err error) {
	p := r.TriggerPayload
	if p == nil {
		p = map[string]any{}
	}
	if payload, err = json.Marshal(p); err != nil {
		return nil, nil, fmt.Errorf("encode trigger_payload: %w", err)
	}
	l := r.Logs
	if l == nil {
		l = []string{}
	}
	if logs, err = json.Marshal(l); err != nil {
		return nil, nil, fmt.Errorf("encode logs: %w", err)
	}
	return payload, logs, nil
}
