package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/errors"
)

// Pipeline run types.
const (
	RunTypeIngestion = "ingestion"
	RunTypeRetrieval = "retrieval"
	RunTypeSync      = "ssot_sync"
)

// CreateRun inserts a pipeline run, assigning an id when empty.
func (s *Store) CreateRun(ctx context.Context, run *PipelineRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	run.StartedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, tenant_id, kb_id, type, config_json, status, started_at, completed_at, result_json, error, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenantID, run.KBID, run.Type, jsonText(run.Config), run.Status,
		timeText(run.StartedAt), nullTimeText(run.CompletedAt),
		jsonText(run.Result), run.Error, jsonText(run.Metrics))
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "create pipeline run", err)
	}
	return nil
}

// MarkRunRunning transitions a pending run to running.
func (s *Store) MarkRunRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ? WHERE id = ? AND status = ?`,
		RunRunning, id, RunPending)
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "mark run running", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.runTransitionError(ctx, id)
	}
	return nil
}

// FinalizeRun moves a run to a terminal status with its result, error,
// and metrics. Terminal statuses never transition again, so finalizing
// an already-finalized run is a no-op.
func (s *Store) FinalizeRun(ctx context.Context, id, status string, result, metrics map[string]any, errText string) error {
	if status != RunCompleted && status != RunFailed {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("%q is not a terminal run status", status))
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, completed_at = ?, result_json = ?, error = ?, metrics_json = ?
		WHERE id = ? AND status IN (?, ?)`,
		status, timeText(time.Now()), jsonText(result), errText, jsonText(metrics),
		id, RunPending, RunRunning)
	if err != nil {
		return errors.Backend(errors.ErrCodeMetadataBackend, "finalize pipeline run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.GetRun(ctx, id); getErr != nil {
			return getErr
		}
		return nil
	}
	return nil
}

// GetRun loads a pipeline run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kb_id, type, config_json, status, started_at, completed_at, result_json, error, metrics_json
		FROM pipeline_runs WHERE id = ?`, id)

	var run PipelineRun
	var config, result, metrics, started string
	var completed sql.NullString
	err := row.Scan(&run.ID, &run.TenantID, &run.KBID, &run.Type, &config,
		&run.Status, &started, &completed, &result, &run.Error, &metrics)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.ErrCodeRunNotFound, "pipeline run", id)
	}
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeMetadataBackend, "load pipeline run", err)
	}
	run.Config = parseJSON(config)
	run.Result = parseJSON(result)
	run.Metrics = parseJSON(metrics)
	run.StartedAt = parseTime(started)
	run.CompletedAt = parseNullTime(completed)
	return &run, nil
}

func (s *Store) runTransitionError(ctx context.Context, id string) error {
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	return errors.Internal(fmt.Sprintf("pipeline run %q is not pending", id), nil)
}
