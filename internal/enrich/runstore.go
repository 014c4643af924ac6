package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

// ErrRunNotFound is returned when no run exists for the given id.
var ErrRunNotFound = errors.New("enrich: run not found")

// DB is the database surface the run store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunStore persists PipelineRuns so a restarted service can resume
// in-flight work at the first incomplete step.
type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Insert(ctx context.Context, run *domain.PipelineRun) error {
	if s == nil || s.db == nil {
		return errors.New("run store is not initialized")
	}
	if run == nil {
		return errors.New("run is required")
	}
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("RunID is required")
	}

	stepsJSON, metadataJSON, err := marshalRunDocs(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO enrichment_runs (
			run_id,
			url,
			owner,
			repo,
			priority,
			max_summary_words,
			language,
			state,
			failed_step,
			reason,
			steps,
			metadata,
			created_at,
			updated_at,
			created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		run.RunID,
		run.URL,
		run.Owner,
		run.Repo,
		string(run.Priority),
		run.MaxSummaryWords,
		run.Language,
		string(run.State),
		nullString(string(run.FailedStep)),
		nullString(run.Reason),
		stepsJSON,
		metadataJSON,
		run.CreatedAt.UTC(),
		run.UpdatedAt.UTC(),
		nullString(run.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert enrichment run: %w", err)
	}
	return nil
}

func (s *RunStore) Update(ctx context.Context, run *domain.PipelineRun) error {
	if s == nil || s.db == nil {
		return errors.New("run store is not initialized")
	}
	if run == nil {
		return errors.New("run is required")
	}

	stepsJSON, metadataJSON, err := marshalRunDocs(run)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE enrichment_runs SET
			state = $2,
			failed_step = $3,
			reason = $4,
			steps = $5,
			metadata = $6,
			updated_at = $7
		WHERE run_id = $1`,
		run.RunID,
		string(run.State),
		nullString(string(run.FailedStep)),
		nullString(run.Reason),
		stepsJSON,
		metadataJSON,
		run.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update enrichment run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	return s.selectOne(ctx, "run_id = $1", runID)
}

// GetLatestByURL returns the most recently created run for a repository
// URL, so a repeated enrichment request can pick up a failed run instead
// of starting over.
func (s *RunStore) GetLatestByURL(ctx context.Context, url string) (*domain.PipelineRun, error) {
	return s.selectOne(ctx, "url = $1 ORDER BY created_at DESC LIMIT 1", url)
}

func (s *RunStore) selectOne(ctx context.Context, where string, arg any) (*domain.PipelineRun, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("run store is not initialized")
	}

	var (
		run          domain.PipelineRun
		priority     string
		state        string
		failedStep   sql.NullString
		reason       sql.NullString
		stepsJSON    []byte
		metadataJSON []byte
		createdBy    sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT
			run_id, url, owner, repo,
			priority, max_summary_words, language,
			state, failed_step, reason,
			steps, metadata,
			created_at, updated_at, created_by
		FROM enrichment_runs
		WHERE `+where,
		arg,
	).Scan(
		&run.RunID, &run.URL, &run.Owner, &run.Repo,
		&priority, &run.MaxSummaryWords, &run.Language,
		&state, &failedStep, &reason,
		&stepsJSON, &metadataJSON,
		&createdAt, &updatedAt, &createdBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select enrichment run: %w", err)
	}

	run.Priority = domain.Priority(priority)
	run.State = domain.RunState(state)
	run.FailedStep = domain.Step(failedStep.String)
	run.Reason = reason.String
	run.CreatedBy = createdBy.String
	run.CreatedAt = createdAt
	run.UpdatedAt = updatedAt

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
			return nil, fmt.Errorf("decode run steps: %w", err)
		}
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		var meta domain.RepoMetadata
		if err := json.Unmarshal(metadataJSON, &meta); err != nil {
			return nil, fmt.Errorf("decode run metadata: %w", err)
		}
		run.Metadata = &meta
	}
	return &run, nil
}

func marshalRunDocs(run *domain.PipelineRun) (stepsJSON []byte, metadataJSON []byte, err error) {
	stepsJSON, err = json.Marshal(run.Steps)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal run steps: %w", err)
	}
	metadataJSON, err = json.Marshal(run.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal run metadata: %w", err)
	}
	return stepsJSON, metadataJSON, nil
}

func nullString(value string) sql.NullString {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: trimmed, Valid: true}
}
