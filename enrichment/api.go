package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seclist-labs/seclist-go/internal/domain"
	"github.com/seclist-labs/seclist-go/internal/enrich"
	"github.com/seclist-labs/seclist-go/internal/githost"
	"github.com/seclist-labs/seclist-go/internal/platform/auth"
)

const (
	minSummaryWords     = 10
	maxSummaryWords     = 1000
	defaultSummaryWords = 200
	defaultLanguage     = "en"
)

// runStore is the persistence surface the API needs; *enrich.RunStore
// satisfies it.
type runStore interface {
	Insert(ctx context.Context, run *domain.PipelineRun) error
	Update(ctx context.Context, run *domain.PipelineRun) error
	Get(ctx context.Context, runID string) (*domain.PipelineRun, error)
	GetLatestByURL(ctx context.Context, url string) (*domain.PipelineRun, error)
}

type enrichmentAPI struct {
	logger     *slog.Logger
	runs       runStore
	controller *enrich.Controller
}

func newEnrichmentAPI(logger *slog.Logger, runs runStore, controller *enrich.Controller) *enrichmentAPI {
	return &enrichmentAPI{
		logger:     logger,
		runs:       runs,
		controller: controller,
	}
}

func (api *enrichmentAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /enrichments", api.handleCreate)
	mux.HandleFunc("GET /enrichments/{run_id}", api.handleGet)
	mux.HandleFunc("POST /enrichments/{run_id}/retry", api.handleRetry)
}

type createRequest struct {
	URL              string `json:"url"`
	Priority         string `json:"priority,omitempty"`
	MaxSummaryLength *int   `json:"max_summary_length,omitempty"`
	Language         string `json:"language,omitempty"`
}

type runResponse struct {
	RunID      string   `json:"run_id"`
	URL        string   `json:"url"`
	Priority   string   `json:"priority"`
	State      string   `json:"state"`
	FailedStep string   `json:"failed_step,omitempty"`
	Reason     string   `json:"reason,omitempty"`

	Steps    domain.StepResults   `json:"steps"`
	Metadata *domain.RepoMetadata `json:"repo_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRunResponse(run *domain.PipelineRun) runResponse {
	resp := runResponse{
		RunID:      run.RunID,
		URL:        run.URL,
		Priority:   string(run.Priority),
		State:      string(run.State),
		FailedStep: string(run.FailedStep),
		Reason:     run.Reason,
		Steps:      run.Steps,
		Metadata:   run.Metadata,
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
	}
	// Summary text lives in the object store, not in API responses.
	if resp.Steps.Summary != nil {
		redacted := *resp.Steps.Summary
		redacted.Text = ""
		resp.Steps.Summary = &redacted
	}
	return resp
}

func (api *enrichmentAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		api.writeError(w, r, http.StatusBadRequest, "url_required", "")
		return
	}
	owner, repo, err := githost.ParseRepoURL(req.URL)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	priority := domain.PriorityMedium
	switch strings.ToLower(strings.TrimSpace(req.Priority)) {
	case "":
	case string(domain.PriorityLow):
		priority = domain.PriorityLow
	case string(domain.PriorityMedium):
		priority = domain.PriorityMedium
	case string(domain.PriorityHigh):
		priority = domain.PriorityHigh
	default:
		api.writeError(w, r, http.StatusBadRequest, "invalid_priority", "priority must be low, medium or high")
		return
	}

	summaryWords := defaultSummaryWords
	if req.MaxSummaryLength != nil {
		if *req.MaxSummaryLength < minSummaryWords || *req.MaxSummaryLength > maxSummaryWords {
			api.writeError(w, r, http.StatusBadRequest, "invalid_max_summary_length", "max_summary_length must be between 10 and 1000")
			return
		}
		summaryWords = *req.MaxSummaryLength
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = defaultLanguage
	}

	// A failed run for the same URL is resumed rather than duplicated;
	// completed steps are memoized on it.
	if prev, err := api.runs.GetLatestByURL(r.Context(), req.URL); err == nil && prev.State == domain.RunStateFailed {
		prev.MaxSummaryWords = summaryWords
		prev.Language = language
		api.execute(r.Context(), prev)
		api.writeJSON(w, http.StatusOK, toRunResponse(prev))
		return
	} else if err != nil && !errors.Is(err, enrich.ErrRunNotFound) {
		api.logger.Error("lookup run by url failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}

	now := time.Now().UTC()
	run := &domain.PipelineRun{
		RunID:           uuid.NewString(),
		URL:             req.URL,
		Owner:           owner,
		Repo:            repo,
		Priority:        priority,
		MaxSummaryWords: summaryWords,
		Language:        language,
		State:           domain.RunStateRunning,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       actorFromRequest(r),
	}

	if err := api.runs.Insert(r.Context(), run); err != nil {
		api.logger.Error("insert run failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}

	api.execute(r.Context(), run)
	api.writeJSON(w, http.StatusCreated, toRunResponse(run))
}

func (api *enrichmentAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required", "")
		return
	}
	run, err := api.runs.Get(r.Context(), runID)
	if errors.Is(err, enrich.ErrRunNotFound) {
		api.writeError(w, r, http.StatusNotFound, "not_found", "")
		return
	}
	if err != nil {
		api.logger.Error("load run failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	api.writeJSON(w, http.StatusOK, toRunResponse(run))
}

// handleRetry re-executes a failed run. Completed steps are memoized on
// the stored run, so the pipeline resumes at the failed step.
func (api *enrichmentAPI) handleRetry(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required", "")
		return
	}
	run, err := api.runs.Get(r.Context(), runID)
	if errors.Is(err, enrich.ErrRunNotFound) {
		api.writeError(w, r, http.StatusNotFound, "not_found", "")
		return
	}
	if err != nil {
		api.logger.Error("load run failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if run.State != domain.RunStateFailed {
		api.writeError(w, r, http.StatusConflict, "not_retryable", "only failed runs can be retried")
		return
	}

	api.execute(r.Context(), run)
	api.writeJSON(w, http.StatusOK, toRunResponse(run))
}

// execute drives the controller and persists the resulting run state.
// Step failures are recorded on the run rather than surfaced as HTTP
// errors; the response body carries the failed step and reason.
func (api *enrichmentAPI) execute(ctx context.Context, run *domain.PipelineRun) {
	if err := api.controller.Execute(ctx, run); err != nil {
		api.logger.Warn("enrichment run failed", "run_id", run.RunID, "step", string(run.FailedStep), "error", err.Error())
	}
	if err := api.runs.Update(ctx, run); err != nil {
		api.logger.Error("persist run failed", "run_id", run.RunID, "error", err.Error())
	}
}

func actorFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.Subject) != "" {
		return identity.Subject
	}
	return "anonymous"
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *enrichmentAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *enrichmentAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string, detail string) {
	body := map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	}
	if detail != "" {
		body["detail"] = detail
	}
	api.writeJSON(w, status, body)
}
