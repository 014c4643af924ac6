package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seclist-labs/seclist-go/internal/domain"
	"github.com/seclist-labs/seclist-go/internal/listcheck"
	"github.com/seclist-labs/seclist-go/internal/listdiff"
	"github.com/seclist-labs/seclist-go/internal/listfile"
	"github.com/seclist-labs/seclist-go/internal/platform/auditlog"
	"github.com/seclist-labs/seclist-go/internal/platform/auth"
)

const defaultListPath = "repo-list.yaml"

// hostFetcher is the hosting-API surface the curation service needs to
// resolve a list file at a ref.
type hostFetcher interface {
	GetFileAt(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

type curationAPI struct {
	logger *slog.Logger
	db     *sql.DB
	host   hostFetcher

	maxAutomated   int
	maxContributor int
}

func newCurationAPI(logger *slog.Logger, db *sql.DB, host hostFetcher, maxAutomated, maxContributor int) *curationAPI {
	return &curationAPI{
		logger:         logger,
		db:             db,
		host:           host,
		maxAutomated:   maxAutomated,
		maxContributor: maxContributor,
	}
}

func (api *curationAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /validations", api.handleValidate)
	mux.HandleFunc("POST /change-requests", api.handleCreateChangeRequest)
	mux.HandleFunc("GET /change-requests/{change_request_id}", api.handleGetChangeRequest)
}

// listSource names one revision of the list: either inline serialized
// text or repository coordinates fetched through the hosting API.
type listSource struct {
	List     string `json:"list,omitempty"`
	Revision string `json:"revision,omitempty"`

	Owner string `json:"owner,omitempty"`
	Repo  string `json:"repo,omitempty"`
	Path  string `json:"path,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

func (s listSource) isInline() bool {
	return strings.TrimSpace(s.List) != ""
}

func (api *curationAPI) resolveSnapshot(ctx context.Context, src listSource) (domain.Snapshot, error) {
	if src.isInline() {
		revision := strings.TrimSpace(src.Revision)
		if revision == "" {
			revision = "inline"
		}
		return listfile.Load([]byte(src.List), revision)
	}

	owner := strings.TrimSpace(src.Owner)
	repo := strings.TrimSpace(src.Repo)
	ref := strings.TrimSpace(src.Ref)
	if owner == "" || repo == "" || ref == "" {
		return domain.Snapshot{}, errors.New("source requires either an inline list or owner, repo and ref")
	}
	if api.host == nil {
		return domain.Snapshot{}, errors.New("hosting api is not configured")
	}
	path := strings.TrimSpace(src.Path)
	if path == "" {
		path = defaultListPath
	}
	data, err := api.host.GetFileAt(ctx, owner, repo, path, ref)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("fetch %s at %q: %w", path, ref, err)
	}
	return listfile.Load(data, ref)
}

type validateRequest struct {
	Source listSource `json:"source"`
}

type validateResponse struct {
	Revision   string             `json:"revision"`
	Valid      bool               `json:"valid"`
	Entries    int                `json:"entries"`
	Violations []domain.Violation `json:"violations"`
}

func (api *curationAPI) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	snapshot, err := api.resolveSnapshot(r.Context(), req.Source)
	if err != nil {
		var parseErr *listfile.ParseError
		if errors.As(err, &parseErr) {
			api.writeError(w, r, http.StatusUnprocessableEntity, "parse_error", parseErr.Error())
			return
		}
		api.writeError(w, r, http.StatusBadRequest, "source_unavailable", err.Error())
		return
	}

	violations := listcheck.Validate(snapshot)
	api.writeJSON(w, http.StatusOK, validateResponse{
		Revision:   snapshot.Revision,
		Valid:      len(violations) == 0,
		Entries:    len(snapshot.Records),
		Violations: violations,
	})
}

type changeRequestBody struct {
	Old listSource `json:"old"`
	New listSource `json:"new"`

	// Context selects which change ceiling applies; an explicit
	// MaxChanges overrides both.
	Context    string `json:"context,omitempty"`
	MaxChanges *int   `json:"max_changes,omitempty"`
}

// changeEntry is one added or removed record, tagged with its action so
// downstream consumers need no positional knowledge.
type changeEntry struct {
	Action      string   `json:"action"`
	Index       int      `json:"index"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags,omitempty"`
	Contributor string   `json:"contributor,omitempty"`
}

type changeRequestReport struct {
	OldRevision string             `json:"old_revision"`
	NewRevision string             `json:"new_revision"`
	Changes     []changeEntry      `json:"changes"`
	ChangeCount int                `json:"change_count"`
	MaxChanges  int                `json:"max_changes"`
	Violations  []domain.Violation `json:"violations"`
}

type changeRequestResponse struct {
	ChangeRequestID string              `json:"change_request_id"`
	Decision        string              `json:"decision"`
	Reasons         []string            `json:"reasons,omitempty"`
	Report          changeRequestReport `json:"report"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (api *curationAPI) handleCreateChangeRequest(w http.ResponseWriter, r *http.Request) {
	var req changeRequestBody
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	maxChanges := api.maxAutomated
	switch strings.ToLower(strings.TrimSpace(req.Context)) {
	case "", "automated":
	case "contributor":
		maxChanges = api.maxContributor
	default:
		api.writeError(w, r, http.StatusBadRequest, "invalid_context", "context must be automated or contributor")
		return
	}
	if req.MaxChanges != nil {
		if *req.MaxChanges < 0 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_max_changes", "max_changes must not be negative")
			return
		}
		maxChanges = *req.MaxChanges
	}

	oldSnapshot, err := api.resolveSnapshot(r.Context(), req.Old)
	if err != nil {
		api.writeSnapshotError(w, r, "old", err)
		return
	}
	newSnapshot, err := api.resolveSnapshot(r.Context(), req.New)
	if err != nil {
		api.writeSnapshotError(w, r, "new", err)
		return
	}

	changes := listdiff.Diff(oldSnapshot, newSnapshot)
	violations := listcheck.Validate(newSnapshot)

	reasons := make([]string, 0, 2)
	if err := listdiff.CheckLimit(changes, maxChanges); err != nil {
		reasons = append(reasons, err.Error())
	}
	if len(violations) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d validation violation(s) in new revision", len(violations)))
	}

	decision := "accepted"
	if len(reasons) > 0 {
		decision = "rejected"
	}

	report := changeRequestReport{
		OldRevision: oldSnapshot.Revision,
		NewRevision: newSnapshot.Revision,
		Changes:     taggedChanges(changes),
		ChangeCount: changes.Count(),
		MaxChanges:  maxChanges,
		Violations:  violations,
	}

	resp := changeRequestResponse{
		ChangeRequestID: uuid.NewString(),
		Decision:        decision,
		Reasons:         reasons,
		Report:          report,
		CreatedAt:       time.Now().UTC(),
	}

	if err := api.storeChangeRequest(r.Context(), r, resp); err != nil {
		api.logger.Error("store change request failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}

	if decision == "rejected" {
		api.auditRejection(r, resp)
	}

	api.writeJSON(w, http.StatusCreated, resp)
}

func taggedChanges(cs domain.ChangeSet) []changeEntry {
	out := make([]changeEntry, 0, cs.Count())
	for _, record := range cs.Added {
		out = append(out, changeEntry{
			Action:      "add",
			Index:       record.Index,
			URL:         record.DisplayURL(),
			Tags:        record.EffectiveTags(),
			Contributor: record.Contributor,
		})
	}
	for _, record := range cs.Removed {
		out = append(out, changeEntry{
			Action:      "remove",
			Index:       record.Index,
			URL:         record.DisplayURL(),
			Tags:        record.EffectiveTags(),
			Contributor: record.Contributor,
		})
	}
	return out
}

func (api *curationAPI) storeChangeRequest(ctx context.Context, r *http.Request, resp changeRequestResponse) error {
	reportJSON, err := json.Marshal(resp.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	reasonsJSON, err := json.Marshal(resp.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	integrity, err := integritySHA256(struct {
		ChangeRequestID string          `json:"change_request_id"`
		Decision        string          `json:"decision"`
		Reasons         json.RawMessage `json:"reasons"`
		Report          json.RawMessage `json:"report"`
		CreatedAt       time.Time       `json:"created_at"`
	}{
		ChangeRequestID: resp.ChangeRequestID,
		Decision:        resp.Decision,
		Reasons:         reasonsJSON,
		Report:          reportJSON,
		CreatedAt:       resp.CreatedAt,
	})
	if err != nil {
		return err
	}

	_, err = api.db.ExecContext(
		ctx,
		`INSERT INTO change_requests (
			change_request_id,
			created_at,
			created_by,
			request_id,
			old_revision,
			new_revision,
			decision,
			change_count,
			max_changes,
			violation_count,
			reasons,
			report,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		resp.ChangeRequestID,
		resp.CreatedAt,
		nullString(actorFromRequest(r)),
		nullString(r.Header.Get("X-Request-Id")),
		resp.Report.OldRevision,
		resp.Report.NewRevision,
		resp.Decision,
		resp.Report.ChangeCount,
		resp.Report.MaxChanges,
		len(resp.Report.Violations),
		reasonsJSON,
		reportJSON,
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert change request: %w", err)
	}
	return nil
}

func (api *curationAPI) auditRejection(r *http.Request, resp changeRequestResponse) {
	auditCtx, cancel := context.WithTimeout(r.Context(), 750*time.Millisecond)
	defer cancel()

	_, err := auditlog.Insert(auditCtx, api.db, auditlog.Event{
		OccurredAt:   resp.CreatedAt,
		Actor:        actorFromRequest(r),
		Action:       "change_request.rejected",
		ResourceType: "change_request",
		ResourceID:   resp.ChangeRequestID,
		RequestID:    r.Header.Get("X-Request-Id"),
		IP:           requestIP(r.RemoteAddr),
		UserAgent:    r.UserAgent(),
		Payload: map[string]any{
			"reasons":      resp.Reasons,
			"change_count": resp.Report.ChangeCount,
			"max_changes":  resp.Report.MaxChanges,
			"violations":   len(resp.Report.Violations),
		},
	})
	if err != nil {
		api.logger.Warn("audit change request rejection failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
	}
}

func (api *curationAPI) handleGetChangeRequest(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("change_request_id"))
	if id == "" {
		api.writeError(w, r, http.StatusBadRequest, "change_request_id_required", "")
		return
	}

	var (
		resp        changeRequestResponse
		reasonsJSON []byte
		reportJSON  []byte
	)
	err := api.db.QueryRowContext(
		r.Context(),
		`SELECT change_request_id, decision, reasons, report, created_at
		FROM change_requests
		WHERE change_request_id = $1`,
		id,
	).Scan(&resp.ChangeRequestID, &resp.Decision, &reasonsJSON, &reportJSON, &resp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		api.writeError(w, r, http.StatusNotFound, "not_found", "")
		return
	}
	if err != nil {
		api.logger.Error("select change request failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if err := json.Unmarshal(reasonsJSON, &resp.Reasons); err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if err := json.Unmarshal(reportJSON, &resp.Report); err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
		return
	}
	api.writeJSON(w, http.StatusOK, resp)
}

func (api *curationAPI) writeSnapshotError(w http.ResponseWriter, r *http.Request, side string, err error) {
	var parseErr *listfile.ParseError
	if errors.As(err, &parseErr) {
		api.writeError(w, r, http.StatusUnprocessableEntity, "parse_error", fmt.Sprintf("%s revision: %v", side, parseErr))
		return
	}
	api.writeError(w, r, http.StatusBadRequest, "source_unavailable", fmt.Sprintf("%s revision: %v", side, err))
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

func (api *curationAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *curationAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string, detail string) {
	body := map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	}
	if detail != "" {
		body["detail"] = detail
	}
	api.writeJSON(w, status, body)
}

func requestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func nullString(value string) sql.NullString {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: trimmed, Valid: true}
}

func integritySHA256(input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
