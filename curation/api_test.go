package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

type fakeFetcher struct {
	files map[string][]byte
}

func (f *fakeFetcher) GetFileAt(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	data, ok := f.files[owner+"/"+repo+"/"+path+"@"+ref]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newTestAPI(host hostFetcher) *curationAPI {
	return newCurationAPI(testLogger(), nil, host, 15, 5)
}

func postJSON(t *testing.T, api *curationAPI, path string, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://example.test"+path, strings.NewReader(body))
	req.Header.Set("X-Request-Id", "rid-1")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleValidate_InlineList(t *testing.T) {
	api := newTestAPI(nil)
	body := `{"source":{"list":"repos:\n  - url: https://github.com/acme/scanner\n    tags: [c2]\n    contributor: alice\n","revision":"r1"}}`

	rec := postJSON(t, api, "/validations", body, api.handleValidate)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp validateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("Valid=false, violations=%v", resp.Violations)
	}
	if resp.Revision != "r1" {
		t.Fatalf("Revision=%q, want r1", resp.Revision)
	}
	if resp.Entries != 1 {
		t.Fatalf("Entries=%d, want 1", resp.Entries)
	}
}

func TestHandleValidate_ReportsViolations(t *testing.T) {
	api := newTestAPI(nil)
	body := `{"source":{"list":"repos:\n  - url: http://github.com/acme/scanner\n    tags: [c2]\n    contributor: alice\n"}}`

	rec := postJSON(t, api, "/validations", body, api.handleValidate)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var resp validateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Valid {
		t.Fatalf("Valid=true, want violations for http scheme")
	}
	if len(resp.Violations) == 0 {
		t.Fatalf("Violations is empty")
	}
	if resp.Violations[0].Index != 0 {
		t.Fatalf("violation index=%d, want 0", resp.Violations[0].Index)
	}
}

func TestHandleValidate_ParseError(t *testing.T) {
	api := newTestAPI(nil)
	body := `{"source":{"list":"- just\n- a\n- sequence\n"}}`

	rec := postJSON(t, api, "/validations", body, api.handleValidate)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["error"] != "parse_error" {
		t.Fatalf("error=%v, want parse_error", resp["error"])
	}
}

func TestHandleValidate_RejectsUnknownFields(t *testing.T) {
	api := newTestAPI(nil)
	rec := postJSON(t, api, "/validations", `{"source":{"list":"repos: []\n"},"bogus":1}`, api.handleValidate)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestResolveSnapshot_FetchesFromHost(t *testing.T) {
	host := &fakeFetcher{files: map[string][]byte{
		"acme/lists/repo-list.yaml@main": []byte("repos:\n  - url: https://github.com/acme/scanner\n    tags: [c2]\n    contributor: alice\n"),
	}}
	api := newTestAPI(host)

	snapshot, err := api.resolveSnapshot(context.Background(), listSource{Owner: "acme", Repo: "lists", Ref: "main"})
	if err != nil {
		t.Fatalf("resolveSnapshot() err=%v", err)
	}
	if snapshot.Revision != "main" {
		t.Fatalf("Revision=%q, want main", snapshot.Revision)
	}
	if len(snapshot.Records) != 1 {
		t.Fatalf("records=%d, want 1", len(snapshot.Records))
	}
}

func TestResolveSnapshot_RequiresSource(t *testing.T) {
	api := newTestAPI(nil)
	if _, err := api.resolveSnapshot(context.Background(), listSource{}); err == nil {
		t.Fatalf("expected error for empty source")
	}
	if _, err := api.resolveSnapshot(context.Background(), listSource{Owner: "acme"}); err == nil {
		t.Fatalf("expected error for partial coordinates")
	}
}

func TestTaggedChanges(t *testing.T) {
	cs := domain.ChangeSet{
		Added: []domain.Record{
			{Index: 2, URL: "https://github.com/acme/new", Tags: []string{"c2"}, Contributor: "alice"},
		},
		Removed: []domain.Record{
			{Index: 0, URL: "https://github.com/acme/old", LegacyTags: []string{"osint"}, Contributor: "bob"},
		},
	}
	got := taggedChanges(cs)
	if len(got) != 2 {
		t.Fatalf("entries=%d, want 2", len(got))
	}
	if got[0].Action != "add" || got[0].URL != "https://github.com/acme/new" {
		t.Fatalf("first entry=%+v", got[0])
	}
	if got[1].Action != "remove" || got[1].Tags[0] != "osint" {
		t.Fatalf("second entry=%+v", got[1])
	}
}

func TestIntegritySHA256_Deterministic(t *testing.T) {
	input := struct {
		A string `json:"a"`
		B int    `json:"b"`
	}{A: "x", B: 1}

	first, err := integritySHA256(input)
	if err != nil {
		t.Fatalf("integritySHA256() err=%v", err)
	}
	second, err := integritySHA256(input)
	if err != nil {
		t.Fatalf("integritySHA256() err=%v", err)
	}
	if first != second {
		t.Fatalf("integrity mismatch: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("len=%d, want 64 hex chars", len(first))
	}
}

func TestDecodeJSON_MultipleValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader(`{"source":{}}{"source":{}}`))
	var dst validateRequest
	if err := decodeJSON(req, &dst); err == nil {
		t.Fatalf("expected error for multiple JSON values")
	}
}
