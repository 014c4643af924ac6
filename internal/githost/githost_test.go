package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "plain", raw: "https://github.com/acme/scanner", wantOwner: "acme", wantRepo: "scanner"},
		{name: "trailing slash", raw: "https://github.com/acme/scanner/", wantOwner: "acme", wantRepo: "scanner"},
		{name: "git suffix", raw: "https://github.com/acme/scanner.git", wantOwner: "acme", wantRepo: "scanner"},
		{name: "tree path", raw: "https://github.com/acme/scanner/tree/main/docs", wantOwner: "acme", wantRepo: "scanner"},
		{name: "query preserved upstream", raw: "https://github.com/acme/scanner?tab=readme", wantOwner: "acme", wantRepo: "scanner"},
		{name: "owner only", raw: "https://github.com/acme", wantErr: true},
		{name: "no path", raw: "https://github.com", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRepoURL(%q) err=nil, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepoURL(%q) err=%v", tt.raw, err)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Fatalf("ParseRepoURL(%q)=(%q, %q), want (%q, %q)", tt.raw, owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestGetReadme(t *testing.T) {
	content := "# Scanner\n\nA network scanner."
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/scanner/readme" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Fatalf("Accept=%q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":     "README.md",
			"path":     "README.md",
			"sha":      "abc123",
			"size":     len(content),
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		})
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	readme, err := client.GetReadme(context.Background(), "acme", "scanner")
	if err != nil {
		t.Fatalf("GetReadme() err=%v", err)
	}
	if readme.Name != "README.md" {
		t.Fatalf("Name=%q, want README.md", readme.Name)
	}
	if readme.SHA != "abc123" {
		t.Fatalf("SHA=%q, want abc123", readme.SHA)
	}
	if string(readme.Content) != content {
		t.Fatalf("Content=%q, want %q", readme.Content, content)
	}
}

func TestGetReadme_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	_, err := client.GetReadme(context.Background(), "acme", "empty")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetReadme() err=%v, want ErrNotFound", err)
	}
}

func TestGetFileAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/lists/contents/repo-list.yaml" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Fatalf("ref=%q, want main", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":     "repo-list.yaml",
			"content":  base64.StdEncoding.EncodeToString([]byte("repos: []\n")),
			"encoding": "base64",
		})
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	data, err := client.GetFileAt(context.Background(), "acme", "lists", "repo-list.yaml", "main")
	if err != nil {
		t.Fatalf("GetFileAt() err=%v", err)
	}
	if string(data) != "repos: []\n" {
		t.Fatalf("content=%q", data)
	}
}

func TestGetRepoMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/scanner":
			json.NewEncoder(w).Encode(map[string]any{
				"full_name":         "acme/scanner",
				"description":       "A network scanner.",
				"stargazers_count":  420,
				"forks_count":       17,
				"open_issues_count": 3,
				"language":          "C",
				"topics":            []string{"network", "pentest"},
				"pushed_at":         "2026-08-01T10:00:00Z",
				"license":           map[string]any{"spdx_id": "MIT", "name": "MIT License"},
			})
		case "/repos/acme/scanner/commits":
			json.NewEncoder(w).Encode([]map[string]any{{"sha": "deadbeef"}})
		default:
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	meta, err := client.GetRepoMetadata(context.Background(), "acme", "scanner")
	if err != nil {
		t.Fatalf("GetRepoMetadata() err=%v", err)
	}
	if meta.FullName != "acme/scanner" {
		t.Fatalf("FullName=%q", meta.FullName)
	}
	if meta.Stars != 420 || meta.Forks != 17 || meta.OpenIssues != 3 {
		t.Fatalf("counts=(%d, %d, %d)", meta.Stars, meta.Forks, meta.OpenIssues)
	}
	if meta.License != "MIT" {
		t.Fatalf("License=%q, want MIT", meta.License)
	}
	if meta.LatestCommit != "deadbeef" {
		t.Fatalf("LatestCommit=%q, want deadbeef", meta.LatestCommit)
	}
}

func TestGetRepoMetadata_CommitLookupFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/scanner":
			json.NewEncoder(w).Encode(map[string]any{"full_name": "acme/scanner"})
		case "/repos/acme/scanner/commits":
			http.Error(w, `{"message":"conflict"}`, http.StatusConflict)
		default:
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClientWithHTTP(srv.URL, srv.Client())
	meta, err := client.GetRepoMetadata(context.Background(), "acme", "scanner")
	if err != nil {
		t.Fatalf("GetRepoMetadata() err=%v", err)
	}
	if meta.LatestCommit != "" {
		t.Fatalf("LatestCommit=%q, want empty", meta.LatestCommit)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{BaseURL: "https://api.github.com", Timeout: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
	cfg = Config{BaseURL: "", Timeout: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
