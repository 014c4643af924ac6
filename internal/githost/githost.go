// Package githost talks to the repository hosting API for README
// content, files at a ref, and repository metadata.
package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/seclist-labs/seclist-go/internal/platform/env"
)

// ErrNotFound is returned when the requested resource does not exist
// on the hosting side, e.g. a repository without a README.
var ErrNotFound = errors.New("githost: not found")

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("SECLIST_GITHUB_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		BaseURL: env.String("SECLIST_GITHUB_BASE_URL", "https://api.github.com"),
		Token:   env.String("SECLIST_GITHUB_TOKEN", ""),
		Timeout: timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("SECLIST_GITHUB_BASE_URL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("SECLIST_GITHUB_TIMEOUT must be positive")
	}
	return nil
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if strings.TrimSpace(cfg.Token) != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = cfg.Timeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// NewClientWithHTTP builds a client on a caller-provided http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ParseRepoURL extracts the owner and repository name from a hosted
// repository URL. A trailing ".git" suffix and extra path segments
// such as "/tree/main" are tolerated.
func ParseRepoURL(raw string) (owner string, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse repo url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo url %q must contain /<owner>/<repo>", raw)
	}
	owner = parts[0]
	repo = strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return "", "", fmt.Errorf("repo url %q must contain /<owner>/<repo>", raw)
	}
	return owner, repo, nil
}

// Readme is the decoded README payload for a repository.
type Readme struct {
	Name    string
	Path    string
	SHA     string
	Size    int64
	Content []byte
}

type contentResponse struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetReadme fetches the repository's preferred README. Returns
// ErrNotFound when the repository has none.
func (c *Client) GetReadme(ctx context.Context, owner, repo string) (Readme, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/readme", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	var resp contentResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return Readme{}, err
	}
	content, err := decodeContent(resp)
	if err != nil {
		return Readme{}, fmt.Errorf("decode readme for %s/%s: %w", owner, repo, err)
	}
	return Readme{
		Name:    resp.Name,
		Path:    resp.Path,
		SHA:     resp.SHA,
		Size:    resp.Size,
		Content: content,
	}, nil
}

// GetFileAt fetches a file's content at a given ref. Returns
// ErrNotFound when the file does not exist at that ref.
func (c *Client) GetFileAt(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), path)
	if strings.TrimSpace(ref) != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	var resp contentResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	content, err := decodeContent(resp)
	if err != nil {
		return nil, fmt.Errorf("decode %s at %q for %s/%s: %w", path, ref, owner, repo, err)
	}
	return content, nil
}

type repoResponse struct {
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	OpenIssues  int      `json:"open_issues_count"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	PushedAt    string   `json:"pushed_at"`
	License     *struct {
		SPDXID string `json:"spdx_id"`
		Name   string `json:"name"`
	} `json:"license"`
}

type commitResponse struct {
	SHA string `json:"sha"`
}

// RepoMetadata carries the subset of repository details the enrichment
// pipeline records. LatestCommit is best effort: a failed commit lookup
// leaves it empty rather than failing the call.
type RepoMetadata struct {
	FullName     string
	Description  string
	Stars        int
	Forks        int
	OpenIssues   int
	Language     string
	License      string
	Topics       []string
	PushedAt     string
	LatestCommit string
}

func (c *Client) GetRepoMetadata(ctx context.Context, owner, repo string) (RepoMetadata, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	var resp repoResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return RepoMetadata{}, err
	}

	meta := RepoMetadata{
		FullName:    resp.FullName,
		Description: resp.Description,
		Stars:       resp.Stars,
		Forks:       resp.Forks,
		OpenIssues:  resp.OpenIssues,
		Language:    resp.Language,
		Topics:      resp.Topics,
		PushedAt:    resp.PushedAt,
	}
	if resp.License != nil {
		meta.License = resp.License.SPDXID
		if meta.License == "" || meta.License == "NOASSERTION" {
			meta.License = resp.License.Name
		}
	}

	commitsEndpoint := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=1", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	var commits []commitResponse
	if err := c.getJSON(ctx, commitsEndpoint, &commits); err == nil && len(commits) > 0 {
		meta.LatestCommit = commits[0].SHA
	}

	return meta, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("githost request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("githost request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeContent(resp contentResponse) ([]byte, error) {
	switch resp.Encoding {
	case "base64":
		cleaned := strings.ReplaceAll(resp.Content, "\n", "")
		return base64.StdEncoding.DecodeString(cleaned)
	case "", "none":
		return []byte(resp.Content), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Encoding)
	}
}
