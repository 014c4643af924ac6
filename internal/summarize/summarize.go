// Package summarize generates bounded-length README summaries through
// an OpenAI-compatible chat completions endpoint.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/seclist-labs/seclist-go/internal/platform/env"
)

const (
	maxRetries   = 3
	initialDelay = 1 * time.Second
)

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("SECLIST_SUMMARY_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint: env.String("SECLIST_SUMMARY_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		APIKey:   env.String("SECLIST_SUMMARY_API_KEY", ""),
		Model:    env.String("SECLIST_SUMMARY_MODEL", "gpt-4o-mini"),
		Timeout:  timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("SECLIST_SUMMARY_ENDPOINT is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("SECLIST_SUMMARY_API_KEY is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("SECLIST_SUMMARY_MODEL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("SECLIST_SUMMARY_TIMEOUT must be positive")
	}
	return nil
}

// Summary is a generated summary plus its word accounting.
type Summary struct {
	Text          string
	OriginalWords int
	SummaryWords  int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewClientWithHTTP builds a client on a caller-provided http.Client.
func NewClientWithHTTP(cfg Config, httpClient *http.Client) *Client {
	return &Client{cfg: cfg, httpClient: httpClient}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Summarize produces a summary of at most maxWords words, written in
// the requested language. The input word count is computed before the
// call so callers can record compression metrics.
func (c *Client) Summarize(ctx context.Context, text string, maxWords int, language string) (Summary, error) {
	if strings.TrimSpace(text) == "" {
		return Summary{}, errors.New("summarize: empty input")
	}
	if maxWords <= 0 {
		return Summary{}, fmt.Errorf("summarize: max words must be positive (got %d)", maxWords)
	}
	if strings.TrimSpace(language) == "" {
		language = "en"
	}

	prompt := fmt.Sprintf(
		"Summarize the following repository README in at most %d words. Write the summary in language %q. Respond with the summary only.\n\n%s",
		maxWords, language, text,
	)
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Summary{}, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return Summary{}, fmt.Errorf("summarize: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("summarize: request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("summarize: read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
				lastErr = fmt.Errorf("summarize: api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
			} else {
				lastErr = fmt.Errorf("summarize: api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return Summary{}, lastErr
		}

		var chatResp chatResponse
		if err := json.Unmarshal(respBody, &chatResp); err != nil {
			return Summary{}, fmt.Errorf("summarize: decode response: %w", err)
		}
		if len(chatResp.Choices) == 0 {
			return Summary{}, errors.New("summarize: no choices in response")
		}

		summaryText := strings.TrimSpace(chatResp.Choices[0].Message.Content)
		if summaryText == "" {
			return Summary{}, errors.New("summarize: empty summary in response")
		}
		summaryText = TruncateWords(summaryText, maxWords)

		return Summary{
			Text:          summaryText,
			OriginalWords: CountWords(text),
			SummaryWords:  CountWords(summaryText),
		}, nil
	}

	return Summary{}, fmt.Errorf("summarize: max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// CountWords counts whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// TruncateWords cuts text to at most maxWords whitespace-separated
// tokens. The model is asked for the bound as well; this enforces it.
func TruncateWords(text string, maxWords int) string {
	fields := strings.Fields(text)
	if len(fields) <= maxWords {
		return text
	}
	return strings.Join(fields[:maxWords], " ")
}
