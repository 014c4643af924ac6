// Package enrich orchestrates the sequential enrichment pipeline for a
// single repository URL: fetch the README, persist it, summarize it,
// persist the summary, and publish a completion message. Each step's
// outcome is memoized on the run so a retried run resumes at the first
// incomplete step instead of redoing finished work.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seclist-labs/seclist-go/internal/domain"
	"github.com/seclist-labs/seclist-go/internal/githost"
	"github.com/seclist-labs/seclist-go/internal/queue"
	"github.com/seclist-labs/seclist-go/internal/storage/objectstore"
	"github.com/seclist-labs/seclist-go/internal/summarize"
)

// StepError identifies the pipeline step that failed and the cause.
type StepError struct {
	Step domain.Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// HostClient is the hosting-API surface the pipeline needs.
type HostClient interface {
	GetReadme(ctx context.Context, owner, repo string) (githost.Readme, error)
	GetRepoMetadata(ctx context.Context, owner, repo string) (githost.RepoMetadata, error)
}

// Summarizer produces a bounded-length summary of README text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords int, language string) (summarize.Summary, error)
}

// Controller runs the enrichment pipeline. All collaborators are
// required except Logger, which defaults to slog.Default.
type Controller struct {
	Host       HostClient
	Store      objectstore.Store
	Summarizer Summarizer
	Queue      queue.Publisher

	BucketReadmes   string
	BucketSummaries string

	Logger *slog.Logger
	Now    func() time.Time
}

// ReadmeKey is the deterministic storage key for a repository's README.
// Re-running a pipeline for the same repository overwrites rather than
// duplicates.
func ReadmeKey(owner, repo string) string {
	return fmt.Sprintf("readmes/%s/%s/README.md", owner, repo)
}

// SummaryKey is the deterministic storage key for a repository's summary.
func SummaryKey(owner, repo string) string {
	return fmt.Sprintf("summaries/%s/%s/summary.txt", owner, repo)
}

// Execute advances the run to a terminal state. Step outcomes are
// written to run.Steps as they complete; a failed step sets the run to
// failed and returns a StepError. Prior successful steps are never
// rolled back, retrying with the same keys is idempotent.
func (c *Controller) Execute(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil {
		return errors.New("enrich: run is required")
	}
	switch run.State {
	case domain.RunStateSucceeded, domain.RunStateSkipped:
		// Nothing left to do. Failed runs are retryable: completed
		// steps are memoized, so Execute resumes at the failed one.
		return nil
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", run.RunID, "url", run.URL)

	now := c.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	run.State = domain.RunStateRunning
	run.UpdatedAt = now()

	var readmeText []byte

	// FetchReadme
	if run.Steps.Readme == nil {
		readme, err := c.Host.GetReadme(ctx, run.Owner, run.Repo)
		if errors.Is(err, githost.ErrNotFound) {
			run.Steps.Readme = &domain.ReadmeResult{
				Found:  false,
				Reason: "repository has no README in its default branch",
			}
			run.State = domain.RunStateSkipped
			run.Reason = run.Steps.Readme.Reason
			run.UpdatedAt = now()
			logger.Info("enrichment skipped", "reason", run.Reason)
			return nil
		}
		if err != nil {
			return c.fail(run, logger, now, domain.StepFetchReadme, err)
		}
		run.Steps.Readme = &domain.ReadmeResult{
			Found: true,
			Name:  readme.Name,
			SHA:   readme.SHA,
			Size:  int64(len(readme.Content)),
		}
		readmeText = readme.Content
		logger.Info("readme fetched", "name", readme.Name, "size", len(readme.Content))
	}
	if !run.Steps.Readme.Found {
		run.State = domain.RunStateSkipped
		run.Reason = run.Steps.Readme.Reason
		run.UpdatedAt = now()
		return nil
	}

	// A resumed run holds step results but no content; refetch when a
	// later step still needs the README body.
	if readmeText == nil && (run.Steps.ReadmeUpload == nil || run.Steps.Summary == nil) {
		readme, err := c.Host.GetReadme(ctx, run.Owner, run.Repo)
		if err != nil {
			return c.fail(run, logger, now, domain.StepFetchReadme, err)
		}
		readmeText = readme.Content
	}

	// Repository metadata is advisory; a failed lookup never fails the run.
	if run.Metadata == nil {
		meta, err := c.Host.GetRepoMetadata(ctx, run.Owner, run.Repo)
		if err != nil {
			logger.Warn("repo metadata lookup failed", "error", err.Error())
		} else {
			run.Metadata = &domain.RepoMetadata{
				FullName:     meta.FullName,
				Description:  meta.Description,
				Stars:        meta.Stars,
				Forks:        meta.Forks,
				OpenIssues:   meta.OpenIssues,
				Language:     meta.Language,
				License:      meta.License,
				Topics:       meta.Topics,
				PushedAt:     meta.PushedAt,
				LatestCommit: meta.LatestCommit,
			}
		}
	}

	// UploadReadme
	if run.Steps.ReadmeUpload == nil {
		key := ReadmeKey(run.Owner, run.Repo)
		_, err := c.Store.Put(ctx, c.BucketReadmes, key, strings.NewReader(string(readmeText)), int64(len(readmeText)), "text/markdown")
		if err != nil {
			return c.fail(run, logger, now, domain.StepUploadReadme, err)
		}
		run.Steps.ReadmeUpload = &domain.UploadResult{
			Key:      key,
			Size:     int64(len(readmeText)),
			Checksum: sha256Hex(readmeText),
		}
		run.UpdatedAt = now()
		logger.Info("readme uploaded", "key", key, "size", len(readmeText))
	}

	// Summarize
	if run.Steps.Summary == nil {
		summary, err := c.Summarizer.Summarize(ctx, string(readmeText), run.MaxSummaryWords, run.Language)
		if err != nil {
			return c.fail(run, logger, now, domain.StepSummarize, err)
		}
		run.Steps.Summary = &domain.SummaryResult{
			Text:          summary.Text,
			OriginalWords: summary.OriginalWords,
			SummaryWords:  summary.SummaryWords,
		}
		run.UpdatedAt = now()
		logger.Info("summary generated", "original_words", summary.OriginalWords, "summary_words", summary.SummaryWords)
	}

	// UploadSummary
	if run.Steps.SummaryUpload == nil {
		key := SummaryKey(run.Owner, run.Repo)
		text := run.Steps.Summary.Text
		_, err := c.Store.Put(ctx, c.BucketSummaries, key, strings.NewReader(text), int64(len(text)), "text/plain; charset=utf-8")
		if err != nil {
			return c.fail(run, logger, now, domain.StepUploadSummary, err)
		}
		run.Steps.SummaryUpload = &domain.UploadResult{
			Key:      key,
			Size:     int64(len(text)),
			Checksum: sha256Hex([]byte(text)),
		}
		run.UpdatedAt = now()
		logger.Info("summary uploaded", "key", key, "size", len(text))
	}

	// Enqueue
	if run.Steps.Enqueue == nil {
		messageID, err := c.Queue.Publish(ctx, queue.Message{
			OccurredAt: now(),
			RunID:      run.RunID,
			URL:        run.URL,
			Priority:   run.Priority,
			Payload:    buildPayload(run),
		})
		if err != nil {
			return c.fail(run, logger, now, domain.StepEnqueue, err)
		}
		run.Steps.Enqueue = &domain.EnqueueResult{MessageID: messageID}
		logger.Info("enrichment enqueued", "message_id", messageID)
	}

	run.State = domain.RunStateSucceeded
	run.Reason = ""
	run.FailedStep = ""
	run.UpdatedAt = now()
	return nil
}

// buildPayload assembles the queue payload. It references the stored
// objects by key and carries word metrics only; the summary text stays
// in the object store.
func buildPayload(run *domain.PipelineRun) map[string]any {
	payload := map[string]any{
		"url":            run.URL,
		"upload":         run.Steps.ReadmeUpload,
		"summary_upload": run.Steps.SummaryUpload,
		"summary_metrics": map[string]int{
			"original_words": run.Steps.Summary.OriginalWords,
			"summary_words":  run.Steps.Summary.SummaryWords,
		},
	}
	if run.Metadata != nil {
		payload["repo_metadata"] = run.Metadata
	}
	return payload
}

func (c *Controller) fail(run *domain.PipelineRun, logger *slog.Logger, now func() time.Time, step domain.Step, err error) error {
	run.State = domain.RunStateFailed
	run.FailedStep = step
	run.Reason = err.Error()
	run.UpdatedAt = now()
	logger.Error("enrichment step failed", "step", string(step), "error", err.Error())
	return &StepError{Step: step, Err: err}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
