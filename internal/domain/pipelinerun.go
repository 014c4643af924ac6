package domain

import "time"

// Step identifies one stage of the enrichment pipeline.
type Step string

const (
	StepFetchReadme   Step = "fetch_readme"
	StepUploadReadme  Step = "upload_readme"
	StepSummarize     Step = "summarize"
	StepUploadSummary Step = "upload_summary"
	StepEnqueue       Step = "enqueue"
)

// RunState is the lifecycle state of a PipelineRun.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateSkipped   RunState = "skipped"
	RunStateFailed    RunState = "failed"
)

// Priority orders enrichment work for downstream consumers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ReadmeResult is the memoized outcome of the fetch step.
type ReadmeResult struct {
	Found  bool   `json:"found"`
	Name   string `json:"name,omitempty"`
	SHA    string `json:"sha,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// UploadResult is the memoized outcome of an object-store upload step.
type UploadResult struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// SummaryResult is the memoized outcome of the summarize step. Text is
// retained on the run record so a resumed run can re-upload without a
// second generation call; it is never placed on the queue payload.
type SummaryResult struct {
	Text          string `json:"text"`
	OriginalWords int    `json:"original_words"`
	SummaryWords  int    `json:"summary_words"`
}

// EnqueueResult is the memoized outcome of the enqueue step.
type EnqueueResult struct {
	MessageID string `json:"message_id"`
}

// RepoMetadata carries repository details fetched from the hosting API.
// It is advisory enrichment: a failed metadata fetch never fails a run.
type RepoMetadata struct {
	FullName     string   `json:"full_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Stars        int      `json:"stars"`
	Forks        int      `json:"forks"`
	OpenIssues   int      `json:"open_issues"`
	Language     string   `json:"language,omitempty"`
	License      string   `json:"license,omitempty"`
	Topics       []string `json:"topics,omitempty"`
	PushedAt     string   `json:"last_pushed_at,omitempty"`
	LatestCommit string   `json:"latest_commit_sha,omitempty"`
}

// StepResults holds the per-step memoized outcomes of a run. A nil field
// means the step has not completed; Execute skips any step whose result
// is already present, which makes retried runs resume instead of redo.
type StepResults struct {
	Readme        *ReadmeResult  `json:"readme,omitempty"`
	ReadmeUpload  *UploadResult  `json:"readme_upload,omitempty"`
	Summary       *SummaryResult `json:"summary,omitempty"`
	SummaryUpload *UploadResult  `json:"summary_upload,omitempty"`
	Enqueue       *EnqueueResult `json:"enqueue,omitempty"`
}

// PipelineRun is one execution of the enrichment pipeline for a single
// repository URL.
type PipelineRun struct {
	RunID string
	URL   string
	Owner string
	Repo  string

	Priority        Priority
	MaxSummaryWords int
	Language        string

	State      RunState
	FailedStep Step
	Reason     string

	Steps    StepResults
	Metadata *RepoMetadata

	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
}

// Terminal reports whether the run has reached a terminal state.
func (r *PipelineRun) Terminal() bool {
	switch r.State {
	case RunStateSucceeded, RunStateSkipped, RunStateFailed:
		return true
	default:
		return false
	}
}
