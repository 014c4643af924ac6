// Command seclist-check validates a curated repository list and gates
// the change between two revisions. It is the CI entry point: exit 0
// when the change passes, 1 when validation or the change limit fails,
// 2 on usage or load errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/seclist-labs/seclist-go/internal/domain"
	"github.com/seclist-labs/seclist-go/internal/githost"
	"github.com/seclist-labs/seclist-go/internal/listcheck"
	"github.com/seclist-labs/seclist-go/internal/listdiff"
	"github.com/seclist-labs/seclist-go/internal/listfile"
)

type options struct {
	file       string
	repo       string
	oldRef     string
	newRef     string
	oldFile    string
	newFile    string
	maxChanges int
	output     string
}

type changeEntry struct {
	Action      string   `json:"action"`
	Index       int      `json:"index"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags,omitempty"`
	Contributor string   `json:"contributor,omitempty"`
}

type report struct {
	OldRevision string             `json:"old_revision,omitempty"`
	NewRevision string             `json:"new_revision"`
	Entries     int                `json:"entries"`
	Violations  []domain.Violation `json:"violations"`
	Changes     []changeEntry      `json:"changes,omitempty"`
	ChangeCount int                `json:"change_count"`
	MaxChanges  int                `json:"max_changes"`
	Reasons     []string           `json:"reasons,omitempty"`
	Pass        bool               `json:"pass"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seclist-check", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.file, "file", "repo-list.yaml", "path of the list file inside the repository")
	fs.StringVar(&opts.repo, "repo", "", "owner/repo hosting the list (enables ref fetching)")
	fs.StringVar(&opts.oldRef, "old-ref", "", "base revision to diff against")
	fs.StringVar(&opts.newRef, "new-ref", "", "revision to validate")
	fs.StringVar(&opts.oldFile, "old-file", "", "local file holding the base revision")
	fs.StringVar(&opts.newFile, "new-file", "", "local file holding the new revision")
	fs.IntVar(&opts.maxChanges, "max-changes", listdiff.MaxChangesAutomated, "maximum added+removed entries per change")
	fs.StringVar(&opts.output, "output", "-", "report destination file, or - for stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	newSnapshot, err := loadRevision(ctx, opts, opts.newFile, opts.newRef)
	if err != nil {
		fmt.Fprintf(stderr, "seclist-check: load new revision: %v\n", err)
		return 2
	}

	var oldSnapshot *domain.Snapshot
	if opts.oldFile != "" || opts.oldRef != "" {
		snapshot, err := loadRevision(ctx, opts, opts.oldFile, opts.oldRef)
		if err != nil {
			fmt.Fprintf(stderr, "seclist-check: load old revision: %v\n", err)
			return 2
		}
		oldSnapshot = &snapshot
	}

	rep := buildReport(oldSnapshot, newSnapshot, opts.maxChanges)

	out := stdout
	if opts.output != "" && opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			fmt.Fprintf(stderr, "seclist-check: create output: %v\n", err)
			return 2
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(stderr, "seclist-check: write report: %v\n", err)
		return 2
	}

	if !rep.Pass {
		return 1
	}
	return 0
}

// loadRevision reads the list either from a local file or from the
// hosting API at a ref. A local path wins when both are given.
func loadRevision(ctx context.Context, opts options, localPath, ref string) (domain.Snapshot, error) {
	if localPath != "" {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return domain.Snapshot{}, err
		}
		return listfile.Load(data, localPath)
	}

	if ref == "" {
		return domain.Snapshot{}, fmt.Errorf("either a local file or a ref is required")
	}
	owner, repo, err := splitRepo(opts.repo)
	if err != nil {
		return domain.Snapshot{}, err
	}
	cfg, err := githost.ConfigFromEnv()
	if err != nil {
		return domain.Snapshot{}, err
	}
	client, err := githost.NewClient(cfg)
	if err != nil {
		return domain.Snapshot{}, err
	}
	data, err := client.GetFileAt(ctx, owner, repo, opts.file, ref)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return listfile.Load(data, ref)
}

func splitRepo(value string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("-repo must be owner/repo (got %q)", value)
	}
	return parts[0], parts[1], nil
}

func buildReport(oldSnapshot *domain.Snapshot, newSnapshot domain.Snapshot, maxChanges int) report {
	rep := report{
		NewRevision: newSnapshot.Revision,
		Entries:     len(newSnapshot.Records),
		Violations:  listcheck.Validate(newSnapshot),
		MaxChanges:  maxChanges,
	}

	if oldSnapshot != nil {
		rep.OldRevision = oldSnapshot.Revision
		changes := listdiff.Diff(*oldSnapshot, newSnapshot)
		rep.Changes = taggedChanges(changes)
		rep.ChangeCount = changes.Count()
		if err := listdiff.CheckLimit(changes, maxChanges); err != nil {
			rep.Reasons = append(rep.Reasons, err.Error())
		}
	}

	if len(rep.Violations) > 0 {
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("%d validation violation(s)", len(rep.Violations)))
	}
	rep.Pass = len(rep.Reasons) == 0
	return rep
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
