package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/seclist-labs/seclist-go/internal/domain"
	"github.com/seclist-labs/seclist-go/internal/listfile"
)

const validList = `repos:
  - url: https://github.com/acme/scanner
    tags: [c2]
    contributor: alice
  - url: https://github.com/acme/osint-kit
    tags: [osint]
    contributor: bob
`

func mustLoad(t *testing.T, data, revision string) domain.Snapshot {
	t.Helper()
	snapshot, err := listfile.Load([]byte(data), revision)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	return snapshot
}

func TestBuildReport_ValidateOnly(t *testing.T) {
	rep := buildReport(nil, mustLoad(t, validList, "r2"), 15)
	if !rep.Pass {
		t.Fatalf("Pass=false, reasons=%v", rep.Reasons)
	}
	if rep.Entries != 2 {
		t.Fatalf("Entries=%d, want 2", rep.Entries)
	}
	if len(rep.Changes) != 0 {
		t.Fatalf("Changes=%v, want none without an old revision", rep.Changes)
	}
}

func TestBuildReport_DiffAndGate(t *testing.T) {
	oldSnapshot := mustLoad(t, `repos:
  - url: https://github.com/acme/scanner
    tags: [c2]
    contributor: alice
`, "r1")
	newSnapshot := mustLoad(t, validList, "r2")

	rep := buildReport(&oldSnapshot, newSnapshot, 15)
	if !rep.Pass {
		t.Fatalf("Pass=false, reasons=%v", rep.Reasons)
	}
	if rep.ChangeCount != 1 {
		t.Fatalf("ChangeCount=%d, want 1", rep.ChangeCount)
	}
	if len(rep.Changes) != 1 || rep.Changes[0].Action != "add" {
		t.Fatalf("Changes=%+v", rep.Changes)
	}
	if rep.Changes[0].URL != "https://github.com/acme/osint-kit" {
		t.Fatalf("change url=%q", rep.Changes[0].URL)
	}
}

func TestBuildReport_LimitBreach(t *testing.T) {
	oldSnapshot := mustLoad(t, "repos: []\n", "r1")
	newSnapshot := mustLoad(t, validList, "r2")

	rep := buildReport(&oldSnapshot, newSnapshot, 1)
	if rep.Pass {
		t.Fatalf("Pass=true, want limit breach")
	}
	if len(rep.Reasons) != 1 {
		t.Fatalf("Reasons=%v, want one", rep.Reasons)
	}
}

func TestBuildReport_Violations(t *testing.T) {
	newSnapshot := mustLoad(t, `repos:
  - url: http://github.com/acme/scanner
    tags: [c2]
    contributor: alice
`, "r2")

	rep := buildReport(nil, newSnapshot, 15)
	if rep.Pass {
		t.Fatalf("Pass=true, want violation failure")
	}
	if len(rep.Violations) == 0 {
		t.Fatalf("Violations empty")
	}
}

func TestRun_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.yaml")
	newPath := filepath.Join(dir, "new.yaml")
	if err := os.WriteFile(oldPath, []byte("repos: []\n"), 0o600); err != nil {
		t.Fatalf("write old: %v", err)
	}
	if err := os.WriteFile(newPath, []byte(validList), 0o600); err != nil {
		t.Fatalf("write new: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"-old-file", oldPath, "-new-file", newPath, "-max-changes", "15"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit=%d, want 0; stderr=%s", code, stderr.String())
	}
	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if !rep.Pass || rep.ChangeCount != 2 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestRun_FailsOnLimit(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.yaml")
	newPath := filepath.Join(dir, "new.yaml")
	if err := os.WriteFile(oldPath, []byte("repos: []\n"), 0o600); err != nil {
		t.Fatalf("write old: %v", err)
	}
	if err := os.WriteFile(newPath, []byte(validList), 0o600); err != nil {
		t.Fatalf("write new: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"-old-file", oldPath, "-new-file", newPath, "-max-changes", "1"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit=%d, want 1", code)
	}
}

func TestRun_MissingInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit=%d, want 2", code)
	}
}
