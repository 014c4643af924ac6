package listdiff

import (
	"errors"
	"testing"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

func snapshot(urls ...string) domain.Snapshot {
	records := make([]domain.Record, 0, len(urls))
	for i, u := range urls {
		records = append(records, domain.Record{Index: i, URL: u, Contributor: "alice"})
	}
	return domain.Snapshot{Records: records}
}

func TestDiff_Identity(t *testing.T) {
	a := snapshot("https://github.com/a/one", "https://github.com/a/two")
	cs := Diff(a, a)
	if len(cs.Added) != 0 || len(cs.Removed) != 0 {
		t.Fatalf("diff(A,A)=%+v, want empty", cs)
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	old := snapshot("https://github.com/a/one", "https://github.com/a/two")
	new := snapshot("https://github.com/a/one", "https://github.com/a/three")

	cs := Diff(old, new)
	if len(cs.Added) != 1 || cs.Added[0].URL != "https://github.com/a/three" {
		t.Fatalf("added=%+v", cs.Added)
	}
	if len(cs.Removed) != 1 || cs.Removed[0].URL != "https://github.com/a/two" {
		t.Fatalf("removed=%+v", cs.Removed)
	}
}

func TestDiff_DisjointSnapshots(t *testing.T) {
	old := snapshot("https://github.com/a/one", "https://github.com/a/two")
	new := snapshot("https://github.com/b/one", "https://github.com/b/two", "https://github.com/b/three")

	cs := Diff(old, new)
	if len(cs.Added) != 3 {
		t.Fatalf("added=%d, want 3", len(cs.Added))
	}
	if len(cs.Removed) != 2 {
		t.Fatalf("removed=%d, want 2", len(cs.Removed))
	}
}

func TestDiff_ContentEditsInvisible(t *testing.T) {
	old := snapshot("https://github.com/a/one")
	new := snapshot("https://github.com/a/one")
	new.Records[0].Tags = []string{"changed-tag"}
	new.Records[0].Contributor = "someone-else"

	cs := Diff(old, new)
	if !cs.Empty() {
		t.Fatalf("diff=%+v, want empty (identity-based, edits invisible)", cs)
	}
}

func TestDiff_PreservesSourceOrder(t *testing.T) {
	old := snapshot()
	new := snapshot(
		"https://github.com/a/zulu",
		"https://github.com/a/alpha",
		"https://github.com/a/mike",
	)
	cs := Diff(old, new)
	if len(cs.Added) != 3 {
		t.Fatalf("added=%d, want 3", len(cs.Added))
	}
	want := []string{
		"https://github.com/a/zulu",
		"https://github.com/a/alpha",
		"https://github.com/a/mike",
	}
	for i, u := range want {
		if cs.Added[i].URL != u {
			t.Fatalf("added[%d]=%q, want %q", i, cs.Added[i].URL, u)
		}
	}
}

func TestCheckLimit(t *testing.T) {
	tests := []struct {
		name    string
		added   int
		removed int
		max     int
		wantErr bool
	}{
		{name: "under limit", added: 2, removed: 1, max: 15, wantErr: false},
		{name: "exactly at limit passes", added: 3, removed: 2, max: 5, wantErr: false},
		{name: "one over limit", added: 3, removed: 3, max: 5, wantErr: true},
		{name: "zero ceiling rejects any change", added: 1, removed: 1, max: 0, wantErr: true},
		{name: "empty set passes zero ceiling", added: 0, removed: 0, max: 0, wantErr: false},
	}

	for _, tt := range tests {
		cs := domain.ChangeSet{
			Added:   make([]domain.Record, tt.added),
			Removed: make([]domain.Record, tt.removed),
		}
		err := CheckLimit(cs, tt.max)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err=%v, wantErr=%v", tt.name, err, tt.wantErr)
		}
	}
}

func TestCheckLimit_ErrorDetail(t *testing.T) {
	old := snapshot("https://github.com/a/a", "https://github.com/a/b")
	new := snapshot("https://github.com/a/a", "https://github.com/a/c")

	cs := Diff(old, new)
	if err := CheckLimit(cs, MaxChangesAutomated); err != nil {
		t.Fatalf("max=15 should pass: %v", err)
	}

	err := CheckLimit(cs, 0)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Count != 2 || limitErr.Max != 0 {
		t.Fatalf("count=%d max=%d, want 2 and 0", limitErr.Count, limitErr.Max)
	}
}
