// Package listdiff computes the identity-based difference between two
// list snapshots and enforces the change-limit admission policy.
package listdiff

import (
	"fmt"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

// Change-limit ceilings. Both are legitimate policy values; callers
// choose which applies to their context.
const (
	// MaxChangesAutomated bounds change sets accepted by automation.
	MaxChangesAutomated = 15
	// MaxChangesContributor bounds change sets in contributor-facing
	// review flows.
	MaxChangesContributor = 5
)

// Diff classifies records as added or removed between two snapshots,
// keyed by exact URL. Records whose key appears in both snapshots are
// not reported even if other fields changed: the diff is identity
// based, not content based. Order follows the source snapshots.
func Diff(old, new domain.Snapshot) domain.ChangeSet {
	oldKeys := keySet(old)
	newKeys := keySet(new)

	cs := domain.ChangeSet{Added: []domain.Record{}, Removed: []domain.Record{}}
	for _, record := range new.Records {
		if _, ok := oldKeys[record.Key()]; !ok {
			cs.Added = append(cs.Added, record)
		}
	}
	for _, record := range old.Records {
		if _, ok := newKeys[record.Key()]; !ok {
			cs.Removed = append(cs.Removed, record)
		}
	}
	return cs
}

// LimitError reports a change set larger than the admission ceiling.
type LimitError struct {
	Count int
	Max   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("change limit exceeded: %d changes (max %d)", e.Count, e.Max)
}

// CheckLimit enforces the admission ceiling on a change set. A count
// equal to the ceiling passes. The gate is fail-closed: a failed check
// must reject the change request before any enrichment runs.
func CheckLimit(cs domain.ChangeSet, max int) error {
	if count := cs.Count(); count > max {
		return &LimitError{Count: count, Max: max}
	}
	return nil
}

func keySet(snapshot domain.Snapshot) map[string]struct{} {
	keys := make(map[string]struct{}, len(snapshot.Records))
	for _, record := range snapshot.Records {
		keys[record.Key()] = struct{}{}
	}
	return keys
}
