package domain

// ChangeSet is the identity-based difference between two snapshots.
// Added and Removed preserve the order of their source snapshot and are
// never mutated after construction.
type ChangeSet struct {
	Added   []Record
	Removed []Record
}

// Count returns the total number of changed entries.
func (cs ChangeSet) Count() int {
	return len(cs.Added) + len(cs.Removed)
}

// Empty reports whether the change set carries no changes.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Removed) == 0
}
