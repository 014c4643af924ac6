package domain

import "strings"

// Record is one curated repository entry from the list file.
type Record struct {
	// Index is the zero-based position of the entry in the list file.
	Index int

	URL         string
	Tags        []string
	LegacyTags  []string
	Contributor string

	// Invalid marks entries that could not be decoded as a mapping. The
	// loader keeps them at their original position so validation can
	// report them instead of silently dropping them.
	Invalid   bool
	ParseNote string

	// FieldErrors records fields that were present but had the wrong
	// shape (e.g. tags that are not a sequence of strings).
	FieldErrors []string
}

// Key returns the identity key of the record. Identity is the exact URL
// string: no query-parameter stripping or case folding, so cosmetic URL
// variants are never collapsed into false duplicates.
func (r Record) Key() string {
	return r.URL
}

// EffectiveTags returns the tags the record carries, preferring the
// canonical field over the legacy alias when both are present.
func (r Record) EffectiveTags() []string {
	if len(r.Tags) > 0 {
		return r.Tags
	}
	return r.LegacyTags
}

// HasTags reports whether either tag field is populated.
func (r Record) HasTags() bool {
	return len(r.Tags) > 0 || len(r.LegacyTags) > 0
}

// DisplayURL returns the record URL or "unknown" for violation reports.
func (r Record) DisplayURL() string {
	if strings.TrimSpace(r.URL) == "" {
		return "unknown"
	}
	return r.URL
}

// Snapshot is the full ordered list of records at one revision. It is
// immutable once loaded.
type Snapshot struct {
	Revision string
	Records  []Record
}

// Violation is one validation failure tied to a specific record index.
type Violation struct {
	Index   int    `json:"index"`
	URL     string `json:"url"`
	Message string `json:"message"`
}
