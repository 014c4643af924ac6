// Package listcheck validates a loaded list snapshot against format and
// business rules. It performs no I/O and is pure with respect to its
// input: every rule is applied to every record, none short-circuits the
// others, so one pass yields the complete set of violations.
package listcheck

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

const (
	// MaxTags bounds the number of tags on one entry.
	MaxTags = 6

	hostingDomain     = "github.com"
	hostingGistDomain = "gist.github.com"
)

// tagPattern allows lowercase alphanumeric segments joined by hyphens,
// with an optional leading dot for tags like ".net".
var tagPattern = regexp.MustCompile(`^\.?[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks every record of the snapshot and returns all
// violations in record order. An empty result means the snapshot is
// fully valid.
func Validate(snapshot domain.Snapshot) []domain.Violation {
	violations := []domain.Violation{}
	seen := make(map[string]struct{}, len(snapshot.Records))

	for _, record := range snapshot.Records {
		violations = append(violations, validateRecord(record, seen)...)
	}
	return violations
}

func validateRecord(record domain.Record, seen map[string]struct{}) []domain.Violation {
	report := func(message string) domain.Violation {
		return domain.Violation{
			Index:   record.Index,
			URL:     record.DisplayURL(),
			Message: message,
		}
	}

	if record.Invalid {
		return []domain.Violation{report(record.ParseNote)}
	}

	out := []domain.Violation{}
	for _, fieldError := range record.FieldErrors {
		out = append(out, report(fieldError))
	}

	out = append(out, checkURL(record, seen, report)...)

	if strings.TrimSpace(record.Contributor) == "" {
		out = append(out, report("contributor is required"))
	}

	out = append(out, checkTags(record, report)...)
	return out
}

func checkURL(record domain.Record, seen map[string]struct{}, report func(string) domain.Violation) []domain.Violation {
	out := []domain.Violation{}

	raw := strings.TrimSpace(record.URL)
	if raw == "" {
		out = append(out, report("url is required"))
		return out
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		out = append(out, report(fmt.Sprintf("url is not parseable: %v", err)))
		return out
	}
	if parsed.Scheme != "https" {
		out = append(out, report(fmt.Sprintf("url scheme must be https (got %q)", parsed.Scheme)))
	}
	if host := parsed.Hostname(); host != hostingDomain && host != hostingGistDomain {
		out = append(out, report(fmt.Sprintf("url host must be %s or %s (got %q)", hostingDomain, hostingGistDomain, host)))
	}

	// Identity is the exact URL string; first occurrence wins and every
	// later duplicate is reported against its own index.
	if _, dup := seen[record.Key()]; dup {
		out = append(out, report("duplicate url"))
	} else {
		seen[record.Key()] = struct{}{}
	}
	return out
}

func checkTags(record domain.Record, report func(string) domain.Violation) []domain.Violation {
	out := []domain.Violation{}

	if !record.HasTags() {
		out = append(out, report("tags (or initial_tags) is required"))
		return out
	}

	tags := record.EffectiveTags()
	if len(tags) > MaxTags {
		out = append(out, report(fmt.Sprintf("too many tags: %d (max %d)", len(tags), MaxTags)))
	}
	for _, tag := range tags {
		if !tagPattern.MatchString(tag) {
			out = append(out, report(fmt.Sprintf("tag %q is not lowercase-hyphenated", tag)))
		}
	}
	return out
}
