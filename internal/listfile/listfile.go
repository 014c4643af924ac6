// Package listfile loads the curated repository list from its YAML
// serialization at a given revision.
package listfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/seclist-labs/seclist-go/internal/domain"
)

// ListField is the top-level key holding the repository entries.
const ListField = "repos"

type ParseErrorKind string

const (
	ParseErrorInvalidYAML   ParseErrorKind = "invalid_yaml"
	ParseErrorMalformedRoot ParseErrorKind = "malformed_root"
)

// ParseError is fatal to the whole load; no partial snapshot is returned.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse list file: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse list file: %s", e.Kind)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load parses the serialized list into a snapshot, preserving entry
// order as written. The root must be a mapping containing a "repos"
// sequence. Entries that are not well-formed mappings are retained as
// invalid records at their position so the validation engine can still
// report on them; the loader never silently drops entries.
func Load(data []byte, revision string) (domain.Snapshot, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return domain.Snapshot{}, &ParseError{Kind: ParseErrorInvalidYAML, Err: err}
	}
	if len(root.Content) == 0 {
		return domain.Snapshot{}, &ParseError{Kind: ParseErrorMalformedRoot, Err: fmt.Errorf("empty document")}
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return domain.Snapshot{}, &ParseError{Kind: ParseErrorMalformedRoot, Err: fmt.Errorf("root is not a mapping")}
	}

	list := findMappingValue(doc, ListField)
	if list == nil {
		return domain.Snapshot{}, &ParseError{Kind: ParseErrorMalformedRoot, Err: fmt.Errorf("missing %q list", ListField)}
	}
	if list.Kind != yaml.SequenceNode {
		return domain.Snapshot{}, &ParseError{Kind: ParseErrorMalformedRoot, Err: fmt.Errorf("%q is not a sequence", ListField)}
	}

	records := make([]domain.Record, 0, len(list.Content))
	for i, node := range list.Content {
		records = append(records, decodeEntry(i, node))
	}

	return domain.Snapshot{Revision: revision, Records: records}, nil
}

func decodeEntry(index int, node *yaml.Node) domain.Record {
	record := domain.Record{Index: index}

	if node.Kind != yaml.MappingNode {
		record.Invalid = true
		record.ParseNote = fmt.Sprintf("entry is not a mapping (line %d)", node.Line)
		return record
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		value := node.Content[i+1]
		switch key.Value {
		case "url":
			if err := value.Decode(&record.URL); err != nil {
				record.FieldErrors = append(record.FieldErrors, "url is not a string")
			}
		case "contributor":
			if err := value.Decode(&record.Contributor); err != nil {
				record.FieldErrors = append(record.FieldErrors, "contributor is not a string")
			}
		case "tags":
			if err := value.Decode(&record.Tags); err != nil {
				record.FieldErrors = append(record.FieldErrors, "tags is not a sequence of strings")
			}
		case "initial_tags":
			if err := value.Decode(&record.LegacyTags); err != nil {
				record.FieldErrors = append(record.FieldErrors, "initial_tags is not a sequence of strings")
			}
		}
	}

	return record
}

func findMappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
