package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// privatePrefix marks attribute keys that are never indexed, regardless of
// the exclusion list.
const privatePrefix = "_"

// Object is one indexable domain object as supplied by the caller's domain
// store.
type Object struct {
	ID          string
	Type        string // store.ObjectTypeEntity or store.ObjectTypeEvent
	Name        string
	Subtype     string
	Description string
	Tags        []string
	WorldID     string
	Attributes  map[string]any
}

// Source supplies domain objects for indexing. The GUI layer owns the
// domain store and implements this against it.
type Source interface {
	ListObjects(ctx context.Context, objectType string) ([]Object, error)
}

// IndexableText builds the text that gets embedded for an object: name,
// subtype, description, tags, and non-excluded string attribute values.
// Attribute keys matching the exclusion list or starting with the reserved
// private prefix are always skipped. Attributes are walked in sorted key
// order so the output, and therefore the content hash, is deterministic.
func IndexableText(obj Object, excluded map[string]bool) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	add(obj.Name)
	add(obj.Subtype)
	add(obj.Description)
	for _, tag := range obj.Tags {
		add(tag)
	}

	keys := make([]string, 0, len(obj.Attributes))
	for k := range obj.Attributes {
		if strings.HasPrefix(k, privatePrefix) || excluded[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := obj.Attributes[k].(string); ok {
			add(v)
		}
	}

	return strings.Join(parts, "\n")
}

// ContentHash digests indexable text for staleness detection.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// exclusionSet normalizes the excluded-attribute list into a lookup set.
func exclusionSet(excluded []string) map[string]bool {
	set := make(map[string]bool, len(excluded))
	for _, k := range excluded {
		set[k] = true
	}
	return set
}

// snippet truncates text content for result display.
func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
