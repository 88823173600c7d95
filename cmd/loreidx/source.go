package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fablekit/loreindex/internal/search"
)

// fileSource supplies indexable objects from a JSON file: an array of
// objects with id, type, name, subtype, description, tags, world_id and
// attributes fields.
type fileSource struct {
	objects []search.Object
}

type fileObject struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Subtype     string         `json:"subtype"`
	Description string         `json:"description"`
	Tags        []string       `json:"tags"`
	WorldID     string         `json:"world_id"`
	Attributes  map[string]any `json:"attributes"`
}

func newFileSource(path string) (*fileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read objects file: %w", err)
	}
	var raw []fileObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse objects file: %w", err)
	}
	src := &fileSource{objects: make([]search.Object, 0, len(raw))}
	for i, o := range raw {
		if o.ID == "" || o.Type == "" {
			return nil, fmt.Errorf("object %d: id and type are required", i)
		}
		src.objects = append(src.objects, search.Object{
			ID:          o.ID,
			Type:        o.Type,
			Name:        o.Name,
			Subtype:     o.Subtype,
			Description: o.Description,
			Tags:        o.Tags,
			WorldID:     o.WorldID,
			Attributes:  o.Attributes,
		})
	}
	return src, nil
}

// emptySource satisfies search.Source for commands that never index.
type emptySource struct{}

func (emptySource) ListObjects(context.Context, string) ([]search.Object, error) {
	return nil, nil
}

func (s *fileSource) ListObjects(_ context.Context, objectType string) ([]search.Object, error) {
	var out []search.Object
	for _, o := range s.objects {
		if o.Type == objectType {
			out = append(out, o)
		}
	}
	return out, nil
}
