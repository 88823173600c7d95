package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IndexMetadata is the per-model sidecar snapshot describing the rows a
// query scan will cover. It is rebuilt wholesale on RebuildIndex, never
// partially patched.
type IndexMetadata struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	WorldID   string    `json:"world_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// safeModelName transforms a model identifier into a filesystem-safe file
// stem. Slashes and other unsafe runes collapse to underscores.
func safeModelName(model string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, model)
}

// metadataPath returns the sidecar file path for a (model, world scope)
// pair. A world-scoped snapshot gets its own file so rebuilding one world
// never clobbers another's.
func metadataPath(dir, model, worldID string) string {
	stem := safeModelName(model)
	if worldID != "" {
		stem += "__" + safeModelName(worldID)
	}
	return filepath.Join(dir, stem+".json")
}

// writeIndexMetadata writes the sidecar atomically: temp file then rename,
// so readers never observe a torn snapshot.
func writeIndexMetadata(dir string, meta IndexMetadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}

	path := metadataPath(dir, meta.Model, meta.WorldID)
	tmp, err := os.CreateTemp(dir, ".meta-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing index metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming index metadata: %w", err)
	}
	return nil
}

// readIndexMetadata reads the sidecar for a (model, world scope) pair. A
// missing file returns os.ErrNotExist via the wrapped error.
func readIndexMetadata(dir, model, worldID string) (*IndexMetadata, error) {
	data, err := os.ReadFile(metadataPath(dir, model, worldID))
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	var meta IndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling index metadata: %w", err)
	}
	return &meta, nil
}
