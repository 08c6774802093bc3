package nativehost

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// Manifest is the host registration file, <dir>/<name>.json.
type Manifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`

	dir string
}

// Executable returns the host binary path; relative paths are resolved
// against the manifest directory.
func (m Manifest) Executable() string {
	if filepath.IsAbs(m.Path) {
		return m.Path
	}
	return filepath.Join(m.dir, m.Path)
}

func (m Manifest) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(m.AllowedOrigins, origin)
}

// FindManifest returns the first manifest named name found in dirs.
func FindManifest(dirs []string, name string) (Manifest, error) {
	for _, dir := range dirs {
		path := filepath.Join(dir, name+".json")
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
		}
		if m.Name != name {
			return Manifest{}, fmt.Errorf("manifest %s: name %q does not match %q", path, m.Name, name)
		}
		if m.Type != "stdio" {
			return Manifest{}, fmt.Errorf("manifest %s: unsupported type %q", path, m.Type)
		}
		m.dir = dir
		return m, nil
	}
	return Manifest{}, ErrNotFound
}
