// Package labels loads the metadata that accompanies a detection model: the
// class-id to name map, its preprocessing parameters and field roles.
package labels

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
)

// ClassLabelMap maps detector class ids to names. It is read-only once built.
type ClassLabelMap struct {
	names map[int]string
}

// NewClassLabelMap copies names into a new map.
func NewClassLabelMap(names map[int]string) ClassLabelMap {
	m := make(map[int]string, len(names))
	for k, v := range names {
		m[k] = v
	}
	return ClassLabelMap{names: m}
}

type classEntry struct {
	Name string `json:"name"`
}

// LoadClassLabelMap reads a map of the form {"0": {"name": "num"}, ...}.
func LoadClassLabelMap(path string) (ClassLabelMap, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return ClassLabelMap{}, fmt.Errorf("failed to read label map: %w", err)
	}
	var raw map[string]classEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClassLabelMap{}, fmt.Errorf("failed to parse label map %s: %w", path, err)
	}
	names := make(map[int]string, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return ClassLabelMap{}, fmt.Errorf("label map %s: invalid class id %q", path, k)
		}
		names[id] = v.Name
	}
	return ClassLabelMap{names: names}, nil
}

// LoadClassLabelMapOrEmpty loads path and degrades to an empty map on error,
// so every class resolves to a placeholder name.
func LoadClassLabelMapOrEmpty(path string) ClassLabelMap {
	m, err := LoadClassLabelMap(path)
	if err != nil {
		slog.Warn("Label map unavailable, using placeholder class names", "path", path, "error", err)
		return ClassLabelMap{}
	}
	slog.Debug("Loaded label map", "path", path, "classes", m.Len())
	return m
}

// Name returns the class name for id, or "unknown_<id>".
func (m ClassLabelMap) Name(id int) string {
	if n, ok := m.names[id]; ok {
		return n
	}
	return "unknown_" + strconv.Itoa(id)
}

// Len returns the number of known classes.
func (m ClassLabelMap) Len() int { return len(m.names) }

// Names returns the known class names ordered by id.
func (m ClassLabelMap) Names() []string {
	ids := make([]int, 0, len(m.names))
	for id := range m.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = m.names[id]
	}
	return out
}
