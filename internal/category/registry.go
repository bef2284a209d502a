// Package category maps upstream risk-category identifiers to names and
// derives the set of identifiers considered high-risk.
package category

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Unknown is returned for any category identifier without a mapping.
const Unknown = "Unknown"

// Registry holds the category reference table. It is loaded once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	names    map[string]string
	highRisk map[string]struct{}
}

// NewRegistry builds a registry from an already-parsed mapping. highRiskNames
// selects which mapped names count as high-risk.
func NewRegistry(names map[string]string, highRiskNames map[string]struct{}) *Registry {
	r := &Registry{
		names:    make(map[string]string, len(names)),
		highRisk: make(map[string]struct{}),
	}
	for id, name := range names {
		r.names[id] = name
		if _, ok := highRiskNames[name]; ok {
			r.highRisk[id] = struct{}{}
		}
	}
	return r
}

// Empty returns a registry with no mappings, used when reference data fails
// to load. Every lookup yields Unknown and the high-risk set is empty.
func Empty() *Registry {
	return &Registry{
		names:    map[string]string{},
		highRisk: map[string]struct{}{},
	}
}

// LoadCSV reads (id, name) pairs from a CSV file with a header row.
// Rows with fewer than two columns are skipped.
func LoadCSV(path string, highRiskNames map[string]struct{}) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open category file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseCSV(f, highRiskNames)
}

// ParseCSV reads the category table from r. The first row is treated as a
// header and skipped.
func ParseCSV(r io.Reader, highRiskNames map[string]struct{}) (*Registry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse category csv: %w", err)
	}

	names := make(map[string]string)
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		id := strings.TrimSpace(row[0])
		name := strings.TrimSpace(row[1])
		if id == "" {
			continue
		}
		names[id] = name
	}

	return NewRegistry(names, highRiskNames), nil
}

// NameOf resolves a category identifier to its name. Unmapped identifiers
// resolve to Unknown; this never fails.
func (r *Registry) NameOf(id string) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return Unknown
}

// HighRiskIDs returns the identifiers whose mapped name is in the configured
// high-risk set. The returned map is shared and must not be mutated.
func (r *Registry) HighRiskIDs() map[string]struct{} {
	return r.highRisk
}

// IsHighRisk reports whether id maps to a high-risk category name.
func (r *Registry) IsHighRisk(id string) bool {
	_, ok := r.highRisk[id]
	return ok
}

// Size returns the number of loaded category mappings.
func (r *Registry) Size() int {
	return len(r.names)
}
