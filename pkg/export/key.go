package export

import (
	"strings"
)

// RunKey identifies the Redis keys of one exported run.
type RunKey struct {
	// Prefix namespaces the listing (e.g., "autos")
	Prefix string

	// RunID is the harvest run identifier
	RunID string

	// Partial selects the key space of interrupted runs
	Partial bool
}

// String generates the base key.
// Format: harvest:prefix:run_id[:partial]
//
// Example:
//
//	harvest:autos:5d1f0c6e-0d5a-4f1e-9d4e-2b0f3d8a9c11:partial
func (k RunKey) String() string {
	parts := []string{"harvest"}

	if prefix := strings.Trim(k.Prefix, ":"); prefix != "" {
		parts = append(parts, prefix)
	}

	parts = append(parts, k.RunID)

	if k.Partial {
		parts = append(parts, "partial")
	}

	return strings.Join(parts, ":")
}

// Records is the list key holding one JSON record per element.
func (k RunKey) Records() string {
	return k.String() + ":records"
}

// Meta is the hash key holding run metadata.
func (k RunKey) Meta() string {
	return k.String() + ":meta"
}
