package matchstore

import (
	"encoding/json"
	"fmt"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// Merge applies a patch to a raw JSON document with shallow key overwrite,
// the same semantics every backend implements (the Postgres adapter gets
// them for free from jsonb concatenation). Patch values are marshaled
// through JSON so typed values and raw maps behave identically.
func Merge(doc []byte, patch Patch) ([]byte, error) {
	var m map[string]any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("merge: decode document: %w", err)
		}
	}
	if m == nil {
		m = make(map[string]any)
	}

	for k, v := range patch {
		if v == nil {
			m[k] = nil
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("merge: encode field %s: %w", k, err)
		}
		var plain any
		if err := json.Unmarshal(raw, &plain); err != nil {
			return nil, fmt.Errorf("merge: decode field %s: %w", k, err)
		}
		m[k] = plain
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("merge: encode document: %w", err)
	}
	return out, nil
}

// MergeState applies a patch to a decoded state and returns the result.
// Used for optimistic local application of a write before the
// authoritative snapshot comes back from the store.
func MergeState(state models.MatchState, patch Patch) (models.MatchState, error) {
	doc, err := json.Marshal(state)
	if err != nil {
		return models.MatchState{}, fmt.Errorf("merge state: %w", err)
	}
	merged, err := Merge(doc, patch)
	if err != nil {
		return models.MatchState{}, err
	}
	return models.DecodeState(merged)
}
