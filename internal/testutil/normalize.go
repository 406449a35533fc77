package testutil

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"testing"
)

// volatileFields are dropped before golden comparison.
var volatileFields = map[string]bool{
	"id":        true,
	"duration":  true,
	"elapsed":   true,
	"createdAt": true,
	"updatedAt": true,
	"builtAt":   true,
}

// MarshalNormalized renders data as indented JSON with volatile fields
// removed and slices of objects in a stable order.
func MarshalNormalized(t *testing.T, data any) []byte {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal data for normalization: %v", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Failed to unmarshal data for normalization: %v", err)
	}
	out, err := json.MarshalIndent(normalizeValue(generic), "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal normalized data: %v", err)
	}
	return append(out, '\n')
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, x := range val {
			if volatileFields[k] {
				continue
			}
			result[k] = normalizeValue(x)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, x := range val {
			result[i] = normalizeValue(x)
		}
		if len(result) > 0 {
			if _, ok := result[0].(map[string]any); ok {
				sort.SliceStable(result, func(i, j int) bool {
					return sortKey(result[i]) < sortKey(result[j])
				})
			}
		}
		return result
	default:
		return v
	}
}

// sortKey orders objects by their most identifying field.
func sortKey(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range []string{"name", "file", "project", "path"} {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	raw, _ := json.Marshal(m)
	return string(raw)
}

// SameSet reports whether a and b hold the same elements in any order.
func SameSet(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// AssertSameSet fails the test when got and want differ as sets.
func AssertSameSet(t testing.TB, what string, got, want []string) {
	t.Helper()
	if !SameSet(got, want) {
		t.Errorf("%s = %s, want %s", what, fmt.Sprint(sorted(got)), fmt.Sprint(sorted(want)))
	}
}

func sorted(s []string) []string {
	s = slices.Clone(s)
	slices.Sort(s)
	return s
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
