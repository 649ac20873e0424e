package opkey

import (
	"strings"
	"testing"
)

func TestDerive_KeyOrderIndependent(t *testing.T) {
	a := Derive("StudentFeed", map[string]any{
		"schoolId": "s-1",
		"page":     map[string]any{"size": 20, "cursor": "abc"},
	})
	b := Derive("StudentFeed", map[string]any{
		"page":     map[string]any{"cursor": "abc", "size": 20},
		"schoolId": "s-1",
	})
	if a != b {
		t.Errorf("expected equal keys, got %q and %q", a, b)
	}
}

func TestDerive_Discriminates(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]any
		an   string
		bn   string
	}{
		{"different value", map[string]any{"a": 1}, map[string]any{"a": 2}, "Q", "Q"},
		{"different key", map[string]any{"a": 1}, map[string]any{"b": 1}, "Q", "Q"},
		{"different name", map[string]any{"a": 1}, map[string]any{"a": 1}, "Q", "R"},
		{"string vs number", map[string]any{"a": "1"}, map[string]any{"a": 1}, "Q", "Q"},
		{"nested", map[string]any{"a": []any{1, 2}}, map[string]any{"a": []any{2, 1}}, "Q", "Q"},
		{"name boundary", map[string]any{}, map[string]any{}, "Qa", "Q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Derive(tt.an, tt.a) == Derive(tt.bn, tt.b) {
				t.Errorf("expected distinct keys for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestDerive_NilAndEmptyVariablesMatch(t *testing.T) {
	if Derive("Q", nil) != Derive("Q", map[string]any{}) {
		t.Error("nil and empty variables should share a key")
	}
}

func TestDerive_Format(t *testing.T) {
	key := Derive("Announcements", map[string]any{"a": 1})
	if !strings.HasPrefix(key, "Announcements:") {
		t.Errorf("expected name prefix, got %q", key)
	}
	if len(key) != len("Announcements:")+36 {
		t.Errorf("unexpected key length %d", len(key))
	}
}

func TestCanonical_SortsKeys(t *testing.T) {
	got, err := Canonical(map[string]any{"b": 1, "a": map[string]any{"d": true, "c": nil}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"a":{"c":null,"d":true},"b":1}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
