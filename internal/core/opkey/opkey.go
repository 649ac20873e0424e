// Package opkey derives the stable identity used to correlate retries of a
// logical GraphQL operation.
package opkey

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Namespace seeds the name-based UUIDs. Changing it changes every key.
var Namespace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a0c-1b2d3e4f5a6b")

// Derive returns "<name>:<uuidv5>" where the UUID is computed over the name and
// the canonical JSON of vars (sorted keys, numbers kept verbatim). nil and empty
// variables produce the same key.
func Derive(name string, vars map[string]any) string {
	canon, err := Canonical(vars)
	if err != nil {
		// Unserializable variables still need a key; fall back to Go syntax so
		// distinct values stay distinct.
		canon = []byte(fmt.Sprintf("%#v", vars))
	}

	buf := make([]byte, 0, len(name)+1+len(canon))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, canon...)

	return name + ":" + uuid.NewSHA1(Namespace, buf).String()
}

// Canonical serializes v as JSON with object keys sorted at every depth.
func Canonical(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal variables: %w", err)
	}

	// Round-trip through generic values so struct fields are ordered the same
	// way as map keys.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize variables: %w", err)
	}
	return out, nil
}
