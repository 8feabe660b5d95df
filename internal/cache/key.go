package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Key derives a deterministic cache key from a category and any number of
// parts. Object-shaped parts are canonicalized (JSON with sorted keys) before
// hashing, so logically identical inputs collide to the same key regardless
// of field order.
func Key(category string, parts ...any) string {
	var b strings.Builder
	b.WriteString(category)
	for _, part := range parts {
		b.WriteByte('|')
		b.WriteString(canonicalize(part))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return category + ":" + hex.EncodeToString(sum[:16])
}

// canonicalize renders a value as JSON with sorted object keys. Round-tripping
// through a map forces encoding/json's sorted-key output for structs too.
func canonicalize(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}
