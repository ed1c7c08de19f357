// Package evidence canonicalizes event payloads for deterministic hashing.
// Semantically identical payloads with reordered keys must always produce the
// same SHA-256 digest, so stored hashes stay verifiable for legal audit.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Envelope is the hashed portion of an evidence event. Timestamp is fixed by
// the caller at record time so re-verification reproduces the digest.
type Envelope struct {
	EventType  string
	EntityType string
	EntityID   string
	ActorRole  string
	Timestamp  time.Time
	Payload    map[string]any
}

// Canonicalize normalizes the envelope payload (sorted keys, nulls dropped,
// scalars stringified) and returns the canonical form with its SHA-256 hex
// digest.
func Canonicalize(e Envelope) (map[string]any, string, error) {
	canonical := map[string]any{
		"event_type":  e.EventType,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"actor_role":  nullable(e.ActorRole),
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		"payload":     CanonicalPayload(e.Payload),
	}

	digest, err := Hash(canonical)
	if err != nil {
		return nil, "", err
	}
	return canonical, digest, nil
}

// Hash serializes an already-canonical value deterministically and digests it.
func Hash(canonical any) (string, error) {
	raw, err := marshalCanonical(canonical)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalPayload normalizes a payload map: keys handled in sorted order,
// nil values stripped, numbers and booleans converted to strings to avoid
// representation drift across serializers.
func CanonicalPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		n := normalize(v)
		if n == nil {
			continue
		}
		out[k] = n
	}
	return out
}

func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		return CanonicalPayload(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return fmt.Sprint(val)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalCanonical emits JSON with object keys in lexical order and no
// insignificant whitespace. encoding/json already sorts map keys; this wrapper
// exists so the serialization contract has a single owner.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, vb...)
		}
		return append(buf, '}'), nil
	case []any:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		return append(buf, ']'), nil
	default:
		return json.Marshal(v)
	}
}
