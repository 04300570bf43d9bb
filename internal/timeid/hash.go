package timeid

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
)

// CanonicalJSON re-marshals v with sorted object keys and no insignificant
// whitespace, so that semantically identical payloads always hash the same
// way regardless of field ordering in the original request body.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize: unmarshal: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// RequestHash computes the sha256 fingerprint over the canonical JSON form
// of the request payload, used by the idempotency controller to detect
// payload mismatches on a replayed key.
func RequestHash(payload any) (string, error) {
	canon, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// DeterministicIndex hashes parts with sha256 and reduces the result modulo
// n, used to pick a fallback deterministically when no reason-code-specific
// or node-scoped fallback applies. Panics if n <= 0; callers must only
// invoke this with a non-empty candidate list.
func DeterministicIndex(n int, parts ...string) int {
	if n <= 0 {
		panic("timeid: DeterministicIndex requires n > 0")
	}
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)

	i := new(big.Int).SetBytes(sum)
	mod := new(big.Int).SetInt64(int64(n))
	return int(new(big.Int).Mod(i, mod).Int64())
}
