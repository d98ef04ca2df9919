// Package signature fingerprints tool invocations for cache keying.
//
// Equal (tool, args) pairs produce equal signatures regardless of map key
// ordering: args are serialized with recursively sorted object keys before
// hashing.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ToolCacheNamespace scopes executor cache entries apart from any other
// signature user.
const ToolCacheNamespace = "toolcache"

// Compute returns "<tool>:<sha256-hex>" over namespace, tool, and the
// canonical JSON of args. Namespace may be empty.
func Compute(namespace, tool string, args any) (string, error) {
	canon, err := StableJSON(args)
	if err != nil {
		return "", fmt.Errorf("canonicalize args for %s: %w", tool, err)
	}
	var b strings.Builder
	if namespace != "" {
		b.WriteString(namespace)
		b.WriteString("::")
	}
	b.WriteString(tool)
	b.WriteString(canon)
	sum := sha256.Sum256([]byte(b.String()))
	return tool + ":" + hex.EncodeToString(sum[:]), nil
}

// StableJSON serializes v as JSON with object keys sorted recursively.
// The value is first round-tripped through encoding/json so struct inputs
// and map inputs canonicalize identically.
func StableJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := writeCanonical(&b, generic); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		// json.Unmarshal decodes all numbers as float64; re-encode through
		// the marshaler so 10 stays "10", not "10.000000".
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		b.Write(raw)
	case string:
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		b.Write(raw)
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			raw, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(raw)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unsupported JSON value %T", v)
	}
	return nil
}
