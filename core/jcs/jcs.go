package jcs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// CanonicalizeJSON returns the RFC 8785 (JCS) canonical form of JSON input.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// DigestJCS canonicalizes JSON (RFC 8785) and returns a sha256 hex digest.
func DigestJCS(input []byte) (string, error) {
	canonical, err := CanonicalizeJSON(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeNewlines rewrites \r\n and lone \r to \n.
func NormalizeNewlines(value string) string {
	return newlineReplacer.Replace(value)
}

// CanonicalizeValue marshals value, normalizes newlines in every string
// (object keys included, at any depth) and returns the canonical JSON form.
func CanonicalizeValue(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	normalized, err := json.Marshal(normalizeStrings(decoded))
	if err != nil {
		return nil, fmt.Errorf("marshal normalized value: %w", err)
	}
	canonical, err := CanonicalizeJSON(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonicalize value: %w", err)
	}
	return canonical, nil
}

// DigestValue is the sha256 hex digest of CanonicalizeValue(value).
func DigestValue(value any) (string, error) {
	canonical, err := CanonicalizeValue(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func normalizeStrings(value any) any {
	switch typed := value.(type) {
	case string:
		return NormalizeNewlines(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeStrings(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[NormalizeNewlines(key)] = normalizeStrings(item)
		}
		return out
	default:
		return value
	}
}
