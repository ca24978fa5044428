// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"strconv"
	"strings"
)

// DefaultRedacted replaces sensitive values.
const DefaultRedacted = "[REDACTED]"

// DefaultSensitiveFields are the key fragments redacted when none are configured.
var DefaultSensitiveFields = []string{"password", "token", "secret", "key", "authorization"}

// Sanitizer redacts sensitive fields from nested payloads.
//
// A value is redacted when its key, or its lower-cased dotted path (for
// example "user.credentials[0].api_key"), contains one of the configured
// fragments. The input is never modified: Sanitize returns a deep copy.
// Sanitizing an already sanitized payload returns an equal payload.
type Sanitizer struct {
	fragments   []string
	replacement string
}

// NewSanitizer creates a sanitizer. Empty arguments fall back to the defaults.
func NewSanitizer(fields []string, replacement string) *Sanitizer {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	if replacement == "" {
		replacement = DefaultRedacted
	}

	fragments := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			fragments = append(fragments, f)
		}
	}

	return &Sanitizer{fragments: fragments, replacement: replacement}
}

// Sanitize returns a redacted deep copy of p.
func (s *Sanitizer) Sanitize(p Payload) Payload {
	if p == nil {
		return nil
	}
	return s.walkMap(p, "")
}

// SanitizeValue returns a redacted deep copy of an arbitrary value tree.
func (s *Sanitizer) SanitizeValue(v any) any {
	return s.walk(v, "")
}

func (s *Sanitizer) walk(v any, path string) any {
	switch val := v.(type) {
	case Payload:
		return s.walkMap(val, path)
	case map[string]any:
		return map[string]any(s.walkMap(val, path))
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			if s.sensitive(k, join(path, k)) {
				out[k] = s.replacement
				continue
			}
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.walk(item, index(path, i))
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = map[string]any(s.walkMap(item, index(path, i)))
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

func (s *Sanitizer) walkMap(m map[string]any, path string) Payload {
	out := make(Payload, len(m))
	for k, v := range m {
		p := join(path, k)
		if s.sensitive(k, p) {
			out[k] = s.replacement
			continue
		}
		out[k] = s.walk(v, p)
	}
	return out
}

func (s *Sanitizer) sensitive(key, path string) bool {
	key = strings.ToLower(key)
	path = strings.ToLower(path)
	for _, f := range s.fragments {
		if strings.Contains(key, f) || strings.Contains(path, f) {
			return true
		}
	}
	return false
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
