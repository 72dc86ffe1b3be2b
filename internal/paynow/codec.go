package paynow

import "strings"

// The gateway speaks a flat key=value line protocol: one field per line,
// joined by "\n". Keys are treated case-insensitively; we lowercase them on
// decode so lookups are uniform.

// Field is one ordered key/value pair for encoding. Encoding preserves the
// caller's order; the signature uses its own canonical order (see hash.go),
// so the two never need to agree.
type Field struct {
	Key   string
	Value string
}

// Encode renders fields as key=value lines.
func Encode(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Decode parses a key=value message into a map. Keys are lowercased and both
// sides trimmed. Lines without an "=" are skipped. Decode never fails:
// unparseable input simply yields an empty map, which callers treat as a
// malformed response.
func Decode(raw string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(parts[1])
	}
	return fields
}
