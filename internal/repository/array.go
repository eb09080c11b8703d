package repository

import "strings"

// formatArrayLiteral renders a VARCHAR[] literal: ['a', 'b']. The
// binding has no array parameter support, so list values are spliced
// into the statement with embedded quotes doubled.
func formatArrayLiteral(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(item, "'", "''"))
		b.WriteByte('\'')
	}
	b.WriteByte(']')
	return b.String()
}

// parseArray decodes the textual VARCHAR[] form the engine returns
// through CAST(... AS VARCHAR): [a, b], ['a', 'b'] or ["a", "b"].
func parseArray(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" || s == "NULL" {
		return nil
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		item = strings.Trim(item, `'"`)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
