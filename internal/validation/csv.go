package validation

import "strings"

// SplitCSVLine splits a single CSV line into fields, honoring double-quoted
// fields with embedded commas and doubled ("") escape quotes. It is shared
// with the row processor so validation and processing always agree on field
// boundaries.
func SplitCSVLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		ch := line[i]

		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				// Doubled quote inside a quoted field is a literal quote.
				current.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	fields = append(fields, current.String())

	return fields
}
