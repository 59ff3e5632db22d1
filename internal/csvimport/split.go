package csvimport

import (
	"errors"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quoted field")

// splitLine splits one CSV line on commas. A double quote toggles quoted
// mode, commas inside quotes are literal, and a doubled quote inside a
// quoted field is a literal quote character.
func splitLine(line string) ([]string, error) {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			field.WriteByte('"')
			i++
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteByte(ch)
		}
	}
	if inQuotes {
		return nil, errUnterminatedQuote
	}

	return append(fields, strings.TrimSpace(field.String())), nil
}

// splitLines breaks text into lines, accepting both \n and \r\n endings and
// dropping a leading byte order mark.
func splitLines(text string) []string {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
