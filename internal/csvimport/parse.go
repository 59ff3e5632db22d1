// Package csvimport turns collection exports from card scanning apps into
// import rows. It never fails on malformed input: bad rows are skipped and
// reported, and a header missing required columns rejects the whole file.
package csvimport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ramonehamilton/binderkeep/internal/binder"
)

// Row is one parsed import line before card resolution.
type Row struct {
	Line            int           `json:"line"`
	Name            string        `json:"name"`
	Set             string        `json:"set,omitempty"`
	CollectorNumber string        `json:"collector_number,omitempty"`
	Quantity        int           `json:"quantity"`
	Condition       string        `json:"condition"`
	Finish          binder.Finish `json:"finish"`
	Notes           string        `json:"notes,omitempty"`
	Raw             string        `json:"raw"`
}

// RowError records a skipped line.
type RowError struct {
	Line   int    `json:"line"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ColumnError rejects an import whose header lacks required columns.
type ColumnError struct {
	Missing []Column
}

func (e *ColumnError) Error() string {
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return "could not detect required columns: " + strings.Join(names, ", ")
}

// Result is the outcome of Parse. When MissingColumns is non-empty Rows is
// empty and Errors holds one entry per missing column.
type Result struct {
	Rows           []Row      `json:"rows"`
	Errors         []RowError `json:"errors"`
	MissingColumns []Column   `json:"missing_columns,omitempty"`
}

// Err returns a *ColumnError for a rejected header, nil otherwise.
func (r *Result) Err() error {
	if len(r.MissingColumns) == 0 {
		return nil
	}
	return &ColumnError{Missing: r.MissingColumns}
}

// Parse reads text in the given format.
func Parse(text string, format Format) *Result {
	result := &Result{
		Rows:   make([]Row, 0),
		Errors: make([]RowError, 0),
	}

	lines := splitLines(text)
	first := firstContentLine(lines)
	if first < 0 {
		return result
	}

	columns := format.Columns
	start := first
	if format.HasHeader {
		header, err := splitLine(lines[first])
		if err != nil {
			header = strings.Split(lines[first], ",")
		}
		columns = DetectColumns(header)
		start = first + 1
	}

	for _, col := range format.Required {
		if _, ok := columns[col]; !ok {
			result.MissingColumns = append(result.MissingColumns, col)
			result.Errors = append(result.Errors, RowError{
				Line:   first + 1,
				Raw:    lines[first],
				Reason: fmt.Sprintf("could not detect %s column in header", col),
			})
		}
	}
	if len(result.MissingColumns) > 0 {
		return result
	}

	for i := start; i < len(lines); i++ {
		raw := lines[i]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		lineNo := i + 1

		fields, err := splitLine(raw)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Line: lineNo, Raw: raw, Reason: err.Error()})
			continue
		}

		cell := func(c Column) string {
			idx, ok := columns[c]
			if !ok || idx >= len(fields) {
				return ""
			}
			return fields[idx]
		}

		name := strings.TrimSpace(cell(ColumnName))
		if name == "" {
			result.Errors = append(result.Errors, RowError{Line: lineNo, Raw: raw, Reason: "missing card name"})
			continue
		}

		condition := strings.TrimSpace(cell(ColumnCondition))
		if condition == "" {
			condition = binder.DefaultCondition
		}

		result.Rows = append(result.Rows, Row{
			Line:            lineNo,
			Name:            name,
			Set:             CleanSet(cell(ColumnSet)),
			CollectorNumber: strings.TrimSpace(cell(ColumnCollectorNumber)),
			Quantity:        ParseQuantity(cell(ColumnQuantity)),
			Condition:       condition,
			Finish:          ParseFinish(cell(ColumnFinish)),
			Notes:           strings.TrimSpace(cell(ColumnNotes)),
			Raw:             raw,
		})
	}

	return result
}

// Detect guesses the format of text: a first line whose first cell is a
// quantity means there is no header.
func Detect(text string) Format {
	lines := splitLines(text)
	first := firstContentLine(lines)
	if first < 0 {
		return Generic
	}
	fields, err := splitLine(lines[first])
	if err != nil || len(fields) < 2 {
		return Generic
	}
	q := strings.TrimSuffix(strings.TrimSuffix(fields[0], "x"), "X")
	if _, err := strconv.Atoi(strings.TrimSpace(q)); err == nil {
		return Headerless
	}
	return Generic
}

// ParseQuantity parses a quantity cell such as "4" or "4x". Empty,
// unparsable and non-positive values yield 1.
func ParseQuantity(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "x")
	s = strings.TrimSuffix(s, "X")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ParseFinish reads a finish cell, ignoring case and surrounding spaces.
// "foil" is foil, anything mentioning "etched" (such as "Foil Etched") is
// etched, and everything else is nonfoil.
func ParseFinish(s string) binder.Finish {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "foil":
		return binder.FinishFoil
	case strings.Contains(s, "etched"):
		return binder.FinishEtched
	}
	return binder.FinishNonfoil
}

// CleanSet trims a set cell and strips enclosing parentheses, so "(M21)"
// becomes "M21".
func CleanSet(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func firstContentLine(lines []string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			return i
		}
	}
	return -1
}
