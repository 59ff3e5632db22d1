package export

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ramonehamilton/binderkeep/internal/binder"
)

// CardRow is one occupied slot, flattened for CSV. The headers are ones
// the generic import format recognises, so an export can be imported into
// another binder.
type CardRow struct {
	Page            int      `json:"page" csv:"Page"`
	Position        int      `json:"position" csv:"Position"`
	Quantity        int      `json:"quantity" csv:"Quantity"`
	Name            string   `json:"name" csv:"Name"`
	SetCode         string   `json:"set_code" csv:"Set Code"`
	CollectorNumber string   `json:"collector_number" csv:"Collector Number"`
	Condition       string   `json:"condition" csv:"Condition"`
	Finish          string   `json:"finish" csv:"Finish"`
	Rarity          string   `json:"rarity" csv:"Rarity"`
	Price           *float64 `json:"price,omitempty" csv:"Price"`
	Placeholder     bool     `json:"placeholder" csv:"Placeholder"`
	Notes           string   `json:"notes" csv:"Notes"`
}

// BinderExport is the JSON document for one binder.
type BinderExport struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Pages      int       `json:"pages"`
	TotalValue float64   `json:"total_value"`
	Cards      []CardRow `json:"cards"`
}

// Rows lists the occupied slots of b in page order.
func Rows(b *binder.Binder) []CardRow {
	rows := make([]CardRow, 0, b.CardCount())
	for _, page := range b.Pages {
		for _, slot := range page.Slots {
			if slot.Empty() {
				continue
			}
			c := slot.Card
			rows = append(rows, CardRow{
				Page:            page.Number,
				Position:        slot.Position,
				Quantity:        c.Quantity,
				Name:            c.Name,
				SetCode:         c.SetCode,
				CollectorNumber: c.CollectorNumber,
				Condition:       c.Condition,
				Finish:          string(c.Finish),
				Rarity:          c.Rarity,
				Price:           c.Price,
				Placeholder:     c.Placeholder,
				Notes:           c.Notes,
			})
		}
	}
	return rows
}

// Document builds the JSON export document for b.
func Document(b *binder.Binder) BinderExport {
	return BinderExport{
		ID:         b.ID,
		Name:       b.Name,
		Pages:      len(b.Pages),
		TotalValue: b.TotalValue(),
		Cards:      Rows(b),
	}
}

// WriteBinder writes b to w. CSV carries one row per occupied slot; JSON
// wraps the rows with the binder's identity and value.
func WriteBinder(w io.Writer, b *binder.Binder, format Format) error {
	switch format {
	case FormatCSV:
		return ExportToWriter(w, format, Rows(b), false)
	case FormatJSON:
		return ExportToWriter(w, format, Document(b), true)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// Filename returns a timestamped export file name derived from the binder
// name.
func Filename(b *binder.Binder, format Format) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == ' ', r == '-', r == '_':
			return '_'
		default:
			return -1
		}
	}, b.Name)
	if base == "" {
		base = "binder"
	}
	return GenerateFilename(base, format)
}
