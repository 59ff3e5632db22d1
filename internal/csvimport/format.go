package csvimport

import (
	"fmt"
	"strings"
)

// Column identifies a logical field of an import row.
type Column string

const (
	ColumnName            Column = "name"
	ColumnSet             Column = "set"
	ColumnQuantity        Column = "quantity"
	ColumnCondition       Column = "condition"
	ColumnFinish          Column = "finish"
	ColumnNotes           Column = "notes"
	ColumnCollectorNumber Column = "collector number"
)

// headerKeywords maps each column to the lowercase substrings that identify
// it in a header cell. Order matters: set is tried before name so that a
// "Set Name" header is not taken as the card name.
var headerKeywords = []struct {
	column   Column
	keywords []string
}{
	{ColumnSet, []string{"set", "edition"}},
	{ColumnCollectorNumber, []string{"collector", "number"}},
	{ColumnName, []string{"name", "card"}},
	{ColumnQuantity, []string{"qty", "quantity", "count"}},
	{ColumnCondition, []string{"condition", "cond"}},
	{ColumnFinish, []string{"foil", "finish", "printing"}},
	{ColumnNotes, []string{"note", "comment"}},
}

// ignoredHeaderKeywords mark header cells that look like a column keyword
// but carry something else, e.g. Dragon Shield's "Folder Name" or
// "Trade Quantity".
var ignoredHeaderKeywords = []string{"folder", "trade", "price", "bought", "language", "scryfall", "purchase"}

// Format describes one CSV export layout.
type Format struct {
	Name string

	// HasHeader means the first line names the columns and positions are
	// detected from it. Otherwise Columns gives fixed positions.
	HasHeader bool

	// Required columns must be detected or the whole import is rejected.
	Required []Column

	// Columns holds fixed positions for headerless formats.
	Columns map[Column]int
}

// Built-in formats. The scanner app presets require a set column because
// their exports always carry one.
var (
	Generic = Format{
		Name:      "generic",
		HasHeader: true,
		Required:  []Column{ColumnName, ColumnQuantity},
	}

	ManaBox = Format{
		Name:      "manabox",
		HasHeader: true,
		Required:  []Column{ColumnName, ColumnSet, ColumnQuantity},
	}

	DelverLens = Format{
		Name:      "delverlens",
		HasHeader: true,
		Required:  []Column{ColumnName, ColumnSet, ColumnQuantity},
	}

	DragonShield = Format{
		Name:      "dragonshield",
		HasHeader: true,
		Required:  []Column{ColumnName, ColumnSet, ColumnQuantity},
	}

	// Headerless reads "quantity,name,set" lines.
	Headerless = Format{
		Name:      "headerless",
		HasHeader: false,
		Required:  []Column{ColumnName, ColumnQuantity},
		Columns: map[Column]int{
			ColumnQuantity: 0,
			ColumnName:     1,
			ColumnSet:      2,
		},
	}
)

var formats = map[string]Format{
	Generic.Name:      Generic,
	ManaBox.Name:      ManaBox,
	DelverLens.Name:   DelverLens,
	DragonShield.Name: DragonShield,
	Headerless.Name:   Headerless,
}

// FormatByName returns a built-in format. Lookup ignores case, spaces and
// hyphens so "Delver Lens" and "delver-lens" both work.
func FormatByName(name string) (Format, bool) {
	key := strings.ToLower(name)
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	f, ok := formats[key]
	return f, ok
}

// Select returns the named format. An empty name or "auto" detects the
// format from text.
func Select(name, text string) (Format, error) {
	if name == "" || strings.EqualFold(name, "auto") {
		return Detect(text), nil
	}
	f, ok := FormatByName(name)
	if !ok {
		return Format{}, fmt.Errorf("unknown import format %q (known: %s)", name, strings.Join(FormatNames(), ", "))
	}
	return f, nil
}

// FormatNames lists the built-in format names.
func FormatNames() []string {
	return []string{Generic.Name, ManaBox.Name, DelverLens.Name, DragonShield.Name, Headerless.Name}
}

// DetectColumns maps each recognised column to the index of the first header
// cell that matches its keywords. A cell whose first match is already mapped
// is offered to the columns still missing afterwards, so "Card Count" after
// "Card Name" becomes the quantity.
func DetectColumns(header []string) map[Column]int {
	found := make(map[Column]int)
	var leftover []int
	for i, cell := range header {
		lower := strings.ToLower(strings.TrimSpace(cell))
		if lower == "" || containsAny(lower, ignoredHeaderKeywords) {
			continue
		}
		for _, hk := range headerKeywords {
			if !containsAny(lower, hk.keywords) {
				continue
			}
			if _, taken := found[hk.column]; taken {
				leftover = append(leftover, i)
			} else {
				found[hk.column] = i
			}
			break
		}
	}

	for _, i := range leftover {
		lower := strings.ToLower(strings.TrimSpace(header[i]))
		for _, hk := range headerKeywords {
			if _, taken := found[hk.column]; taken {
				continue
			}
			if containsAny(lower, hk.keywords) {
				found[hk.column] = i
				break
			}
		}
	}
	return found
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
