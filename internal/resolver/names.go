package resolver

import (
	"strings"

	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

// normalizeName lowercases a card name and collapses runs of whitespace.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// namesMatch reports whether card is exactly the card named by query,
// ignoring case and whitespace. Double-faced cards also match on either
// face name. A query never matches a longer name that merely contains it.
func namesMatch(query string, card *scryfall.Card) bool {
	q := normalizeName(query)
	if q == "" {
		return false
	}
	if normalizeName(card.Name) == q {
		return true
	}
	for _, face := range card.FaceNames() {
		if normalizeName(face) == q {
			return true
		}
	}
	return false
}

// extendsName reports whether candidate is a different card whose name
// contains the whole of query, e.g. "Badgermole Cub" for "Badgermole".
func extendsName(query, candidate string) bool {
	q, c := normalizeName(query), normalizeName(candidate)
	if q == "" || q == c {
		return false
	}
	return strings.Contains(" "+c+" ", " "+q+" ")
}

// frontFace returns the first face of a double-faced name written as
// "Front // Back" or "Front / Back". ok is false for single-faced names.
func frontFace(name string) (string, bool) {
	for _, sep := range []string{"//", " / "} {
		if i := strings.Index(name, sep); i > 0 {
			front := strings.TrimSpace(name[:i])
			if front != "" {
				return front, true
			}
		}
	}
	return "", false
}

// exactQuery builds a Scryfall search for every printing of one exact name.
func exactQuery(name, setCode string, foil bool) string {
	var b strings.Builder
	b.WriteString(`!"`)
	b.WriteString(strings.ReplaceAll(name, `"`, ""))
	b.WriteString(`" unique:prints`)
	if setCode != "" {
		b.WriteString(" set:")
		b.WriteString(setCode)
	}
	if foil {
		b.WriteString(" is:foil")
	} else {
		b.WriteString(" is:nonfoil")
	}
	return b.String()
}

var specialFrameEffects = map[string]bool{
	"showcase":    true,
	"extendedart": true,
	"etched":      true,
	"inverted":    true,
}

// isSpecial reports whether a printing is a frame or border variant.
func isSpecial(card *scryfall.Card) bool {
	if card.BorderColor == "borderless" || card.FullArt || card.Textless {
		return true
	}
	for _, effect := range card.FrameEffects {
		if specialFrameEffects[effect] {
			return true
		}
	}
	return false
}

// pick returns the preferred printing among candidates that match name:
// the first special printing, else the first plain one. Candidates keep
// Scryfall's ranking.
func pick(name string, candidates []scryfall.Card) *scryfall.Card {
	var plain *scryfall.Card
	for i := range candidates {
		card := &candidates[i]
		if !namesMatch(name, card) {
			continue
		}
		if isSpecial(card) {
			return card
		}
		if plain == nil {
			plain = card
		}
	}
	return plain
}
