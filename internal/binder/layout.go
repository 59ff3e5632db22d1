package binder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New creates an empty binder with a single page of empty slots.
func New(ownerID, name string) *Binder {
	now := time.Now().UTC()
	return &Binder{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Pages:     []*Page{newPage(1)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PlaceCard puts the card into the first empty slot, scanning pages in order
// and positions 0-8 within each page. When every page is full a new page is
// appended and the card goes to its position 0.
func (b *Binder) PlaceCard(card Card) SlotRef {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}

	for _, page := range b.Pages {
		for i := range page.Slots {
			if page.Slots[i].Empty() {
				c := card
				page.Slots[i].Card = &c
				b.touch()
				return SlotRef{Page: page.Number, Position: i}
			}
		}
	}

	page := newPage(len(b.Pages) + 1)
	page.Slots[0].Card = &card
	b.Pages = append(b.Pages, page)
	b.touch()

	return SlotRef{Page: page.Number, Position: 0}
}

// RemoveCard empties the addressed slot and returns the card it held.
// It does not compact the binder; call Rearrange for that.
func (b *Binder) RemoveCard(pageNumber, position int) (*Card, error) {
	slot, err := b.Slot(SlotRef{Page: pageNumber, Position: position})
	if err != nil {
		return nil, err
	}
	if slot.Empty() {
		return nil, fmt.Errorf("page %d position %d: %w", pageNumber, position, ErrSlotEmpty)
	}

	card := slot.Card
	slot.Card = nil
	b.touch()

	return card, nil
}

// MoveCard moves the card at from into to. If to is occupied the two cards
// swap places. Both slots must exist.
func (b *Binder) MoveCard(from, to SlotRef) error {
	src, err := b.Slot(from)
	if err != nil {
		return err
	}
	dst, err := b.Slot(to)
	if err != nil {
		return err
	}
	if src.Empty() {
		return fmt.Errorf("page %d position %d: %w", from.Page, from.Position, ErrSlotEmpty)
	}

	src.Card, dst.Card = dst.Card, src.Card
	b.touch()

	return nil
}

// Rearrange compacts the binder: every card is collected in page-then-position
// order and laid back into sequential pages starting at page 1, leaving empty
// slots only at the end of the last page. An empty binder keeps one page.
func (b *Binder) Rearrange() {
	cards := b.Cards()

	pageCount := (len(cards) + SlotsPerPage - 1) / SlotsPerPage
	if pageCount == 0 {
		pageCount = 1
	}

	pages := make([]*Page, pageCount)
	for i := range pages {
		pages[i] = newPage(i + 1)
	}
	for i := range cards {
		c := cards[i]
		pages[i/SlotsPerPage].Slots[i%SlotsPerPage].Card = &c
	}

	b.Pages = pages
	b.touch()
}

// Cards returns copies of every placed card in page-then-position order.
func (b *Binder) Cards() []Card {
	cards := make([]Card, 0, len(b.Pages)*SlotsPerPage)
	for _, page := range b.Pages {
		for i := range page.Slots {
			if card := page.Slots[i].Card; card != nil {
				cards = append(cards, *card)
			}
		}
	}
	return cards
}

// CardCount returns the number of occupied slots.
func (b *Binder) CardCount() int {
	n := 0
	for _, page := range b.Pages {
		for i := range page.Slots {
			if !page.Slots[i].Empty() {
				n++
			}
		}
	}
	return n
}

// TotalValue sums price times quantity across all priced cards.
func (b *Binder) TotalValue() float64 {
	var total float64
	for _, page := range b.Pages {
		for i := range page.Slots {
			card := page.Slots[i].Card
			if card == nil || card.Price == nil {
				continue
			}
			qty := card.Quantity
			if qty < 1 {
				qty = 1
			}
			total += *card.Price * float64(qty)
		}
	}
	return total
}

// Slot returns the addressed slot.
func (b *Binder) Slot(ref SlotRef) (*Slot, error) {
	if ref.Page < 1 || ref.Page > len(b.Pages) {
		return nil, fmt.Errorf("page %d of %d: %w", ref.Page, len(b.Pages), ErrInvalidPage)
	}
	if ref.Position < 0 || ref.Position >= SlotsPerPage {
		return nil, fmt.Errorf("position %d: %w", ref.Position, ErrInvalidPosition)
	}
	return &b.Pages[ref.Page-1].Slots[ref.Position], nil
}

// Validate checks the layout invariants: at least one page, pages numbered
// 1..N in order, slot positions matching their index, and no card placed twice.
func (b *Binder) Validate() error {
	if len(b.Pages) == 0 {
		return fmt.Errorf("binder %s has no pages: %w", b.ID, ErrInvalidPage)
	}

	seen := make(map[string]SlotRef)
	for i, page := range b.Pages {
		if page == nil || page.Number != i+1 {
			return fmt.Errorf("binder %s page at index %d is not numbered %d: %w", b.ID, i, i+1, ErrInvalidPage)
		}
		for pos := range page.Slots {
			slot := &page.Slots[pos]
			if slot.Position != pos {
				return fmt.Errorf("binder %s page %d slot %d has position %d: %w",
					b.ID, page.Number, pos, slot.Position, ErrInvalidPosition)
			}
			if slot.Card == nil || slot.Card.ID == "" {
				continue
			}
			if prev, dup := seen[slot.Card.ID]; dup {
				return fmt.Errorf("binder %s card %s placed at both %v and page %d position %d",
					b.ID, slot.Card.ID, prev, page.Number, pos)
			}
			seen[slot.Card.ID] = SlotRef{Page: page.Number, Position: pos}
		}
	}

	return nil
}

func (b *Binder) touch() {
	b.UpdatedAt = time.Now().UTC()
}
