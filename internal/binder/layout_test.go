package binder

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func card(name string) Card {
	return Card{ID: "id-" + name, Name: name, Condition: DefaultCondition, Finish: FinishNonfoil, Quantity: 1}
}

func fill(b *Binder, n int) {
	for i := 0; i < n; i++ {
		b.PlaceCard(card(fmt.Sprintf("c%02d", i)))
	}
}

func TestNew(t *testing.T) {
	b := New("user-1", "Trade Binder")

	if b.ID == "" {
		t.Error("expected binder id to be set")
	}
	if len(b.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(b.Pages))
	}
	if b.Pages[0].Number != 1 {
		t.Errorf("expected page number 1, got %d", b.Pages[0].Number)
	}
	for i, slot := range b.Pages[0].Slots {
		if slot.Position != i || !slot.Empty() {
			t.Errorf("slot %d: position=%d empty=%v", i, slot.Position, slot.Empty())
		}
	}
}

func TestSlot_RowCol(t *testing.T) {
	tests := []struct {
		position int
		row, col int
	}{
		{0, 0, 0},
		{2, 0, 2},
		{4, 1, 1},
		{6, 2, 0},
		{8, 2, 2},
	}
	for _, tt := range tests {
		s := Slot{Position: tt.position}
		if s.Row() != tt.row || s.Col() != tt.col {
			t.Errorf("position %d: got (%d,%d), want (%d,%d)", tt.position, s.Row(), s.Col(), tt.row, tt.col)
		}
	}
}

func TestPlaceCard_FillsFirstPage(t *testing.T) {
	for n := 0; n <= SlotsPerPage; n++ {
		b := New("u", "b")
		fill(b, n)

		if len(b.Pages) != 1 {
			t.Fatalf("n=%d: expected 1 page, got %d", n, len(b.Pages))
		}
		occupied := 0
		for i, slot := range b.Pages[0].Slots {
			if !slot.Empty() {
				occupied++
				if i >= n {
					t.Errorf("n=%d: slot %d unexpectedly occupied", n, i)
				}
			}
		}
		if occupied != n {
			t.Errorf("n=%d: expected %d occupied slots, got %d", n, n, occupied)
		}
	}
}

func TestPlaceCard_AppendsPageWhenFull(t *testing.T) {
	b := New("u", "b")
	fill(b, SlotsPerPage)

	ref := b.PlaceCard(card("overflow"))

	if len(b.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(b.Pages))
	}
	if ref != (SlotRef{Page: 2, Position: 0}) {
		t.Errorf("expected card at page 2 position 0, got %+v", ref)
	}
	if b.Pages[1].Number != 2 {
		t.Errorf("expected new page numbered 2, got %d", b.Pages[1].Number)
	}
	if got := b.Pages[1].Slots[0].Card.Name; got != "overflow" {
		t.Errorf("expected overflow card in new page, got %s", got)
	}
}

func TestPlaceCard_ReusesGapBeforeGrowing(t *testing.T) {
	b := New("u", "b")
	fill(b, 12)

	if _, err := b.RemoveCard(1, 4); err != nil {
		t.Fatalf("RemoveCard failed: %v", err)
	}

	ref := b.PlaceCard(card("gap"))
	if ref != (SlotRef{Page: 1, Position: 4}) {
		t.Errorf("expected gap at page 1 position 4 to be reused, got %+v", ref)
	}
	if len(b.Pages) != 2 {
		t.Errorf("expected page count to stay at 2, got %d", len(b.Pages))
	}
}

func TestPlaceCard_NeverOverwrites(t *testing.T) {
	b := New("u", "b")
	fill(b, 30)

	seen := map[string]bool{}
	for _, c := range b.Cards() {
		if seen[c.ID] {
			t.Fatalf("card %s appears twice", c.ID)
		}
		seen[c.ID] = true
	}
	if len(seen) != 30 {
		t.Errorf("expected 30 distinct cards, got %d", len(seen))
	}
	if err := b.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestPlaceCard_AssignsID(t *testing.T) {
	b := New("u", "b")
	b.PlaceCard(Card{Name: "No ID"})

	if b.Pages[0].Slots[0].Card.ID == "" {
		t.Error("expected PlaceCard to assign an id")
	}
}

func TestRemoveCard(t *testing.T) {
	b := New("u", "b")
	fill(b, 3)

	removed, err := b.RemoveCard(1, 1)
	if err != nil {
		t.Fatalf("RemoveCard failed: %v", err)
	}
	if removed.Name != "c01" {
		t.Errorf("expected c01 removed, got %s", removed.Name)
	}
	if !b.Pages[0].Slots[1].Empty() {
		t.Error("expected slot 1 to be empty")
	}
	if b.Pages[0].Slots[2].Empty() {
		t.Error("RemoveCard must not compact")
	}
}

func TestRemoveCard_Errors(t *testing.T) {
	b := New("u", "b")
	fill(b, 1)

	tests := []struct {
		name     string
		page     int
		position int
		want     error
	}{
		{"page zero", 0, 0, ErrInvalidPage},
		{"page past end", 2, 0, ErrInvalidPage},
		{"negative position", 1, -1, ErrInvalidPosition},
		{"position nine", 1, 9, ErrInvalidPosition},
		{"empty slot", 1, 5, ErrSlotEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.RemoveCard(tt.page, tt.position)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMoveCard(t *testing.T) {
	b := New("u", "b")
	fill(b, 2)

	if err := b.MoveCard(SlotRef{1, 0}, SlotRef{1, 8}); err != nil {
		t.Fatalf("MoveCard failed: %v", err)
	}
	if !b.Pages[0].Slots[0].Empty() || b.Pages[0].Slots[8].Card.Name != "c00" {
		t.Error("expected c00 to move to position 8")
	}

	if err := b.MoveCard(SlotRef{1, 1}, SlotRef{1, 8}); err != nil {
		t.Fatalf("MoveCard swap failed: %v", err)
	}
	if b.Pages[0].Slots[1].Card.Name != "c00" || b.Pages[0].Slots[8].Card.Name != "c01" {
		t.Error("expected cards to swap")
	}

	if err := b.MoveCard(SlotRef{1, 0}, SlotRef{1, 1}); !errors.Is(err, ErrSlotEmpty) {
		t.Errorf("expected ErrSlotEmpty, got %v", err)
	}
	if err := b.MoveCard(SlotRef{1, 1}, SlotRef{3, 0}); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage, got %v", err)
	}
}

// churn builds a binder with gaps spread over several pages.
func churn(t *testing.T) *Binder {
	t.Helper()
	b := New("u", "b")
	fill(b, 25)
	for _, ref := range []SlotRef{{1, 0}, {1, 4}, {2, 8}, {3, 2}, {3, 6}} {
		if _, err := b.RemoveCard(ref.Page, ref.Position); err != nil {
			t.Fatalf("RemoveCard %+v failed: %v", ref, err)
		}
	}
	b.PlaceCard(card("late"))
	return b
}

func TestRearrange_Compacts(t *testing.T) {
	b := churn(t)
	before := b.Cards()

	b.Rearrange()

	after := b.Cards()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rearrange changed card order (-before +after):\n%s", diff)
	}

	for i, page := range b.Pages {
		if page.Number != i+1 {
			t.Errorf("page %d numbered %d", i, page.Number)
		}
	}

	// Only trailing slots of the last page may be empty.
	count := len(after)
	for i := 0; i < len(b.Pages)*SlotsPerPage; i++ {
		slot := b.Pages[i/SlotsPerPage].Slots[i%SlotsPerPage]
		if (i < count) == slot.Empty() {
			t.Errorf("flat slot %d: empty=%v with %d cards", i, slot.Empty(), count)
		}
	}
}

func TestRearrange_Idempotent(t *testing.T) {
	b := churn(t)

	b.Rearrange()
	once := b.Pages

	b.Rearrange()
	if diff := cmp.Diff(once, b.Pages); diff != "" {
		t.Errorf("second rearrange changed layout (-once +twice):\n%s", diff)
	}
}

func TestRearrange_PreservesMultiset(t *testing.T) {
	b := churn(t)

	ids := func() []string {
		var out []string
		for _, c := range b.Cards() {
			out = append(out, c.ID)
		}
		sort.Strings(out)
		return out
	}

	before := ids()
	b.Rearrange()
	if diff := cmp.Diff(before, ids()); diff != "" {
		t.Errorf("card set changed (-before +after):\n%s", diff)
	}
}

func TestRearrange_PageCount(t *testing.T) {
	for _, n := range []int{0, 1, 8, 9, 10, 18, 19, 40} {
		b := New("u", "b")
		fill(b, n+5)
		for i := 0; i < 5; i++ {
			// Remove from the front so gaps precede the remaining cards.
			ref := SlotRef{Page: 1 + i/SlotsPerPage, Position: i % SlotsPerPage}
			if _, err := b.RemoveCard(ref.Page, ref.Position); err != nil {
				t.Fatalf("n=%d: RemoveCard failed: %v", n, err)
			}
		}

		b.Rearrange()

		want := (n + SlotsPerPage - 1) / SlotsPerPage
		if want < 1 {
			want = 1
		}
		if len(b.Pages) != want {
			t.Errorf("n=%d: expected %d pages, got %d", n, want, len(b.Pages))
		}
		if b.CardCount() != n {
			t.Errorf("n=%d: expected %d cards, got %d", n, n, b.CardCount())
		}
	}
}

func TestRearrange_TrimsTrailingEmptyPages(t *testing.T) {
	b := New("u", "b")
	fill(b, 20)
	for pos := 0; pos < 2; pos++ {
		if _, err := b.RemoveCard(3, pos); err != nil {
			t.Fatal(err)
		}
	}

	if len(b.Pages) != 3 {
		t.Fatalf("expected 3 pages before rearrange, got %d", len(b.Pages))
	}
	b.Rearrange()
	if len(b.Pages) != 2 {
		t.Errorf("expected empty third page to be trimmed, got %d pages", len(b.Pages))
	}
}

func TestTotalValue(t *testing.T) {
	b := New("u", "b")
	price := 2.5
	b.PlaceCard(Card{Name: "a", Quantity: 4, Price: &price})
	b.PlaceCard(Card{Name: "b", Quantity: 1})

	if got := b.TotalValue(); got != 10 {
		t.Errorf("expected total value 10, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	b := New("u", "b")
	fill(b, 10)
	if err := b.Validate(); err != nil {
		t.Fatalf("expected valid binder, got %v", err)
	}

	b.Pages[1].Number = 3
	if err := b.Validate(); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("expected ErrInvalidPage for gap in numbering, got %v", err)
	}
	b.Pages[1].Number = 2

	b.Pages[0].Slots[3].Position = 7
	if err := b.Validate(); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
	b.Pages[0].Slots[3].Position = 3

	dup := *b.Pages[0].Slots[0].Card
	b.Pages[1].Slots[5].Card = &dup
	if err := b.Validate(); err == nil {
		t.Error("expected duplicate card placement to fail validation")
	}

	empty := &Binder{ID: "x"}
	if err := empty.Validate(); err == nil {
		t.Error("expected binder without pages to fail validation")
	}
}
