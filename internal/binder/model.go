// Package binder models a card binder as numbered pages of 3x3 slot grids
// and implements card placement, removal and compaction over that grid.
package binder

import (
	"errors"
	"time"
)

const (
	// SlotsPerPage is the number of slots on every page.
	SlotsPerPage = 9

	// GridColumns is the width of a page grid.
	GridColumns = 3
)

var (
	// ErrInvalidPage is returned for page numbers outside 1..N.
	ErrInvalidPage = errors.New("invalid page number")

	// ErrInvalidPosition is returned for slot positions outside 0..8.
	ErrInvalidPosition = errors.New("invalid slot position")

	// ErrSlotEmpty is returned when removing a card from an empty slot.
	ErrSlotEmpty = errors.New("slot is empty")
)

// Finish is the printing treatment of a card.
type Finish string

const (
	FinishNonfoil Finish = "nonfoil"
	FinishFoil    Finish = "foil"
	FinishEtched  Finish = "etched"
)

// DefaultCondition is used when an import does not carry a condition.
const DefaultCondition = "NM"

// Card is a resolved card placed in a binder slot.
type Card struct {
	ID              string   `json:"id"`
	ScryfallID      string   `json:"scryfall_id,omitempty"`
	Name            string   `json:"name"`
	SetName         string   `json:"set_name,omitempty"`
	SetCode         string   `json:"set_code,omitempty"`
	CollectorNumber string   `json:"collector_number,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	Rarity          string   `json:"rarity,omitempty"`
	Condition       string   `json:"condition"`
	Finish          Finish   `json:"finish"`
	Quantity        int      `json:"quantity"`
	Price           *float64 `json:"price,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Placeholder     bool     `json:"placeholder,omitempty"`
}

// Slot is one position on a page. A slot is empty iff Card is nil.
type Slot struct {
	Position int   `json:"position"`
	Card     *Card `json:"card,omitempty"`
}

// Empty reports whether the slot holds no card.
func (s *Slot) Empty() bool {
	return s.Card == nil
}

// Row returns the grid row of the slot.
func (s *Slot) Row() int {
	return s.Position / GridColumns
}

// Col returns the grid column of the slot.
func (s *Slot) Col() int {
	return s.Position % GridColumns
}

// Page is one 3x3 grid of a binder.
type Page struct {
	Number int                `json:"number"`
	Slots  [SlotsPerPage]Slot `json:"slots"`
}

func newPage(number int) *Page {
	p := &Page{Number: number}
	for i := range p.Slots {
		p.Slots[i].Position = i
	}
	return p
}

// SlotRef addresses a slot by page number and position.
type SlotRef struct {
	Page     int `json:"page"`
	Position int `json:"position"`
}

// Binder is a user's named, paged card collection.
type Binder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	Pages     []*Page   `json:"pages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
