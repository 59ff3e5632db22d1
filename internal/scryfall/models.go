package scryfall

import (
	"errors"
	"fmt"
)

// Card represents a single printing returned by Scryfall.
type Card struct {
	// Core fields
	ID       string `json:"id"`
	OracleID string `json:"oracle_id"`
	Name     string `json:"name"`
	Lang     string `json:"lang"`
	Layout   string `json:"layout"`
	TypeLine string `json:"type_line"`

	ImageURIs *ImageURIs `json:"image_uris,omitempty"`
	CardFaces []CardFace `json:"card_faces,omitempty"`

	// Print details
	SetCode         string `json:"set"`
	SetName         string `json:"set_name"`
	CollectorNumber string `json:"collector_number"`
	Rarity          string `json:"rarity"`
	ReleasedAt      string `json:"released_at,omitempty"`

	// Finish availability
	Foil     bool     `json:"foil"`
	Nonfoil  bool     `json:"nonfoil"`
	Finishes []string `json:"finishes,omitempty"`

	// Special printing markers
	FrameEffects []string `json:"frame_effects,omitempty"`
	BorderColor  string   `json:"border_color,omitempty"`
	FullArt      bool     `json:"full_art"`
	Textless     bool     `json:"textless"`
	Promo        bool     `json:"promo"`
	PromoTypes   []string `json:"promo_types,omitempty"`

	Prices Prices `json:"prices"`
}

// CardFace represents one face of a multi-faced card.
type CardFace struct {
	Name      string     `json:"name"`
	TypeLine  string     `json:"type_line,omitempty"`
	ImageURIs *ImageURIs `json:"image_uris,omitempty"`
}

// ImageURIs contains URLs for card images in various sizes.
type ImageURIs struct {
	Small      string `json:"small"`
	Normal     string `json:"normal"`
	Large      string `json:"large"`
	PNG        string `json:"png"`
	ArtCrop    string `json:"art_crop"`
	BorderCrop string `json:"border_crop"`
}

// Prices holds Scryfall's daily price snapshot. Values are decimal strings
// and any of them may be missing.
type Prices struct {
	USD       *string `json:"usd,omitempty"`
	USDFoil   *string `json:"usd_foil,omitempty"`
	USDEtched *string `json:"usd_etched,omitempty"`
	EUR       *string `json:"eur,omitempty"`
	EURFoil   *string `json:"eur_foil,omitempty"`
	TIX       *string `json:"tix,omitempty"`
}

// ImageURL returns the normal-size image of the card, or of its front face
// for double-faced layouts that carry images per face.
func (c *Card) ImageURL() string {
	if c.ImageURIs != nil && c.ImageURIs.Normal != "" {
		return c.ImageURIs.Normal
	}
	for _, face := range c.CardFaces {
		if face.ImageURIs != nil && face.ImageURIs.Normal != "" {
			return face.ImageURIs.Normal
		}
	}
	return ""
}


// FaceNames returns the names of each card face, or nil for single-faced cards.
func (c *Card) FaceNames() []string {
	if len(c.CardFaces) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.CardFaces))
	for _, face := range c.CardFaces {
		names = append(names, face.Name)
	}
	return names
}

// Set represents a Magic set from Scryfall.
type Set struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	ReleasedAt string `json:"released_at,omitempty"`
	SetType    string `json:"set_type"`
	CardCount  int    `json:"card_count"`
	Digital    bool   `json:"digital"`
}

// SetList represents a list of sets from Scryfall.
type SetList struct {
	Object  string `json:"object"`
	HasMore bool   `json:"has_more"`
	Data    []Set  `json:"data"`
}

// SearchResult represents one page of search results from Scryfall.
type SearchResult struct {
	Object     string `json:"object"`
	TotalCards int    `json:"total_cards"`
	HasMore    bool   `json:"has_more"`
	NextPage   string `json:"next_page,omitempty"`
	Data       []Card `json:"data"`
}

// ErrRateLimited is returned once the client has exhausted its retries
// against HTTP 429 responses.
var ErrRateLimited = errors.New("scryfall: rate limited")

// APIError represents an error response from the Scryfall API.
type APIError struct {
	Object   string   `json:"object"`
	Code     string   `json:"code"`
	Status   int      `json:"status"`
	Details  string   `json:"details"`
	Type     string   `json:"type,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Details)
	}
	return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Code)
}

// NotFoundError represents a 404 error from the API.
type NotFoundError struct {
	URL string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound returns true if the error is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
