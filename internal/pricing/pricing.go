// Package pricing attaches market prices from Scryfall data to binder cards.
package pricing

import (
	"math"
	"strconv"

	"github.com/ramonehamilton/binderkeep/internal/binder"
	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

// Options configures an Annotator.
type Options struct {
	// EURToUSD converts EUR prices when no USD price is known.
	EURToUSD float64

	// PlaceholderPrice is the estimate given to cards that could not be
	// resolved.
	PlaceholderPrice float64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		EURToUSD:         1.08,
		PlaceholderPrice: 0,
	}
}

// Annotator picks a USD price for a printing and finish.
type Annotator struct {
	opts Options
}

// NewAnnotator creates an Annotator. A non-positive EURToUSD disables EUR
// fallback.
func NewAnnotator(opts Options) *Annotator {
	if opts.PlaceholderPrice < 0 {
		opts.PlaceholderPrice = 0
	}
	return &Annotator{opts: opts}
}

// Price returns the best known USD price of card in finish, or 0 when no
// price is known. The finish-specific USD price is preferred, then any
// other USD price, then EUR converted at the configured rate.
func (a *Annotator) Price(card *scryfall.Card, finish binder.Finish) float64 {
	if card == nil {
		return 0
	}
	p := card.Prices

	var usd, eur []*string
	switch finish {
	case binder.FinishFoil:
		usd = []*string{p.USDFoil, p.USD, p.USDEtched}
		eur = []*string{p.EURFoil, p.EUR}
	case binder.FinishEtched:
		usd = []*string{p.USDEtched, p.USDFoil, p.USD}
		eur = []*string{p.EURFoil, p.EUR}
	default:
		usd = []*string{p.USD, p.USDFoil, p.USDEtched}
		eur = []*string{p.EUR, p.EURFoil}
	}

	if v, ok := first(usd); ok {
		return v
	}
	if a.opts.EURToUSD > 0 {
		if v, ok := first(eur); ok {
			return math.Round(v*a.opts.EURToUSD*100) / 100
		}
	}
	return 0
}

// Annotate sets dst.Price from card. The price is left nil when unknown.
func (a *Annotator) Annotate(dst *binder.Card, card *scryfall.Card) {
	if v := a.Price(card, dst.Finish); v > 0 {
		dst.Price = &v
		return
	}
	dst.Price = nil
}

// Estimate returns the price assigned to placeholder cards, or nil when no
// estimate is configured.
func (a *Annotator) Estimate() *float64 {
	if a.opts.PlaceholderPrice <= 0 {
		return nil
	}
	v := a.opts.PlaceholderPrice
	return &v
}

// first returns the first parsable positive price.
func first(prices []*string) (float64, bool) {
	for _, s := range prices {
		if s == nil {
			continue
		}
		v, err := strconv.ParseFloat(*s, 64)
		if err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}
