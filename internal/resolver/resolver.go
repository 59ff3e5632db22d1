// Package resolver matches free-text card names from imports to one
// canonical Scryfall printing using an ordered ladder of search strategies.
package resolver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

// ErrNotFound is returned when no strategy finds a printing.
var ErrNotFound = errors.New("card not found")

// Searcher is the part of the Scryfall client used for resolution.
type Searcher interface {
	SearchCards(ctx context.Context, query string) ([]scryfall.Card, error)
	NamedFuzzy(ctx context.Context, name string) (*scryfall.Card, error)
	GetCardBySetNumber(ctx context.Context, setCode, number string) (*scryfall.Card, error)
}

// Query identifies the card to resolve. Set is a free-text hint (code or
// name) and CollectorNumber is optional.
type Query struct {
	Name            string
	Set             string
	CollectorNumber string
}

// Printing is a resolved card and the strategy that found it. Printings
// returned from a Session are shared and must not be modified.
type Printing struct {
	Card     scryfall.Card
	Strategy string
}

// Resolver runs the strategy ladder against a Searcher.
type Resolver struct {
	searcher Searcher
	sets     *SetIndex
	logger   *zap.Logger
}

// New creates a resolver. sets may be nil, in which case set hints are
// used as codes verbatim.
func New(searcher Searcher, sets *SetIndex, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		searcher: searcher,
		sets:     sets,
		logger:   logger,
	}
}

// attempt is one exact-search rung of the ladder.
type attempt struct {
	strategy string
	name     string
	set      string
	foil     bool
}

// plan lists the exact-search rungs for name in priority order: with the
// set code (when known) then without, nonfoil before foil, and the same
// again for the front face of a double-faced name.
func plan(name, setCode string) []attempt {
	var steps []attempt
	add := func(prefix, n string) {
		if setCode != "" {
			steps = append(steps,
				attempt{strategy: prefix + "set-nonfoil", name: n, set: setCode},
				attempt{strategy: prefix + "set-foil", name: n, set: setCode, foil: true},
			)
		}
		steps = append(steps,
			attempt{strategy: prefix + "nonfoil", name: n},
			attempt{strategy: prefix + "foil", name: n, foil: true},
		)
	}

	add("exact-", name)
	if front, ok := frontFace(name); ok {
		add("face-", front)
	}
	return steps
}

// Resolve finds the best printing for q, consulting and filling session.
// It returns ErrNotFound when every strategy misses. Rate limiting and
// context errors are returned as is and are not memoized.
func (r *Resolver) Resolve(ctx context.Context, session *Session, q Query) (*Printing, error) {
	name := strings.TrimSpace(q.Name)
	if name == "" {
		return nil, ErrNotFound
	}

	key := Key(q)
	if p, ok := session.lookup(key); ok {
		if p == nil {
			return nil, ErrNotFound
		}
		return p, nil
	}

	p, err := r.resolve(ctx, name, q)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			session.store(key, nil)
		}
		return nil, err
	}

	session.store(key, p)
	return p, nil
}

func (r *Resolver) resolve(ctx context.Context, name string, q Query) (*Printing, error) {
	setCode, ok := r.sets.Code(q.Set)
	if !ok && strings.TrimSpace(q.Set) != "" {
		r.logger.Debug("Unknown set hint", zap.String("name", name), zap.String("set", q.Set))
	}

	if number := strings.TrimSpace(q.CollectorNumber); setCode != "" && number != "" {
		card, err := r.searcher.GetCardBySetNumber(ctx, setCode, number)
		switch {
		case err != nil && isFatal(ctx, err):
			return nil, err
		case err == nil && card != nil && namesMatch(name, card):
			return &Printing{Card: *card, Strategy: "set-number"}, nil
		}
	}

	p, err := r.ladder(ctx, plan(name, setCode))
	if err != nil || p != nil {
		return p, err
	}

	return r.fuzzy(ctx, name, setCode)
}

// fuzzy asks Scryfall to correct the name, then re-runs the exact ladder on
// the corrected name to choose among its printings.
func (r *Resolver) fuzzy(ctx context.Context, name, setCode string) (*Printing, error) {
	card, err := r.searcher.NamedFuzzy(ctx, name)
	if err != nil {
		if isFatal(ctx, err) {
			return nil, err
		}
		r.logger.Debug("Fuzzy lookup missed", zap.String("name", name), zap.Error(err))
		return nil, ErrNotFound
	}
	if card == nil {
		return nil, ErrNotFound
	}

	if namesMatch(name, card) {
		return &Printing{Card: *card, Strategy: "fuzzy"}, nil
	}
	if extendsName(name, card.Name) {
		r.logger.Debug("Rejected fuzzy match with longer name",
			zap.String("name", name), zap.String("match", card.Name))
		return nil, ErrNotFound
	}

	p, err := r.ladder(ctx, plan(card.Name, setCode))
	if err != nil {
		return nil, err
	}
	if p != nil {
		p.Strategy = "fuzzy+" + p.Strategy
		return p, nil
	}
	return &Printing{Card: *card, Strategy: "fuzzy"}, nil
}

// ladder runs steps in order and returns the first hit, or nil when all
// miss. A failed request counts as a miss unless it is fatal.
func (r *Resolver) ladder(ctx context.Context, steps []attempt) (*Printing, error) {
	for _, step := range steps {
		cards, err := r.searcher.SearchCards(ctx, exactQuery(step.name, step.set, step.foil))
		if err != nil {
			if isFatal(ctx, err) {
				return nil, err
			}
			r.logger.Debug("Search failed",
				zap.String("strategy", step.strategy),
				zap.String("name", step.name),
				zap.Error(err))
			continue
		}
		if card := pick(step.name, cards); card != nil {
			return &Printing{Card: *card, Strategy: step.strategy}, nil
		}
	}
	return nil, nil
}

// isFatal reports errors that must stop resolution instead of counting as
// a miss.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, scryfall.ErrRateLimited) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}
