package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

// SetSource fetches the full list of sets.
type SetSource interface {
	GetSets(ctx context.Context) ([]scryfall.Set, error)
}

// SetCache persists the set list between runs.
type SetCache interface {
	// LoadSets returns the cached sets fetched within maxAge, or none when
	// the cache is empty or stale.
	LoadSets(ctx context.Context, maxAge time.Duration) ([]scryfall.Set, error)
	SaveSets(ctx context.Context, sets []scryfall.Set) error
}

// SetIndex maps set names and codes, case-insensitively, to set codes.
// A nil *SetIndex treats every hint as a code.
type SetIndex struct {
	codes map[string]string
}

// NewSetIndex builds an index over sets.
func NewSetIndex(sets []scryfall.Set) *SetIndex {
	idx := &SetIndex{codes: make(map[string]string, len(sets)*2)}
	for _, s := range sets {
		code := strings.ToLower(s.Code)
		if code == "" {
			continue
		}
		idx.codes[code] = code
		if name := normalizeName(s.Name); name != "" {
			if _, taken := idx.codes[name]; !taken {
				idx.codes[name] = code
			}
		}
	}
	return idx
}

// Code returns the set code for a hint such as "M21", "m21" or
// "Core Set 2021".
func (i *SetIndex) Code(hint string) (string, bool) {
	key := normalizeName(hint)
	if key == "" {
		return "", false
	}
	if i == nil {
		return key, true
	}
	code, ok := i.codes[key]
	return code, ok
}

// Len returns the number of indexed names and codes.
func (i *SetIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.codes)
}

// LoadSetIndex builds an index from the cache when it is fresh, otherwise
// from source, refreshing the cache. A failed cache write is logged, not
// returned.
func LoadSetIndex(ctx context.Context, cache SetCache, source SetSource, maxAge time.Duration, logger *zap.Logger) (*SetIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache != nil {
		sets, err := cache.LoadSets(ctx, maxAge)
		if err == nil && len(sets) > 0 {
			return NewSetIndex(sets), nil
		}
	}

	sets, err := source.GetSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sets: %w", err)
	}

	if cache != nil {
		if err := cache.SaveSets(ctx, sets); err != nil {
			logger.Warn("Failed to cache set list", zap.Int("sets", len(sets)), zap.Error(err))
		}
	}
	return NewSetIndex(sets), nil
}
