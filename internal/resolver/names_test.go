package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

func TestNamesMatch(t *testing.T) {
	dfc := &scryfall.Card{
		Name:      "Fire // Ice",
		CardFaces: []scryfall.CardFace{{Name: "Fire"}, {Name: "Ice"}},
	}

	tests := []struct {
		query string
		card  *scryfall.Card
		want  bool
	}{
		{"Lightning Bolt", &scryfall.Card{Name: "Lightning Bolt"}, true},
		{"lightning   BOLT ", &scryfall.Card{Name: "Lightning Bolt"}, true},
		{"Badgermole", &scryfall.Card{Name: "Badgermole Cub"}, false},
		{"Bolt", &scryfall.Card{Name: "Lightning Bolt"}, false},
		{"fire // ice", dfc, true},
		{"Ice", dfc, true},
		{"Fir", dfc, false},
		{"", &scryfall.Card{Name: ""}, false},
	}

	for _, tt := range tests {
		if got := namesMatch(tt.query, tt.card); got != tt.want {
			t.Errorf("namesMatch(%q, %q) = %v, want %v", tt.query, tt.card.Name, got, tt.want)
		}
	}
}

func TestExtendsName(t *testing.T) {
	assert.True(t, extendsName("Badgermole", "Badgermole Cub"))
	assert.True(t, extendsName("bolt", "Lightning Bolt"))
	assert.False(t, extendsName("Lightening Bolt", "Lightning Bolt"))
	assert.False(t, extendsName("Opt", "opt"))
	assert.False(t, extendsName("Bolt", "Boltwing Marauder"))
}

func TestFrontFace(t *testing.T) {
	tests := []struct {
		name  string
		front string
		ok    bool
	}{
		{"Fire // Ice", "Fire", true},
		{"Fire//Ice", "Fire", true},
		{"Delver of Secrets / Insectile Aberration", "Delver of Secrets", true},
		{"Lightning Bolt", "", false},
		{"// Ice", "", false},
		{"AC/DC", "", false},
	}
	for _, tt := range tests {
		front, ok := frontFace(tt.name)
		if front != tt.front || ok != tt.ok {
			t.Errorf("frontFace(%q) = %q, %v, want %q, %v", tt.name, front, ok, tt.front, tt.ok)
		}
	}
}

func TestExactQuery(t *testing.T) {
	assert.Equal(t, `!"Shock" unique:prints set:m21 is:nonfoil`, exactQuery("Shock", "m21", false))
	assert.Equal(t, `!"Shock" unique:prints is:foil`, exactQuery("Shock", "", true))
	assert.Equal(t, `!"Kongming, Sleeping Dragon" unique:prints is:nonfoil`, exactQuery(`Kongming, "Sleeping Dragon"`, "", false))
}

func TestIsSpecial(t *testing.T) {
	assert.False(t, isSpecial(&scryfall.Card{}))
	assert.False(t, isSpecial(&scryfall.Card{FrameEffects: []string{"legendary"}, BorderColor: "black"}))
	assert.True(t, isSpecial(&scryfall.Card{FrameEffects: []string{"extendedart"}}))
	assert.True(t, isSpecial(&scryfall.Card{BorderColor: "borderless"}))
	assert.True(t, isSpecial(&scryfall.Card{FullArt: true}))
	assert.True(t, isSpecial(&scryfall.Card{Textless: true}))
}

func TestSetIndex_Code(t *testing.T) {
	idx := NewSetIndex([]scryfall.Set{
		{Code: "M21", Name: "Core Set 2021"},
		{Code: "dom", Name: "Dominaria"},
	})

	tests := map[string]struct {
		code string
		ok   bool
	}{
		"M21":           {"m21", true},
		"core set 2021": {"m21", true},
		" Dominaria ":   {"dom", true},
		"DOM":           {"dom", true},
		"Zendikar":      {"", false},
		"":              {"", false},
	}
	for hint, want := range tests {
		code, ok := idx.Code(hint)
		assert.Equal(t, want.code, code, hint)
		assert.Equal(t, want.ok, ok, hint)
	}
	assert.Equal(t, 4, idx.Len())
}

func TestSetIndex_NilPassesThrough(t *testing.T) {
	var idx *SetIndex
	code, ok := idx.Code(" ZNR ")
	assert.True(t, ok)
	assert.Equal(t, "znr", code)
	assert.Equal(t, 0, idx.Len())
}

type fakeSetCache struct {
	sets    []scryfall.Set
	saved   []scryfall.Set
	saveErr error
}

func (c *fakeSetCache) LoadSets(_ context.Context, _ time.Duration) ([]scryfall.Set, error) {
	return c.sets, nil
}

func (c *fakeSetCache) SaveSets(_ context.Context, sets []scryfall.Set) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saved = sets
	return nil
}

type fakeSetSource struct {
	sets  []scryfall.Set
	err   error
	calls int
}

func (s *fakeSetSource) GetSets(_ context.Context) ([]scryfall.Set, error) {
	s.calls++
	return s.sets, s.err
}

func TestLoadSetIndex_FreshCache(t *testing.T) {
	cache := &fakeSetCache{sets: []scryfall.Set{{Code: "dom", Name: "Dominaria"}}}
	source := &fakeSetSource{}

	idx, err := LoadSetIndex(context.Background(), cache, source, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, source.calls)

	code, ok := idx.Code("Dominaria")
	assert.True(t, ok)
	assert.Equal(t, "dom", code)
}

func TestLoadSetIndex_RefreshesStaleCache(t *testing.T) {
	cache := &fakeSetCache{}
	source := &fakeSetSource{sets: []scryfall.Set{{Code: "m21", Name: "Core Set 2021"}}}

	idx, err := LoadSetIndex(context.Background(), cache, source, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, source.sets, cache.saved)
	assert.Equal(t, 2, idx.Len())
}

func TestLoadSetIndex_SourceError(t *testing.T) {
	source := &fakeSetSource{err: errors.New("offline")}
	_, err := LoadSetIndex(context.Background(), nil, source, time.Hour, nil)
	assert.ErrorContains(t, err, "offline")
}

func TestLoadSetIndex_CacheWriteFailureIsLogged(t *testing.T) {
	cache := &fakeSetCache{saveErr: errors.New("disk full")}
	source := &fakeSetSource{sets: []scryfall.Set{{Code: "m21", Name: "Core Set 2021"}}}
	core, logs := observer.New(zapcore.WarnLevel)

	idx, err := LoadSetIndex(context.Background(), cache, source, time.Hour, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Nil(t, cache.saved)

	entries := logs.FilterMessage("Failed to cache set list").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
}
