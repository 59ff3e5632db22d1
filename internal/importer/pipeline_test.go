package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ramonehamilton/binderkeep/internal/binder"
	"github.com/ramonehamilton/binderkeep/internal/csvimport"
	"github.com/ramonehamilton/binderkeep/internal/metrics"
	"github.com/ramonehamilton/binderkeep/internal/pricing"
	"github.com/ramonehamilton/binderkeep/internal/resolver"
	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errNoBinder = errors.New("binder not found")

type memoryStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, id string) (*binder.Binder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, errNoBinder
	}
	var b binder.Binder
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *memoryStore) Save(_ context.Context, b *binder.Binder) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[b.ID] = doc
	m.saves++
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memoryStore) List(_ context.Context, _ string) ([]*binder.Binder, error) {
	return nil, nil
}

func (m *memoryStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type fakeResolver struct {
	mu          sync.Mutex
	cards       map[string]scryfall.Card
	rateLimits  map[string]int
	delay       func(name string) time.Duration
	onCall      func()
	calls       map[string]int
	inflight    int
	maxInflight int
}

func newFakeResolver(names ...string) *fakeResolver {
	f := &fakeResolver{
		cards:      make(map[string]scryfall.Card),
		rateLimits: make(map[string]int),
		calls:      make(map[string]int),
	}
	for _, n := range names {
		f.add(scryfall.Card{ID: "id-" + strings.ToLower(n), Name: n, SetCode: "tst", SetName: "Test Set"})
	}
	return f
}

func (f *fakeResolver) add(card scryfall.Card) {
	f.cards[strings.ToLower(card.Name)] = card
}

func (f *fakeResolver) Resolve(ctx context.Context, _ *resolver.Session, q resolver.Query) (*resolver.Printing, error) {
	name := strings.ToLower(q.Name)

	f.mu.Lock()
	f.calls[name]++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	hook := f.onCall
	var d time.Duration
	if f.delay != nil {
		d = f.delay(name)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if hook != nil {
		hook()
	}
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rateLimits[name] > 0 {
		f.rateLimits[name]--
		return nil, fmt.Errorf("max retries exceeded: %w", scryfall.ErrRateLimited)
	}
	card, ok := f.cards[name]
	if !ok {
		return nil, resolver.ErrNotFound
	}
	return &resolver.Printing{Card: card, Strategy: "exact-nonfoil"}, nil
}

func (f *fakeResolver) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[strings.ToLower(name)]
}

func testOptions() Options {
	return Options{
		BatchSize:  4,
		BatchDelay: time.Millisecond,
		NotFound:   NotFoundPlaceholder,
	}
}

type harness struct {
	store    *memoryStore
	binders  *binder.Service
	resolver *fakeResolver
	pipeline *Pipeline
	binderID string
}

func newHarness(t *testing.T, fr *fakeResolver, opts Options) *harness {
	t.Helper()
	store := newMemoryStore()
	svc := binder.NewService(store, nil)
	b, err := svc.Create(context.Background(), "user-1", "Trade binder", false)
	require.NoError(t, err)

	prices := pricing.NewAnnotator(pricing.Options{EURToUSD: 1.1, PlaceholderPrice: 0.25})
	return &harness{
		store:    store,
		binders:  svc,
		resolver: fr,
		pipeline: New(fr, prices, svc, opts),
		binderID: b.ID,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, newFakeResolver("Lightning Bolt", "Counterspell"), testOptions())

	summary, err := h.pipeline.Run(context.Background(), h.binderID,
		"Quantity,Name\n2,Lightning Bolt\n1,Counterspell\n", csvimport.Generic, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Empty(t, summary.Failed)

	b, err := h.binders.Get(context.Background(), h.binderID)
	require.NoError(t, err)
	require.Len(t, b.Pages, 1)

	page := b.Pages[0]
	require.NotNil(t, page.Slots[0].Card)
	require.NotNil(t, page.Slots[1].Card)
	assert.Equal(t, "Lightning Bolt", page.Slots[0].Card.Name)
	assert.Equal(t, 2, page.Slots[0].Card.Quantity)
	assert.Equal(t, "TST", page.Slots[0].Card.SetCode)
	assert.Equal(t, "Counterspell", page.Slots[1].Card.Name)
	assert.Equal(t, 1, page.Slots[1].Card.Quantity)
	for i := 2; i < binder.SlotsPerPage; i++ {
		assert.True(t, page.Slots[i].Empty(), "slot %d", i)
	}

	// one save for creation, one for the import
	assert.Equal(t, 2, h.store.saveCount())
}

func TestRun_PlacesInRowOrder(t *testing.T) {
	var names []string
	var csv strings.Builder
	csv.WriteString("Quantity,Name\n")
	for i := 0; i < 13; i++ {
		name := fmt.Sprintf("Card %02d", i)
		names = append(names, name)
		fmt.Fprintf(&csv, "1,%s\n", name)
	}

	fr := newFakeResolver(names...)
	// Later rows resolve first.
	fr.delay = func(name string) time.Duration {
		var n int
		fmt.Sscanf(name, "card %d", &n)
		return time.Duration(13-n) * time.Millisecond
	}
	h := newHarness(t, fr, testOptions())

	summary, err := h.pipeline.Run(context.Background(), h.binderID, csv.String(), csvimport.Generic, nil)
	require.NoError(t, err)
	assert.Equal(t, 13, summary.Created)

	var got []string
	for _, c := range summary.Binder.Cards() {
		got = append(got, c.Name)
	}
	assert.Equal(t, names, got)
	assert.Len(t, summary.Binder.Pages, 2)
}

func TestRun_ResolvesDistinctCardsOnce(t *testing.T) {
	fr := newFakeResolver("Opt", "Shock")
	h := newHarness(t, fr, testOptions())

	summary, err := h.pipeline.Run(context.Background(), h.binderID,
		"Quantity,Name\n1,Opt\n2,Shock\n3,opt\n4, OPT \n", csvimport.Generic, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 1, fr.callCount("opt"))
	assert.Equal(t, 1, fr.callCount("shock"))
}

func TestRun_PlaceholderPolicy(t *testing.T) {
	h := newHarness(t, newFakeResolver("Opt"), testOptions())

	summary, err := h.pipeline.Run(context.Background(), h.binderID,
		"Quantity,Name,Set\n1,Opt,XLN\n3,Nonexistent Card,(abc)\n", csvimport.Generic, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Placeholders)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 3, summary.Failed[0].Line)
	assert.Equal(t, "3,Nonexistent Card,(abc)", summary.Failed[0].Row)
	assert.Contains(t, summary.Failed[0].Reason, "card not found")
	assert.Contains(t, summary.Failed[0].Reason, "placeholder")

	placeholder := summary.Binder.Pages[0].Slots[1].Card
	require.NotNil(t, placeholder)
	assert.True(t, placeholder.Placeholder)
	assert.Equal(t, "Nonexistent Card", placeholder.Name)
	assert.Equal(t, "ABC", placeholder.SetCode)
	assert.Equal(t, 3, placeholder.Quantity)
	assert.Empty(t, placeholder.ImageURL)
	require.NotNil(t, placeholder.Price)
	assert.Equal(t, 0.25, *placeholder.Price)
}

func TestRun_DropPolicy(t *testing.T) {
	opts := testOptions()
	opts.NotFound = NotFoundDrop
	h := newHarness(t, newFakeResolver("Opt"), opts)

	summary, err := h.pipeline.Run(context.Background(), h.binderID,
		"Quantity,Name\n1,Nonexistent Card\n1,Opt\n", csvimport.Generic, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Placeholders)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "card not found", summary.Failed[0].Reason)
	assert.Equal(t, "Opt", summary.Binder.Pages[0].Slots[0].Card.Name)
}

func TestRun_RowErrorsReportedInLineOrder(t *testing.T) {
	opts := testOptions()
	opts.NotFound = NotFoundDrop
	h := newHarness(t, newFakeResolver("Opt"), opts)

	summary, err := h.pipeline.Run(context.Background(), h.binderID,
		"Quantity,Name\n1,Missing One\n1,\n1,Opt\n", csvimport.Generic, nil)
	require.NoError(t, err)

	require.Len(t, summary.Failed, 2)
	assert.Equal(t, 2, summary.Failed[0].Line)
	assert.Equal(t, 3, summary.Failed[1].Line)
	assert.Equal(t, "missing card name", summary.Failed[1].Reason)
}

func TestRun_ColumnErrorStopsImport(t *testing.T) {
	fr := newFakeResolver("Opt")
	h := newHarness(t, fr, testOptions())

	_, err := h.pipeline.Run(context.Background(), h.binderID, "Name,Set\nOpt,XLN\n", csvimport.Generic, nil)

	var colErr *csvimport.ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, []csvimport.Column{csvimport.ColumnQuantity}, colErr.Missing)
	assert.Equal(t, 0, fr.callCount("opt"))
	assert.Equal(t, 1, h.store.saveCount())
}

func TestRun_UnknownBinder(t *testing.T) {
	fr := newFakeResolver("Opt")
	h := newHarness(t, fr, testOptions())

	_, err := h.pipeline.Run(context.Background(), "missing", "Quantity,Name\n1,Opt\n", csvimport.Generic, nil)
	assert.ErrorIs(t, err, errNoBinder)
	assert.Equal(t, 0, fr.callCount("opt"))
}

func TestRun_CancelledImportDoesNotSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fr := newFakeResolver("A", "B", "C", "D", "E", "F")
	fr.onCall = cancel
	h := newHarness(t, fr, testOptions())

	_, err := h.pipeline.Run(ctx, h.binderID, "Quantity,Name\n1,A\n1,B\n1,C\n1,D\n1,E\n1,F\n", csvimport.Generic, nil)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, h.store.saveCount())
	b, err := h.binders.Get(context.Background(), h.binderID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.CardCount())
}

func TestResolve_RateLimitFallsBackToSerial(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	fr := newFakeResolver(names...)
	fr.rateLimits["b"] = 1
	fr.delay = func(string) time.Duration { return time.Millisecond }
	h := newHarness(t, fr, testOptions())

	rows := make([]csvimport.Row, len(names))
	for i, n := range names {
		rows[i] = csvimport.Row{Line: i + 2, Name: n, Quantity: 1}
	}

	outcome, err := h.pipeline.Resolve(context.Background(), rows, nil)
	require.NoError(t, err)

	assert.Len(t, outcome.Entries, len(names))
	assert.Empty(t, outcome.Failures)
	assert.Equal(t, 2, fr.callCount("b"))
	for _, e := range outcome.Entries {
		assert.False(t, e.Placeholder)
	}
}

func TestResolve_SerialModeRunsOneAtATime(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}
	fr := newFakeResolver(names...)
	fr.rateLimits["a"] = 1
	h := newHarness(t, fr, testOptions())

	var rows []csvimport.Row
	for i, n := range names {
		rows = append(rows, csvimport.Row{Line: i + 1, Name: n, Quantity: 1})
	}

	// Reset the high-water mark once the first batch has finished.
	var once sync.Once
	progress := func(current, _ int) {
		if current == 4 {
			once.Do(func() {
				fr.mu.Lock()
				fr.maxInflight = fr.inflight
				fr.mu.Unlock()
			})
		}
	}

	_, err := h.pipeline.Resolve(context.Background(), rows, progress)
	require.NoError(t, err)

	fr.mu.Lock()
	defer fr.mu.Unlock()
	assert.LessOrEqual(t, fr.maxInflight, 1)
}

func TestResolve_RepeatedRateLimitFailsRow(t *testing.T) {
	fr := newFakeResolver("A", "B")
	fr.rateLimits["b"] = 5
	opts := testOptions()
	opts.NotFound = NotFoundDrop
	h := newHarness(t, fr, opts)

	outcome, err := h.pipeline.Resolve(context.Background(), []csvimport.Row{
		{Line: 2, Name: "A", Quantity: 1, Raw: "1,A"},
		{Line: 3, Name: "B", Quantity: 1, Raw: "1,B"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, outcome.Entries, 1)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, 3, outcome.Failures[0].Line)
	assert.Equal(t, "rate limited by card database", outcome.Failures[0].Reason)
	assert.Equal(t, 2, fr.callCount("b"))
}

func TestResolve_Progress(t *testing.T) {
	fr := newFakeResolver("A", "B", "C", "D", "E")
	h := newHarness(t, fr, testOptions())

	rows := []csvimport.Row{
		{Line: 1, Name: "A"}, {Line: 2, Name: "B"}, {Line: 3, Name: "a"},
		{Line: 4, Name: "C"}, {Line: 5, Name: "D"}, {Line: 6, Name: "E"},
	}

	var calls [][2]int
	_, err := h.pipeline.Resolve(context.Background(), rows, func(current, total int) {
		calls = append(calls, [2]int{current, total})
	})
	require.NoError(t, err)

	require.Len(t, calls, 5)
	for i, c := range calls {
		assert.Equal(t, i+1, c[0])
		assert.Equal(t, 5, c[1])
	}
}

func TestResolve_EveryRowAccountedFor(t *testing.T) {
	fr := newFakeResolver("A", "C")
	opts := testOptions()
	opts.NotFound = NotFoundDrop
	h := newHarness(t, fr, opts)

	rows := []csvimport.Row{{Line: 1, Name: "A"}, {Line: 2, Name: "B"}, {Line: 3, Name: "C"}, {Line: 4, Name: "B"}}
	outcome, err := h.pipeline.Resolve(context.Background(), rows, nil)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, e := range outcome.Entries {
		seen[e.Row.Line] = true
	}
	for _, f := range outcome.Failures {
		seen[f.Line] = true
	}
	for _, row := range rows {
		assert.True(t, seen[row.Line], "line %d missing", row.Line)
	}
}

func TestResolve_AnnotatesPrice(t *testing.T) {
	fr := newFakeResolver()
	usd, foil := "0.50", "2.00"
	fr.add(scryfall.Card{ID: "opt", Name: "Opt", Prices: scryfall.Prices{USD: &usd, USDFoil: &foil}})
	h := newHarness(t, fr, testOptions())

	outcome, err := h.pipeline.Resolve(context.Background(), []csvimport.Row{
		{Line: 1, Name: "Opt", Quantity: 1, Finish: binder.FinishFoil},
		{Line: 2, Name: "Opt", Quantity: 1, Finish: binder.FinishNonfoil},
	}, nil)
	require.NoError(t, err)

	require.Len(t, outcome.Entries, 2)
	require.NotNil(t, outcome.Entries[0].Card.Price)
	assert.Equal(t, 2.00, *outcome.Entries[0].Card.Price)
	require.NotNil(t, outcome.Entries[1].Card.Price)
	assert.Equal(t, 0.50, *outcome.Entries[1].Card.Price)
	assert.Equal(t, "opt", outcome.Entries[0].Card.ScryfallID)
}

func TestResolve_EtchedRowUsesEtchedPrice(t *testing.T) {
	fr := newFakeResolver()
	usd, foil, etched := "0.50", "2.00", "7.25"
	fr.add(scryfall.Card{ID: "opt", Name: "Opt", Prices: scryfall.Prices{USD: &usd, USDFoil: &foil, USDEtched: &etched}})
	h := newHarness(t, fr, testOptions())

	parsed := csvimport.Parse("Quantity,Name,Finish\n1,Opt,Foil Etched\n", csvimport.Generic)
	require.NoError(t, parsed.Err())
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, binder.FinishEtched, parsed.Rows[0].Finish)

	outcome, err := h.pipeline.Resolve(context.Background(), parsed.Rows, nil)
	require.NoError(t, err)

	require.Len(t, outcome.Entries, 1)
	assert.Equal(t, binder.FinishEtched, outcome.Entries[0].Card.Finish)
	require.NotNil(t, outcome.Entries[0].Card.Price)
	assert.Equal(t, 7.25, *outcome.Entries[0].Card.Price)
}

func TestAddOne(t *testing.T) {
	h := newHarness(t, newFakeResolver("Opt"), testOptions())

	card, ref, err := h.pipeline.AddOne(context.Background(), h.binderID, csvimport.Row{Name: "opt"})
	require.NoError(t, err)

	assert.Equal(t, binder.SlotRef{Page: 1, Position: 0}, ref)
	assert.NotEmpty(t, card.ID)
	assert.Equal(t, "Opt", card.Name)
	assert.Equal(t, 1, card.Quantity)
	assert.Equal(t, "NM", card.Condition)
	assert.Equal(t, binder.FinishNonfoil, card.Finish)

	_, _, err = h.pipeline.AddOne(context.Background(), h.binderID, csvimport.Row{Name: "Nope"})
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	_, _, err = h.pipeline.AddOne(context.Background(), h.binderID, csvimport.Row{Name: " "})
	assert.Error(t, err)
}

func TestParseNotFoundPolicy(t *testing.T) {
	p, err := ParseNotFoundPolicy(" Drop ")
	require.NoError(t, err)
	assert.Equal(t, NotFoundDrop, p)

	_, err = ParseNotFoundPolicy("ignore")
	assert.Error(t, err)
}

func TestRun_RecordsMetrics(t *testing.T) {
	fr := newFakeResolver("A", "B", "C")
	fr.rateLimits["b"] = 1
	opts := testOptions()
	opts.Metrics = metrics.NewImportMetrics()
	h := newHarness(t, fr, opts)

	summary, err := h.pipeline.Run(context.Background(), h.binderID,
		"Quantity,Name\n1,A\n1,B\n1,C\n1,Missing\n", csvimport.Generic, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Created)

	stats := opts.Metrics.Stats()
	assert.Equal(t, uint64(1), stats.ImportsRun)
	assert.Equal(t, uint64(5), stats.Lookups)
	assert.Equal(t, uint64(3), stats.Resolved)
	assert.Equal(t, uint64(1), stats.NotFound)
	assert.Equal(t, uint64(1), stats.RateLimited)
	assert.Equal(t, uint64(1), stats.SerialFallbacks)
	assert.Equal(t, uint64(4), stats.CardsPlaced)
	assert.Equal(t, uint64(1), stats.Placeholders)
}
