// Package importer resolves parsed CSV rows to cards in throttled batches
// and places the results into a binder in original row order.
package importer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ramonehamilton/binderkeep/internal/binder"
	"github.com/ramonehamilton/binderkeep/internal/csvimport"
	"github.com/ramonehamilton/binderkeep/internal/metrics"
	"github.com/ramonehamilton/binderkeep/internal/pricing"
	"github.com/ramonehamilton/binderkeep/internal/resolver"
	"github.com/ramonehamilton/binderkeep/internal/scryfall"
)

// NotFoundPolicy decides what happens to rows whose card cannot be resolved.
type NotFoundPolicy string

const (
	// NotFoundPlaceholder places a placeholder card built from the row and
	// also reports the row as failed.
	NotFoundPlaceholder NotFoundPolicy = "placeholder"

	// NotFoundDrop only reports the row as failed.
	NotFoundDrop NotFoundPolicy = "drop"
)

// ParseNotFoundPolicy validates a policy name.
func ParseNotFoundPolicy(s string) (NotFoundPolicy, error) {
	switch p := NotFoundPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case NotFoundPlaceholder, NotFoundDrop:
		return p, nil
	}
	return "", fmt.Errorf("unknown not-found policy %q", s)
}

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	// BatchSize is the number of distinct cards resolved concurrently.
	BatchSize int

	// ItemDelay spaces requests within a batch.
	ItemDelay time.Duration

	// BatchDelay is the pause between batches, and the cooldown before
	// each request once the pipeline has fallen back to serial mode.
	BatchDelay time.Duration

	NotFound NotFoundPolicy
	Logger   *zap.Logger

	// Metrics is optional.
	Metrics *metrics.ImportMetrics
}

// DefaultOptions returns the tuned defaults for Scryfall.
func DefaultOptions() Options {
	return Options{
		BatchSize:  8,
		ItemDelay:  75 * time.Millisecond,
		BatchDelay: 500 * time.Millisecond,
		NotFound:   NotFoundPlaceholder,
	}
}

// Resolver resolves one card query.
type Resolver interface {
	Resolve(ctx context.Context, session *resolver.Session, q resolver.Query) (*resolver.Printing, error)
}

// Binders loads and mutates binders. Update must persist the whole binder
// once fn returns without error.
type Binders interface {
	Get(ctx context.Context, id string) (*binder.Binder, error)
	Update(ctx context.Context, id string, fn func(*binder.Binder) error) (*binder.Binder, error)
}

// ProgressFunc receives the number of distinct cards resolved so far. It is
// called serially and must return quickly.
type ProgressFunc func(current, total int)

// Entry is a card ready for placement.
type Entry struct {
	Row         csvimport.Row `json:"row"`
	Card        binder.Card   `json:"card"`
	Placeholder bool          `json:"placeholder,omitempty"`
}

// Failure reports a row that did not produce a resolved card.
type Failure struct {
	Line   int    `json:"line"`
	Row    string `json:"row"`
	Reason string `json:"reason"`
}

// Outcome is the result of resolving a set of rows. Every input row is
// represented by an entry, a failure, or both.
type Outcome struct {
	Entries  []Entry   `json:"entries"`
	Failures []Failure `json:"failures"`
}

// Summary is the result of a full import.
type Summary struct {
	Created      int            `json:"created"`
	Placeholders int            `json:"placeholders"`
	Failed       []Failure      `json:"failed"`
	Binder       *binder.Binder `json:"binder,omitempty"`
}

// Pipeline runs CSV imports.
type Pipeline struct {
	resolver Resolver
	prices   *pricing.Annotator
	binders  Binders
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.ImportMetrics
}

// New creates a pipeline.
func New(r Resolver, prices *pricing.Annotator, binders Binders, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.NotFound == "" {
		opts.NotFound = def.NotFound
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if prices == nil {
		prices = pricing.NewAnnotator(pricing.DefaultOptions())
	}

	return &Pipeline{
		resolver: r,
		prices:   prices,
		binders:  binders,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Run parses text, resolves every row and places the resulting cards into
// the binder in row order with a single save. A header missing required
// columns returns a *csvimport.ColumnError and nothing is resolved. If ctx
// is cancelled before placement the binder is left untouched.
func (p *Pipeline) Run(ctx context.Context, binderID, text string, format csvimport.Format, progress ProgressFunc) (*Summary, error) {
	parsed := csvimport.Parse(text, format)
	if err := parsed.Err(); err != nil {
		return nil, err
	}

	if _, err := p.binders.Get(ctx, binderID); err != nil {
		return nil, fmt.Errorf("failed to load binder: %w", err)
	}

	start := time.Now()
	outcome, err := p.Resolve(ctx, parsed.Rows, progress)
	if err != nil {
		p.metrics.RecordImportFailure()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := make([]Failure, 0, len(parsed.Errors)+len(outcome.Failures))
	for _, rowErr := range parsed.Errors {
		failed = append(failed, Failure{Line: rowErr.Line, Row: rowErr.Raw, Reason: rowErr.Reason})
	}
	failed = append(failed, outcome.Failures...)
	slices.SortStableFunc(failed, func(a, b Failure) int { return a.Line - b.Line })

	summary := &Summary{Failed: failed}
	b, err := p.binders.Update(ctx, binderID, func(b *binder.Binder) error {
		for _, entry := range outcome.Entries {
			b.PlaceCard(entry.Card)
			summary.Created++
			if entry.Placeholder {
				summary.Placeholders++
			}
		}
		return nil
	})
	if err != nil {
		p.metrics.RecordImportFailure()
		return nil, fmt.Errorf("failed to place imported cards: %w", err)
	}
	summary.Binder = b
	p.metrics.RecordImport(time.Since(start), summary.Created, summary.Placeholders)

	p.logger.Info("Import finished",
		zap.String("binder_id", binderID),
		zap.String("format", format.Name),
		zap.Int("rows", len(parsed.Rows)),
		zap.Int("created", summary.Created),
		zap.Int("placeholders", summary.Placeholders),
		zap.Int("failed", len(summary.Failed)),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// AddOne resolves a single manually entered card and places it. Unlike an
// import, a card that cannot be resolved is an error.
func (p *Pipeline) AddOne(ctx context.Context, binderID string, row csvimport.Row) (*binder.Card, binder.SlotRef, error) {
	row.Name = strings.TrimSpace(row.Name)
	if row.Name == "" {
		return nil, binder.SlotRef{}, errors.New("card name is required")
	}
	if row.Quantity < 1 {
		row.Quantity = 1
	}
	if row.Condition == "" {
		row.Condition = binder.DefaultCondition
	}
	if row.Finish == "" {
		row.Finish = binder.FinishNonfoil
	}

	printing, err := p.resolver.Resolve(ctx, resolver.NewSession(), queryFor(row))
	if err != nil {
		return nil, binder.SlotRef{}, err
	}

	card := p.toCard(row, printing)
	var (
		ref    binder.SlotRef
		placed binder.Card
	)
	_, err = p.binders.Update(ctx, binderID, func(b *binder.Binder) error {
		ref = b.PlaceCard(card)
		slot, err := b.Slot(ref)
		if err != nil {
			return err
		}
		placed = *slot.Card
		return nil
	})
	if err != nil {
		return nil, binder.SlotRef{}, err
	}
	return &placed, ref, nil
}

// Resolve resolves rows to entries. Distinct cards are resolved once, in
// concurrent batches, falling back to one request at a time after the
// first rate limit response. Output follows row order. A cancelled ctx
// discards all results and returns the context error.
func (p *Pipeline) Resolve(ctx context.Context, rows []csvimport.Row, progress ProgressFunc) (*Outcome, error) {
	keys, queries := distinct(rows)
	t := &tracker{
		total:    len(keys),
		progress: progress,
		results:  make(map[string]resolution, len(keys)),
	}
	session := resolver.NewSession()
	limiter := p.newLimiter()
	serial := false

	for start := 0; start < len(keys); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(keys))
		batch := keys[start:end]

		if start > 0 {
			if err := sleep(ctx, p.opts.BatchDelay); err != nil {
				return nil, err
			}
		}

		if serial {
			for _, key := range batch {
				if err := p.resolveSerial(ctx, session, key, queries[key], t); err != nil {
					return nil, err
				}
			}
			continue
		}

		limited, err := p.resolveBatch(ctx, session, limiter, batch, queries, t)
		if err != nil {
			return nil, err
		}
		if len(limited) > 0 {
			serial = true
			p.metrics.RecordSerialFallback()
			p.logger.Warn("Rate limited, switching to serial resolution",
				zap.Int("pending", len(limited)),
				zap.Int("remaining", len(keys)-end))
			for _, key := range limited {
				if err := p.resolveSerial(ctx, session, key, queries[key], t); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.assemble(rows, t.results), nil
}

// resolveBatch resolves keys concurrently and returns those that hit the
// rate limit, in batch order.
func (p *Pipeline) resolveBatch(ctx context.Context, session *resolver.Session, limiter *rate.Limiter, batch []string, queries map[string]resolver.Query, t *tracker) ([]string, error) {
	limited := make([]bool, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range batch {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			printing, err := p.lookup(gctx, session, queries[key])
			switch {
			case errors.Is(err, scryfall.ErrRateLimited):
				limited[i] = true
				return nil
			case err != nil && gctx.Err() != nil:
				return err
			}
			t.record(key, printing, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []string
	for i, hit := range limited {
		if hit {
			out = append(out, batch[i])
		}
	}
	return out, nil
}

// resolveSerial waits out the cooldown and resolves one key. A second rate
// limit is recorded as a failure for that key.
func (p *Pipeline) resolveSerial(ctx context.Context, session *resolver.Session, key string, q resolver.Query, t *tracker) error {
	if err := sleep(ctx, p.opts.BatchDelay); err != nil {
		return err
	}
	printing, err := p.lookup(ctx, session, q)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	t.record(key, printing, err)
	return nil
}

// lookup calls the resolver and records its latency and outcome.
func (p *Pipeline) lookup(ctx context.Context, session *resolver.Session, q resolver.Query) (*resolver.Printing, error) {
	start := time.Now()
	printing, err := p.resolver.Resolve(ctx, session, q)
	switch {
	case err == nil:
		p.metrics.RecordLookup(time.Since(start), metrics.OutcomeResolved)
	case errors.Is(err, scryfall.ErrRateLimited):
		p.metrics.RecordLookup(time.Since(start), metrics.OutcomeRateLimited)
	case ctx.Err() == nil:
		p.metrics.RecordLookup(time.Since(start), metrics.OutcomeNotFound)
	}
	return printing, err
}

func (p *Pipeline) newLimiter() *rate.Limiter {
	if p.opts.ItemDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.opts.ItemDelay), 1)
}

// assemble builds the outcome in row order, applying the not-found policy.
func (p *Pipeline) assemble(rows []csvimport.Row, results map[string]resolution) *Outcome {
	out := &Outcome{
		Entries:  make([]Entry, 0, len(rows)),
		Failures: make([]Failure, 0),
	}

	for _, row := range rows {
		res := results[resolver.Key(queryFor(row))]
		if res.printing != nil {
			out.Entries = append(out.Entries, Entry{Row: row, Card: p.toCard(row, res.printing)})
			continue
		}

		reason := failureReason(res.err)
		if p.opts.NotFound == NotFoundPlaceholder {
			out.Entries = append(out.Entries, Entry{Row: row, Card: p.placeholder(row), Placeholder: true})
			reason += "; placeholder added"
		}
		out.Failures = append(out.Failures, Failure{Line: row.Line, Row: row.Raw, Reason: reason})
	}
	return out
}

func (p *Pipeline) toCard(row csvimport.Row, printing *resolver.Printing) binder.Card {
	sc := &printing.Card
	card := binder.Card{
		ScryfallID:      sc.ID,
		Name:            sc.Name,
		SetName:         sc.SetName,
		SetCode:         strings.ToUpper(sc.SetCode),
		CollectorNumber: sc.CollectorNumber,
		ImageURL:        sc.ImageURL(),
		Rarity:          sc.Rarity,
		Condition:       row.Condition,
		Finish:          row.Finish,
		Quantity:        row.Quantity,
		Notes:           row.Notes,
	}
	p.prices.Annotate(&card, sc)
	return card
}

func (p *Pipeline) placeholder(row csvimport.Row) binder.Card {
	return binder.Card{
		Name:            row.Name,
		SetCode:         strings.ToUpper(row.Set),
		CollectorNumber: row.CollectorNumber,
		Condition:       row.Condition,
		Finish:          row.Finish,
		Quantity:        row.Quantity,
		Price:           p.prices.Estimate(),
		Notes:           row.Notes,
		Placeholder:     true,
	}
}

func failureReason(err error) string {
	switch {
	case err == nil, errors.Is(err, resolver.ErrNotFound):
		return "card not found"
	case errors.Is(err, scryfall.ErrRateLimited):
		return "rate limited by card database"
	default:
		return err.Error()
	}
}

func queryFor(row csvimport.Row) resolver.Query {
	return resolver.Query{Name: row.Name, Set: row.Set, CollectorNumber: row.CollectorNumber}
}

// distinct returns the memo keys of rows in first-seen order.
func distinct(rows []csvimport.Row) ([]string, map[string]resolver.Query) {
	keys := make([]string, 0, len(rows))
	queries := make(map[string]resolver.Query, len(rows))
	for _, row := range rows {
		q := queryFor(row)
		key := resolver.Key(q)
		if _, seen := queries[key]; seen {
			continue
		}
		queries[key] = q
		keys = append(keys, key)
	}
	return keys, queries
}

type resolution struct {
	printing *resolver.Printing
	err      error
}

// tracker collects results and reports progress.
type tracker struct {
	mu       sync.Mutex
	done     int
	total    int
	progress ProgressFunc
	results  map[string]resolution
}

func (t *tracker) record(key string, printing *resolver.Printing, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[key] = resolution{printing: printing, err: err}
	t.done++
	if t.progress != nil {
		t.progress(t.done, t.total)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
