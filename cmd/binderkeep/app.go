package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/binder"
	"github.com/ramonehamilton/binderkeep/internal/config"
	"github.com/ramonehamilton/binderkeep/internal/importer"
	"github.com/ramonehamilton/binderkeep/internal/metrics"
	"github.com/ramonehamilton/binderkeep/internal/pricing"
	"github.com/ramonehamilton/binderkeep/internal/resolver"
	"github.com/ramonehamilton/binderkeep/internal/scryfall"
	"github.com/ramonehamilton/binderkeep/internal/storage"
	"github.com/ramonehamilton/binderkeep/internal/trade"
)

// app wires storage, the Scryfall client and the domain services.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db      *storage.DB
	binders *binder.Service
	trades  *trade.Service

	// Set by withImporter.
	pipeline *importer.Pipeline
	metrics  *metrics.ImportMetrics
}

// newApp opens the database and the services that need nothing else.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	dbConfig := storage.DefaultConfig(cfg.Storage.Path)
	dbConfig.AutoMigrate = true
	db, err := storage.Open(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		binders: binder.NewService(db.Binders(), logger.Named("binder")),
		trades:  trade.NewService(db.Trades(), logger.Named("trade")),
	}, nil
}

// withImporter builds the Scryfall client and import pipeline. The set list
// comes from the database cache when fresh.
func (a *app) withImporter(ctx context.Context) error {
	cfg := a.cfg

	policy, err := importer.ParseNotFoundPolicy(cfg.Import.NotFound)
	if err != nil {
		return err
	}

	client := scryfall.NewClient(scryfall.Options{
		BaseURL:      cfg.Scryfall.BaseURL,
		UserAgent:    cfg.Scryfall.UserAgent,
		RateInterval: cfg.GetRateInterval(),
		Timeout:      cfg.GetTimeout(),
		MaxRetries:   cfg.Scryfall.MaxRetries,
		Logger:       a.logger.Named("scryfall"),
	})

	// Without a set index, set names in imports are passed through as codes.
	sets, err := resolver.LoadSetIndex(ctx, a.db.Sets(), client, cfg.GetSetCacheTTL(), a.logger.Named("resolver"))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("Set list unavailable, set names will not be translated", zap.Error(err))
	} else {
		a.logger.Debug("Set index loaded", zap.Int("sets", sets.Len()))
	}

	prices := pricing.NewAnnotator(pricing.Options{
		EURToUSD:         cfg.Pricing.EURToUSD,
		PlaceholderPrice: cfg.Import.PlaceholderPrice,
	})

	a.metrics = metrics.NewImportMetrics()
	a.pipeline = importer.New(
		resolver.New(client, sets, a.logger.Named("resolver")),
		prices,
		a.binders,
		importer.Options{
			BatchSize:  cfg.Import.BatchSize,
			ItemDelay:  cfg.GetItemDelay(),
			BatchDelay: cfg.GetBatchDelay(),
			NotFound:   policy,
			Logger:     a.logger.Named("import"),
			Metrics:    a.metrics,
		},
	)
	return nil
}

// Close closes the database.
func (a *app) Close() error {
	return a.db.Close()
}
