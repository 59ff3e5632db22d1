package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binderkeep/internal/watch"
)

var (
	watchDir    string
	watchBinder string
	watchFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import CSV files dropped into an inbox directory",
	Long: `Watches the inbox directory and imports every CSV file written to it
into one binder. Imported files move to processed/, rejected ones to failed/.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchDir, "dir", "d", "", "Inbox directory (overrides config)")
	watchCmd.Flags().StringVarP(&watchBinder, "binder", "b", "", "Target binder id (overrides config)")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "", "CSV format (default: detect per file)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.Watch.InboxDir
	if watchDir != "" {
		dir = watchDir
	}
	binderID := cfg.Watch.BinderID
	if watchBinder != "" {
		binderID = watchBinder
	}
	if binderID == "" {
		return errors.New("no binder configured: pass --binder or set watch.binder_id")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.binders.Get(ctx, binderID); err != nil {
		return err
	}
	if err := a.withImporter(ctx); err != nil {
		return err
	}

	w, err := watch.New(watch.Config{
		InboxDir:     dir,
		BinderID:     binderID,
		Format:       watchFormat,
		PollInterval: cfg.GetWatchPollInterval(),
		Settle:       time.Second,
		Logger:       logger.Named("watch"),
	}, a.pipeline)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
