package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binderkeep/internal/csvimport"
)

var (
	importBinder string
	importFormat string
	importQuiet  bool
)

var importCmd = &cobra.Command{
	Use:   "import --binder ID [file.csv]",
	Short: "Import a CSV export into a binder",
	Long: `Resolves every row of a CSV export against Scryfall and places the
cards into the binder in file order. Reads stdin when no file is given.

Formats: generic, manabox, delverlens, dragonshield, headerless.
The format is detected when --format is omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importBinder, "binder", "b", "", "Target binder id (required)")
	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "CSV format (default: detect)")
	importCmd.Flags().BoolVarP(&importQuiet, "quiet", "q", false, "Do not print progress")
	_ = importCmd.MarkFlagRequired("binder")
}

func runImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read import: %w", err)
	}
	text := string(data)

	format := importFormat
	if format == "" {
		format = cfg.Import.DefaultFormat
	}
	f, err := csvimport.Select(format, text)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.withImporter(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	progress := func(current, total int) {
		if !importQuiet {
			fmt.Fprintf(out, "\rResolving cards: %d/%d", current, total)
		}
	}

	summary, err := a.pipeline.Run(ctx, importBinder, text, f, progress)
	if !importQuiet {
		fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Imported %d cards (%d placeholders) using the %s format\n", summary.Created, summary.Placeholders, f.Name)
	if len(summary.Failed) > 0 {
		fmt.Fprintf(out, "%d rows need attention:\n", len(summary.Failed))
		for _, failure := range summary.Failed {
			fmt.Fprintf(out, "  line %d: %s (%s)\n", failure.Line, failure.Reason, failure.Row)
		}
	}
	return nil
}
