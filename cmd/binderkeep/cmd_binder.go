package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/binderkeep/internal/export"
)

var (
	binderOwner     string
	binderPublic    bool
	rearrangeBinder string
	exportFormat    string
	exportOutput    string
	exportOverwrite bool
)

var binderCmd = &cobra.Command{
	Use:   "binder",
	Short: "Create, list and export binders",
}

var binderCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty binder",
	Args:  cobra.ExactArgs(1),
	RunE:  runBinderCreate,
}

var binderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's binders",
	RunE:  runBinderList,
}

var binderExportCmd = &cobra.Command{
	Use:   "export [binder-id]",
	Short: "Write a binder's cards as CSV or JSON",
	Long: `Write a binder's cards as CSV or JSON, to stdout or to a file.

CSV exports use column names the generic import format understands, so an
export can be imported into another binder.`,
	Args: cobra.ExactArgs(1),
	RunE: runBinderExport,
}

var rearrangeCmd = &cobra.Command{
	Use:   "rearrange --binder ID",
	Short: "Compact a binder so cards fill slots from the front",
	RunE:  runRearrange,
}

func init() {
	binderCmd.PersistentFlags().StringVarP(&binderOwner, "owner", "o", "local", "Binder owner id")
	binderCreateCmd.Flags().BoolVar(&binderPublic, "public", false, "Make the binder visible to other users")
	binderCmd.AddCommand(binderCreateCmd)
	binderCmd.AddCommand(binderListCmd)

	binderExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Export format (csv, json)")
	binderExportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file (default stdout)")
	binderExportCmd.Flags().BoolVar(&exportOverwrite, "overwrite", false, "Replace an existing output file")
	binderCmd.AddCommand(binderExportCmd)

	rearrangeCmd.Flags().StringVarP(&rearrangeBinder, "binder", "b", "", "Binder id (required)")
	_ = rearrangeCmd.MarkFlagRequired("binder")
}

func runBinderCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.binders.Create(cmd.Context(), binderOwner, args[0], binderPublic)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), b.ID)
	return nil
}

func runBinderList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	binders, err := a.binders.List(cmd.Context(), binderOwner)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPAGES\tCARDS\tVALUE")
	for _, b := range binders {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t$%.2f\n", b.ID, b.Name, len(b.Pages), b.CardCount(), b.TotalValue())
	}
	return w.Flush()
}

func runBinderExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.binders.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return export.WriteBinder(cmd.OutOrStdout(), b, format)
	}

	exporter := export.NewExporter(export.Options{
		Format:     format,
		FilePath:   exportOutput,
		PrettyJSON: true,
		Overwrite:  exportOverwrite,
	})
	var data interface{} = export.Rows(b)
	if format == export.FormatJSON {
		data = export.Document(b)
	}
	if err := exporter.Export(data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d cards to %s\n", b.CardCount(), exportOutput)
	return nil
}

func runRearrange(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.binders.Rearrange(cmd.Context(), rearrangeBinder)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rearranged %d cards onto %d pages\n", b.CardCount(), len(b.Pages))
	return nil
}
