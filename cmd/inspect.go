package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/frame"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Summarize a dataset's columns and missing values",
	Long: `Loads a CSV or XLSX file and reports each column's inferred type and
missing-value count. Columns with no missing values are omitted from the
missing report. Also validates column names against identifier rules.

Examples:
  mlprep inspect housing.csv
  mlprep inspect housing.csv --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := frame.Load(args[0])
		if err != nil {
			return eris.Wrap(err, "inspect")
		}

		reports := cleaning.FindMissing(f)

		switch inspectFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return eris.Wrap(err, "inspect: encode json")
			}
		case "csv":
			data, err := csvutil.Marshal(reports)
			if err != nil {
				return eris.Wrap(err, "inspect: encode csv")
			}
			_, _ = os.Stdout.Write(data)
		default:
			formatInspect(os.Stdout, f, reports)
		}

		if err := cleaning.CheckColumnNames(f); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "table", "output format (table, json, csv)")
	rootCmd.AddCommand(inspectCmd)
}

// formatInspect writes a column summary followed by the missing report.
func formatInspect(out io.Writer, f *frame.Frame, reports []cleaning.MissingReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "rows:\t%d\n", f.Len())
	_, _ = fmt.Fprintf(w, "columns:\t%d\n", f.Width())
	_ = w.Flush()

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tTYPE\tMISSING")
	_, _ = fmt.Fprintln(w, "------\t----\t-------")
	for _, c := range f.Columns() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", c.Name, c.Kind, c.MissingCount())
	}
	_ = w.Flush()

	if len(reports) == 0 {
		fmt.Fprintln(out, "No missing values.")
		return
	}
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "\nMISSING\tCOUNT\tPROPORTION")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.4f\n", r.Column, r.Count, r.Proportion)
	}
	_ = w.Flush()
}
