package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/frame"
)

var (
	freqFormat string
	freqSave   bool
)

var freqCmd = &cobra.Command{
	Use:   "freq <file> [columns...]",
	Short: "Frequency tables for string columns",
	Long: `Computes value counts and proportions for the named string columns,
or for every string column when none are named. Missing values are
excluded from the counts.

Examples:
  mlprep freq housing.csv ocean_proximity
  mlprep freq housing.csv --format csv
  mlprep freq housing.csv --save`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := frame.Load(args[0])
		if err != nil {
			return eris.Wrap(err, "freq")
		}

		tables, err := cleaning.FreqTables(f, args[1:]...)
		if err != nil {
			return eris.Wrap(err, "freq")
		}

		if freqSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			dataset := filepath.Base(args[0])
			for _, table := range tables {
				if err := st.SaveFreqTable(ctx, dataset, table); err != nil {
					return eris.Wrap(err, "freq: save")
				}
			}
			zap.L().Info("saved frequency tables",
				zap.String("dataset", dataset),
				zap.Int("tables", len(tables)),
			)
		}

		switch freqFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tables)
		case "csv":
			return writeFreqCSV(os.Stdout, tables)
		default:
			formatFreqTables(os.Stdout, tables)
			return nil
		}
	},
}

func init() {
	freqCmd.Flags().StringVar(&freqFormat, "format", "table", "output format (table, json, csv)")
	freqCmd.Flags().BoolVar(&freqSave, "save", false, "persist tables to the configured store")
	rootCmd.AddCommand(freqCmd)
}

// freqRow flattens a table entry for CSV output.
type freqRow struct {
	Column     string  `csv:"column"`
	Value      string  `csv:"value"`
	Count      int     `csv:"count"`
	Proportion float64 `csv:"proportion"`
}

func writeFreqCSV(out io.Writer, tables []cleaning.FreqTable) error {
	var rows []freqRow
	for _, t := range tables {
		for _, e := range t.Entries {
			rows = append(rows, freqRow{Column: t.Column, Value: e.Value, Count: e.Count, Proportion: e.Proportion})
		}
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "freq: encode csv")
	}
	_, err = out.Write(data)
	return err
}

func formatFreqTables(out io.Writer, tables []cleaning.FreqTable) {
	for _, t := range tables {
		fmt.Fprintf(out, "%s:\n", t.Column)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, e := range t.Entries {
			_, _ = fmt.Fprintf(w, "  %s\t%d\t%.4f\n", e.Value, e.Count, e.Proportion)
		}
		_ = w.Flush()
	}
}
