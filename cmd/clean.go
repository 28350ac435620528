package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/frame"
)

var (
	cleanFixNames  bool
	cleanCase      string
	cleanCaseCols  []string
	cleanCaseNames bool
	cleanRelocate  string
	cleanBefore    string
	cleanAfter     string
	cleanDropDupes bool
	cleanOutput    string
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Clean column names and values",
	Long: `Applies cleaning operations to a CSV or XLSX file and writes the result
as CSV. Operations run in order: fix names, case conversion, relocation,
duplicate removal.

Examples:
  mlprep clean housing.csv --fix-names -o cleaned.csv
  mlprep clean housing.csv --case upper --columns ocean_proximity -o out.csv
  mlprep clean housing.csv --relocate price --after city -o out.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := frame.Load(args[0])
		if err != nil {
			return eris.Wrap(err, "clean")
		}

		if cleanFixNames {
			f, err = cleaning.CleanColumnNames(f)
			if err != nil {
				return eris.Wrap(err, "clean: fix names")
			}
			zap.L().Info("cleaned column names", zap.Strings("columns", f.Names()))
		}

		if cleanCase != "" {
			kind := cleaning.Case(cleanCase)
			if cleanCaseNames {
				f, err = cleaning.CaseConvertNames(f, kind)
			} else {
				f, err = cleaning.CaseConvert(f, kind, cleanCaseCols...)
			}
			if err != nil {
				return eris.Wrap(err, "clean: case convert")
			}
		}

		if cleanRelocate != "" {
			position, anchor := frame.After, cleanAfter
			if cleanBefore != "" {
				position, anchor = frame.Before, cleanBefore
			}
			if anchor == "" {
				return eris.New("clean: --relocate requires --before or --after")
			}
			f, err = f.Relocate(cleanRelocate, position, anchor)
			if err != nil {
				return eris.Wrap(err, "clean: relocate")
			}
		}

		if cleanDropDupes {
			before := f.Len()
			f, err = cleaning.DropDuplicates(f)
			if err != nil {
				return eris.Wrap(err, "clean: drop duplicates")
			}
			zap.L().Info("dropped duplicate rows", zap.Int("removed", before-f.Len()))
		}

		if cleanOutput == "" {
			for _, rec := range f.Records() {
				fmt.Println(rec)
			}
			return nil
		}
		if err := f.WriteCSV(cleanOutput); err != nil {
			return eris.Wrap(err, "clean: write output")
		}
		fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", f.Len(), cleanOutput)
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanFixNames, "fix-names", false, "normalize column names to valid identifiers")
	cleanCmd.Flags().StringVar(&cleanCase, "case", "", "convert string values (lower, upper, title)")
	cleanCmd.Flags().StringSliceVar(&cleanCaseCols, "columns", nil, "columns to case-convert (default all string columns)")
	cleanCmd.Flags().BoolVar(&cleanCaseNames, "case-names", false, "apply --case to column names instead of values")
	cleanCmd.Flags().StringVar(&cleanRelocate, "relocate", "", "column to move")
	cleanCmd.Flags().StringVar(&cleanBefore, "before", "", "anchor column to move before")
	cleanCmd.Flags().StringVar(&cleanAfter, "after", "", "anchor column to move after")
	cleanCmd.Flags().BoolVar(&cleanDropDupes, "drop-duplicates", false, "remove duplicate rows, keeping the first")
	cleanCmd.Flags().StringVarP(&cleanOutput, "output", "o", "", "output CSV path (default stdout)")
	rootCmd.AddCommand(cleanCmd)
}
