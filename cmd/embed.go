package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halcyon-data/mlprep/internal/encode"
	"github.com/halcyon-data/mlprep/internal/frame"
	"github.com/halcyon-data/mlprep/internal/model"
)

var (
	embedColumn     string
	embedKey        string
	embedDimension  int
	embedOOVBuckets int
	embedParamsIn   string
	embedParamsOut  string
	embedRunID      string
	embedOutput     string
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Replace a categorical column with embedding vectors",
	Long: `Replaces a high-cardinality string column with one float column per
embedding dimension. The embedding table is derived deterministically
from the key and vocabulary, so a fitted embedder reproduces identical
vectors anywhere. Values unseen at fit time hash into out-of-vocabulary
buckets.`,
}

// -- embed fit --

var embedFitCmd = &cobra.Command{
	Use:   "fit <file>",
	Short: "Fit an embedder on a column and record the run",
	Long: `Learns the vocabulary of a string column, records the run, and
optionally writes the embedded data and the fitted parameters.

Examples:
  mlprep embed fit housing.csv --column ocean_proximity -o embedded.csv
  mlprep embed fit housing.csv --column ocean_proximity --dimension 16 --params emb.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if embedColumn == "" {
			return eris.New("embed: --column is required")
		}

		if !cmd.Flags().Changed("dimension") {
			embedDimension = cfg.Embed.Dimension
		}
		if !cmd.Flags().Changed("oov-buckets") {
			embedOOVBuckets = cfg.Embed.OOVBuckets
		}
		if err := cfg.Validate("embed"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dataset := filepath.Base(args[0])
		run, err := st.CreateRun(ctx, dataset, model.RunKindEmbed)
		if err != nil {
			return err
		}

		f, err := frame.Load(args[0])
		if err != nil {
			recordFailure(ctx, st, run.ID, err)
			return eris.Wrap(err, "embed")
		}

		key := embedKey
		if key == "" {
			key = embedColumn
		}
		e := encode.NewEmbedder(
			encode.WithKey(key),
			encode.WithDimension(embedDimension),
			encode.WithOOVBuckets(embedOOVBuckets),
		)

		col, err := f.Column(embedColumn)
		if err != nil {
			recordFailure(ctx, st, run.ID, err)
			return err
		}
		if err := e.Fit(col.Strings); err != nil {
			recordFailure(ctx, st, run.ID, err)
			return err
		}

		out, err := e.TransformFrame(f, embedColumn)
		if err != nil {
			recordFailure(ctx, st, run.ID, err)
			return err
		}

		// The fitted parameters go on the run so apply can reuse them.
		params, err := json.Marshal(e)
		if err != nil {
			return eris.Wrap(err, "embed: marshal params")
		}
		if err := st.UpdateRunResult(ctx, run.ID, &model.RunResult{
			Status: model.RunStatusComplete,
			Params: params,
		}); err != nil {
			return err
		}

		zap.L().Info("embedding complete",
			zap.String("run", run.ID),
			zap.String("column", embedColumn),
			zap.Int("vocab", len(e.Vocab())),
			zap.Int("dimension", e.Dimension()),
		)

		if embedParamsOut != "" {
			if err := os.WriteFile(embedParamsOut, params, 0o644); err != nil {
				return eris.Wrap(err, "embed: write params")
			}
		}

		if embedOutput == "" {
			fmt.Printf("run %s: embedded %q into %d columns\n", run.ID, embedColumn, e.Dimension())
			return nil
		}
		return out.WriteCSV(embedOutput)
	},
}

// -- embed apply --

var embedApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Embed a dataset with a previously fitted run",
	Long: `Loads fitted embedder parameters from a recorded run or a params file
and applies them to a new dataset. Unseen values land in OOV buckets.

Examples:
  mlprep embed apply holdout.csv --column ocean_proximity --run 7f3c91a2 -o out.csv
  mlprep embed apply holdout.csv --column ocean_proximity --load emb.json -o out.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if embedColumn == "" {
			return eris.New("embed: --column is required")
		}

		e, err := loadEmbedderParams(ctx)
		if err != nil {
			return err
		}

		f, err := frame.Load(args[0])
		if err != nil {
			return eris.Wrap(err, "embed apply")
		}
		out, err := e.TransformFrame(f, embedColumn)
		if err != nil {
			return eris.Wrap(err, "embed apply")
		}

		if embedOutput == "" {
			fmt.Printf("embedded %q into %d columns\n", embedColumn, e.Dimension())
			return nil
		}
		return out.WriteCSV(embedOutput)
	},
}

// loadEmbedderParams restores a fitted embedder from --run or --load.
func loadEmbedderParams(ctx context.Context) (*encode.Embedder, error) {
	var data []byte
	switch {
	case embedRunID != "":
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, embedRunID)
		if err != nil {
			return nil, err
		}
		if len(run.Params) == 0 {
			return nil, eris.Errorf("embed: run %s has no fitted parameters", embedRunID)
		}
		data = run.Params
	case embedParamsIn != "":
		var err error
		data, err = os.ReadFile(embedParamsIn)
		if err != nil {
			return nil, eris.Wrap(err, "embed: read params")
		}
	default:
		return nil, eris.New("embed: apply requires --run or --load")
	}

	var e encode.Embedder
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "embed: unmarshal params")
	}
	return &e, nil
}

func init() {
	embedCmd.PersistentFlags().StringVar(&embedColumn, "column", "", "categorical column to embed (required)")
	embedCmd.PersistentFlags().StringVarP(&embedOutput, "output", "o", "", "output CSV path")

	embedFitCmd.Flags().StringVar(&embedKey, "key", "", "embedding key (default: the column name)")
	embedFitCmd.Flags().IntVar(&embedDimension, "dimension", encode.DefaultDimension, "embedding dimension")
	embedFitCmd.Flags().IntVar(&embedOOVBuckets, "oov-buckets", encode.DefaultOOVBuckets, "out-of-vocabulary bucket count")
	embedFitCmd.Flags().StringVar(&embedParamsOut, "params", "", "write fitted embedder parameters as JSON")

	embedApplyCmd.Flags().StringVar(&embedRunID, "run", "", "reuse the fitted parameters of a recorded run")
	embedApplyCmd.Flags().StringVar(&embedParamsIn, "load", "", "load fitted embedder parameters from JSON")

	embedCmd.AddCommand(embedFitCmd)
	embedCmd.AddCommand(embedApplyCmd)
	rootCmd.AddCommand(embedCmd)
}
