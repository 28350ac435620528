package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/halcyon-data/mlprep/internal/frame"
	"github.com/halcyon-data/mlprep/internal/geospatial"
	"github.com/halcyon-data/mlprep/internal/model"
	"github.com/halcyon-data/mlprep/internal/store"
)

var (
	clusterLonCol      string
	clusterLatCol      string
	clusterLabelCol    string
	clusterKMin        int
	clusterKMax        int
	clusterMaxIter     int
	clusterSeed        uint64
	clusterSensitivity float64
	clusterPlot        string
	clusterParams      string
	clusterOutput      string
	clusterRunID       string
	clusterParamsIn    string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Replace coordinate columns with k-means cluster labels",
	Long: `Sweeps a range of cluster counts over the longitude/latitude columns,
picks the count at the elbow of the distortion curve, and replaces the
coordinate pair with a single cluster-label column.`,
}

// -- cluster fit --

var clusterFitCmd = &cobra.Command{
	Use:   "fit <file>",
	Short: "Fit a coordinate transformer and record the run",
	Long: `Fits the transformer on the coordinates in a CSV, XLSX, or point
shapefile, records the run, and optionally writes the transformed data,
a distortion plot, and the fitted parameters.

Examples:
  mlprep cluster fit housing.csv -o clustered.csv
  mlprep cluster fit housing.csv --k-min 2 --k-max 8 --plot clusters.png
  mlprep cluster fit stations.shp --params transformer.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Unset flags fall back to config values.
		if !cmd.Flags().Changed("k-min") {
			clusterKMin = cfg.Cluster.KMin
		}
		if !cmd.Flags().Changed("k-max") {
			clusterKMax = cfg.Cluster.KMax
		}
		if !cmd.Flags().Changed("max-iter") {
			clusterMaxIter = cfg.Cluster.MaxIter
		}
		if !cmd.Flags().Changed("seed") {
			clusterSeed = cfg.Cluster.Seed
		}
		if !cmd.Flags().Changed("sensitivity") {
			clusterSensitivity = cfg.Cluster.Sensitivity
		}

		if err := cfg.Validate("cluster"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dataset := filepath.Base(args[0])
		run, err := st.CreateRun(ctx, dataset, model.RunKindCluster)
		if err != nil {
			return err
		}

		t := geospatial.NewCoordinateTransformer(
			geospatial.WithKRange(clusterKMin, clusterKMax),
			geospatial.WithMaxIter(clusterMaxIter),
			geospatial.WithSeed(clusterSeed),
			geospatial.WithSensitivity(clusterSensitivity),
		)

		if err := runCluster(t, args[0]); err != nil {
			recordFailure(ctx, st, run.ID, err)
			return err
		}

		// The fitted parameters go on the run so apply can reuse them.
		params, err := json.Marshal(t)
		if err != nil {
			return eris.Wrap(err, "cluster: marshal params")
		}
		if err := st.UpdateRunResult(ctx, run.ID, &model.RunResult{
			Status:           model.RunStatusComplete,
			Params:           params,
			OptimalK:         t.OptimalK(),
			DistortionScores: t.DistortionScores(),
		}); err != nil {
			return err
		}

		zap.L().Info("clustering complete",
			zap.String("run", run.ID),
			zap.Int("optimal_k", t.OptimalK()),
			zap.Bool("knee_found", t.KneeFound()),
		)

		if clusterPlot != "" {
			if err := t.SavePlot(clusterPlot); err != nil {
				return eris.Wrap(err, "cluster: save plot")
			}
			fmt.Fprintf(os.Stderr, "wrote plot to %s\n", clusterPlot)
		}
		if clusterParams != "" {
			if err := os.WriteFile(clusterParams, params, 0o644); err != nil {
				return eris.Wrap(err, "cluster: write params")
			}
		}

		fmt.Printf("run %s: optimal k %d\n", run.ID, t.OptimalK())
		return nil
	},
}

// -- cluster apply --

var clusterApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Transform a dataset with a previously fitted run",
	Long: `Loads fitted transformer parameters from a recorded run or a params
file and applies them to a new dataset.

Examples:
  mlprep cluster apply holdout.csv --run 7f3c91a2 -o labeled.csv
  mlprep cluster apply holdout.csv --load transformer.json -o labeled.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		t, err := loadClusterParams(ctx)
		if err != nil {
			return err
		}
		if err := runCluster(t, args[0]); err != nil {
			return eris.Wrap(err, "cluster apply")
		}
		fmt.Printf("applied k=%d\n", t.OptimalK())
		return nil
	},
}

// loadClusterParams restores a fitted transformer from --run or --load.
func loadClusterParams(ctx context.Context) (*geospatial.CoordinateTransformer, error) {
	var data []byte
	switch {
	case clusterRunID != "":
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, clusterRunID)
		if err != nil {
			return nil, err
		}
		if len(run.Params) == 0 {
			return nil, eris.Errorf("cluster: run %s has no fitted parameters", clusterRunID)
		}
		data = run.Params
	case clusterParamsIn != "":
		var err error
		data, err = os.ReadFile(clusterParamsIn)
		if err != nil {
			return nil, eris.Wrap(err, "cluster: read params")
		}
	default:
		return nil, eris.New("cluster: apply requires --run or --load")
	}

	var t geospatial.CoordinateTransformer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "cluster: unmarshal params")
	}
	return &t, nil
}

// runCluster applies the transformer to the input file. Unfitted transformers
// are fitted first; the transformed output is written when --output is set.
func runCluster(t *geospatial.CoordinateTransformer, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		X, err := geospatial.PointsFromShapefile(path)
		if err != nil {
			return err
		}
		if !t.Fitted() {
			if err := t.Fit(X); err != nil {
				return err
			}
		}
		if _, err := t.Transform(X); err != nil {
			return err
		}
		if clusterOutput == "" {
			return nil
		}
		return writeShapefileLabels(t, X, clusterOutput)
	}

	f, err := frame.Load(path)
	if err != nil {
		return err
	}
	X, err := f.Matrix(clusterLonCol, clusterLatCol)
	if err != nil {
		return err
	}
	if !t.Fitted() {
		if err := t.Fit(X); err != nil {
			return err
		}
	}
	out, err := t.TransformFrame(f, clusterLonCol, clusterLatCol, clusterLabelCol)
	if err != nil {
		return err
	}
	if clusterOutput == "" {
		return nil
	}
	return out.WriteCSV(clusterOutput)
}

// writeShapefileLabels emits a CSV of the shapefile points with their labels.
func writeShapefileLabels(t *geospatial.CoordinateTransformer, X mat.Matrix, path string) error {
	labels := t.Labels()
	n, _ := X.Dims()
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		rows[i] = []string{
			fmt.Sprintf("%g", X.At(i, 0)),
			fmt.Sprintf("%g", X.At(i, 1)),
			fmt.Sprintf("%d", labels[i]),
		}
	}
	f, err := frame.FromRecords([]string{clusterLonCol, clusterLatCol, clusterLabelCol}, rows)
	if err != nil {
		return err
	}
	return f.WriteCSV(path)
}

// recordFailure marks a run failed, logging rather than failing on store errors.
func recordFailure(ctx context.Context, st store.Store, runID string, cause error) {
	err := st.UpdateRunResult(ctx, runID, &model.RunResult{
		Status: model.RunStatusFailed,
		Error:  cause.Error(),
	})
	if err != nil {
		zap.L().Warn("record run failure", zap.String("run", runID), zap.Error(err))
	}
}

func init() {
	clusterCmd.PersistentFlags().StringVar(&clusterLonCol, "lon", "longitude", "longitude column name")
	clusterCmd.PersistentFlags().StringVar(&clusterLatCol, "lat", "latitude", "latitude column name")
	clusterCmd.PersistentFlags().StringVar(&clusterLabelCol, "label", "cluster", "output label column name")
	clusterCmd.PersistentFlags().StringVarP(&clusterOutput, "output", "o", "", "output CSV path")

	clusterFitCmd.Flags().IntVar(&clusterKMin, "k-min", geospatial.DefaultKMin, "smallest cluster count to try")
	clusterFitCmd.Flags().IntVar(&clusterKMax, "k-max", geospatial.DefaultKMax, "largest cluster count to try")
	clusterFitCmd.Flags().IntVar(&clusterMaxIter, "max-iter", 300, "k-means iteration cap")
	clusterFitCmd.Flags().Uint64Var(&clusterSeed, "seed", 42, "random seed")
	clusterFitCmd.Flags().Float64Var(&clusterSensitivity, "sensitivity", 1.0, "knee detection sensitivity")
	clusterFitCmd.Flags().StringVar(&clusterPlot, "plot", "", "write a scatter plot PNG of the clusters")
	clusterFitCmd.Flags().StringVar(&clusterParams, "params", "", "write fitted transformer parameters as JSON")

	clusterApplyCmd.Flags().StringVar(&clusterRunID, "run", "", "reuse the fitted parameters of a recorded run")
	clusterApplyCmd.Flags().StringVar(&clusterParamsIn, "load", "", "load fitted transformer parameters from JSON")

	clusterCmd.AddCommand(clusterFitCmd)
	clusterCmd.AddCommand(clusterApplyCmd)
	rootCmd.AddCommand(clusterCmd)
}
