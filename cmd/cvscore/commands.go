package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cvscore/config"
	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/dataset"
	"github.com/YuminosukeSato/cvscore/evaluation"
	"github.com/YuminosukeSato/cvscore/metrics"
	"github.com/YuminosukeSato/cvscore/model_selection"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/pkg/log"
	"github.com/YuminosukeSato/cvscore/plotting"
	"github.com/YuminosukeSato/cvscore/registry"
	"github.com/YuminosukeSato/cvscore/report"
	"gonum.org/v1/gonum/mat"
)

// runFlags are the evaluate and crossvalidate flags that override the config file.
type runFlags struct {
	configPath  string
	envFile     string
	dataPath    string
	labelColumn string
	idColumn    string
	classifier  string
	folds       int
	splitter    string
	seed        int64
	multiclass  bool
	noShuffle   bool
	standardize bool
	rocPlot     string
	logLevel    string
	metricsFile string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cvscore",
		Short:         "Stratified k-fold evaluation of classifiers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newEvaluateCmd(),
		newCrossValidateCmd(),
		newClassifiersCmd(),
		newInitConfigCmd(),
	)
	return root
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.envFile, "env-file", "", "dotenv file with CVSCORE_* overrides")
	fs.StringVarP(&f.dataPath, "data", "d", "", "CSV dataset with a header row")
	fs.StringVar(&f.labelColumn, "label-column", "", "name of the label column")
	fs.StringVar(&f.idColumn, "id-column", "", "name of the item id column")
	fs.StringVar(&f.classifier, "classifier", "", "classifier configuration (see 'cvscore classifiers')")
	fs.IntVarP(&f.folds, "folds", "k", 0, "number of folds")
	fs.StringVar(&f.splitter, "splitter", "", "fold planner: stratified or kfold")
	fs.Int64Var(&f.seed, "seed", -1, "fold shuffle seed, negative for a fresh seed")
	fs.BoolVar(&f.multiclass, "multiclass", false, "macro-averaged multiclass metrics")
	fs.BoolVar(&f.noShuffle, "no-shuffle", false, "deal class members into folds in order")
	fs.BoolVar(&f.standardize, "standardize", false, "standardize features per training fold")
	fs.StringVar(&f.rocPlot, "roc-plot", "", "write the ROC curves to this image file")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write the averages in Prometheus text format")
}

// resolve loads the config file and applies the flags that were set.
func (f *runFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	lookup := os.LookupEnv
	if f.envFile != "" {
		var err error
		if lookup, err = config.EnvFileLookup(f.envFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.LoadWithLookup(f.configPath, lookup)
	if err != nil {
		return config.Config{}, err
	}
	fs := cmd.Flags()
	if fs.Changed("data") {
		cfg.Data.Path = f.dataPath
	}
	if fs.Changed("label-column") {
		cfg.Data.LabelColumn = f.labelColumn
	}
	if fs.Changed("id-column") {
		cfg.Data.IDColumn = f.idColumn
	}
	if fs.Changed("classifier") {
		cfg.Classifier = f.classifier
	}
	if fs.Changed("folds") {
		cfg.Folds = f.folds
	}
	if fs.Changed("splitter") {
		cfg.Splitter = f.splitter
	}
	if fs.Changed("seed") {
		cfg.RandomState = f.seed
	}
	if fs.Changed("multiclass") {
		cfg.BinaryClass = !f.multiclass
	}
	if fs.Changed("no-shuffle") {
		cfg.Shuffle = !f.noShuffle
	}
	if fs.Changed("standardize") {
		cfg.Standardize = f.standardize
	}
	if fs.Changed("roc-plot") {
		cfg.ROCPlot = f.rocPlot
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.Data.Path == "" {
		return config.Config{}, errors.NewValueError("cvscore", "no dataset: set --data or data.path")
	}
	if err := log.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr(), cfg.LogConsole); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newEvaluator(cfg config.Config) (*evaluation.Evaluator, *dataset.Dataset, error) {
	ds, err := dataset.LoadCSVFile(cfg.Data.Path, cfg.Data.LabelColumn, cfg.Data.IDColumn)
	if err != nil {
		return nil, nil, err
	}
	opts := []evaluation.Option{
		evaluation.WithFolds(cfg.Folds),
		evaluation.WithShuffle(cfg.Shuffle),
		evaluation.WithRandomState(cfg.RandomState),
		evaluation.WithBinaryClass(cfg.BinaryClass),
		evaluation.WithStandardize(cfg.Standardize),
		evaluation.WithFeatureNames(ds.FeatureNames),
	}
	if cfg.Splitter == config.SplitterKFold {
		opts = append(opts, evaluation.WithSplitter(
			model_selection.NewKFold(cfg.Folds, cfg.Shuffle, cfg.RandomState)))
	}
	if ds.Items != nil {
		opts = append(opts, evaluation.WithItems(ds.Items))
	}
	if cfg.ROCPlot != "" {
		opts = append(opts, evaluation.WithRenderer(plotting.NewROCPlot(cfg.ROCPlot)))
	}
	ev, err := evaluation.NewEvaluator(ds.X, ds.Y, registry.Name(cfg.Classifier), opts...)
	if err != nil {
		return nil, nil, err
	}
	return ev, ds, nil
}

func newEvaluateCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cross-validate a classifier configuration and print the averaged metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			ev, ds, err := newEvaluator(cfg)
			if err != nil {
				return err
			}
			summary, err := ev.Evaluate()
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), cfg, ds, summary)
			if cfg.MetricsFile != "" {
				m := report.NewMetrics()
				m.Observe(cfg.Classifier, summary)
				if err := m.WriteFile(cfg.MetricsFile); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func printSummary(w io.Writer, cfg config.Config, ds *dataset.Dataset, s evaluation.Summary) {
	fmt.Fprintf(w, "classifier: %s\n", cfg.Classifier)
	fmt.Fprintf(w, "samples: %d, features: %d, folds: %d\n", ds.NSamples(), len(ds.FeatureNames), s.Folds)
	fmt.Fprintf(w, "classes: %s\n", formatCounts(ds.ClassCounts()))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "metric\taverage")
	if s.Binary {
		fmt.Fprintf(tw, "accuracy\t%.4f\n", s.Accuracy)
	}
	fmt.Fprintf(tw, "precision\t%.4f\n", s.Precision)
	fmt.Fprintf(tw, "recall\t%.4f\n", s.Recall)
	fmt.Fprintf(tw, "f1\t%.4f\n", s.F1)
	if s.ROCAvailable {
		fmt.Fprintf(tw, "auc\t%.4f\n", s.AUC)
	}
	tw.Flush()

	if s.ROCAvailable && cfg.ROCPlot != "" {
		fmt.Fprintf(w, "ROC curves of %d folds written to %s\n", len(s.Curves), cfg.ROCPlot)
	}
}

func formatCounts(counts map[int]int) string {
	labels := make([]int, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%d=%d", l, counts[l])
	}
	return strings.Join(parts, " ")
}

func newCrossValidateCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "crossvalidate",
		Short: "Train the svm configuration per fold without unknown labels and score the labeled test rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			ev, ds, err := newEvaluator(cfg)
			if err != nil {
				return err
			}
			labels := model.Labels(ds.Y)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "fold\ttrain\ttest\tunknown\taccuracy\tunknown items")
			for fm, err := range ev.CrossValidate() {
				if err != nil {
					return err
				}
				acc, unknown, err := scoreLabeled(fm, ds.X, labels)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.4f\t%s\n",
					fm.Fold, len(fm.TrainIndices), len(fm.TestIndices), len(unknown), acc,
					formatItems(ev.Items(), unknown))
			}
			return tw.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

// scoreLabeled returns the accuracy of the fold model on the test rows with a
// known label and the unknown test rows.
func scoreLabeled(fm evaluation.FoldModel, X mat.Matrix, labels []int) (float64, []int, error) {
	var known, unknown []int
	for _, idx := range fm.TestIndices {
		if labels[idx] >= 0 {
			known = append(known, idx)
		} else {
			unknown = append(unknown, idx)
		}
	}
	if len(known) == 0 {
		return 0, unknown, nil
	}
	pred, err := fm.Model.Predict(model.SelectRows(X, known))
	if err != nil {
		return 0, unknown, err
	}
	yTrue := mat.NewVecDense(len(known), nil)
	yPred := mat.NewVecDense(len(known), nil)
	for i, idx := range known {
		yTrue.SetVec(i, float64(labels[idx]))
		yPred.SetVec(i, pred.At(i, 0))
	}
	acc, err := metrics.AccuracyScore(yTrue, yPred)
	return acc, unknown, err
}

// formatItems joins the item ids of rows, falling back to row numbers when
// the dataset has no id column.
func formatItems(items []string, rows []int) string {
	if len(rows) == 0 {
		return "-"
	}
	parts := make([]string, len(rows))
	for i, r := range rows {
		if items != nil {
			parts[i] = items[r]
		} else {
			parts[i] = "#" + strconv.Itoa(r)
		}
	}
	return strings.Join(parts, ",")
}

func newClassifiersCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "classifiers",
		Short: "List the classifier configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "name\tavailable\tdescription")
			for _, name := range registry.Names() {
				c, err := registry.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\n", c.Name, c.Available(), c.Description)
				if verbose {
					params := c.Params()
					keys := make([]string, 0, len(params))
					for k := range params {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(tw, "\t\t  %s=%v\n", k, params[k])
					}
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show hyperparameters")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write the default configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().Write(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}
