// Package cvscore evaluates classifiers with stratified k-fold
// cross-validation and reports accuracy, precision, recall, F-measure and
// ROC-AUC per fold and averaged over the folds.
//
// # Features
//
//   - Closed registry of classifier configurations (logistic regression,
//     SVC variants, MLP, random forest), each built fresh per fit
//   - Stratified fold planning that keeps class proportions within one
//     sample per fold
//   - Binary metrics with per-fold ROC curves, or macro-averaged multiclass
//     metrics
//   - Structured logging with zerolog and typed errors with stack traces
//
// # Installation
//
//	go get github.com/YuminosukeSato/cvscore
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/cvscore/evaluation"
//	    "github.com/YuminosukeSato/cvscore/plotting"
//	    "github.com/YuminosukeSato/cvscore/registry"
//	)
//
//	func main() {
//	    X, y := loadData() // n x d features, n x 1 labels in {0, 1}
//
//	    ev, err := evaluation.NewEvaluator(X, y, registry.SVM,
//	        evaluation.WithFolds(10),
//	        evaluation.WithRenderer(plotting.NewROCPlot("roc.png")),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    summary, err := ev.Evaluate()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("accuracy %.2f, AUC %.2f\n", summary.Accuracy, summary.AUC)
//	}
//
// # Packages
//
//   - evaluation: Evaluator (Evaluate, CrossValidate, Train) and the metric aggregator
//   - registry: classifier configuration names and factories
//   - model_selection: StratifiedKFold and KFold
//   - metrics: accuracy, precision, recall, F1, ROC curve, AUC
//   - sklearn/...: the classifiers behind the registry
//   - preprocessing: per-fold feature standardization
//   - plotting: ROC plot rendering with gonum/plot
//   - dataset, config: CSV loading and YAML/dotenv configuration for cmd/cvscore
//   - report: Prometheus text export of the averaged metrics
//   - core/model: estimator interfaces and input validation
//   - core/parallel: worker fan-out used by the random forest
//   - pkg/errors, pkg/log: error types and structured logging
//
// # Command line
//
//	cvscore classifiers --verbose
//	cvscore evaluate --data data.csv --classifier rf --folds 10 --roc-plot roc.png
//	cvscore evaluate --env-file .env --data data.csv --metrics-file cvscore.prom
//	cvscore crossvalidate --data data.csv --id-column id
package cvscore
