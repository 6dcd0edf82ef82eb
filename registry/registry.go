// Package registry maps classifier configuration names to factories that build
// fresh, unfitted predictors.
package registry

import (
	"github.com/YuminosukeSato/cvscore/core/model"
	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/sklearn/ensemble"
	"github.com/YuminosukeSato/cvscore/sklearn/linear_model"
	"github.com/YuminosukeSato/cvscore/sklearn/neural_network"
	"github.com/YuminosukeSato/cvscore/sklearn/svm"
)

// Name identifies a classifier configuration.
type Name string

const (
	LogisticRegression Name = "logistic_regression"
	SVM                Name = "svm"
	LinearSVM          Name = "linear_svm"
	SVMRBF             Name = "svm_rbf"
	MLP                Name = "mlp"
	RandomForest       Name = "rf"
	// DNN is reserved and has no implementation.
	DNN Name = "dnn"
)

// Config is an immutable named classifier configuration.
type Config struct {
	Name        Name
	Description string

	factory     func() model.Classifier
	unavailable string
}

// Available reports whether the configuration can build a predictor.
func (c Config) Available() bool {
	return c.factory != nil
}

// New builds a fresh predictor.
func (c Config) New() (model.Classifier, error) {
	if c.factory == nil {
		return nil, errors.NewConfigUnavailableError(string(c.Name), c.unavailable)
	}
	return c.factory(), nil
}

// Params returns the hyperparameters of the predictor the configuration
// builds, or nil when it is unavailable.
func (c Config) Params() map[string]interface{} {
	if c.factory == nil {
		return nil
	}
	if pg, ok := c.factory().(model.ParameterGetter); ok {
		return pg.GetParams()
	}
	return nil
}

var configs = []Config{
	{
		Name:        LogisticRegression,
		Description: "L2-regularized logistic regression",
		factory: func() model.Classifier {
			return linear_model.NewLogisticRegression()
		},
	},
	{
		Name:        SVM,
		Description: "rbf SVC with balanced class weights",
		factory: func() model.Classifier {
			return svm.NewSVC(
				svm.WithKernel("rbf"),
				svm.WithGamma("scale"),
				svm.WithC(1),
				svm.WithClassWeight("balanced"),
				svm.WithProbability(true),
			)
		},
	},
	{
		Name:        LinearSVM,
		Description: "linear SVC, C=0.025, balanced class weights",
		factory: func() model.Classifier {
			return svm.NewSVC(
				svm.WithKernel("linear"),
				svm.WithC(0.025),
				svm.WithClassWeight("balanced"),
				svm.WithProbability(true),
			)
		},
	},
	{
		Name:        SVMRBF,
		Description: "rbf SVC, gamma=2, C=1",
		factory: func() model.Classifier {
			return svm.NewSVC(
				svm.WithKernel("rbf"),
				svm.WithGammaValue(2),
				svm.WithC(1),
				svm.WithProbability(true),
			)
		},
	},
	{
		Name:        MLP,
		Description: "multi-layer perceptron, 100 relu units, alpha=0.01",
		factory: func() model.Classifier {
			return neural_network.NewMLPClassifier(
				neural_network.WithHiddenLayerSize(100),
				neural_network.WithActivation("relu"),
				neural_network.WithAlpha(0.01),
			)
		},
	},
	{
		Name:        RandomForest,
		Description: "random forest, 800 trees, balanced class weights",
		factory: func() model.Classifier {
			return ensemble.NewRandomForestClassifier(
				ensemble.WithNEstimators(800),
				ensemble.WithClassWeight("balanced"),
				ensemble.WithNJobs(-1),
			)
		},
	},
	{
		Name:        DNN,
		Description: "deep neural network",
		unavailable: "no deep network implementation is available",
	},
}

// Names returns every configuration name in declaration order.
func Names() []Name {
	names := make([]Name, len(configs))
	for i, c := range configs {
		names[i] = c.Name
	}
	return names
}

// Get returns the configuration registered under name.
func Get(name Name) (Config, error) {
	for _, c := range configs {
		if c.Name == name {
			return c, nil
		}
	}
	return Config{}, errors.NewUnknownConfigError(string(name))
}

// New builds a fresh predictor for name.
func New(name Name) (model.Classifier, error) {
	c, err := Get(name)
	if err != nil {
		return nil, err
	}
	return c.New()
}

// Available reports whether name is registered and implemented.
func Available(name Name) bool {
	c, err := Get(name)
	return err == nil && c.Available()
}
