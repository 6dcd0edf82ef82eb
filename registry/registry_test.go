package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/sklearn/ensemble"
	"github.com/YuminosukeSato/cvscore/sklearn/svm"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []Name{LogisticRegression, SVM, LinearSVM, SVMRBF, MLP, RandomForest, DNN}, Names())
}

func TestNewBuildsFreshInstances(t *testing.T) {
	for _, name := range Names() {
		if !Available(name) {
			continue
		}
		t.Run(string(name), func(t *testing.T) {
			a, err := New(name)
			require.NoError(t, err)
			b, err := New(name)
			require.NoError(t, err)
			assert.NotSame(t, a, b)
		})
	}
}

func TestUnknownConfig(t *testing.T) {
	_, err := Get("boosted_stumps")
	var unknown *errors.UnknownConfigError
	require.True(t, errors.As(err, &unknown), "got %v", err)
	assert.Equal(t, "boosted_stumps", unknown.Name)

	_, err = New("boosted_stumps")
	assert.True(t, errors.As(err, &unknown))
	assert.False(t, Available("boosted_stumps"))
}

func TestDNNUnavailable(t *testing.T) {
	c, err := Get(DNN)
	require.NoError(t, err)
	assert.False(t, c.Available())
	assert.Nil(t, c.Params())

	_, err = New(DNN)
	var unavailable *errors.ConfigUnavailableError
	require.True(t, errors.As(err, &unavailable), "got %v", err)
	assert.Equal(t, "dnn", unavailable.Name)
}

func TestConfigParams(t *testing.T) {
	tests := []struct {
		name Name
		key  string
		want interface{}
	}{
		{SVM, "kernel", "rbf"},
		{SVM, "class_weight", "balanced"},
		{LinearSVM, "C", 0.025},
		{SVMRBF, "gamma", 2.0},
		{SVMRBF, "class_weight", ""},
		{MLP, "alpha", 0.01},
		{RandomForest, "n_estimators", 800},
		{RandomForest, "class_weight", "balanced"},
	}
	for _, tt := range tests {
		t.Run(string(tt.name)+"/"+tt.key, func(t *testing.T) {
			c, err := Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Params()[tt.key])
		})
	}
}

func TestConcreteTypes(t *testing.T) {
	p, err := New(SVM)
	require.NoError(t, err)
	assert.IsType(t, &svm.SVC{}, p)

	p, err = New(RandomForest)
	require.NoError(t, err)
	assert.IsType(t, &ensemble.RandomForestClassifier{}, p)
}
