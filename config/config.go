// Package config loads the cvscore command configuration from YAML with
// environment overrides.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"github.com/YuminosukeSato/cvscore/pkg/log"
	"github.com/YuminosukeSato/cvscore/registry"
)

// Environment variables that override file values.
const (
	EnvClassifier = "CVSCORE_CLASSIFIER"
	EnvFolds      = "CVSCORE_FOLDS"
	EnvLogLevel   = "CVSCORE_LOG_LEVEL"
)

// Fold planners accepted by Config.Splitter.
const (
	SplitterStratified = "stratified"
	SplitterKFold      = "kfold"
)

// Config is the evaluation run configuration.
type Config struct {
	Classifier  string `yaml:"classifier"`
	Folds       int    `yaml:"folds"`
	Splitter    string `yaml:"splitter"`
	Shuffle     bool   `yaml:"shuffle"`
	RandomState int64  `yaml:"random_state"`
	BinaryClass bool   `yaml:"binary_class"`
	Standardize bool   `yaml:"standardize"`
	LogLevel    string `yaml:"log_level"`
	LogConsole  bool   `yaml:"log_console"`

	Data DataConfig `yaml:"data"`

	// ROCPlot is the output path of the ROC plot; empty disables rendering.
	ROCPlot string `yaml:"roc_plot"`
	// MetricsFile receives the averages in Prometheus text format.
	MetricsFile string `yaml:"metrics_file"`
}

// DataConfig locates the dataset file.
type DataConfig struct {
	Path        string `yaml:"path"`
	LabelColumn string `yaml:"label_column"`
	IDColumn    string `yaml:"id_column"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Classifier:  string(registry.SVM),
		Folds:       10,
		Splitter:    SplitterStratified,
		Shuffle:     true,
		RandomState: -1,
		BinaryClass: true,
		LogLevel:    "info",
		LogConsole:  true,
		Data: DataConfig{
			LabelColumn: "label",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with the environment read through lookup.
func LoadWithLookup(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode unmarshals YAML into cfg, rejecting unknown fields.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvClassifier); ok && v != "" {
		c.Classifier = v
	}
	if v, ok := lookup(EnvFolds); ok && v != "" {
		folds, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewValidationError(EnvFolds, "must be an integer", v)
		}
		c.Folds = folds
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// EnvFileLookup reads a dotenv file and returns a lookup that prefers the
// process environment over the file.
func EnvFileLookup(path string) (func(string) (string, bool), error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read env file %s", path)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := registry.Get(registry.Name(c.Classifier)); err != nil {
		return errors.NewValidationError("classifier", "unknown classifier configuration", c.Classifier)
	}
	if c.Folds < 2 {
		return errors.NewValidationError("folds", "must be at least 2", c.Folds)
	}
	if c.Splitter != SplitterStratified && c.Splitter != SplitterKFold {
		return errors.NewValidationError("splitter", "must be stratified or kfold", c.Splitter)
	}
	if _, err := log.ToLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Data.LabelColumn == "" {
		return errors.NewValidationError("data.label_column", "must not be empty", c.Data.LabelColumn)
	}
	return nil
}

// Write saves the configuration as YAML.
func (c Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}
