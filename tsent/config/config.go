package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	internal "github.com/ZanzyTHEbar/tweet-sentiment/tsent"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	Training   TrainingConfig   `mapstructure:"training"`
	Pretrained PretrainedConfig `mapstructure:"pretrained"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Log        LogConfig        `mapstructure:"log"`
}

// DataConfig describes the raw corpus and how it is sampled and split.
type DataConfig struct {
	Path           string      `mapstructure:"path"`
	SampleFraction float64     `mapstructure:"sampleFraction"`
	Split          SplitConfig `mapstructure:"split"`
	StopWords      string      `mapstructure:"stopWords"`
	Workers        int         `mapstructure:"workers"`
}

// SplitConfig names the fraction of the encoded dataset assigned to each partition.
type SplitConfig struct {
	Train      float64 `mapstructure:"train"`
	Validation float64 `mapstructure:"validation"`
	Test       float64 `mapstructure:"test"`
}

// TrainingConfig stores the optimisation hyperparameters.
type TrainingConfig struct {
	BatchSize          int     `mapstructure:"batchSize"`
	Epochs             int     `mapstructure:"epochs"`
	LearningRate       float64 `mapstructure:"learningRate"`
	MaxLength          int     `mapstructure:"maxLength"`
	DropPartialBatches bool    `mapstructure:"dropPartialBatches"`
	Seed               int64   `mapstructure:"seed"`
	ResumeFrom         string  `mapstructure:"resumeFrom"`
}

// PretrainedConfig points at the tokenizer and encoder resources.
type PretrainedConfig struct {
	Repo       string `mapstructure:"repo"`
	CacheDir   string `mapstructure:"cacheDir"`
	VocabPath  string `mapstructure:"vocabPath"`
	Provider   string `mapstructure:"provider"`
	ModelPath  string `mapstructure:"modelPath"`
	Dims       int    `mapstructure:"dims"`
	ONNXDevice string `mapstructure:"onnxDevice"`
}

// CheckpointConfig controls where per-epoch checkpoints are written.
type CheckpointConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// RegistryConfig stores run registry connection details.
type RegistryConfig struct {
	DSN     string `mapstructure:"dsn"`
	Enabled bool   `mapstructure:"enabled"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	SetDefaults(v)

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // training.batchSize becomes TRAINING_BATCHSIZE

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.path", internal.DefaultDataPath)
	v.SetDefault("data.sampleFraction", internal.DefaultSampleFraction)
	v.SetDefault("data.split.train", internal.DefaultTrainFraction)
	v.SetDefault("data.split.validation", internal.DefaultValFraction)
	v.SetDefault("data.split.test", internal.DefaultTestFraction)
	v.SetDefault("data.stopWords", "english")
	v.SetDefault("data.workers", 4)

	v.SetDefault("training.batchSize", internal.DefaultBatchSize)
	v.SetDefault("training.epochs", internal.DefaultEpochs)
	v.SetDefault("training.learningRate", internal.DefaultLearningRate)
	v.SetDefault("training.maxLength", internal.DefaultMaxLength)
	v.SetDefault("training.dropPartialBatches", true)
	v.SetDefault("training.seed", 0)
	v.SetDefault("training.resumeFrom", "")

	v.SetDefault("pretrained.repo", internal.DefaultPretrainedRepo)
	v.SetDefault("pretrained.cacheDir", internal.DefaultCacheDir)
	v.SetDefault("pretrained.vocabPath", "")
	v.SetDefault("pretrained.provider", "hash")
	v.SetDefault("pretrained.modelPath", "")
	v.SetDefault("pretrained.dims", internal.DefaultEncoderDims)
	v.SetDefault("pretrained.onnxDevice", "cpu")

	v.SetDefault("checkpoint.dir", internal.DefaultCheckpointDir)
	v.SetDefault("checkpoint.prefix", internal.DefaultCheckpointPrefix)

	v.SetDefault("registry.dsn", internal.DefaultRegistryPath)
	v.SetDefault("registry.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("training.batchSize must be positive: %d", c.Training.BatchSize)
	}
	if c.Training.Epochs < 0 {
		return fmt.Errorf("training.epochs must not be negative: %d", c.Training.Epochs)
	}
	if c.Training.MaxLength < 2 {
		return fmt.Errorf("training.maxLength must leave room for [CLS] and [SEP]: %d", c.Training.MaxLength)
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learningRate must be positive: %g", c.Training.LearningRate)
	}
	if c.Data.SampleFraction <= 0 || c.Data.SampleFraction > 1 {
		return fmt.Errorf("data.sampleFraction must be in (0, 1]: %g", c.Data.SampleFraction)
	}
	s := c.Data.Split
	if s.Train < 0 || s.Validation < 0 || s.Test < 0 {
		return fmt.Errorf("data.split fractions must not be negative")
	}
	if sum := s.Train + s.Validation + s.Test; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("data.split fractions must sum to 1, got %g", sum)
	}
	if !validProvider(c.Pretrained.Provider) {
		return fmt.Errorf("pretrained.provider must be hash, dev, onnx or onnx:<ep>: %q", c.Pretrained.Provider)
	}
	if ep := strings.ToLower(strings.TrimSpace(c.Pretrained.ONNXDevice)); ep != "" && !validExecutionProvider(ep) {
		return fmt.Errorf("pretrained.onnxDevice must be cpu, cuda, tensorrt, coreml or dml with an optional :<device>: %q", c.Pretrained.ONNXDevice)
	}
	return nil
}

var executionProviders = map[string]bool{"cpu": true, "cuda": true, "tensorrt": true, "coreml": true, "dml": true}

func validExecutionProvider(ep string) bool {
	name, dev, found := strings.Cut(ep, ":")
	if !executionProviders[name] {
		return false
	}
	if found {
		n, err := strconv.Atoi(dev)
		return err == nil && n >= 0
	}
	return true
}

// validProvider accepts the encoder providers embedding.NewEncoder knows.
// Empty selects the hash encoder.
func validProvider(p string) bool {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "", "hash", "dev", "onnx":
		return true
	}
	ep, ok := strings.CutPrefix(p, "onnx:")
	return ok && validExecutionProvider(ep)
}
