package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultConfigPath is the default path to the config directory
	DefaultAppName        = "tsent"
	DefaultAppCMDShortCut = "tsent"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir       = filepath.Join(DefaultConfigPath, ".cache")
	DefaultRegistryPath   = filepath.Join(DefaultConfigPath, "runs.db")

	// Training defaults for the Sentiment140 fine-tuning run
	DefaultDataPath         = filepath.Join("data", "training.1600000.processed.noemoticon.csv")
	DefaultCheckpointDir    = "models"
	DefaultCheckpointPrefix = "sentiment"
	DefaultPretrainedRepo   = "bert-base-uncased"
	DefaultBatchSize        = 1024
	DefaultEpochs           = 20
	DefaultLearningRate     = 1e-3
	DefaultMaxLength        = 50
	DefaultSampleFraction   = 0.1
	DefaultTrainFraction    = 0.5
	DefaultValFraction      = 0.4
	DefaultTestFraction     = 0.1
	DefaultEncoderDims      = 768
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger builds a logger at the given level. pretty switches to the
// human readable console writer.
func NewLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
