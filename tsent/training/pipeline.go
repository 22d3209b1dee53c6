package training

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/checkpoint"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/config"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/dataset"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/db"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding/hub"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding/tokenizer"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/evaluation"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/model"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/ports"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/textclean"
)

// Deps are the collaborators the pipeline would otherwise build from config.
// Any nil field is constructed by Build.
type Deps struct {
	StopWords  *textclean.StopWords
	Tokenizer  tokenizer.Tokenizer
	Encoder    embedding.Encoder
	Registry   db.Registry
	Interactor ports.Interactor
	Hub        *hub.Client
	Rand       *rand.Rand
	Logger     zerolog.Logger
}

// Pipeline is a fully wired training run.
type Pipeline struct {
	Config    *config.Config
	Model     *model.Classifier
	Iterators dataset.Iterators
	Trainer   *Trainer
	Registry  db.Registry

	ownsRegistry bool
}

// Close releases the registry when Build opened it.
func (p *Pipeline) Close() error {
	if p.ownsRegistry && p.Registry != nil {
		return p.Registry.Close()
	}
	return nil
}

// Build resolves every resource named by cfg, loads and encodes the corpus
// and returns a trainer ready to Run. Resource failures are fatal.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	seed := cfg.Training.Seed
	rng := deps.Rand
	if rng == nil {
		// seed 0 draws a fresh seed; it is recorded so the split can be rebuilt
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = dataset.NewRand(seed)
	}

	stopWords := deps.StopWords
	if stopWords == nil {
		sw, err := textclean.LoadStopWords(ctx, cfg.Data.StopWords)
		if err != nil {
			return nil, fmt.Errorf("failed to load stop words: %w", err)
		}
		stopWords = sw
	}

	tok := deps.Tokenizer
	if tok == nil {
		t, err := NewTokenizer(ctx, cfg, deps.Hub, logger)
		if err != nil {
			return nil, err
		}
		tok = t
	}

	enc := deps.Encoder
	if enc == nil {
		e, err := NewEncoder(ctx, cfg, deps.Hub, logger)
		if err != nil {
			return nil, err
		}
		enc = e
	}

	builder := &dataset.Builder{
		Cleaner:   textclean.NewCleaner(stopWords),
		Tokenizer: tok,
		MaxLength: cfg.Training.MaxLength,
		Workers:   cfg.Data.Workers,
		Logger:    logger,
	}
	its, err := dataset.Load(ctx, dataset.OptionsFromConfig(cfg, rng), builder)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Config:    cfg,
		Model:     model.New(enc, rng),
		Iterators: its,
		Registry:  deps.Registry,
	}
	if p.Registry == nil && cfg.Registry.Enabled {
		reg, err := db.NewRunRegistry(cfg.Registry.DSN, logger)
		if err != nil {
			return nil, err
		}
		p.Registry = reg
		p.ownsRegistry = true
	}

	resolved := *cfg
	resolved.Training.Seed = seed
	runConfig, err := json.Marshal(resolved)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	opts := Options{
		Epochs:           cfg.Training.Epochs,
		LearningRate:     cfg.Training.LearningRate,
		CheckpointDir:    cfg.Checkpoint.Dir,
		CheckpointPrefix: cfg.Checkpoint.Prefix,
		ResumeFrom:       cfg.Training.ResumeFrom,
		Encoder:          EncoderInfo(cfg, enc),
		RunConfig:        string(runConfig),
		Seed:             seed,
	}
	p.Trainer = NewTrainer(opts, p.Model, its.Train, its.Validation, p.Registry, deps.Interactor, logger)
	return p, nil
}

// Run trains for every configured epoch and then scores the held-out test
// partition with the final model.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	summary, err := p.Trainer.Run(ctx)
	if err != nil {
		return summary, err
	}
	t := p.Trainer
	res, err := evaluation.Evaluate(ctx, p.Model, p.Iterators.Test, t.logger)
	if err != nil {
		return summary, fmt.Errorf("test: %w", err)
	}
	summary.Test = &res

	t.ui.Output(fmt.Sprintf("test: accuracy %.4f, f1 %.4f, loss %.4f (%d examples, %d dropped)",
		res.Accuracy, res.F1Micro, res.Loss, res.Examples, res.Dropped))
	t.logger.Info().
		Str("run_id", summary.RunID.String()).
		Float64("test_accuracy", res.Accuracy).
		Float64("test_f1", res.F1Micro).
		Float64("test_loss", res.Loss).
		Int("test_dropped", res.Dropped).
		Msg("test evaluation complete")
	return summary, nil
}

// EncoderInfo identifies the encoder recorded in checkpoints.
func EncoderInfo(cfg *config.Config, enc embedding.Encoder) checkpoint.EncoderInfo {
	return checkpoint.EncoderInfo{
		Provider: cfg.Pretrained.Provider,
		Repo:     cfg.Pretrained.Repo,
		Dims:     enc.Dimensions(),
	}
}

// NewTokenizer loads the WordPiece vocab from pretrained.vocabPath, fetching
// it from the pretrained repo when unset.
func NewTokenizer(ctx context.Context, cfg *config.Config, client *hub.Client, logger zerolog.Logger) (tokenizer.Tokenizer, error) {
	vocab := cfg.Pretrained.VocabPath
	if vocab == "" {
		if client == nil {
			client = hub.NewClient(logger)
		}
		dir, err := client.Fetch(ctx, cfg.Pretrained.Repo, []string{"vocab.txt"}, cfg.Pretrained.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tokenizer for %s: %w", cfg.Pretrained.Repo, err)
		}
		vocab = filepath.Join(dir, "vocab.txt")
	}
	tok, err := tokenizer.New(tokenizer.Config{VocabPath: vocab, MaxSeqLen: cfg.Training.MaxLength})
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", vocab, err)
	}
	return tok, nil
}

// NewEncoder builds the configured encoder. The onnx provider fetches the
// exported model when pretrained.modelPath is unset.
func NewEncoder(ctx context.Context, cfg *config.Config, client *hub.Client, logger zerolog.Logger) (embedding.Encoder, error) {
	provider := strings.ToLower(cfg.Pretrained.Provider)
	modelPath := cfg.Pretrained.ModelPath
	if strings.HasPrefix(provider, "onnx") {
		embedding.SetONNXExecutionProvider(cfg.Pretrained.ONNXDevice)
		embedding.SetONNXBatchSize(cfg.Training.BatchSize)
		eps, err := embedding.ListONNXProviders()
		if err != nil {
			return nil, fmt.Errorf("provider %q unavailable: %w", cfg.Pretrained.Provider, err)
		}
		logger.Debug().Strs("execution_providers", eps).Msg("onnx runtime ready")
		if modelPath == "" {
			if client == nil {
				client = hub.NewClient(logger)
			}
			dir, err := client.Fetch(ctx, cfg.Pretrained.Repo, []string{hub.DefaultONNXFile}, cfg.Pretrained.CacheDir)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch encoder for %s: %w", cfg.Pretrained.Repo, err)
			}
			modelPath = filepath.Join(dir, hub.DefaultONNXFile)
		}
	}
	enc := embedding.NewEncoder(cfg.Pretrained.Provider, cfg.Pretrained.Dims, modelPath)
	logger.Debug().Str("provider", cfg.Pretrained.Provider).Int("dims", enc.Dimensions()).Msg("encoder ready")
	return enc, nil
}
