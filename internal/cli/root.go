// Package cli provides the command-line interface for memcore.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arialive/memcore/internal/assemble"
	"github.com/arialive/memcore/internal/config"
	"github.com/arialive/memcore/internal/conflict"
	"github.com/arialive/memcore/internal/db"
	"github.com/arialive/memcore/internal/embedding"
	"github.com/arialive/memcore/internal/extract"
	"github.com/arialive/memcore/internal/llm"
	"github.com/arialive/memcore/internal/memory"
	"github.com/arialive/memcore/internal/metrics"
	"github.com/arialive/memcore/internal/procedural"
	"github.com/arialive/memcore/internal/reflection"
	"github.com/arialive/memcore/internal/stream"
	"github.com/arialive/memcore/internal/tokens"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configFile string
	platform   string
	verbose    bool

	// Global config, logger and db client
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	dbClient *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "memcore",
	Short: "Conversational memory for a live AI companion",
	Long: `Memcore is the memory subsystem of a voice-driven AI companion:
it extracts durable facts from conversation turns, resolves conflicts
between memories, reflects over them into higher-level insights, and
assembles a token-budgeted context for each model call.

Memories live in a SurrealDB knowledge graph with hybrid BM25 + vector
retrieval.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for commands that do not touch the store
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "stats" {
			return nil
		}

		cfg = config.Load()
		if configFile != "" {
			var err error
			cfg, err = config.LoadFile(cfg, configFile)
			if err != nil {
				return fmt.Errorf("load config file: %w", err)
			}
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx, cfg.EmbeddingDimension); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// buildService wires the full memory stack from the loaded config.
// The returned model is nil when no LLM provider is configured.
func buildService() (*memory.Service, *llm.Model, error) {
	model, err := llm.NewModel(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init model: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.EmbeddingModel != "" {
		oc, err := embedding.NewOllamaClient(cfg.EmbeddingModel, cfg.EmbeddingDimension)
		if err != nil {
			logger.Warn("embedder unavailable, retrieval falls back to text search", "error", err)
		} else {
			embedder = oc
		}
	}

	var extractor *extract.MemoryExtractor
	if cfg.RegexExtraction || cfg.LLMExtraction {
		extractor, err = extract.NewMemoryExtractor(extract.Config{
			BatchSize:     cfg.ExtractionBatchSize,
			MinImportance: cfg.MinImportance,
			MinConfidence: cfg.MinConfidence,
			RegexEnabled:  cfg.RegexExtraction,
			LLMEnabled:    cfg.LLMExtraction,
		}, model, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init extractor: %w", err)
		}
	}

	counter, err := tokens.NewTiktoken("cl100k_base")
	if err != nil {
		logger.Warn("tokenizer unavailable, using approximate counting", "error", err)
		counter = tokens.Approximate
	}

	var similarity conflict.SimilarityFn
	if embedder != nil {
		similarity = embedderSimilarity(embedder)
	}

	collector := metrics.NewCollector()
	if model != nil {
		model.SetCollector(collector)
	}

	svc, err := memory.NewService(memory.Config{
		Platform: platform,
	}, memory.Deps{
		Store:     dbClient,
		Extractor: extractor,
		Detector:  conflict.NewDetector(similarity),
		Reflector: reflection.NewEngine(reflection.Config{
			MinGroupSize: cfg.ReflectionMinGroup,
			MaxNodeAge:   cfg.ReflectionMaxAge,
		}, model, logger),
		Procedural: procedural.NewMemory(),
		Stream: stream.NewContext(stream.Config{
			MaxEvents:     cfg.StreamMaxEvents,
			ViewerTimeout: cfg.StreamViewerTimeout,
		}),
		Assembler: assemble.New(assemble.Config{
			TokenBudget:     cfg.TokenBudget,
			ResponseReserve: cfg.ResponseReserve,
		}, counter),
		Embedder:  embedder,
		Collector: collector,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init memory service: %w", err)
	}
	return svc, model, nil
}

// embedderSimilarity scores memory contents by embedding cosine,
// memoizing vectors since conflict checks compare one new content
// against many existing ones. Embed failures fall back to token
// overlap for that pair.
func embedderSimilarity(e embedding.Embedder) conflict.SimilarityFn {
	cache := make(map[string][]float32)
	embed := func(text string) []float32 {
		if v, ok := cache[text]; ok {
			return v
		}
		v, err := e.Embed(context.Background(), text)
		if err != nil {
			v = nil
		}
		cache[text] = v
		return v
	}

	return func(a, b string) float64 {
		va, vb := embed(a), embed(b)
		if va == nil || vb == nil {
			return conflict.TokenOverlap(a, b)
		}
		return embedding.Cosine(va, vb)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file overlaying the environment")
	rootCmd.PersistentFlags().StringVar(&platform, "platform", "local", "platform tag for sessions and entities")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(memoriesCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(statsCmd)
}
