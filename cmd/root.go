package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scribe/internal/config"
	"scribe/internal/parser"
	"scribe/internal/parser/languages"
	"scribe/internal/store"
)

var (
	flagDB      string
	flagConfig  string
	flagOllama  string
	flagModel   string
	flagChat    string
	flagVerbose bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "scribe",
	Short:         "Grounded, cited technical reports from source trees",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("ollama") {
			cfg.OllamaURL = flagOllama
		}
		if cmd.Flags().Changed("model") {
			cfg.EmbedModel = flagModel
		}
		if cmd.Flags().Changed("chat-model") {
			cfg.ChatModel = flagChat
		}

		if flagVerbose {
			logger, err = zap.NewDevelopment()
		} else {
			zcfg := zap.NewProductionConfig()
			zcfg.OutputPaths = []string{"stderr"}
			logger, err = zcfg.Build()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "store path (default <project>/.scribe/store.db)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&flagOllama, "ollama", "http://localhost:11434", "ollama base URL")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "nomic-embed-text", "embedding model")
	rootCmd.PersistentFlags().StringVar(&flagChat, "chat-model", "qwen3:8b", "generative model")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// storePath picks the explicit --db path or the project default.
func storePath(root string) string {
	if flagDB != "" {
		return flagDB
	}
	return filepath.Join(root, ".scribe", "store.db")
}

// openProjectStore opens (or creates) the persistent store for a tree.
func openProjectStore(root string) (*store.Store, error) {
	dbPath := storePath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return store.Open(dbPath, store.Options{
		Persist:       true,
		AllowExisting: true,
		EmbeddingDim:  cfg.EmbeddingDim,
	})
}

// newAdapter builds the parser with every registered grammar.
func newAdapter() *parser.Adapter {
	registry := parser.NewRegistry()
	languages.RegisterGo(registry)
	languages.RegisterPython(registry)
	languages.RegisterJavaScript(registry)
	languages.RegisterTypeScript(registry)
	return parser.NewAdapter(registry)
}
