package cmd

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/embedder"
	"scribe/internal/ingest"
)

var (
	flagWorkers int
	flagNoEmbed bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a source tree into the knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		st, err := openProjectStore(root)
		if err != nil {
			return err
		}
		defer st.Close()

		var emb embedder.Embedder
		if !flagNoEmbed {
			emb = embedder.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbeddingDim)
		}

		pipe := ingest.New(st, newAdapter(), emb, logger, flagWorkers)

		fmt.Printf("Ingesting %s...\n", root)
		start := time.Now()
		stats, err := pipe.Run(cmd.Context(), root)
		elapsed := time.Since(start)

		if stats != nil {
			fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
			fmt.Printf("  Files:   %d total, %d ingested, %d skipped\n",
				stats.FilesTotal, stats.FilesIngested, stats.FilesSkipped)
			fmt.Printf("  Chunks:  %d\n", stats.ChunksTotal)
			fmt.Printf("  Symbols: %d\n", stats.SymbolsTotal)
			fmt.Printf("  Edges:   %d\n", stats.EdgesTotal)
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "parallel workers")
	ingestCmd.Flags().BoolVar(&flagNoEmbed, "no-embed", false, "skip chunk embeddings")
	rootCmd.AddCommand(ingestCmd)
}
