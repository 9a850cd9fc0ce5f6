package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scribe/internal/claims"
	"scribe/internal/embedder"
	"scribe/internal/ingest"
	"scribe/internal/llm"
	"scribe/internal/report"
	"scribe/internal/retrieval"
)

var (
	flagPrompt       string
	flagOut          string
	flagMaxIters     int
	flagWriteWorkers int
	flagWriteNoEmbed bool
)

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Ingest a tree and write a cited report for a prompt",
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
		if !flagWriteNoEmbed {
			emb = embedder.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbeddingDim)
		}
		client := llm.NewClient(llm.NewOllamaChat(cfg.OllamaURL, cfg.ChatModel))

		engine := retrieval.New(st, emb, logger)
		pipe := ingest.New(st, newAdapter(), emb, logger, flagWriteWorkers)
		summarizer := report.NewSummarizer(st, client, logger)
		checker := claims.NewChecker(st, engine, client, logger)

		maxIters := flagMaxIters
		if !cmd.Flags().Changed("max-iters") {
			maxIters = cfg.MaxIters
		}
		orch := report.NewOrchestrator(st, pipe, engine, summarizer, client, checker,
			cfg.GateThresholds(), maxIters, logger)

		reportMD, rv, err := orch.Run(cmd.Context(), root, flagPrompt)
		var gateErr *report.GateError
		if errors.As(err, &gateErr) {
			fmt.Fprintf(os.Stderr, "gate failed: %v\n", gateErr)
		} else if err != nil {
			return err
		}

		if flagOut != "" {
			if werr := os.WriteFile(flagOut, []byte(reportMD), 0o644); werr != nil {
				return werr
			}
			fmt.Printf("Wrote report %d to %s (coverage %.2f, citations %.2f)\n",
				rv.ID, flagOut, rv.CoverageScore, rv.CitationScore)
		} else {
			fmt.Println(reportMD)
		}
		return err
	},
}

func init() {
	writeCmd.Flags().StringVar(&flagPrompt, "prompt", "", "report brief (required)")
	writeCmd.Flags().StringVar(&flagOut, "out", "", "write the report to a file instead of stdout")
	writeCmd.Flags().IntVar(&flagMaxIters, "max-iters", 3, "maximum drafting attempts")
	writeCmd.Flags().IntVar(&flagWriteWorkers, "workers", 0, "parallel ingest workers (default one per CPU)")
	writeCmd.Flags().BoolVar(&flagWriteNoEmbed, "no-embed", false, "skip embeddings, lexical retrieval only")
	writeCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(writeCmd)
}
