package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/config"
	"github.com/mindease/companion/backend/internal/knowledge"
	"github.com/mindease/companion/backend/internal/logging"
)

var (
	matcherFlag     string
	concurrencyFlag int
)

var rootCmd = &cobra.Command{
	Use:   "kbindex",
	Short: "Load the bundled knowledge documents into the vector store used for retrieval.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the bundled knowledge documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, doc := range knowledge.Bundle() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", doc.ID, len(doc.Content))
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed every bundled document and upsert it into chromem or Postgres",
	Long: `Embed every bundled document with the configured GenAI embedding model and
upsert it into the configured matcher. Re-running the command overwrites
documents with the same identifier.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		switch matcherFlag {
		case "":
		case config.MatcherChromem, config.MatcherPostgres:
			cfg.Retrieval.Matcher = matcherFlag
		default:
			return fmt.Errorf("unsupported matcher: %s", matcherFlag)
		}
		if cfg.Retrieval.GenAIAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required to embed documents")
		}

		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		backend, err := knowledge.OpenBackend(cmd.Context(), cfg.Retrieval)
		if err != nil {
			return err
		}
		defer backend.Close()

		docs := knowledge.Bundle()
		n, err := knowledge.IndexDocuments(cmd.Context(), backend.Embedder, backend.Store, docs, concurrencyFlag)
		if err != nil {
			return err
		}

		logger.Info("knowledge indexed",
			zap.Int("documents", n),
			zap.String("matcher", cfg.Retrieval.Matcher),
			zap.String("model", cfg.Retrieval.EmbeddingModel))
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&matcherFlag, "matcher", "", "override RETRIEVAL_MATCHER (chromem or postgres)")
	indexCmd.Flags().IntVar(&concurrencyFlag, "concurrency", knowledge.DefaultIndexConcurrency, "maximum concurrent embedding requests")

	rootCmd.SilenceUsage = true
	rootCmd.AddCommand(listCmd, indexCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
