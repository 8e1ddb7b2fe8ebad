package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/corpus"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the mitigation corpus",
}

var (
	ingestFile        string
	ingestConcurrency int
	ingestBatchSize   int
)

var corpusIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed and upsert mitigation documents from a YAML, JSON, CSV, TSV, or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := checkIngestBackend(cfg.Corpus.Backend); err != nil {
			return err
		}

		env, err := initEnv(ctx, "ingest", envParts{corpus: true})
		if err != nil {
			return err
		}
		defer env.Close()

		docs, err := corpus.LoadSeed(ctx, ingestFile)
		if err != nil {
			return err
		}

		n, err := corpus.Ingest(ctx, env.Corpus, env.Embedder, docs, corpus.IngestOptions{
			Concurrency: ingestConcurrency,
			BatchSize:   ingestBatchSize,
		})
		if err != nil {
			return eris.Wrap(err, "corpus ingest")
		}

		zap.L().Info("corpus ingest complete",
			zap.String("file", ingestFile),
			zap.String("backend", cfg.Corpus.Backend),
			zap.Int64("documents", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents\n", n)
		return nil
	},
}

// checkIngestBackend rejects backends that would drop ingested documents
// when the command exits.
func checkIngestBackend(backend string) error {
	if backend == "memory" {
		return eris.New("corpus ingest: memory backend is not persisted; use postgres or weaviate")
	}
	return nil
}

func init() {
	corpusIngestCmd.Flags().StringVar(&ingestFile, "file", "", "seed file to ingest")
	corpusIngestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 4, "concurrent embedding calls")
	corpusIngestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 100, "documents per upsert")
	_ = corpusIngestCmd.MarkFlagRequired("file")

	corpusCmd.AddCommand(corpusIngestCmd)
	rootCmd.AddCommand(corpusCmd)
}
