package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/vimarsh-ai/vimarsh/engine/knowledge"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// IngestCmd rebuilds the vector index from the stored corpus. The serve
// command does this at startup; this exists for operating on a stopped
// instance after the corpus files change.
func IngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the vector index from the stored corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context())
		},
	}
}

func runIngest(ctx context.Context) error {
	cfg, err := config.NewLoader().Load(ctx)
	if err != nil {
		return err
	}
	log := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.Runtime.LogLevel),
		Output: os.Stdout,
	})
	ctx = logger.ContextWithLogger(ctx, log)

	local, err := store.NewLocalStore(cfg.Storage.LocalDir)
	if err != nil {
		return err
	}
	defer local.Close(ctx)
	index, err := buildIndex(cfg)
	if err != nil {
		return err
	}
	defer index.Close(ctx)

	count, err := knowledge.NewService(index, local).Reload(ctx)
	if err != nil {
		return err
	}
	log.Info("corpus reloaded", "chunks", count)
	return nil
}
