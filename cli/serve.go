package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vimarsh-ai/vimarsh/engine/auth"
	"github.com/vimarsh-ai/vimarsh/engine/auth/role"
	"github.com/vimarsh-ai/vimarsh/engine/budget"
	"github.com/vimarsh-ai/vimarsh/engine/cost"
	"github.com/vimarsh-ai/vimarsh/engine/guidance"
	"github.com/vimarsh-ai/vimarsh/engine/infra/monitoring"
	"github.com/vimarsh-ai/vimarsh/engine/infra/server"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/embedder"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/retriever"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/vectordb"
	"github.com/vimarsh-ai/vimarsh/engine/llm"
	"github.com/vimarsh-ai/vimarsh/engine/personality"
	"github.com/vimarsh-ai/vimarsh/engine/prompt"
	"github.com/vimarsh-ai/vimarsh/engine/security"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/engine/txn"
	"github.com/vimarsh-ai/vimarsh/pkg/config"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the guidance HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.NewLoader().Load(ctx)
	if err != nil {
		return err
	}
	cfg.ApplyMode()

	log := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.Runtime.LogLevel),
		Output: os.Stdout,
		JSON:   cfg.IsProduction(),
	})
	ctx = logger.ContextWithLogger(ctx, log)

	reports := config.Inspect(cfg)
	for _, report := range reports {
		if !report.Valid {
			log.Warn("configuration section degraded", "section", report.Name, "fallback", report.Fallback)
		}
	}
	if failed := config.CriticalFailures(reports); len(failed) > 0 {
		return fmt.Errorf("refusing to start: critical configuration section %q invalid: %s",
			failed[0].Name, failed[0].Fallback)
	}

	docs, storeMode, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer docs.Close(ctx)

	txnLog, err := txn.NewLog(cfg.Storage.LocalDir)
	if err != nil {
		return fmt.Errorf("open transaction log: %w", err)
	}
	acct := cost.NewAccountant(docs, txn.NewManager(docs, txnLog))
	enforcer := budget.NewEnforcer(cfg.Budget, acct)

	registry, err := personality.NewRegistry(cfg.App.DefaultPersonality)
	if err != nil {
		return err
	}
	renderer, err := prompt.NewRenderer()
	if err != nil {
		return err
	}

	index, err := buildIndex(cfg)
	if err != nil {
		return err
	}
	defer index.Close(ctx)
	corpus := knowledge.NewService(index, docs)
	if count, err := corpus.LoadCorpus(ctx); err != nil {
		log.Warn("corpus ingest failed, retrieval starts empty", "error", err)
	} else {
		log.Info("corpus loaded", "chunks", count)
	}
	emb := embedder.New(ctx, cfg.LLM.APIKey.Reveal(), cfg.Vector.Dimension)
	retr, err := retriever.NewService(emb, index)
	if err != nil {
		return err
	}

	var client llm.Client
	if cfg.LLM.APIKey != "" {
		client, err = llm.NewGoogleClient(ctx, &cfg.LLM)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no LLM credentials, serving canned fallbacks")
	}
	pipeline := guidance.NewPipeline(registry, renderer, retr,
		llm.NewDispatcher(client), enforcer, acct, docs, cfg.LLM.Model)

	mon, err := monitoring.NewService(ctx, monitoring.DefaultConfig())
	if err != nil {
		return err
	}
	defer mon.Shutdown(context.Background())
	metrics, err := monitoring.NewGuidanceMetrics(mon.Meter())
	if err != nil {
		return err
	}

	roles := role.NewManager(cfg.Admin.AdminList(), cfg.Admin.SuperAdminList())
	srv := server.NewServer(server.Deps{
		Config:     cfg,
		Reports:    reports,
		Log:        log,
		Auth:       auth.NewService(&cfg.Auth, roles),
		Limiter:    security.NewRateLimiter(&cfg.RateLimit),
		Pipeline:   pipeline,
		Registry:   registry,
		Enforcer:   enforcer,
		Monitoring: mon,
		Metrics:    metrics,
		StoreMode:  storeMode,
	})
	return srv.Start(ctx)
}

// buildStore composes the dual store. A configured remote DSN promotes
// it to the durability source; otherwise local JSON files serve alone.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, string, error) {
	local, err := store.NewLocalStore(cfg.Storage.LocalDir)
	if err != nil {
		return nil, "", err
	}
	if dsn := cfg.Storage.RemoteDSN.Reveal(); dsn != "" {
		remote, err := store.NewRemoteStore(ctx, dsn)
		if err != nil {
			logger.FromContext(ctx).Warn("remote store unreachable, continuing local-only", "error", err)
			dual := store.NewDualStore(store.ModeLocalOnly, local, nil)
			return dual, string(dual.Mode()), nil
		}
		dual := store.NewDualStore(store.ModeRemotePrimary, local, remote)
		return dual, string(dual.Mode()), nil
	}
	dual := store.NewDualStore(store.ModeLocalOnly, local, nil)
	return dual, string(dual.Mode()), nil
}

func buildIndex(cfg *config.Config) (vectordb.Store, error) {
	if cfg.Vector.Provider == "remote" && cfg.Vector.Endpoint != "" {
		return vectordb.NewRemoteStore(cfg.Vector.Endpoint), nil
	}
	return vectordb.NewMemoryStore(filepath.Join(cfg.Storage.LocalDir, "vector-index.json"))
}
