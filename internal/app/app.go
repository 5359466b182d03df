package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/vitisalign/vitisalign-backend/internal/alignment"
	"github.com/vitisalign/vitisalign-backend/internal/clients/openai"
	"github.com/vitisalign/vitisalign-backend/internal/embedding"
	"github.com/vitisalign/vitisalign-backend/internal/handlers"
	"github.com/vitisalign/vitisalign-backend/internal/logger"
	"github.com/vitisalign/vitisalign-backend/internal/referential"
	"github.com/vitisalign/vitisalign-backend/internal/server"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Router   *gin.Engine
	Store    *referential.Store
	Index    *embedding.Index
	Pipeline *alignment.Pipeline
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	store, err := wireStore(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	index, err := wireIndex(context.Background(), log, cfg, openaiClient, store)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reasoner, err := alignment.NewReasoner(log, openaiClient)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init reasoner: %w", err)
	}
	pipeline, err := alignment.NewPipeline(log, openaiClient, index, store, reasoner, cfg.AlignTopK)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	router := server.NewRouter(server.RouterConfig{
		ReferentialHandler: handlers.NewReferentialHandler(store),
		AlignHandler:       handlers.NewAlignHandler(log, pipeline),
		AllowOrigins:       cfg.AllowOrigins,
	})

	return &App{
		Log:      log,
		Cfg:      cfg,
		Router:   router,
		Store:    store,
		Index:    index,
		Pipeline: pipeline,
	}, nil
}

func wireStore(log *logger.Logger, cfg Config) (*referential.Store, error) {
	switch cfg.ReferentialFormat {
	case "raw":
		policy := referential.DefaultMergePolicy()
		if cfg.MergePolicyPath != "" {
			loaded, err := referential.LoadMergePolicy(cfg.MergePolicyPath)
			if err != nil {
				return nil, fmt.Errorf("load merge policy: %w", err)
			}
			policy = loaded
		}
		merged, _, err := referential.LoadRaw(cfg.ReferentialPath, policy, log)
		if err != nil {
			return nil, fmt.Errorf("load raw ontology: %w", err)
		}
		return referential.NewStore(merged)
	case "concepts":
		loaded, _, err := referential.Load(cfg.ReferentialPath, log)
		if err != nil {
			return nil, fmt.Errorf("load referential: %w", err)
		}
		return referential.NewStore(loaded)
	default:
		return nil, fmt.Errorf("unsupported REFERENTIAL_FORMAT %q", cfg.ReferentialFormat)
	}
}

// wireIndex reuses a persisted snapshot when it matches the current
// referential, and rebuilds (then persists) otherwise. Any referential
// change requires a full rebuild; snapshots are never patched.
func wireIndex(ctx context.Context, log *logger.Logger, cfg Config, embedder embedding.Embedder, store *referential.Store) (*embedding.Index, error) {
	if cfg.IndexDir != "" {
		if idx, err := embedding.LoadIndex(cfg.IndexDir); err == nil {
			if len(idx.IDs) == store.Len() {
				log.Info("Embedding index loaded from snapshot", "dir", cfg.IndexDir, "rows", len(idx.IDs))
				return idx, nil
			}
			log.Warn("Index snapshot row count does not match referential; rebuilding",
				"snapshot_rows", len(idx.IDs),
				"referential_concepts", store.Len(),
			)
		} else {
			log.Info("No usable index snapshot; building", "dir", cfg.IndexDir, "reason", err.Error())
		}
	}

	log.Info("Building embedding index...", "concepts", store.Len())
	idx, err := embedding.BuildIndex(ctx, embedder, store.Concepts())
	if err != nil {
		return nil, fmt.Errorf("build embedding index: %w", err)
	}

	if cfg.IndexDir != "" {
		if err := idx.Save(cfg.IndexDir); err != nil {
			log.Warn("Could not persist index snapshot", "dir", cfg.IndexDir, "error", err)
		} else {
			log.Info("Embedding index persisted", "dir", cfg.IndexDir, "rows", len(idx.IDs))
		}
	}
	return idx, nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
