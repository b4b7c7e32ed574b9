package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"misalud-backend/internal/analyses"
	"misalud-backend/internal/chat"
	"misalud-backend/internal/enrich"
	"misalud-backend/internal/inference"
	"misalud-backend/internal/orchestrator"
	"misalud-backend/internal/prices"
	"misalud-backend/internal/registry"
	"misalud-backend/internal/shared/config"
	"misalud-backend/internal/shared/metrics"
	"misalud-backend/internal/shared/server/middleware"
	"misalud-backend/internal/shared/server/respond"
	"misalud-backend/internal/shared/storage/db"
	localstore "misalud-backend/internal/shared/storage/object/local"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	// Dependencies
	store := localstore.New(cfg.UploadDir)
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			dbConn = migrateOrClose(context.Background(), dbConn, db.RunMigrations)
		}
		sqlDB = dbConn
	}

	backends := NewBackendRegistry(cfg)
	pipeline := orchestrator.New(backends, NewEnricher(cfg))

	var analysisRepo analyses.Repo
	if sqlDB != nil {
		analysisRepo = &analyses.PGRepo{DB: sqlDB}
	} else {
		analysisRepo = analyses.NewMemoryRepo()
	}
	analysisSvc := &analyses.Service{
		Store:    store,
		Repo:     analysisRepo,
		Pipeline: pipeline,
		Chat:     chat.New(backends),
	}
	analysisHandler := analyses.NewHandler(analysisSvc)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	analysisHandler.RegisterRoutes(api)

	return r
}

// migrateOrClose runs migrations on a fresh connection, closing it and
// returning nil when they fail so callers fall back to the memory repo.
func migrateOrClose(ctx context.Context, dbConn *sql.DB, migrate func(context.Context, *sql.DB) error) *sql.DB {
	if err := migrate(ctx, dbConn); err != nil {
		log.Printf("failed to run migrations, falling back to memory: %v", err)
		dbConn.Close()
		return nil
	}
	return dbConn
}

// NewBackendRegistry registers the configured inference backends.
func NewBackendRegistry(cfg config.Config) *inference.Registry {
	backends := inference.NewRegistry()
	backends.Register("remote", func() (inference.Backend, error) {
		return inference.NewRemoteBackend(cfg.RemoteInferURL, cfg.RemoteInferToken)
	})
	backends.Register("local", func() (inference.Backend, error) {
		return inference.NewLocalBackend(cfg.LocalInferURL, cfg.LocalInferModel)
	})
	return backends
}

// NewEnricher builds the CUM/SISMED enricher from configuration.
func NewEnricher(cfg config.Config) *enrich.Enricher {
	return enrich.New(
		registry.NewClient(cfg.CUMBaseURL, cfg.SocrataToken),
		prices.NewClient(cfg.SISMEDBaseURL, cfg.SocrataToken),
	)
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
