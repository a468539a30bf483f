package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/attachments"
	"github.com/opslane/access-portal/internal/audit"
	auditPostgres "github.com/opslane/access-portal/internal/audit/postgres"
	"github.com/opslane/access-portal/internal/auth"
	"github.com/opslane/access-portal/internal/catalog"
	catalogPostgres "github.com/opslane/access-portal/internal/catalog/postgres"
	"github.com/opslane/access-portal/internal/core/events"
	"github.com/opslane/access-portal/internal/department"
	departmentPostgres "github.com/opslane/access-portal/internal/department/postgres"
	"github.com/opslane/access-portal/internal/directory"
	directoryPostgres "github.com/opslane/access-portal/internal/directory/postgres"
	"github.com/opslane/access-portal/internal/grants"
	grantsPostgres "github.com/opslane/access-portal/internal/grants/postgres"
	"github.com/opslane/access-portal/internal/transport/rest"
	"github.com/opslane/access-portal/internal/workflow"
	workflowPostgres "github.com/opslane/access-portal/internal/workflow/postgres"
	"github.com/opslane/access-portal/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	cfg, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := os.Getenv("APP_ENV")
	if cfg.Observability.Logging.Format == "json" {
		env = "production"
	}
	logger.Init(env, cfg.Observability.Logging.Level)

	sqlxDB, err := initDB(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
	if err != nil {
		slog.Error("Failed to initialize orm", "error", err)
		os.Exit(1)
	}

	router, err := buildRouter(cfg, sqlxDB, gormDB)
	if err != nil {
		slog.Error("Failed to wire services", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := sqlxDB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func buildRouter(cfg *internal.Config, sqlxDB *sqlx.DB, gormDB *gorm.DB) (*chi.Mux, error) {
	log := logger.L()

	bus := events.NewEventBus(log)
	auditRepo := auditPostgres.NewAuditRepository(gormDB)
	audit.NewPersister(auditRepo, log).Register(bus)
	recorder := audit.NewRecorder(bus, log)
	auditService := audit.NewService(auditRepo, log)

	catalogService := catalog.NewService(catalogPostgres.NewCatalogRepository(gormDB), log)
	deptService := department.NewService(departmentPostgres.NewDepartmentRepository(gormDB), log)

	grantRepo := grantsPostgres.NewGrantRepository(gormDB)
	reconciler := grants.NewReconciler(grantRepo, deptService, log)

	taskRepo := workflowPostgres.NewTaskRepository(gormDB)

	directoryService := directory.NewService(
		gormDB,
		directoryPostgres.NewUserRepository(gormDB),
		grantRepo,
		reconciler,
		deptService,
		catalogService,
		taskRepo,
		recorder,
		log,
	)

	store, err := attachments.NewLocalStore(cfg.Attachments.Dir, log)
	if err != nil {
		return nil, err
	}

	workflowService := workflow.NewService(
		gormDB,
		taskRepo,
		directoryService,
		grantRepo,
		catalogService,
		deptService,
		store,
		recorder,
		log,
	)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, sqlxDB.DB, rest.Handlers{
		Directory:  directory.NewHandler(directoryService),
		Department: department.NewHandler(deptService),
		Catalog:    catalog.NewHandler(catalogService),
		Workflow:   workflow.NewHandler(workflowService),
		Audit:      audit.NewHandler(auditService),
	}, auth.NewGuard(log), cfg.HR.WebhookKey, cfg.Server.AllowedOrigins, log)

	return router, nil
}

// initDB opens the pgx-backed pool the orm and health checks share.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
