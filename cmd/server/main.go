// Command server wires the document core: audit log, templates, generation,
// signing, and workflows behind one HTTP surface. Business logic lives in the
// internal services; main only assembles dependencies and owns the lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"vellum/internal/audit"
	auditHandler "vellum/internal/audit/handler"
	auditMemory "vellum/internal/audit/store/memory"
	auditPostgres "vellum/internal/audit/store/postgres"
	"vellum/internal/document"
	documentHandler "vellum/internal/document/handler"
	documentMemory "vellum/internal/document/store/memory"
	documentPostgres "vellum/internal/document/store/postgres"
	"vellum/internal/identity"
	"vellum/internal/pdf"
	"vellum/internal/platform/config"
	"vellum/internal/platform/httpserver"
	"vellum/internal/platform/logger"
	"vellum/internal/platform/metrics"
	"vellum/internal/platform/middleware"
	platformRedis "vellum/internal/platform/redis"
	"vellum/internal/storage"
	storageS3 "vellum/internal/storage/s3"
	"vellum/internal/template"
	templateHandler "vellum/internal/template/handler"
	templateMemory "vellum/internal/template/store/memory"
	templatePostgres "vellum/internal/template/store/postgres"
	"vellum/internal/workflow"
	workflowHandler "vellum/internal/workflow/handler"
	workflowMemory "vellum/internal/workflow/store/memory"
	workflowPostgres "vellum/internal/workflow/store/postgres"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: postgres when a database is configured, in-process otherwise.
	var (
		auditStore    audit.Store
		templateStore template.Store
		documentStore document.Store
		instanceStore workflow.InstanceStore
		taskStore     workflow.TaskStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		auditStore = auditPostgres.New(db)
		templateStore = templatePostgres.New(db)
		documentStore = documentPostgres.New(db)
		instanceStore = workflowPostgres.NewInstanceStore(db)
		taskStore = workflowPostgres.NewTaskStore(db)
		log.Info("using postgres stores")
	} else {
		auditStore = auditMemory.NewStore()
		templateStore = templateMemory.NewStore()
		documentStore = documentMemory.NewStore()
		instanceStore = workflowMemory.NewInstanceStore()
		taskStore = workflowMemory.NewTaskStore()
		log.Warn("no database configured, using in-memory stores")
	}

	// Binary storage: S3 when a bucket is configured.
	var blobs storage.BlobStore
	if cfg.Storage.S3Bucket != "" {
		s3Store, err := storageS3.New(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Region)
		if err != nil {
			return err
		}
		blobs = s3Store
		log.Info("using S3 blob storage", "bucket", cfg.Storage.S3Bucket)
	} else {
		blobs = storage.NewMemory()
		log.Warn("no blob bucket configured, using in-memory storage")
	}

	// Sign lock: redis-backed across processes, in-process otherwise.
	var locker document.Locker
	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = document.NewRedisLocker(redisClient.Client, cfg.SignLockTTL)
		log.Info("using redis sign locks")
	} else {
		locker = document.NewMemoryLocker()
		log.Warn("no redis configured, sign locks are process-local")
	}

	directory := identity.NewMemoryDirectory()
	assets := identity.NewMemorySignatureAssets()
	engine := pdf.NewEngine()
	renderer := pdf.NewTextRenderer()

	auditSvc := audit.NewService(auditStore, log)
	templateSvc := template.NewService(templateStore, blobs, template.TextExtractor{}, engine, auditSvc, log, nil)
	generator := document.NewGenerator(templateSvc, documentStore, blobs, renderer, directory, auditSvc, m, log)
	documentSvc := document.NewService(documentStore, blobs, assets, directory, engine, engine, locker, auditSvc, m, log)
	workflowSvc := workflow.NewService(instanceStore, taskStore, directory, workflow.LogNotifier{Log: log}, auditSvc, m, log)

	router := newRouter(log, auditSvc, templateSvc, generator, documentSvc, workflowSvc)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		// The audit inbox drains until shutdown; its exit is expected.
		if err := auditSvc.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func newRouter(
	log *slog.Logger,
	auditSvc *audit.Service,
	templateSvc *template.Service,
	generator *document.Generator,
	documentSvc *document.Service,
	workflowSvc *workflow.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.ActorContext)
	r.Use(middleware.Logger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		auditHandler.New(auditSvc, log).Register(api)
		templateHandler.New(templateSvc, log).Register(api)
		documentHandler.New(generator, documentSvc, log).Register(api)
		workflowHandler.New(workflowSvc, log).Register(api)
	})
	return r
}
