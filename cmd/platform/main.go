package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/harborhealth/platform/internal/adapters/ehr"
	"github.com/harborhealth/platform/internal/adapters/ehr/legacy"
	"github.com/harborhealth/platform/internal/admin"
	"github.com/harborhealth/platform/internal/ai"
	"github.com/harborhealth/platform/internal/audit"
	"github.com/harborhealth/platform/internal/claims"
	"github.com/harborhealth/platform/internal/clinical"
	"github.com/harborhealth/platform/internal/document"
	"github.com/harborhealth/platform/internal/notification"
	"github.com/harborhealth/platform/internal/patient"
	"github.com/harborhealth/platform/internal/prescription"
	"github.com/harborhealth/platform/internal/recycle"
	"github.com/harborhealth/platform/internal/referral"
	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/database"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/logging"
	"github.com/harborhealth/platform/internal/shared/metrics"
	secmiddleware "github.com/harborhealth/platform/internal/shared/middleware"
)

// App holds the long-lived application dependencies
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	DB     *database.DB
	Bus    *events.Bus
	EHR    ehr.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Server.Env)
	app := &App{Config: cfg, Log: log}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database not available")
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, log); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// EventStoreDB backs domain events and the audit chain. The platform
	// still serves requests without it; audit and event fan-out are off.
	bus, err := events.NewBus(ctx, cfg.EventStore, log)
	if err != nil {
		log.Warn().Err(err).Msg("event store not available, running without event streaming")
	} else {
		app.Bus = bus
		defer bus.Close()
	}

	// Notification delivery. Mock providers stand in when a channel is
	// not configured so queued sends fail visibly instead of silently.
	var emailProvider notification.EmailProvider
	var faxProvider notification.FaxProvider
	if cfg.Email.Enabled {
		emailProvider = notification.NewSendGridProvider(cfg.Email)
	} else {
		emailProvider = notification.NewMockEmailProvider()
	}
	if cfg.Fax.Enabled {
		faxProvider = notification.NewEFaxProvider(cfg.Fax)
	} else {
		faxProvider = notification.NewMockFaxProvider()
	}
	notifier := notification.NewService(emailProvider, faxProvider, notification.DefaultServiceConfig(), log)
	if err := notifier.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("notification service failed to start")
	}
	defer notifier.Stop()

	// Recycle bin with retention purge
	recycleRepo := recycle.NewRepository(db.Pool)
	bin := recycle.NewService(recycleRepo, time.Duration(cfg.Recycle.RetentionDays)*24*time.Hour, log)
	bin.StartPurgeLoop(time.Hour)
	defer bin.Stop()

	// Transcription sessions for dictated notes
	transcriptions := clinical.NewSessionStore(30 * time.Minute)
	transcriptions.StartJanitor(time.Minute)
	defer transcriptions.Stop()

	// Admin login sessions
	sessions := admin.NewSessionStore(admin.DefaultSessionConfig())
	sessions.StartJanitor(time.Minute)
	defer sessions.Stop()

	// Document storage on local disk
	docStorage, err := document.NewStorage(cfg.Storage.DocumentsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("document storage failed to initialize")
	}

	// Repositories
	patientRepo := patient.NewRepository(db.Pool)
	clinicalRepo := clinical.NewRepository(db.Pool)
	referralRepo := referral.NewRepository(db.Pool)
	prescriptionRepo := prescription.NewRepository(db.Pool)
	claimsRepo := claims.NewRepository(db.Pool)
	documentRepo := document.NewRepository(db.Pool)
	adminRepo := admin.NewRepository(db.Pool)

	// Decision support. Without provider credentials the orchestrator
	// still answers homebound assessments through the rule-based scorer.
	var aiClient *ai.Client
	if cfg.AI.Enabled {
		aiClient = ai.NewClient(cfg.AI)
	}
	orchestrator := ai.NewOrchestrator(aiClient, log)
	extractor := ai.NewDocumentExtractor(orchestrator)

	// Handlers
	patientHandler := patient.NewHandler(patientRepo, bin, app.Bus)
	clinicalHandler := clinical.NewHandler(clinicalRepo, transcriptions, app.Bus)
	referralHandler := referral.NewHandler(referralRepo, app.Bus, notifier)
	prescriptionHandler := prescription.NewHandler(prescriptionRepo, app.Bus, notifier)
	claimsHandler := claims.NewHandler(claimsRepo, app.Bus)
	documentHandler := document.NewHandler(documentRepo, docStorage, app.Bus, extractor, cfg.Storage.MaxUploadBytes)
	recycleHandler := recycle.NewHandler(bin, recycleRepo, app.Bus)
	adminHandler := admin.NewHandler(adminRepo, sessions, cfg.Auth, app.Bus)
	aiHandler := ai.NewHandler(orchestrator, patientRepo, clinicalRepo, prescriptionRepo, app.Bus)

	// Audit chain on EventStoreDB, fed by the domain event subscriber
	var auditRepo *audit.Repository
	if app.Bus != nil {
		auditRepo = audit.NewRepository(app.Bus.Client())
		if err := auditRepo.Initialize(ctx); err != nil {
			log.Warn().Err(err).Msg("audit initialization failed")
		}

		auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
		if err := auditSubscriber.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("audit subscriber failed to start")
		}
	}

	// Legacy EHR import
	if cfg.EHR.Enabled {
		legacyCfg := legacy.DefaultLegacyConfig()
		legacyCfg.Host = cfg.EHR.Host
		legacyCfg.Port = cfg.EHR.Port
		legacyCfg.User = cfg.EHR.User
		legacyCfg.Password = cfg.EHR.Password
		legacyCfg.Database = cfg.EHR.Database
		legacyCfg.SSLMode = cfg.EHR.SSLMode
		legacyCfg.PollInterval = cfg.EHR.PollInterval

		adapter := legacy.New(legacyCfg, log)
		if err := adapter.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("legacy EHR adapter failed to start")
		} else {
			app.EHR = adapter
			defer adapter.Stop(context.Background())

			if app.Bus != nil {
				if err := ehr.BridgeEvents(ctx, adapter, app.Bus); err != nil {
					log.Warn().Err(err).Msg("EHR event bridge failed to start")
				}
			}
		}
	}

	authMW := auth.Middleware(cfg.Auth, sessions.Validate)

	rateLimiter := secmiddleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))
	r.Use(rateLimiter.Middleware)
	// Body cap leaves headroom over the document limit for multipart framing
	r.Use(secmiddleware.MaxBodySize(cfg.Storage.MaxUploadBytes + 1<<20))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Login is the only unauthenticated API route
		r.Mount("/auth", adminHandler.AuthRoutes(authMW))

		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Mount("/patients", patientHandler.Routes())
			r.Mount("/notes", clinicalHandler.Routes())
			r.Mount("/referrals", referralHandler.Routes())
			r.Mount("/prescriptions", prescriptionHandler.Routes())
			r.Mount("/pharmacies", prescriptionHandler.PharmacyRoutes())
			r.Mount("/claims", claimsHandler.Routes())
			r.Mount("/documents", documentHandler.Routes())
			r.Mount("/recycle", recycleHandler.Routes())
			r.Mount("/users", adminHandler.Routes())
			r.Mount("/ai", aiHandler.Routes())

			if auditRepo != nil {
				auditHandler := audit.NewHandler(auditRepo)
				r.Mount("/audit", auditHandler.Routes())
			}
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Bool("events", app.Bus != nil).
		Bool("ai", cfg.AI.Enabled).
		Bool("ehr", app.EHR != nil).
		Msg("harborhealth platform listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	<-done
	log.Info().Msg("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "HarborHealth Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		if app.EHR != nil {
			if err := app.EHR.Health(r.Context()); err != nil {
				checks["ehr"] = "not ready: " + err.Error()
			} else {
				checks["ehr"] = "ready"
			}
		} else {
			checks["ehr"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
