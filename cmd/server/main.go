package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fntelecomllc/dnsguard/internal/config"
	"github.com/fntelecomllc/dnsguard/internal/dnsresolver"
	"github.com/fntelecomllc/dnsguard/internal/httpapi"
	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/mailer"
	"github.com/fntelecomllc/dnsguard/internal/middleware"
	"github.com/fntelecomllc/dnsguard/internal/observability"
	"github.com/fntelecomllc/dnsguard/internal/scheduler"
	"github.com/fntelecomllc/dnsguard/internal/store/postgres"
	"github.com/fntelecomllc/dnsguard/internal/validation"
)

func main() {
	log.Println("Starting dnsguard server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: load configuration: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Observability.LogLevel))

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("FATAL: connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.PoolConnectionLimit)
	db.SetMaxIdleConns(cfg.Database.PoolConnectionLimit)
	db.SetConnMaxLifetime(30 * time.Minute)
	log.Println("Connected to PostgreSQL.")

	requestStore := postgres.New(db, cfg.Database.QueryRetryCount, cfg.Database.QueryRetryDelayMs)

	rawResolver := dnsresolver.New(cfg.DNS.Servers, cfg.DNS.Timeout())
	resolver := dnsresolver.NewCaching(rawResolver, 10*time.Second, time.Minute)
	engine := validation.New(resolver, cfg.Profile)

	var notifier mailer.Notifier
	if cfg.Email.SMTPHost != "" {
		notifier = mailer.NewSMTPNotifier(
			cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPass,
			cfg.Email.SMTPFrom, cfg.Email.AdminEmailTo, cfg.Email.SMTPSecure, cfg.Email.BodyMaxLength,
		)
		log.Println("SMTP notifier configured.")
	} else {
		notifier = mailer.NoopNotifier{}
		log.Println("No SMTP_HOST configured; notifications are no-ops.")
	}

	metrics := observability.NewMetrics()

	traceKind := observability.ExporterNone
	switch cfg.Observability.TraceExporter {
	case "jaeger":
		traceKind = observability.ExporterJaeger
	case "zipkin":
		traceKind = observability.ExporterZipkin
	}
	shutdownTracer, err := observability.InitTracer("dnsguard", traceKind, cfg.Observability.TraceExporterURL)
	if err != nil {
		log.Fatalf("FATAL: init tracer: %v", err)
	}

	sched := scheduler.New(requestStore, engine, notifier, logger, metrics, scheduler.Config{
		PollInterval:     cfg.DNS.PollInterval(),
		MaxActiveJobs:    cfg.Scheduler.MaxActiveJobs,
		JobMaxAge:        time.Duration(cfg.DNS.JobMaxAgeHours) * time.Hour,
		StartupJitterMax: time.Duration(cfg.Scheduler.ResumeStartupJitterMs) * time.Millisecond,
		ResultMaxBytes:   cfg.Scheduler.ResultJSONMaxBytes,
	})

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sched.ResumeFromStore(bootCtx); err != nil {
		log.Printf("Warning: failed to resume pending jobs from store: %v", err)
	}
	bootCancel()
	log.Println("Scheduler resumed pending jobs.")

	rateLimiter := middleware.NewRateLimiter(metrics)

	intakeHandler := httpapi.NewIntakeHandler(
		requestStore, sched, engine, notifier, logger,
		time.Duration(cfg.Scheduler.TargetCooldownSeconds)*time.Second,
		time.Duration(cfg.DNS.JobMaxAgeHours)*time.Hour,
		cfg.Scheduler.ResultJSONMaxBytes,
	)
	queryHandler := httpapi.NewQueryHandler(
		requestStore, engine, cfg.Profile, logger, cfg.Security.CheckDNSToken,
		time.Duration(cfg.Scheduler.CheckDNSMinIntervalSecs)*time.Second,
		cfg.Scheduler.ResultJSONMaxBytes,
	)
	healthHandler := httpapi.NewHealthHandler(db)

	router := httpapi.NewRouter(intakeHandler, queryHandler, healthHandler, rateLimiter, metrics, cfg.Observability.MetricsEnabled)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: ListenAndServe: %v", err)
		}
	}()
	log.Printf("Server listening on %s", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	sched.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("Warning: tracer shutdown: %v", err)
	}

	log.Println("Server exited gracefully.")
}
