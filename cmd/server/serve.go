package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"chapel/internal/audit"
	"chapel/internal/authz"
	authzstore "chapel/internal/authz/store"
	"chapel/internal/gate"
	newsletterhandler "chapel/internal/newsletter/handler"
	"chapel/internal/newsletter/sender"
	newsletterservice "chapel/internal/newsletter/service"
	newsletterstore "chapel/internal/newsletter/store"
	"chapel/internal/platform/config"
	"chapel/internal/platform/database"
	"chapel/internal/platform/httpserver"
	"chapel/internal/platform/logger"
	"chapel/internal/platform/metrics"
	"chapel/internal/platform/redis"
	"chapel/internal/posts/cache"
	postshandler "chapel/internal/posts/handler"
	postsservice "chapel/internal/posts/service"
	postsstore "chapel/internal/posts/store"
	"chapel/internal/promote"
	httptransport "chapel/internal/transport/http"
	"chapel/internal/upload"
)

const shutdownTimeout = 20 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
			slog.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply the embedded schema before serving")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Server, log *slog.Logger, migrate bool) error {
	db, err := database.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()
	httpClient := &http.Client{Timeout: cfg.IdentityTimeout}

	verifier, err := buildVerifier(ctx, cfg, httpClient)
	if err != nil {
		return err
	}
	auditor, closeAuditor, err := buildAuditor(cfg, log)
	if err != nil {
		return err
	}
	defer closeAuditor()

	roles := authzstore.NewPostgres(db)
	resolver := authz.NewResolver(roles,
		authz.WithObserver(m),
		authz.WithTracer(otel.Tracer("chapel/authz")),
	)
	g := gate.New(verifier, resolver,
		gate.WithLogger(log),
		gate.WithDecisionRecorder(m),
		gate.WithAuditor(auditor),
		gate.WithTracer(otel.Tracer("chapel/gate")),
	)

	postOpts := []postsservice.Option{postsservice.WithMetrics(m), postsservice.WithLogger(log)}
	if rdb != nil {
		postOpts = append(postOpts, postsservice.WithCache(cache.New(rdb, cfg.PostsCacheTTL, cache.WithLogger(log))))
	}
	posts := postsservice.New(postsstore.NewPostgres(db), postOpts...)

	storage, err := upload.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return err
	}
	defer storage.Close()

	newsletter := newsletterservice.New(newsletterstore.NewPostgres(db), buildSender(cfg, log),
		newsletterservice.WithSendInterval(cfg.NewsletterSendInterval),
		newsletterservice.WithMetrics(m),
		newsletterservice.WithLogger(log),
	)

	promoteOpts := []promote.Option{promote.WithMetrics(m), promote.WithLogger(log)}
	if claims := buildClaimsWriter(cfg, httpClient); claims != nil {
		promoteOpts = append(promoteOpts, promote.WithClaimsWriter(claims))
	}

	checks := map[string]httptransport.HealthCheck{"database": db.PingContext}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:            log,
		Gate:              g,
		Posts:             postshandler.New(posts, log),
		Upload:            upload.New(storage, log, upload.WithMaxBytes(cfg.UploadMaxBytes), upload.WithPublicPath(cfg.UploadPublicPath), upload.WithMetrics(m)),
		Newsletter:        newsletterhandler.New(newsletter, log),
		Promote:           promote.NewHandler(promote.NewService(roles, promoteOpts...), auditor, log),
		PromoteSecret:     cfg.PromoteSecret,
		Metrics:           m.Handler(),
		HealthChecks:      checks,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		RequestTimeout:    cfg.RequestTimeout,
		NewsletterTimeout: cfg.NewsletterSendTimeout,
		Production:        cfg.IsProduction(),
	})

	srv := httpserver.New(cfg.Addr, router, cfg.ReadTimeout, cfg.WriteTimeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting chapel",
			"addr", cfg.Addr,
			"env", cfg.Env,
			"identity_provider", cfg.IdentityProvider,
			"redis", rdb != nil,
			"smtp", cfg.SMTPEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func buildSender(cfg *config.Server, log *slog.Logger) sender.Sender {
	if !cfg.SMTPEnabled() {
		log.Warn("SMTP_HOST not set; newsletters will be logged, not sent")
		return sender.NewLogSender(log)
	}
	smtp := sender.NewSMTP(sender.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	return sender.NewBreaker(smtp, sender.BreakerSettings{}, log)
}

// auditCloser flushes buffered audit events on shutdown.
type auditCloser func()

func buildAuditor(cfg *config.Server, log *slog.Logger) (audit.Publisher, auditCloser, error) {
	logSink := audit.NewLogPublisher(log)
	if len(cfg.AuditKafkaBrokers) == 0 {
		return logSink, func() {}, nil
	}
	kafka, err := audit.NewKafkaPublisher(cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		kafka.Close(ctx)
	}
	return audit.Multi{logSink, kafka}, closeFn, nil
}
