package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/termination-portal/internal/adapters/http"
	"github.com/kirillkom/termination-portal/internal/bootstrap"
	"github.com/kirillkom/termination-portal/internal/config"
	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/observability/logging"
	"github.com/kirillkom/termination-portal/internal/observability/metrics"
)

const service = "termination-api"

func main() {
	issueSubject := flag.String("issue-staff-token", "", "print a staff token for this subject and exit")
	issueRole := flag.String("role", string(domain.RoleAgent), "role of the issued staff token (agent|admin)")
	issueTTL := flag.Duration("ttl", 12*time.Hour, "lifetime of the issued staff token")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	auth := httpadapter.NewStaffAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	if *issueSubject != "" {
		token, err := auth.Issue(domain.Actor{ID: *issueSubject, Role: domain.ActorRole(*issueRole)}, *issueTTL, time.Now())
		if err != nil {
			logger.Error("issue_staff_token_failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	app, err := bootstrap.New(ctx, cfg, "api", logger, registry)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(ctx, httpadapter.Services{
		Cases:      app.Cases,
		Intake:     app.Intake,
		Signatures: app.Signatures,
		Generator:  app.Generator,
		Portal:     app.Portal,
	}, auth, httpadapter.Options{
		Service:              service,
		MaxInFlight:          cfg.HTTPMaxInFlight,
		PortalRateLimitRPS:   cfg.PortalRateLimitRPS,
		PortalRateLimitBurst: cfg.PortalRateLimitBurst,
		MaxUploadBytes:       int64(cfg.MaxUploadBytes),
		Metrics:              metrics.NewHTTPServerMetrics(service, registry),
		Logger:               logger,
	})
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("api_listen_failed", "addr", server.Addr, "error", err)
		os.Exit(1)
	}
	if cfg.HTTPMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.HTTPMaxConnections)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listening", "addr", server.Addr, "max_connections", cfg.HTTPMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("api_server_failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
