package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shridarpatil/queuebot/internal/config"
	"github.com/shridarpatil/queuebot/internal/database"
	"github.com/shridarpatil/queuebot/internal/handlers"
	"github.com/shridarpatil/queuebot/internal/metrics"
	"github.com/shridarpatil/queuebot/internal/middleware"
	"github.com/shridarpatil/queuebot/internal/websocket"
	"github.com/shridarpatil/queuebot/internal/worker"
	"github.com/shridarpatil/queuebot/pkg/whatsapp"
	"github.com/valyala/fasthttp"
	"github.com/zerodha/fastglue"
	"github.com/zerodha/logf"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "server":
		runServer(os.Args[2:])
	case "worker":
		runWorker(os.Args[2:])
	case "version":
		fmt.Printf("Queuebot %s (built %s)\n", Version, BuildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Queuebot - WhatsApp queue tickets

Usage:
  queuebot <command> [options]

Commands:
  server    Start the webhook and admin API server (with optional embedded workers)
  worker    Start notification workers only
  version   Show version information
  help      Show this help message

Server Options:
  -config string    Path to config file (default "config.toml")
  -migrate          Run database migrations on startup
  -workers int      Number of embedded notification workers (default 1)

Worker Options:
  -config string    Path to config file (default "config.toml")
  -workers int      Number of workers to run (default 1)

Workers only have work when notifications.use_queue is enabled.`)
}

func newLogger(cfg *config.Config, app string) logf.Logger {
	if cfg != nil && cfg.App.Environment == "production" {
		return logf.New(logf.Opts{
			Level:           logf.InfoLevel,
			TimestampFormat: "2006-01-02 15:04:05",
			DefaultFields:   []any{"app", app},
		})
	}
	return logf.New(logf.Opts{
		EnableColor:     true,
		Level:           logf.DebugLevel,
		EnableCaller:    true,
		TimestampFormat: "2006-01-02 15:04:05",
		DefaultFields:   []any{"app", app},
	})
}

func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg), reg
}

// ============================================================================
// SERVER COMMAND
// ============================================================================

func runServer(args []string) {
	serverFlags := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := serverFlags.String("config", "config.toml", "Path to config file")
	migrate := serverFlags.Bool("migrate", false, "Run database migrations")
	numWorkers := serverFlags.Int("workers", 1, "Number of embedded workers (0 to disable)")
	_ = serverFlags.Parse(args)

	lo := newLogger(nil, "queuebot")
	lo.Info("Starting Queuebot server...", "version", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		lo.Fatal("Failed to load config", "error", err)
	}
	lo = newLogger(cfg, "queuebot")

	db, err := database.NewPostgres(&cfg.Database, cfg.App.Debug)
	if err != nil {
		lo.Fatal("Failed to connect to database", "error", err)
	}
	lo.Info("Connected to PostgreSQL")

	if *migrate {
		if err := database.AutoMigrate(db); err != nil {
			lo.Fatal("Migration failed", "error", err)
		}
		if err := database.CreateIndexes(db); err != nil {
			lo.Fatal("Failed to create indexes", "error", err)
		}
		key, err := database.CreateDefaultOrganization(db)
		if err != nil {
			lo.Fatal("Failed to create default organization", "error", err)
		}
		if key != "" {
			lo.Info("Created default organization, store this admin API key now", "api_key", key)
		}
		lo.Info("Migrations complete")
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		lo.Fatal("Failed to connect to Redis", "error", err)
	}
	lo.Info("Connected to Redis")

	m, reg := newMetrics()
	waClient := whatsapp.NewWithTimeout(lo, time.Duration(cfg.WhatsApp.TimeoutSecs)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := websocket.NewHub(lo, m)
	go wsHub.Run(ctx)
	lo.Info("WebSocket hub started")

	app := handlers.NewApp(cfg, db, rdb, waClient, m, wsHub, reg, lo)
	if err := app.StartTicketEventSubscriber(ctx); err != nil {
		lo.Error("Failed to start ticket event subscriber", "error", err)
	}

	g := fastglue.NewGlue()
	g.Before(middleware.RequestLogger())
	g.After(middleware.AccessLog(lo))

	setupRoutes(g, app, lo)

	server := &fasthttp.Server{
		Handler:      corsWrapper(g.Handler()),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		Name:         "Queuebot",
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		lo.Info("Server listening", "address", addr)
		if err := server.ListenAndServe(addr); err != nil {
			lo.Fatal("Server failed", "error", err)
		}
	}()

	var workers []*worker.Worker
	if *numWorkers > 0 && cfg.Notifications.UseQueue {
		for i := 0; i < *numWorkers; i++ {
			w, err := worker.New(cfg, db, rdb, m, lo)
			if err != nil {
				lo.Fatal("Failed to create worker", "error", err, "worker_num", i+1)
			}
			workers = append(workers, w)

			workerNum := i + 1
			go func() {
				lo.Info("Worker started", "worker_num", workerNum)
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lo.Error("Worker error", "error", err, "worker_num", workerNum)
				}
			}()
		}
		lo.Info("Embedded workers started", "count", *numWorkers)
	} else {
		lo.Info("Embedded workers disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lo.Info("Shutting down...")
	cancel()

	for _, w := range workers {
		_ = w.Close()
	}

	if err := server.Shutdown(); err != nil {
		lo.Error("Server shutdown error", "error", err)
	}
	lo.Info("Server stopped")
}

// ============================================================================
// WORKER COMMAND
// ============================================================================

func runWorker(args []string) {
	workerFlags := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := workerFlags.String("config", "config.toml", "Path to config file")
	workerCount := workerFlags.Int("workers", 1, "Number of workers to run")
	_ = workerFlags.Parse(args)

	lo := newLogger(nil, "queuebot-worker")
	lo.Info("Starting Queuebot worker...", "version", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		lo.Fatal("Failed to load config", "error", err)
	}
	lo = newLogger(cfg, "queuebot-worker")

	db, err := database.NewPostgres(&cfg.Database, cfg.App.Debug)
	if err != nil {
		lo.Fatal("Failed to connect to database", "error", err)
	}
	lo.Info("Connected to PostgreSQL")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		lo.Fatal("Failed to connect to Redis", "error", err)
	}
	lo.Info("Connected to Redis")

	m, reg := newMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// the worker has no API; expose its metrics on the configured port
	metricsApp := &handlers.App{Config: cfg, Log: lo, Gatherer: reg}
	g := fastglue.NewGlue()
	g.GET("/metrics", metricsApp.MetricsHandler())
	g.GET("/health", metricsApp.HealthCheck)
	metricsServer := &fasthttp.Server{Handler: g.Handler(), Name: "Queuebot worker"}
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := metricsServer.ListenAndServe(addr); err != nil {
			lo.Error("Metrics server failed", "error", err)
		}
	}()

	workers := make([]*worker.Worker, *workerCount)
	errCh := make(chan error, *workerCount)

	for i := 0; i < *workerCount; i++ {
		w, err := worker.New(cfg, db, rdb, m, lo)
		if err != nil {
			lo.Fatal("Failed to create worker", "error", err, "worker_num", i+1)
		}
		workers[i] = w

		go func(workerNum int) {
			lo.Info("Worker started", "worker_num", workerNum)
			errCh <- w.Run(ctx)
		}(i + 1)
	}

	lo.Info("Workers started", "count", *workerCount)

	select {
	case sig := <-quit:
		lo.Info("Received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			lo.Error("Worker error", "error", err)
			cancel()
		}
	}

	lo.Info("Shutting down workers...")
	for _, w := range workers {
		if w != nil {
			if err := w.Close(); err != nil {
				lo.Error("Error closing worker", "error", err)
			}
		}
	}
	_ = metricsServer.Shutdown()
	lo.Info("Workers stopped")
}

// ============================================================================
// ROUTES
// ============================================================================

func setupRoutes(g *fastglue.Fastglue, app *handlers.App, lo logf.Logger) {
	public := map[string]bool{
		"/health":      true,
		"/ready":       true,
		"/metrics":     true,
		"/api/webhook": true,
		"/ws":          true,
	}

	g.Before(func(r *fastglue.Request) *fastglue.Request {
		path := string(r.RequestCtx.Path())
		if public[path] || !strings.HasPrefix(path, "/api/") {
			return r
		}
		if r = middleware.Auth(app.Config.JWT.Secret, app.DB)(r); r == nil {
			return nil
		}
		if r = middleware.OrganizationContext(app.DB)(r); r == nil {
			return nil
		}
		// calling tickets is operator work, QR links are admin setup
		if strings.HasPrefix(path, "/api/qr-link") {
			return middleware.RequireRole(middleware.RoleAdmin)(r)
		}
		return middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator)(r)
	})

	g.GET("/health", app.HealthCheck)
	g.GET("/ready", app.ReadyCheck)
	g.GET("/metrics", app.MetricsHandler())

	// Provider webhook
	g.POST("/api/webhook", middleware.Recover(lo, app.WebhookHandler))

	// Dashboard realtime (auth via query param)
	g.GET("/ws", app.WebSocketHandler)

	// Admin
	g.POST("/api/services/{id}/call-next", middleware.Recover(lo, app.CallNext))
	g.GET("/api/conversations", middleware.Recover(lo, app.ListConversations))
	g.GET("/api/qr-link", middleware.Recover(lo, app.QRLink))
}

// corsWrapper wraps a handler with CORS support at the fasthttp level
// This ensures CORS headers are set even for auto-handled OPTIONS requests
func corsWrapper(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin == "" {
			origin = "*"
		}

		ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
		ctx.Response.Header.Set("Access-Control-Max-Age", "86400")

		if string(ctx.Method()) == "OPTIONS" {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		next(ctx)
	}
}
