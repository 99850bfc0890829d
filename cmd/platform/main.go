package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mercury-plus/platform/internal/adapters/fulfillment"
	"github.com/mercury-plus/platform/internal/adapters/fulfillment/mercurypos"
	"github.com/mercury-plus/platform/internal/dispatch"
	"github.com/mercury-plus/platform/internal/history"
	"github.com/mercury-plus/platform/internal/reminder"
	"github.com/mercury-plus/platform/internal/shared/auth"
	"github.com/mercury-plus/platform/internal/shared/config"
	"github.com/mercury-plus/platform/internal/shared/database"
	"github.com/mercury-plus/platform/internal/shared/events"
	"github.com/mercury-plus/platform/internal/shared/metrics"
	secmiddleware "github.com/mercury-plus/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config     *config.Config
	DB         *database.DB
	Bus        *events.Bus
	Dispatcher *dispatch.Service
	POS        fulfillment.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - fall back to the snapshot store)
	var repo reminder.Repository
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running in limited mode with snapshot persistence...")

		snapshot := filepath.Join(cfg.Server.DataDir, "reminders.json")
		memRepo, err := reminder.NewMemoryRepository(snapshot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open snapshot store: %v\n", err)
			os.Exit(1)
		}
		repo = memRepo
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}

		repo = reminder.NewPostgresRepository(db.Pool)
	}

	// Initialize event bus with KurrentDB (optional - skip if not available)
	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		fmt.Println("Running without the adherence event stream...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("KurrentDB Event Bus initialized")
	}

	// Reminder service
	opts := []reminder.Option{}
	if app.Bus != nil {
		opts = append(opts, reminder.WithBus(app.Bus))
	}
	svc := reminder.NewService(repo, opts...)
	reminderHandler := reminder.NewHandler(svc)

	// Adherence history read model, projected from the event stream
	var historyHandler *history.Handler
	if app.Bus != nil {
		historyLog := history.NewLog()
		subscriber := history.NewSubscriber(historyLog, app.Bus)
		if err := subscriber.Start(ctx); err != nil {
			fmt.Printf("Warning: History subscriber failed to start: %v\n", err)
		} else {
			historyHandler = history.NewHandler(historyLog)
			fmt.Println("Adherence history read model started")
		}
	}

	// Dose alert dispatcher
	var dispatchHandler *dispatch.Handler
	if cfg.Dispatch.Enabled {
		provider := dispatch.NewConsoleProvider("DOSE")
		app.Dispatcher = dispatch.NewService(svc, provider, cfg.Dispatch)
		if err := app.Dispatcher.Start(ctx); err != nil {
			fmt.Printf("Warning: Dispatcher failed to start: %v\n", err)
		} else {
			defer app.Dispatcher.Stop()
			fmt.Printf("Dose dispatcher started (lookahead %s, every %s)\n",
				cfg.Dispatch.Lookahead, cfg.Dispatch.PollInterval)
		}
		dispatchHandler = dispatch.NewHandler(app.Dispatcher, svc, cfg.Dispatch.Lookahead)
	}

	// Mercury POS fulfillment adapter (optional)
	if cfg.Fulfillment.Enabled {
		posCfg := mercurypos.DefaultMercuryPOSConfig()
		posCfg.Host = cfg.Fulfillment.Host
		posCfg.Port = cfg.Fulfillment.Port
		posCfg.User = cfg.Fulfillment.User
		posCfg.Password = cfg.Fulfillment.Password
		posCfg.Database = cfg.Fulfillment.Database
		posCfg.SSLMode = cfg.Fulfillment.SSLMode
		posCfg.PollInterval = cfg.Fulfillment.PollInterval
		posCfg.OrdersTable = cfg.Fulfillment.OrdersTable

		pos, err := mercurypos.New(posCfg)
		if err != nil {
			fmt.Printf("Warning: POS adapter initialization failed: %v\n", err)
		} else if err := pos.Start(ctx); err != nil {
			fmt.Printf("Warning: POS adapter failed to start: %v\n", err)
		} else {
			app.POS = pos
			defer pos.Stop(context.Background())

			bridge := fulfillment.NewBridge(pos, svc)
			if err := bridge.Run(ctx); err != nil {
				fmt.Printf("Warning: Fulfillment bridge failed to start: %v\n", err)
			} else {
				fmt.Println("Mercury POS fulfillment adapter started")
			}
		}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	rateLimiter := secmiddleware.NewIPRateLimiter(20, 40)
	r.Use(rateLimiter.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/", reminderHandler.Routes())

		if dispatchHandler != nil {
			r.Mount("/dispatch", dispatchHandler.Routes())
		}

		if historyHandler != nil {
			r.Mount("/history", historyHandler.Routes())
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("Mercury Plus Adherence Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Storage:        %s\n", map[bool]string{true: "postgres", false: "snapshot (limited mode)"}[app.DB != nil])
	fmt.Printf("Dispatcher:     %v\n", cfg.Dispatch.Enabled)
	fmt.Printf("POS Adapter:    %v\n", cfg.Fulfillment.Enabled)
	fmt.Printf("KurrentDB:      %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Mercury Plus Adherence Platform",
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

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		// Check POS adapter
		if app.POS != nil {
			if err := app.POS.Health(r.Context()); err != nil {
				checks["pos"] = "not ready: " + err.Error()
			} else {
				checks["pos"] = "ready"
			}
		} else {
			checks["pos"] = "not configured"
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

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
