package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/database"
	"github.com/username/navhub/src/handlers"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/normalizer"
	"github.com/username/navhub/src/qualitative"
	"github.com/username/navhub/src/services"
	"github.com/username/navhub/src/sources"
	"github.com/username/navhub/src/store"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("NAVHub server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing stats cache...")
	statsCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	navStore := store.NewNAVStore(database.DB)
	seriesStore := store.NewSeriesStore(database.DB)

	masterManager := qualitative.NewManager(config.Cfg.MasterFilePath, config.Cfg.BackupKeepCount, seriesStore)
	if master, err := masterManager.Load(); err != nil {
		logger.L.Warn("Master qualitative file not loadable at startup; series data will be empty until a commit",
			"path", config.Cfg.MasterFilePath, "error", err)
	} else {
		logger.L.Info("Master qualitative file loaded", "series", len(master.Rows), "version", master.Version)
	}

	fetchers, err := sources.NewFetchers(config.Cfg)
	if err != nil {
		logger.L.Error("Failed to initialize source fetchers", "error", err)
		os.Exit(1)
	}
	logger.L.Info("Source fetchers initialized", "mode", config.Cfg.SourceMode, "count", len(fetchers))

	emailService := services.NewEmailService()
	// All current emitters publish the consolidated drop layout, so the
	// mapping set carries no per-source overrides.
	mappings := normalizer.MappingSet{}
	navService := services.NewNAVService(
		config.Cfg, fetchers, mappings,
		navStore, seriesStore, emailService, statsCache,
	)

	navHandler := handlers.NewNAVHandler(navService)
	qualitativeHandler := handlers.NewQualitativeHandler(masterManager, navService)
	statsHandler := handlers.NewStatsHandler(navService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/navs/ingest", navHandler.HandleIngest)
	apiRouter.HandleFunc("GET /api/navs", navHandler.HandleGetNAVs)
	apiRouter.HandleFunc("POST /api/reports/render", navHandler.HandleRender)
	apiRouter.HandleFunc("POST /api/reports/distribute", navHandler.HandleDistribute)
	apiRouter.HandleFunc("POST /api/qualitative/compare", qualitativeHandler.HandleCompare)
	apiRouter.HandleFunc("POST /api/qualitative/commit", qualitativeHandler.HandleCommit)
	apiRouter.HandleFunc("GET /api/stats", statsHandler.HandleGetStats)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "NAVHub backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
