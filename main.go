package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/lotfolio/src/config"
	"github.com/username/lotfolio/src/database"
	"github.com/username/lotfolio/src/handlers"
	"github.com/username/lotfolio/src/logger"
	"github.com/username/lotfolio/src/services"
	"github.com/username/lotfolio/src/storage"
	"golang.org/x/time/rate"
)

func rateLimitMiddleware(limiter *rate.Limiter, next http.Handler) http.Handler {
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
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")
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
	logger.L.Info("Lotfolio backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(config.Cfg.ReportCacheExpiry, config.Cfg.ReportCacheCleanup)
	logger.L.Info("Report cache initialized.")

	logger.L.Info("Initializing stores, services and handlers...")
	transactionStore := storage.NewSQLiteTransactionStore(database.DB)
	lotStore := storage.NewSQLiteLotStore(database.DB)
	securityStore := storage.NewSQLiteSecurityMetadataStore(database.DB)
	adjustmentStore := storage.NewSQLiteAdjustmentStore(database.DB)

	reconcileService := services.NewReconcileService(
		transactionStore, lotStore, securityStore, adjustmentStore,
		config.Cfg.DefaultAccountingMethod, reportCache,
	)

	lotHandler := handlers.NewLotHandler(reconcileService, config.Cfg.DefaultAccountingMethod)
	portfolioHandler := handlers.NewPortfolioHandler(reconcileService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/transactions", lotHandler.HandleImportTransactions)
	apiRouter.HandleFunc("POST /api/reconcile", lotHandler.HandleReconcile)
	apiRouter.HandleFunc("POST /api/snapshot", lotHandler.HandleSnapshot)
	apiRouter.HandleFunc("POST /api/snapshot/enrich", portfolioHandler.HandleEnrichSnapshot)
	apiRouter.HandleFunc("POST /api/sales", lotHandler.HandleApplySale)
	apiRouter.HandleFunc("POST /api/splits", lotHandler.HandleApplySplit)
	apiRouter.HandleFunc("POST /api/mergers", lotHandler.HandleApplyMerger)
	apiRouter.HandleFunc("POST /api/dividends", lotHandler.HandleRecordDividend)
	apiRouter.HandleFunc("POST /api/ticker-change", lotHandler.HandleTickerChange)
	apiRouter.HandleFunc("POST /api/portfolio/changes", portfolioHandler.HandleAnalyzeChanges)
	apiRouter.HandleFunc("GET /api/lots", lotHandler.HandleGetLots)
	apiRouter.HandleFunc("GET /api/holdings", lotHandler.HandleGetHoldings)
	apiRouter.HandleFunc("GET /api/adjustments", lotHandler.HandleGetAdjustments)
	apiRouter.HandleFunc("GET /api/corporate-actions", lotHandler.HandleGetCorporateActions)
	apiRouter.HandleFunc("DELETE /api/account", lotHandler.HandlePurgeAccount)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Lotfolio backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	limiter := rate.NewLimiter(rate.Limit(config.Cfg.RequestsPerSecond), config.Cfg.RequestBurst)
	finalHandler := enableCORS(rateLimitMiddleware(limiter, rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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
