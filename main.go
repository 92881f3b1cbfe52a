package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/stocktracker/backend/src/config"
	"github.com/username/stocktracker/backend/src/database"
	"github.com/username/stocktracker/backend/src/handlers"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/parsers"
	"github.com/username/stocktracker/backend/src/security"
	"github.com/username/stocktracker/backend/src/services"
	"github.com/username/stocktracker/backend/src/store"
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
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
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
	logger.L.Info("Stock tracker backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	userHandler := handlers.NewUserHandler(authService, emailService)
	handlers.InitializeGoogleOAuthConfig()

	txnStore := store.NewSQLiteTransactionStore(database.DB)
	priceService := services.NewPriceService(
		config.Cfg.YahooChartURL,
		config.Cfg.PriceLookupTimeout,
		config.Cfg.PriceLookupConcurrency,
		config.Cfg.QuoteCacheRetention,
	)
	portfolioService := services.NewPortfolioService(
		txnStore, priceService,
		config.Cfg.PortfolioCacheExpiry,
		config.Cfg.CostBasisIncludeFees,
	)
	csvParser := parsers.NewCsvParser(config.Cfg.MaxImportRows, config.Cfg.MaxUploadSizeBytes)
	importService := services.NewImportService(txnStore, priceService, csvParser, portfolioService.InvalidateUser)
	transactionService := services.NewTransactionService(txnStore, priceService, portfolioService.InvalidateUser)

	importHandler := handlers.NewImportHandler(importService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)

	logger.L.Info("Configuring routes...")
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Stock tracker backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", userHandler.RegisterUserHandler)
			r.Post("/login", userHandler.LoginUserHandler)
			r.Post("/refresh", userHandler.RefreshTokenHandler)
			r.Get("/verify-email", userHandler.VerifyEmailHandler)
			r.Get("/google/login", userHandler.HandleGoogleLogin)
			r.Get("/google/callback", userHandler.HandleGoogleCallback)

			r.Group(func(r chi.Router) {
				r.Use(userHandler.AuthMiddleware)
				r.Post("/logout", userHandler.LogoutUserHandler)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(userHandler.AuthMiddleware)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", transactionHandler.HandleList)
				r.Post("/", transactionHandler.HandleCreate)
				r.Get("/export", transactionHandler.HandleExport)
				r.Get("/validate-ticker", transactionHandler.HandleValidateTicker)
				r.Get("/{id}", transactionHandler.HandleGet)
				r.Put("/{id}", transactionHandler.HandleUpdate)
				r.Delete("/{id}", transactionHandler.HandleDelete)

				r.Route("/import", func(r chi.Router) {
					r.Post("/", importHandler.HandleCommit)
					r.Post("/upload", importHandler.HandleUpload)
					r.Post("/suggest-mapping", importHandler.HandleSuggestMapping)
					r.Post("/preview", importHandler.HandlePreview)
				})
			})

			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/", portfolioHandler.HandleGetPortfolio)
				r.Get("/refresh", portfolioHandler.HandleRefreshPortfolio)
				r.Get("/performance", portfolioHandler.HandleGetPerformance)
			})
		})
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(r))

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
