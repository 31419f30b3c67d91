package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/pulseboard/platform/pkg/appstore/store"
	appsync "github.com/pulseboard/platform/pkg/appstore/sync"
	"github.com/pulseboard/platform/pkg/common/config"
	"github.com/pulseboard/platform/pkg/common/database"
	"github.com/pulseboard/platform/pkg/common/kafka"
	"github.com/pulseboard/platform/pkg/common/logger"
	"github.com/pulseboard/platform/pkg/gateway/auth"
	"github.com/pulseboard/platform/pkg/gateway/httpclient"
	"github.com/pulseboard/platform/pkg/gateway/middleware"
	"github.com/pulseboard/platform/pkg/gateway/routes"
	"github.com/pulseboard/platform/pkg/identity"
	"github.com/pulseboard/platform/pkg/observability/metrics"
)

func main() {
	logger.Init("dashboard-service")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to postgres")
	}

	repo := store.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate appstore tables")
	}

	identityRepo := identity.NewRepository(db)
	if err := identityRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate identity tables")
	}
	identityService := identity.NewService(identityRepo)

	tokenSigner, err := auth.NewJWTManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionAudience, cfg.SessionTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("Session auth misconfigured")
	}

	oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
	if err != nil {
		logger.Log.WithError(err).Warn("OIDC login not configured, local login only")
		oidcAuth = nil
	}

	redisClient := database.GetRedis()
	producer := kafka.NewProducer(cfg.KafkaSyncTopic)
	defer producer.Close()

	coordinator := appsync.NewCoordinator(repo, appsync.Credentials{
		IssuerID:     cfg.ASCIssuerID,
		KeyID:        cfg.ASCKeyID,
		PrivateKey:   cfg.ASCPrivateKey,
		VendorNumber: cfg.ASCVendorNumber,
	}, cfg.ASCBaseURL, httpclient.New(cfg.ASCHTTPTimeout))

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(50, 100))
	router.Use(middleware.BodyLimit(1 << 20))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(r.Context()) != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods("GET")

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.NewAuthHandler(identityService, tokenSigner, oidcAuth).Register(apiRouter)

	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(tokenSigner))
	routes.NewAppStoreHandler(coordinator, repo, redisClient, producer, cfg.MetricsCacheTTL).Register(protected)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Dashboard service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down dashboard service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Warn("Failed closing postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Warn("Failed closing redis")
	}

	logger.Log.Info("Dashboard service stopped")
}
