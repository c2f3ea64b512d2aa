package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/labnode/lims-api/internal/config"
	alertHandler "github.com/labnode/lims-api/internal/handler/alert"
	resultHandler "github.com/labnode/lims-api/internal/handler/result"
	"github.com/labnode/lims-api/internal/middleware"
	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository/postgres"
	"github.com/labnode/lims-api/internal/router"
	alertService "github.com/labnode/lims-api/internal/service/alert"
	resultService "github.com/labnode/lims-api/internal/service/result"
	"github.com/labnode/lims-api/pkg/auth"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/metrics"
	"github.com/labnode/lims-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	encryptor, err := security.NewAESEncryptorFromHex(cfg.Encryption.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize field encryption")
	}

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	resultRepo := postgres.NewResultRepository(baseRepo)
	orderRepo := postgres.NewOrderRepository(baseRepo)
	refRepo := postgres.NewReferenceRepository(baseRepo)
	reportRepo := postgres.NewReportRepository(baseRepo)
	alertRepo := postgres.NewAlertRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	m := metrics.New("lims_api")

	// Initialize services
	alertSvc := alertService.NewService(alertRepo, encryptor, alertableInterpretations(cfg.Lab), appLogger)
	resultSvc := resultService.NewService(
		&baseRepo,
		resultRepo,
		orderRepo,
		refRepo,
		reportRepo,
		outboxRepo,
		alertSvc,
		encryptor,
		appLogger,
		m,
		resultService.Config{DefaultPercentDeltaLimit: cfg.Lab.DefaultDeltaPercentLimit},
	)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		resultHandler.NewHandler(resultSvc),
		alertHandler.NewHandler(alertSvc),
		router.RouterConfig{
			RateLimit:     rate.Limit(cfg.RateLimit.RPS),
			RateBurst:     cfg.RateLimit.Burst,
			MetricsPrefix: "lims_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		appLogger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	appLogger.Info("Server stopped")
}

func alertableInterpretations(cfg config.LabConfig) []model.Interpretation {
	if len(cfg.AlertableInterpretations) == 0 {
		return alertService.DefaultAlertable()
	}
	out := make([]model.Interpretation, 0, len(cfg.AlertableInterpretations))
	for _, s := range cfg.AlertableInterpretations {
		out = append(out, model.Interpretation(s))
	}
	return out
}
