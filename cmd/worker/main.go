package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/labnode/lims-api/internal/config"
	"github.com/labnode/lims-api/internal/email"
	"github.com/labnode/lims-api/internal/repository"
	"github.com/labnode/lims-api/internal/repository/postgres"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/messaging"
	"github.com/labnode/lims-api/pkg/messaging/redis"
	"github.com/labnode/lims-api/pkg/metrics"
	"github.com/labnode/lims-api/pkg/worker"
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

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	resultRepo := postgres.NewResultRepository(baseRepo)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		&baseRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		appLogger,
		metrics.New("lims_worker"),
	)

	emailSvc := email.NewService(cfg.SMTP, appLogger)

	setupHealthCheck(appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Shutting down worker")
		cancel()
	}()

	go notifyOnCriticalAlerts(ctx, broker, resultRepo, emailSvc, appLogger)

	processor.Start(ctx)
}

// notifyOnCriticalAlerts listens for published alert events and mails the
// on-call recipients. Delivery is best-effort; the alert row itself tracks
// the acknowledgement workflow.
func notifyOnCriticalAlerts(
	ctx context.Context,
	broker messaging.Broker,
	results repository.ResultRepository,
	emailSvc email.Service,
	appLogger *logger.Logger,
) {
	ch, err := broker.Subscribe(ctx, messaging.ChannelAlertCreated)
	if err != nil {
		appLogger.Error(err, "Failed to subscribe to alert channel")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			if err := handleAlertMessage(ctx, raw, results, emailSvc); err != nil {
				appLogger.Error(err, "Failed to deliver alert notification")
			}
		}
	}
}

func handleAlertMessage(
	ctx context.Context,
	raw []byte,
	results repository.ResultRepository,
	emailSvc email.Service,
) error {
	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			ResultID uuid.UUID `json:"result_id"`
			Value    string    `json:"value"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	rm, err := results.GetReadModel(ctx, msg.Payload.ResultID)
	if err != nil {
		return err
	}

	return emailSvc.SendCriticalAlert(ctx, rm.Patient.Name, rm.Test.Name, msg.Payload.Value)
}

func setupHealthCheck(appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}
