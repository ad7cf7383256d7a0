package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Vortex-technology1/talko-task-manager/internal/app"
	"github.com/Vortex-technology1/talko-task-manager/internal/config"
	"github.com/Vortex-technology1/talko-task-manager/internal/queue"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := app.NewLogger(cfg.LogLevel)

	if cfg.EventsTransport != config.TransportKafka {
		// the api delivers events itself in this mode
		log.WithField("events", cfg.EventsTransport).Fatal("worker: nothing to consume, EVENTS_TRANSPORT must be kafka")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.Open(ctx, cfg, log, false)
	if err != nil {
		log.WithError(err).Fatal("worker: init")
	}
	defer svc.Close()

	retry, err := queue.NewProducer(cfg.KafkaBrokers, cfg.TaskRetryTopic)
	if err != nil {
		log.WithError(err).Fatal("worker: init retry producer")
	}
	defer retry.Close()

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.TaskEventsTopic, cfg.KafkaGroupID, log).
		WithRetry(retry, cfg.EventRetryDelays)
	defer consumer.Close()

	log.WithFields(logrus.Fields{
		"topic": cfg.TaskEventsTopic, "retryTopic": cfg.TaskRetryTopic, "group": cfg.KafkaGroupID, "brokers": cfg.KafkaBrokers,
	}).Info("worker: started")

	if err := consumer.Run(ctx, svc.Worker); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("worker: stopped")
		return
	}
	log.Info("worker: stopped")
}
