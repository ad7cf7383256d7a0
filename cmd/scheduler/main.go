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
	"github.com/Vortex-technology1/talko-task-manager/internal/sweep"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// sweeps notify directly, nothing is published
	svc, err := app.Open(ctx, cfg, log, false)
	if err != nil {
		log.WithError(err).Fatal("scheduler: init")
	}
	defer svc.Close()

	if cfg.EventsTransport == config.TransportKafka {
		// parked events go back to the workers from here
		target, err := queue.NewProducer(cfg.KafkaBrokers, cfg.TaskEventsTopic)
		if err != nil {
			log.WithError(err).Fatal("scheduler: init requeue producer")
		}
		defer target.Close()
		rq := queue.NewRequeuer(cfg.KafkaBrokers, cfg.TaskRetryTopic, cfg.RequeueGroupID, target, log)
		defer rq.Close()
		go func() {
			if err := rq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("scheduler: requeue stopped")
			}
		}()
	}

	s := &sweep.Schedule{
		Sweeper:           svc.Sweeper,
		Interval:          cfg.SweepInterval,
		ScheduledInterval: cfg.ScheduledTasksInterval,
		ReportHour:        cfg.ReportHour,
		Location:          cfg.Location,
		Log:               log,
	}
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("scheduler: stopped")
		return
	}
	log.Info("scheduler: stopped")
}
