package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Vortex-technology1/talko-task-manager/internal/app"
	"github.com/Vortex-technology1/talko-task-manager/internal/config"
	httpapi "github.com/Vortex-technology1/talko-task-manager/internal/http"
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

	svc, err := app.Open(ctx, cfg, log, true)
	if err != nil {
		log.WithError(err).Fatal("api: init")
	}
	defer svc.Close()

	a := &httpapi.App{
		Store:         svc.Store,
		Tasks:         svc.Tasks,
		Engine:        svc.Engine,
		Sweeper:       svc.Sweeper,
		Bot:           svc.Bot,
		Location:      svc.Location,
		Log:           log,
		WebhookSecret: cfg.TelegramWebhookSecret,
		SweepToken:    cfg.SweepToken,
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.WithError(err).Warn("api: shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr": cfg.HTTPAddr, "store": cfg.StoreBackend, "events": cfg.EventsTransport,
	}).Info("api: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("api: serve")
	}
	log.Info("api: stopped")
}
