// Package app wires the services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/balancer"
	"github.com/Vortex-technology1/talko-task-manager/internal/config"
	"github.com/Vortex-technology1/talko-task-manager/internal/email"
	"github.com/Vortex-technology1/talko-task-manager/internal/engine"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/queue"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
	"github.com/Vortex-technology1/talko-task-manager/internal/sweep"
	"github.com/Vortex-technology1/talko-task-manager/internal/tasks"
	"github.com/Vortex-technology1/talko-task-manager/internal/telegram"
	"github.com/Vortex-technology1/talko-task-manager/internal/worker"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/sirupsen/logrus"
)

// Deps are the outside-world pieces Wire builds on.
type Deps struct {
	Store store.Store
	Bot   notify.Dispatcher
	// Mail is optional; reports are then chat-only.
	Mail email.Sender
	// Events publishes task lifecycle changes. Nil delivers them in-process;
	// otherwise in-process delivery is the fallback when publishing fails.
	Events       tasks.EventPublisher
	Location     *time.Location
	Now          func() time.Time
	Log          *logrus.Logger
	LeadTemplate string
	LeadSLA      int
}

type Services struct {
	Store    store.Store
	Bot      notify.Dispatcher
	Notifier *notify.Notifier
	Tasks    *tasks.Service
	Engine   *engine.Engine
	Sweeper  *sweep.Sweeper
	Worker   *worker.Handler
	Location *time.Location
	Log      *logrus.Logger

	closers []func() error
}

// Wire builds the service graph over d.
func Wire(d Deps) *Services {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	bal := balancer.New(d.Store, d.Location, d.Now)
	n := notify.New(d.Store, d.Bot, d.Mail, d.Location, d.Log)

	local := &queue.Local{Now: d.Now}
	var events, fallback tasks.EventPublisher = d.Events, local
	if events == nil {
		events, fallback = local, nil
	}
	svc := tasks.New(tasks.Options{
		Store: d.Store, Balancer: bal, Notifier: n, Events: events, Fallback: fallback,
		Location: d.Location, Now: d.Now, Log: d.Log,
	})
	eng := engine.New(engine.Options{
		Store: d.Store, Balancer: bal, Notifier: n,
		Location: d.Location, Now: d.Now, Log: d.Log,
		LeadTemplate: d.LeadTemplate, LeadSLA: d.LeadSLA,
	})
	h := worker.New(d.Store, svc, eng, d.Log)
	local.Handler = h
	return &Services{
		Store:    d.Store,
		Bot:      d.Bot,
		Notifier: n,
		Tasks:    svc,
		Engine:   eng,
		Sweeper: sweep.New(sweep.Options{
			Store: d.Store, Notifier: n, Processes: eng,
			Location: d.Location, Now: d.Now, Log: d.Log,
		}),
		Worker:   h,
		Location: d.Location,
		Log:      d.Log,
	}
}

// Open builds Services from configuration: the store backend, the Telegram
// client, SES when a sender address is set and the Kafka producer when
// publish is true and the transport is kafka.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger, publish bool) (*Services, error) {
	var (
		st      store.Store
		closers []func() error
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("app: using the in-memory store, data is lost on exit")
		st = store.NewMemoryStore()
	default:
		ds, err := store.NewDynamoStore(ctx, store.DynamoOptions{
			Region: cfg.AWSRegion, Table: cfg.DynamoTable, Endpoint: cfg.DynamoEndpoint, TxAttempts: cfg.TxMaxAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("init dynamo: %w", err)
		}
		st = ds
	}

	if cfg.TelegramToken == "" {
		log.Warn("app: TELEGRAM_BOT_TOKEN is empty, chat delivery will fail")
	}
	bot := telegram.New(cfg.TelegramToken, cfg.TelegramAPIBase, log)

	var mail email.Sender
	if cfg.SESFromEmail != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		ses, err := email.NewSESSender(awsCfg, cfg.SESFromEmail)
		if err != nil {
			return nil, fmt.Errorf("init ses: %w", err)
		}
		mail = ses
	}

	var events tasks.EventPublisher
	if publish && cfg.EventsTransport == config.TransportKafka {
		p, err := queue.NewProducer(cfg.KafkaBrokers, cfg.TaskEventsTopic)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		events = p
		closers = append(closers, p.Close)
	}

	s := Wire(Deps{
		Store: st, Bot: bot, Mail: mail, Events: events,
		Location: cfg.Location, Log: log,
		LeadTemplate: cfg.LeadTemplate, LeadSLA: cfg.LeadSLAMinutes,
	})
	s.closers = closers
	return s, nil
}

func (s *Services) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.Log.WithError(err).Warn("app: close")
		}
	}
}

// NewLogger returns a JSON logger at level, falling back to info.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("app: unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
