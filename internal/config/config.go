package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config is read once from the environment in each binary's main.
type Config struct {
	StoreBackend   string
	AWSRegion      string
	DynamoTable    string
	DynamoEndpoint string
	TxMaxAttempts  int

	// EventsTransport is "kafka" or "local". The memory backend always
	// delivers events in-process.
	EventsTransport string
	KafkaBrokers    []string
	TaskEventsTopic string
	KafkaGroupID    string
	// TaskRetryTopic parks events whose handling keeps failing; the
	// scheduler moves them back after EventRetryDelays.
	TaskRetryTopic   string
	RequeueGroupID   string
	EventRetryDelays []time.Duration

	TelegramToken         string
	TelegramAPIBase       string
	TelegramWebhookSecret string
	SESFromEmail          string
	SweepToken            string

	HTTPAddr string
	Location *time.Location
	LogLevel string

	SweepInterval          time.Duration
	ScheduledTasksInterval time.Duration
	ReportHour             int

	LeadTemplate   string
	LeadSLAMinutes int
}

const (
	BackendDynamo = "dynamo"
	BackendMemory = "memory"

	TransportKafka = "kafka"
	TransportLocal = "local"
)

// Load reads the environment. It fails on values that cannot be parsed and on
// missing values the selected backend needs.
func Load() (*Config, error) {
	c := &Config{
		StoreBackend:    getenv("STORE_BACKEND", BackendDynamo),
		AWSRegion:       getenv("AWS_REGION", "us-east-2"),
		DynamoTable:     os.Getenv("DYNAMO_TABLE"),
		DynamoEndpoint:  os.Getenv("DYNAMO_ENDPOINT"),
		EventsTransport: getenv("EVENTS_TRANSPORT", TransportKafka),
		KafkaBrokers:    SplitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
		TaskEventsTopic: getenv("KAFKA_TOPIC_TASK_EVENTS", "task-events"),
		KafkaGroupID:    getenv("KAFKA_GROUP_ID", "task-notify-workers"),
		TaskRetryTopic:  getenv("KAFKA_TOPIC_TASK_RETRY", "task-events-retry"),
		RequeueGroupID:  getenv("KAFKA_REQUEUE_GROUP_ID", "task-notify-requeue"),
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase: getenv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		SESFromEmail:    os.Getenv("SES_FROM_EMAIL"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LeadTemplate:    getenv("LEAD_TEMPLATE", "Lead processing"),

		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		SweepToken:            os.Getenv("SWEEP_TOKEN"),
	}

	var err error
	if c.Location, err = time.LoadLocation(getenv("TIMEZONE", "Europe/Kyiv")); err != nil {
		return nil, fmt.Errorf("config: TIMEZONE: %w", err)
	}
	if c.TxMaxAttempts, err = getint("TX_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if c.ReportHour, err = getint("REPORT_HOUR", 9); err != nil {
		return nil, err
	}
	if c.LeadSLAMinutes, err = getint("LEAD_SLA_MINUTES", 15); err != nil {
		return nil, err
	}
	if c.SweepInterval, err = getduration("SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.ScheduledTasksInterval, err = getduration("SCHEDULED_TASKS_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if c.EventRetryDelays, err = getdurations("EVENT_RETRY_DELAYS", "30s,2m,10m"); err != nil {
		return nil, err
	}

	switch c.StoreBackend {
	case BackendDynamo:
		if c.DynamoTable == "" {
			return nil, fmt.Errorf("config: DYNAMO_TABLE is required for the dynamo backend")
		}
	case BackendMemory:
		c.EventsTransport = TransportLocal
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.EventsTransport {
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("config: KAFKA_BROKERS is required for the kafka transport")
		}
	case TransportLocal:
	default:
		return nil, fmt.Errorf("config: unknown EVENTS_TRANSPORT %q", c.EventsTransport)
	}
	if c.ReportHour < 0 || c.ReportHour > 23 {
		return nil, fmt.Errorf("config: REPORT_HOUR out of range: %d", c.ReportHour)
	}
	return c, nil
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return d, nil
}

// getdurations reads a comma-separated list of durations.
func getdurations(k, def string) ([]time.Duration, error) {
	var out []time.Duration
	for _, v := range SplitCSV(getenv(k, def)) {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", k, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("config: %s: delay %s must be positive", k, v)
		}
		out = append(out, d)
	}
	return out, nil
}
