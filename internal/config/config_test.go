package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.SweepInterval != 5*time.Minute {
		t.Errorf("expected 5m sweep interval, got %s", c.SweepInterval)
	}
	if c.LeadSLAMinutes != 15 {
		t.Errorf("expected lead SLA 15, got %d", c.LeadSLAMinutes)
	}
	if c.Location.String() != "Europe/Kyiv" {
		t.Errorf("unexpected location %s", c.Location)
	}
	if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "b:9092" {
		t.Errorf("unexpected brokers %v", c.KafkaBrokers)
	}
	if c.TaskRetryTopic != "task-events-retry" {
		t.Errorf("unexpected retry topic %q", c.TaskRetryTopic)
	}
	if len(c.EventRetryDelays) != 3 || c.EventRetryDelays[2] != 10*time.Minute {
		t.Errorf("unexpected retry delays %v", c.EventRetryDelays)
	}
}

func TestLoadRequiresTableForDynamo(t *testing.T) {
	t.Setenv("STORE_BACKEND", "dynamo")
	t.Setenv("DYNAMO_TABLE", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DYNAMO_TABLE")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SWEEP_INTERVAL":     "often",
		"REPORT_HOUR":        "25",
		"STORE_BACKEND":      "sqlite",
		"TIMEZONE":           "Mars/Olympus",
		"EVENT_RETRY_DELAYS": "30s,soon",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "memory")
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", k, v)
			}
		})
	}
}

func TestMemoryBackendForcesLocalTransport(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("EVENTS_TRANSPORT", "kafka")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.EventsTransport != TransportLocal {
		t.Fatalf("transport = %q, want local", c.EventsTransport)
	}
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("STORE_BACKEND", "dynamo")
	t.Setenv("DYNAMO_TABLE", "tasks")
	t.Setenv("EVENTS_TRANSPORT", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
