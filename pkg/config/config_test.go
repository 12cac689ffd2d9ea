package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse_Full(t *testing.T) {
	doc := []byte(`
monitored_asns:
  - 3356
  - 174
  - 3356
monitored_prefixes:
  - 185.236.43.0/24
  - 2001:db8::/32
ris_collectors:
  - rrc21
  - rrc00
reconnect_delay: 10
max_reconnect_attempts: 8
slack_retry_attempts: 5
slack_retry_delay: 1
stats_interval: 60
alert_cooldown: 300
`)

	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Deduplicated and sorted.
	if len(cfg.MonitoredASNs) != 2 || cfg.MonitoredASNs[0] != 174 || cfg.MonitoredASNs[1] != 3356 {
		t.Errorf("Expected ASNs [174 3356], got %v", cfg.MonitoredASNs)
	}
	if len(cfg.MonitoredPrefixes) != 2 {
		t.Fatalf("Expected 2 prefixes, got %d", len(cfg.MonitoredPrefixes))
	}
	if len(cfg.Collectors) != 2 || cfg.Collectors[0] != "rrc21" {
		t.Errorf("Expected collectors [rrc21 rrc00], got %v", cfg.Collectors)
	}
	if cfg.ReconnectDelay != 10*time.Second {
		t.Errorf("Expected reconnect delay 10s, got %v", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectAttempts != 8 {
		t.Errorf("Expected 8 max reconnect attempts, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.SlackRetryAttempts != 5 {
		t.Errorf("Expected 5 retry attempts, got %d", cfg.SlackRetryAttempts)
	}
	if cfg.SlackRetryDelay != time.Second {
		t.Errorf("Expected retry delay 1s, got %v", cfg.SlackRetryDelay)
	}
	if cfg.StatsInterval != time.Minute {
		t.Errorf("Expected stats interval 1m, got %v", cfg.StatsInterval)
	}
	if cfg.AlertCooldown != 5*time.Minute {
		t.Errorf("Expected alert cooldown 5m, got %v", cfg.AlertCooldown)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`monitored_asns: [3356]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Expected default reconnect delay, got %v", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectAttempts != 0 {
		t.Errorf("Expected unlimited reconnects by default, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.SlackRetryAttempts != DefaultSlackRetryAttempts {
		t.Errorf("Expected default retry attempts, got %d", cfg.SlackRetryAttempts)
	}
	if cfg.StatsInterval != DefaultStatsInterval {
		t.Errorf("Expected default stats interval, got %v", cfg.StatsInterval)
	}
	if cfg.AlertCooldown != 0 {
		t.Errorf("Expected suppression disabled by default, got %v", cfg.AlertCooldown)
	}
	if len(cfg.Collectors) != 1 || cfg.Collectors[0] != DefaultCollector {
		t.Errorf("Expected default collector %s, got %v", DefaultCollector, cfg.Collectors)
	}
}

func TestParse_PrefixesMaskedAndSorted(t *testing.T) {
	cfg, err := Parse([]byte(`
monitored_prefixes:
  - 185.236.43.77/24
  - 10.0.0.0/8
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.MonitoredPrefixes[0].String() != "10.0.0.0/8" {
		t.Errorf("Expected 10.0.0.0/8 first, got %s", cfg.MonitoredPrefixes[0])
	}
	if cfg.MonitoredPrefixes[1].String() != "185.236.43.0/24" {
		t.Errorf("Expected host bits masked off, got %s", cfg.MonitoredPrefixes[1])
	}
}

func TestParse_PrefixesDeduplicated(t *testing.T) {
	// The watch list is a set: repeated entries (even spelled with different
	// host bits) must collapse to one monitored prefix, so a single satisfied
	// condition yields a single match event downstream.
	cfg, err := Parse([]byte(`
monitored_prefixes:
  - 185.236.43.0/24
  - 185.236.43.0/24
  - 185.236.43.99/24
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cfg.MonitoredPrefixes) != 1 {
		t.Fatalf("Expected 1 deduplicated prefix, got %v", cfg.MonitoredPrefixes)
	}
	if cfg.MonitoredPrefixes[0].String() != "185.236.43.0/24" {
		t.Errorf("Expected 185.236.43.0/24, got %s", cfg.MonitoredPrefixes[0])
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad yaml", "monitored_asns: [", "parse config"},
		{"asn zero", "monitored_asns: [0]", "ASN 0"},
		{"bad prefix", "monitored_prefixes: [not-a-prefix]", "monitored_prefixes"},
		{"empty collector", `ris_collectors: ["rrc21", ""]`, "empty collector"},
		{"zero reconnect delay", "reconnect_delay: 0", "reconnect_delay"},
		{"negative attempts", "max_reconnect_attempts: -1", "max_reconnect_attempts"},
		{"zero retry attempts", "slack_retry_attempts: 0", "slack_retry_attempts"},
		{"negative retry delay", "slack_retry_delay: -1", "slack_retry_delay"},
		{"zero stats interval", "stats_interval: 0", "stats_interval"},
		{"negative cooldown", "alert_cooldown: -5", "alert_cooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSlackWebhookFromEnv(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK", "")
	if _, err := SlackWebhookFromEnv(); err == nil {
		t.Fatal("Expected error when SLACK_WEBHOOK is unset")
	}

	t.Setenv("SLACK_WEBHOOK", "https://hooks.slack.com/services/T000/B000/XXX")
	webhook, err := SlackWebhookFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if webhook != "https://hooks.slack.com/services/T000/B000/XXX" {
		t.Errorf("Unexpected webhook value: %s", webhook)
	}
}
