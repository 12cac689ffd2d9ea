// Package config loads and validates the monitor configuration.
//
// The watch list, collector set, and retry tuning come from a YAML document.
// The Slack webhook URL is a secret and comes only from the SLACK_WEBHOOK
// environment variable, never from the document.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"sort"
	"time"

	"github.com/ghodss/yaml"
)

// Defaults applied when the document omits a field.
const (
	DefaultReconnectDelay     = 5 * time.Second
	DefaultSlackRetryAttempts = 3
	DefaultSlackRetryDelay    = 2 * time.Second
	DefaultStatsInterval      = 5 * time.Minute
)

// DefaultCollector is subscribed to when no collectors are configured.
const DefaultCollector = "rrc21"

// fileConfig mirrors the YAML document. Durations are in seconds, as in the
// original config format.
type fileConfig struct {
	MonitoredASNs        []uint32 `json:"monitored_asns"`
	MonitoredPrefixes    []string `json:"monitored_prefixes"`
	RISCollectors        []string `json:"ris_collectors"`
	ReconnectDelay       *int     `json:"reconnect_delay"`
	MaxReconnectAttempts *int     `json:"max_reconnect_attempts"`
	SlackRetryAttempts   *int     `json:"slack_retry_attempts"`
	SlackRetryDelay      *int     `json:"slack_retry_delay"`
	StatsInterval        *int     `json:"stats_interval"`
	AlertCooldown        *int     `json:"alert_cooldown"`
}

// Config is the validated, immutable monitor configuration. It is built once
// at startup and shared read-only by every component.
type Config struct {
	MonitoredASNs     []uint32       // deduplicated, sorted
	MonitoredPrefixes []netip.Prefix // masked, sorted
	Collectors        []string

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int // 0 = retry forever

	SlackRetryAttempts int
	SlackRetryDelay    time.Duration

	StatsInterval time.Duration
	AlertCooldown time.Duration // 0 = suppression disabled
}

// Load reads and validates the YAML config at path. Any invalid monitor
// entry is an error: the process must not start partially configured.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates a raw YAML document.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		ReconnectDelay:     DefaultReconnectDelay,
		SlackRetryAttempts: DefaultSlackRetryAttempts,
		SlackRetryDelay:    DefaultSlackRetryDelay,
		StatsInterval:      DefaultStatsInterval,
	}

	seen := make(map[uint32]bool, len(fc.MonitoredASNs))
	for _, asn := range fc.MonitoredASNs {
		if asn == 0 {
			return nil, fmt.Errorf("monitored_asns: ASN 0 is not valid")
		}
		if !seen[asn] {
			seen[asn] = true
			cfg.MonitoredASNs = append(cfg.MonitoredASNs, asn)
		}
	}
	sort.Slice(cfg.MonitoredASNs, func(i, j int) bool {
		return cfg.MonitoredASNs[i] < cfg.MonitoredASNs[j]
	})

	seenPrefix := make(map[netip.Prefix]bool, len(fc.MonitoredPrefixes))
	for _, s := range fc.MonitoredPrefixes {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("monitored_prefixes: %q: %w", s, err)
		}
		masked := p.Masked()
		if !seenPrefix[masked] {
			seenPrefix[masked] = true
			cfg.MonitoredPrefixes = append(cfg.MonitoredPrefixes, masked)
		}
	}
	sort.Slice(cfg.MonitoredPrefixes, func(i, j int) bool {
		a, b := cfg.MonitoredPrefixes[i], cfg.MonitoredPrefixes[j]
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c < 0
		}
		return a.Bits() < b.Bits()
	})

	cfg.Collectors = fc.RISCollectors
	if len(cfg.Collectors) == 0 {
		cfg.Collectors = []string{DefaultCollector}
	}
	for _, c := range cfg.Collectors {
		if c == "" {
			return nil, fmt.Errorf("ris_collectors: empty collector name")
		}
	}

	if fc.ReconnectDelay != nil {
		if *fc.ReconnectDelay < 1 {
			return nil, fmt.Errorf("reconnect_delay must be >= 1 second")
		}
		cfg.ReconnectDelay = time.Duration(*fc.ReconnectDelay) * time.Second
	}
	if fc.MaxReconnectAttempts != nil {
		if *fc.MaxReconnectAttempts < 0 {
			return nil, fmt.Errorf("max_reconnect_attempts must be >= 0")
		}
		cfg.MaxReconnectAttempts = *fc.MaxReconnectAttempts
	}
	if fc.SlackRetryAttempts != nil {
		if *fc.SlackRetryAttempts < 1 {
			return nil, fmt.Errorf("slack_retry_attempts must be >= 1")
		}
		cfg.SlackRetryAttempts = *fc.SlackRetryAttempts
	}
	if fc.SlackRetryDelay != nil {
		if *fc.SlackRetryDelay < 0 {
			return nil, fmt.Errorf("slack_retry_delay must be >= 0")
		}
		cfg.SlackRetryDelay = time.Duration(*fc.SlackRetryDelay) * time.Second
	}
	if fc.StatsInterval != nil {
		if *fc.StatsInterval < 1 {
			return nil, fmt.Errorf("stats_interval must be >= 1 second")
		}
		cfg.StatsInterval = time.Duration(*fc.StatsInterval) * time.Second
	}
	if fc.AlertCooldown != nil {
		if *fc.AlertCooldown < 0 {
			return nil, fmt.Errorf("alert_cooldown must be >= 0")
		}
		cfg.AlertCooldown = time.Duration(*fc.AlertCooldown) * time.Second
	}

	return cfg, nil
}

// SlackWebhookFromEnv returns the Slack webhook URL from the SLACK_WEBHOOK
// environment variable. A missing value is a fatal configuration error.
func SlackWebhookFromEnv() (string, error) {
	webhook := os.Getenv("SLACK_WEBHOOK")
	if webhook == "" {
		return "", fmt.Errorf("SLACK_WEBHOOK environment variable is not set")
	}
	return webhook, nil
}
