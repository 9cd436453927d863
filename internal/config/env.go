package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TXRELAY_"

type envVar struct {
	key string
	set func(*Config, string) error
}

// envVars lists the supported overrides. List values are comma separated.
var envVars = []envVar{
	{"STORAGE_DB_PATH", func(c *Config, v string) error { c.Storage.DBPath = v; return nil }},

	{"PIPELINE_POLL_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Pipeline.PollInterval })},
	{"PIPELINE_RETRY_BUDGET", intVar(func(c *Config) *int { return &c.Pipeline.RetryBudget })},
	{"PIPELINE_WORKERS", intVar(func(c *Config) *int { return &c.Pipeline.Workers })},
	{"PIPELINE_CLAIM_LEASE", durationVar(func(c *Config) *time.Duration { return &c.Pipeline.ClaimLease })},
	{"PIPELINE_ATTEMPT_TTL", durationVar(func(c *Config) *time.Duration { return &c.Pipeline.AttemptTTL })},

	{"PEER_LISTEN", listVar(func(c *Config) *[]string { return &c.Peer.Listen })},
	{"PEER_BOOTSTRAP", listVar(func(c *Config) *[]string { return &c.Peer.Bootstrap })},
	{"PEER_TOPIC", func(c *Config, v string) error { c.Peer.Topic = v; return nil }},
	{"PEER_MIN_PEERS", intVar(func(c *Config) *int { return &c.Peer.MinPeers })},
	{"PEER_PUBLISH_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Peer.PublishTimeout })},
	{"PEER_MAX_MESSAGE_SIZE", intVar(func(c *Config) *int { return &c.Peer.MaxMessageSize })},

	{"INGRESS_LISTEN", func(c *Config, v string) error { c.Ingress.Listen = v; return nil }},
	{"INGRESS_RATE_LIMIT", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Ingress.RateLimit = f
		return nil
	}},
	{"INGRESS_BURST", intVar(func(c *Config) *int { return &c.Ingress.Burst })},
	{"INGRESS_MAX_BATCH", intVar(func(c *Config) *int { return &c.Ingress.MaxBatch })},
	{"INGRESS_MAX_BODY_BYTES", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.Ingress.MaxBodyBytes = n
		return nil
	}},
}

// EnvKeys returns the full names of all supported environment variables.
func EnvKeys() []string {
	keys := make([]string, len(envVars))
	for i, ev := range envVars {
		keys[i] = EnvPrefix + ev.key
	}
	return keys
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		name := EnvPrefix + ev.key
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := ev.set(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func listVar(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		list := []string{}
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		*field(c) = list
		return nil
	}
}
