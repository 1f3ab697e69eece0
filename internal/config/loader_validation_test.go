package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(defaultConfig()))
}

func TestValidate_Tunnel(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero connect timeout", func(c *Config) { c.Tunnel.ConnectTimeout = 0 }},
		{"zero health interval", func(c *Config) { c.Tunnel.HealthInterval = 0 }},
		{"zero unhealthy threshold", func(c *Config) { c.Tunnel.UnhealthyThreshold = 0 }},
		{"zero dedup window", func(c *Config) { c.Tunnel.DedupWindow = 0 }},
		{"zero reconnect base", func(c *Config) { c.Tunnel.ReconnectBase = 0 }},
		{"max below base", func(c *Config) { c.Tunnel.ReconnectMax = c.Tunnel.ReconnectBase / 2 }},
		{"negative attempts", func(c *Config) { c.Tunnel.MaxReconnectAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_Providers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"enabled ws without url", func(c *Config) { c.WS.URL = "" }},
		{"enabled mqtt without broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"enabled mqtt without client id", func(c *Config) { c.MQTT.ClientID = "" }},
		{"enabled mqtt without topic root", func(c *Config) { c.MQTT.TopicRoot = "" }},
		{"enabled redis without address", func(c *Config) { c.Redis.Address = "" }},
		{"enabled poll without base url", func(c *Config) { c.Poll.BaseURL = "" }},
		{"no provider enabled", func(c *Config) {
			c.WS.Enabled = false
			c.MQTT.Enabled = false
			c.Redis.Enabled = false
			c.Poll.Enabled = false
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_DisabledProviderSkipsEndpointCheck(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Enabled = false
	cfg.MQTT.Broker = ""
	require.NoError(t, Validate(cfg))
}

func TestValidate_Presence(t *testing.T) {
	cfg := defaultConfig()
	cfg.Presence.AwayAfter = cfg.Presence.StaleAfter
	assert.Error(t, Validate(cfg), "away threshold must be below the stale threshold")

	cfg = defaultConfig()
	cfg.Presence.SweepInterval = 0
	assert.Error(t, Validate(cfg))

	cfg = defaultConfig()
	cfg.Presence.StaleAfter = 0
	assert.Error(t, Validate(cfg))
}
