package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateTunnel(&cfg.Tunnel); err != nil {
		return err
	}
	if err := validateProviders(cfg); err != nil {
		return err
	}
	return validatePresence(&cfg.Presence)
}

// validateTunnel validates orchestrator configuration
func validateTunnel(cfg *TunnelConfig) error {
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("tunnel connect timeout must be positive")
	}
	if cfg.HealthInterval <= 0 {
		return fmt.Errorf("tunnel health interval must be positive")
	}
	if cfg.UnhealthyThreshold < 1 {
		return fmt.Errorf("tunnel unhealthy threshold must be positive")
	}
	if cfg.DedupWindow < 1 {
		return fmt.Errorf("tunnel dedup window must be positive")
	}
	if cfg.ReconnectBase <= 0 {
		return fmt.Errorf("tunnel reconnect base delay must be positive")
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		return fmt.Errorf("tunnel reconnect max delay must be >= base delay")
	}
	if cfg.MaxReconnectAttempts < 0 {
		return fmt.Errorf("tunnel max reconnect attempts cannot be negative")
	}
	return nil
}

// validateProviders requires every enabled provider to carry an endpoint and
// at least one provider to be enabled.
func validateProviders(cfg *Config) error {
	enabled := 0

	if cfg.WS.Enabled {
		enabled++
		if cfg.WS.URL == "" {
			return fmt.Errorf("websocket URL cannot be empty when enabled")
		}
	}
	if cfg.MQTT.Enabled {
		enabled++
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker cannot be empty when enabled")
		}
		if cfg.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt client ID cannot be empty when enabled")
		}
		if cfg.MQTT.TopicRoot == "" {
			return fmt.Errorf("mqtt topic root cannot be empty when enabled")
		}
	}
	if cfg.Redis.Enabled {
		enabled++
		if cfg.Redis.Address == "" {
			return fmt.Errorf("redis address cannot be empty when enabled")
		}
	}
	if cfg.Poll.Enabled {
		enabled++
		if cfg.Poll.BaseURL == "" {
			return fmt.Errorf("poll base URL cannot be empty when enabled")
		}
	}

	if enabled == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}
	return nil
}

// validatePresence validates presence tracker configuration
func validatePresence(cfg *PresenceConfig) error {
	if cfg.StaleAfter <= 0 {
		return fmt.Errorf("presence stale threshold must be positive")
	}
	if cfg.AwayAfter <= 0 || cfg.AwayAfter >= cfg.StaleAfter {
		return fmt.Errorf("presence away threshold must be positive and below the stale threshold")
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("presence sweep interval must be positive")
	}
	return nil
}
