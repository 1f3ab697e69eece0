package config

import (
	"flag"
	"fmt"
)

// Load loads configuration with precedence: defaults → environment variables
// → command line flags. The result is validated before being returned.
func Load() (*Config, error) {
	// Parse command line flags if not already parsed
	if !flag.Parsed() {
		flag.Parse()
	}

	// Step 1: Start with defaults
	cfg := defaultConfig()

	// Step 2: Apply environment variables
	loadTunnelFromEnv(&cfg.Tunnel)
	loadWSFromEnv(&cfg.WS)
	loadMQTTFromEnv(&cfg.MQTT)
	loadRedisFromEnv(&cfg.Redis)
	loadPollFromEnv(&cfg.Poll)
	loadPresenceFromEnv(&cfg.Presence)

	// Step 3: Apply command line flags (highest precedence)
	applyTunnelFlags(&cfg.Tunnel)
	applyProviderFlags(cfg)
	applyPresenceFlags(&cfg.Presence)

	// Step 4: Validate the final configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
