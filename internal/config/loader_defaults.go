package config

import "time"

// defaultTunnelConfig returns the default orchestrator configuration
func defaultTunnelConfig() TunnelConfig {
	return TunnelConfig{
		AuthToken:            "",
		Identity:             "",
		ConnectTimeout:       10 * time.Second,
		HealthInterval:       5 * time.Second,
		UnhealthyThreshold:   3,
		DedupWindow:          1000,
		ReconnectBase:        500 * time.Millisecond,
		ReconnectMax:         30 * time.Second,
		MaxReconnectAttempts: 0, // Retry forever with capped backoff
		ShutdownTimeout:      30 * time.Second,
	}
}

// defaultWSConfig returns the default websocket provider configuration
func defaultWSConfig() WSConfig {
	return WSConfig{
		Enabled:          true,
		Priority:         40,
		URL:              "ws://localhost:8080/tunnel",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
	}
}

// defaultMQTTConfig returns the default MQTT provider configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:           true,
		Priority:          30,
		Broker:            "tcp://localhost:1883",
		ClientID:          "tunnel",
		TopicRoot:         "tunnel/channels",
		QoS:               0,
		ConnectTimeout:    10 * time.Second,
		WriteTimeout:      5 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		DisconnectTimeout: 1000,
	}
}

// defaultRedisConfig returns the default Redis Pub/Sub provider configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:       true,
		Priority:      20,
		Address:       "localhost:6379",
		ChannelPrefix: "tunnel:",
		DialTimeout:   10 * time.Second,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		PingTimeout:   5 * time.Second,
	}
}

// defaultPollConfig returns the default long-poll fallback configuration
func defaultPollConfig() PollConfig {
	return PollConfig{
		Enabled:        true,
		Priority:       10,
		BaseURL:        "http://localhost:8080/tunnel/poll",
		PollTimeout:    25 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// defaultPresenceConfig returns the default presence tracker configuration
func defaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		HeartbeatInterval: 15 * time.Second,
		AwayAfter:         1 * time.Minute,
		StaleAfter:        3 * time.Minute,
		SweepInterval:     5 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Tunnel:   defaultTunnelConfig(),
		WS:       defaultWSConfig(),
		MQTT:     defaultMQTTConfig(),
		Redis:    defaultRedisConfig(),
		Poll:     defaultPollConfig(),
		Presence: defaultPresenceConfig(),
	}
}
