package config

import (
	"os"
	"strconv"
	"time"
)

// loadTunnelFromEnv loads orchestrator configuration from environment variables
func loadTunnelFromEnv(cfg *TunnelConfig) {
	if v := getEnvString("TUNNEL_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := getEnvString("TUNNEL_IDENTITY"); v != "" {
		cfg.Identity = v
	}
	if v := getEnvDuration("TUNNEL_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("TUNNEL_HEALTH_INTERVAL"); v != 0 {
		cfg.HealthInterval = v
	}
	if v := getEnvInt("TUNNEL_UNHEALTHY_THRESHOLD"); v != 0 {
		cfg.UnhealthyThreshold = v
	}
	if v := getEnvInt("TUNNEL_DEDUP_WINDOW"); v != 0 {
		cfg.DedupWindow = v
	}
	if v := getEnvDuration("TUNNEL_RECONNECT_BASE"); v != 0 {
		cfg.ReconnectBase = v
	}
	if v := getEnvDuration("TUNNEL_RECONNECT_MAX"); v != 0 {
		cfg.ReconnectMax = v
	}
	if v := getEnvInt("TUNNEL_MAX_RECONNECT_ATTEMPTS"); v != 0 {
		cfg.MaxReconnectAttempts = v
	}
	if v := getEnvDuration("TUNNEL_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
}

// loadWSFromEnv loads websocket provider configuration from environment variables
func loadWSFromEnv(cfg *WSConfig) {
	if v := getEnvString("WS_URL"); v != "" {
		cfg.URL = v
	}
	if v := getEnvInt("WS_PRIORITY"); v != 0 {
		cfg.Priority = v
	}
	if os.Getenv("WS_ENABLED") != "" {
		cfg.Enabled = getEnvBool("WS_ENABLED")
	}
	if v := getEnvDuration("WS_HANDSHAKE_TIMEOUT"); v != 0 {
		cfg.HandshakeTimeout = v
	}
	if v := getEnvDuration("WS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("WS_PING_INTERVAL"); v != 0 {
		cfg.PingInterval = v
	}
}

// loadMQTTFromEnv loads MQTT provider configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_TOPIC_ROOT"); v != "" {
		cfg.TopicRoot = v
	}
	if v := getEnvInt("MQTT_PRIORITY"); v != 0 {
		cfg.Priority = v
	}
	if os.Getenv("MQTT_ENABLED") != "" {
		cfg.Enabled = getEnvBool("MQTT_ENABLED")
	}
	if v := getEnvInt("MQTT_QOS"); v != 0 && v >= 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v != 0 {
		cfg.DisconnectTimeout = uint(v) // #nosec G115 - config values are non-negative
	}
}

// loadRedisFromEnv loads Redis provider configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_CHANNEL_PREFIX"); v != "" {
		cfg.ChannelPrefix = v
	}
	if v := getEnvInt("REDIS_PRIORITY"); v != 0 {
		cfg.Priority = v
	}
	if os.Getenv("REDIS_ENABLED") != "" {
		cfg.Enabled = getEnvBool("REDIS_ENABLED")
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// loadPollFromEnv loads long-poll fallback configuration from environment variables
func loadPollFromEnv(cfg *PollConfig) {
	if v := getEnvString("POLL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getEnvInt("POLL_PRIORITY"); v != 0 {
		cfg.Priority = v
	}
	if os.Getenv("POLL_ENABLED") != "" {
		cfg.Enabled = getEnvBool("POLL_ENABLED")
	}
	if v := getEnvDuration("POLL_TIMEOUT"); v != 0 {
		cfg.PollTimeout = v
	}
	if v := getEnvDuration("POLL_REQUEST_TIMEOUT"); v != 0 {
		cfg.RequestTimeout = v
	}
}

// loadPresenceFromEnv loads presence tracker configuration from environment variables
func loadPresenceFromEnv(cfg *PresenceConfig) {
	if v := getEnvDuration("PRESENCE_HEARTBEAT_INTERVAL"); v != 0 {
		cfg.HeartbeatInterval = v
	}
	if v := getEnvDuration("PRESENCE_AWAY_AFTER"); v != 0 {
		cfg.AwayAfter = v
	}
	if v := getEnvDuration("PRESENCE_STALE_AFTER"); v != 0 {
		cfg.StaleAfter = v
	}
	if v := getEnvDuration("PRESENCE_SWEEP_INTERVAL"); v != 0 {
		cfg.SweepInterval = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

func getEnvBool(key string) bool {
	return os.Getenv(key) == "true"
}
