// Package config provides configuration loading and validation from
// environment variables and command line flags.
package config

import "time"

// Config holds the complete tunnel configuration
type Config struct {
	Tunnel   TunnelConfig
	WS       WSConfig
	MQTT     MQTTConfig
	Redis    RedisConfig
	Poll     PollConfig
	Presence PresenceConfig
}

// TunnelConfig holds orchestrator-level settings
type TunnelConfig struct {
	AuthToken            string        // Opaque token from the identity service, forwarded unvalidated
	Identity             string        // Origin id stamped on outbound envelopes
	ConnectTimeout       time.Duration // Per-candidate connect deadline
	HealthInterval       time.Duration // Health-check tick cadence
	UnhealthyThreshold   int           // Consecutive unhealthy samples before failover
	DedupWindow          int           // Recent envelope ids remembered by the registry
	ReconnectBase        time.Duration // First retry delay
	ReconnectMax         time.Duration // Retry delay cap
	MaxReconnectAttempts int           // 0 disables the cap (retry forever)
	ShutdownTimeout      time.Duration
}

// WSConfig holds websocket provider configuration
type WSConfig struct {
	Enabled          bool
	Priority         int
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// MQTTConfig holds MQTT provider configuration
type MQTTConfig struct {
	Enabled           bool
	Priority          int
	Broker            string
	ClientID          string
	TopicRoot         string // Channels map to topics under this root
	QoS               byte
	ConnectTimeout    time.Duration
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration
	DisconnectTimeout uint // Milliseconds for graceful disconnect
}

// RedisConfig holds Redis Pub/Sub provider configuration
type RedisConfig struct {
	Enabled       bool
	Priority      int
	Address       string
	ChannelPrefix string // Tunnel channels map to Redis channels under this prefix
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PingTimeout   time.Duration
}

// PollConfig holds HTTP long-poll fallback configuration
type PollConfig struct {
	Enabled        bool
	Priority       int
	BaseURL        string
	PollTimeout    time.Duration // Server-side hold time for a blocking poll
	RequestTimeout time.Duration // Client-side deadline per request
}

// PresenceConfig holds presence tracker settings
type PresenceConfig struct {
	HeartbeatInterval time.Duration
	AwayAfter         time.Duration // Silence before a record demotes to away
	StaleAfter        time.Duration // Silence before a record demotes to offline
	SweepInterval     time.Duration
}
