package config

import "flag"

// Flags use zero values as "not set" so defaults and environment variables
// survive unless the operator passes the flag explicitly.
var (
	flagTunnelAuthToken       = flag.String("tunnel-auth-token", "", "Opaque auth token forwarded to providers")
	flagTunnelIdentity        = flag.String("tunnel-identity", "", "Identity stamped as originId on outbound envelopes")
	flagTunnelConnectTimeout  = flag.Duration("tunnel-connect-timeout", 0, "Per-candidate connect deadline")
	flagTunnelHealthInterval  = flag.Duration("tunnel-health-interval", 0, "Health-check tick cadence")
	flagTunnelUnhealthy       = flag.Int("tunnel-unhealthy-threshold", 0, "Consecutive unhealthy samples before failover")
	flagTunnelDedupWindow     = flag.Int("tunnel-dedup-window", 0, "Recent envelope ids remembered for dedup")
	flagTunnelReconnectBase   = flag.Duration("tunnel-reconnect-base", 0, "First reconnect delay")
	flagTunnelReconnectMax    = flag.Duration("tunnel-reconnect-max", 0, "Reconnect delay cap")
	flagTunnelMaxReconnects   = flag.Int("tunnel-max-reconnect-attempts", 0, "Reconnect attempt cap (0 = retry forever)")
	flagTunnelShutdownTimeout = flag.Duration("tunnel-shutdown-timeout", 0, "Graceful shutdown deadline")

	flagWSURL        = flag.String("ws-url", "", "Websocket endpoint URL")
	flagWSPriority   = flag.Int("ws-priority", 0, "Websocket provider priority")
	flagMQTTBroker   = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTPriority = flag.Int("mqtt-priority", 0, "MQTT provider priority")
	flagRedisAddress = flag.String("redis-address", "", "Redis address")
	flagRedisPrio    = flag.Int("redis-priority", 0, "Redis provider priority")
	flagPollBaseURL  = flag.String("poll-base-url", "", "Long-poll base URL")
	flagPollPriority = flag.Int("poll-priority", 0, "Long-poll provider priority")

	flagPresenceHeartbeat = flag.Duration("presence-heartbeat-interval", 0, "Presence heartbeat cadence")
	flagPresenceAway      = flag.Duration("presence-away-after", 0, "Silence before a record demotes to away")
	flagPresenceStale     = flag.Duration("presence-stale-after", 0, "Silence before a record demotes to offline")
	flagPresenceSweep     = flag.Duration("presence-sweep-interval", 0, "Presence staleness sweep cadence")
)

// applyTunnelFlags applies orchestrator flags over the current configuration
func applyTunnelFlags(cfg *TunnelConfig) {
	if *flagTunnelAuthToken != "" {
		cfg.AuthToken = *flagTunnelAuthToken
	}
	if *flagTunnelIdentity != "" {
		cfg.Identity = *flagTunnelIdentity
	}
	if *flagTunnelConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagTunnelConnectTimeout
	}
	if *flagTunnelHealthInterval != 0 {
		cfg.HealthInterval = *flagTunnelHealthInterval
	}
	if *flagTunnelUnhealthy != 0 {
		cfg.UnhealthyThreshold = *flagTunnelUnhealthy
	}
	if *flagTunnelDedupWindow != 0 {
		cfg.DedupWindow = *flagTunnelDedupWindow
	}
	if *flagTunnelReconnectBase != 0 {
		cfg.ReconnectBase = *flagTunnelReconnectBase
	}
	if *flagTunnelReconnectMax != 0 {
		cfg.ReconnectMax = *flagTunnelReconnectMax
	}
	if *flagTunnelMaxReconnects != 0 {
		cfg.MaxReconnectAttempts = *flagTunnelMaxReconnects
	}
	if *flagTunnelShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagTunnelShutdownTimeout
	}
}

// applyProviderFlags applies per-provider flags over the current configuration
func applyProviderFlags(cfg *Config) {
	if *flagWSURL != "" {
		cfg.WS.URL = *flagWSURL
	}
	if *flagWSPriority != 0 {
		cfg.WS.Priority = *flagWSPriority
	}
	if *flagMQTTBroker != "" {
		cfg.MQTT.Broker = *flagMQTTBroker
	}
	if *flagMQTTPriority != 0 {
		cfg.MQTT.Priority = *flagMQTTPriority
	}
	if *flagRedisAddress != "" {
		cfg.Redis.Address = *flagRedisAddress
	}
	if *flagRedisPrio != 0 {
		cfg.Redis.Priority = *flagRedisPrio
	}
	if *flagPollBaseURL != "" {
		cfg.Poll.BaseURL = *flagPollBaseURL
	}
	if *flagPollPriority != 0 {
		cfg.Poll.Priority = *flagPollPriority
	}
}

// applyPresenceFlags applies presence flags over the current configuration
func applyPresenceFlags(cfg *PresenceConfig) {
	if *flagPresenceHeartbeat != 0 {
		cfg.HeartbeatInterval = *flagPresenceHeartbeat
	}
	if *flagPresenceAway != 0 {
		cfg.AwayAfter = *flagPresenceAway
	}
	if *flagPresenceStale != 0 {
		cfg.StaleAfter = *flagPresenceStale
	}
	if *flagPresenceSweep != 0 {
		cfg.SweepInterval = *flagPresenceSweep
	}
}
