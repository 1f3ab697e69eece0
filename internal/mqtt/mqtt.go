// Package mqtt implements the managed-realtime-service transport provider on
// top of the paho MQTT client. Tunnel channels map to topics under a
// configurable root; envelopes travel as JSON payloads.
package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
)

// Provider is the MQTT transport. Safe for concurrent use.
type Provider struct {
	cfg *config.MQTTConfig
	log *log.Logger

	mu     sync.Mutex // guards client lifecycle
	client mqtt.Client
	closed bool

	handlerMu sync.RWMutex
	handler   provider.MessageHandler

	latencyMs atomic.Int64
	healthy   atomic.Bool
}

var _ provider.Provider = (*Provider)(nil)

// New creates an MQTT provider from configuration.
func New(cfg *config.MQTTConfig, logger *log.Logger) *Provider {
	return &Provider{cfg: cfg, log: logger}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "mqtt" }

// Probe checks that a TCP connection to the broker is possible within the
// negotiation budget.
func (p *Provider) Probe(_ context.Context) bool {
	host, ok := brokerAddress(p.cfg.Broker)
	if !ok {
		return false
	}
	conn, err := net.DialTimeout("tcp", host, provider.ProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// brokerAddress extracts host:port from a broker URL such as
// tcp://host:1883 or ssl://host:8883.
func brokerAddress(broker string) (string, bool) {
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		if u.Scheme == "ssl" || u.Scheme == "tls" {
			host += ":8883"
		} else {
			host += ":1883"
		}
	}
	return host, true
}

// topicFor maps a tunnel channel to its MQTT topic. Channel names use ":" as
// the scope separator which is topic-safe in MQTT.
func (p *Provider) topicFor(channel string) string {
	return p.cfg.TopicRoot + "/" + channel
}

// uniqueClientID suffixes the configured client id with hostname and pid so
// several tunnel instances can share one broker without session collisions.
func uniqueClientID(base string) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", base, hostname, os.Getpid())
}

// Connect establishes the broker session and subscribes to the topic root.
// A second call while connected is a no-op success. Auto-reconnect stays off:
// the orchestrator owns reconnection so failover decisions remain in one
// place.
// Paho tokens carry their own deadlines, so the context is not consulted.
func (p *Provider) Connect(_ context.Context, endpoint, authToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnectionOpen() {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(endpoint)
	opts.SetClientID(uniqueClientID(p.cfg.ClientID))
	opts.SetConnectTimeout(p.cfg.ConnectTimeout)
	opts.SetWriteTimeout(p.cfg.WriteTimeout)
	opts.SetAutoReconnect(false)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(true) // Per-channel ordering relies on broker arrival order
	if authToken != "" {
		opts.SetPassword(authToken)
		opts.SetUsername("token")
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.healthy.Store(false)
		if err != nil {
			p.log.Warn("MQTT connection lost: %v", err)
		}
	})

	client := mqtt.NewClient(opts)
	start := time.Now()
	token := client.Connect()
	if !token.WaitTimeout(p.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect to %s: %w", endpoint, provider.ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %v: %w", endpoint, err, provider.ErrRejected)
	}
	p.latencyMs.Store(time.Since(start).Milliseconds())

	sub := client.Subscribe(p.cfg.TopicRoot+"/#", p.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		p.handleFrame(msg.Payload())
	})
	if !sub.WaitTimeout(p.cfg.SubscribeTimeout) {
		client.Disconnect(p.cfg.DisconnectTimeout)
		return fmt.Errorf("mqtt subscribe %s/#: %w", p.cfg.TopicRoot, provider.ErrConnectTimeout)
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(p.cfg.DisconnectTimeout)
		return fmt.Errorf("mqtt subscribe %s/#: %v: %w", p.cfg.TopicRoot, err, provider.ErrRejected)
	}

	p.client = client
	p.closed = false
	p.healthy.Store(true)

	p.log.Info("MQTT connected to %s", endpoint)
	return nil
}

// handleFrame decodes one inbound MQTT payload and forwards it. The closed
// check runs under the handler lock so Disconnect can fence late router
// callbacks.
func (p *Provider) handleFrame(payload []byte) {
	env, err := envelope.Parse(payload)
	if err != nil {
		p.log.Warn("Dropping malformed MQTT frame: %v", err)
		return
	}

	p.handlerMu.RLock()
	defer p.handlerMu.RUnlock()
	if p.closedLocked() || p.handler == nil {
		return
	}
	p.handler(env)
}

func (p *Provider) closedLocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Send publishes one envelope to the channel's topic. Fails fast when
// disconnected.
func (p *Provider) Send(ctx context.Context, env envelope.Envelope) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return provider.ErrNotConnected
	}

	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}

	start := time.Now()
	token := client.Publish(p.topicFor(env.Channel), p.cfg.QoS, false, data)
	return p.awaitPublish(ctx, token, start)
}

// awaitPublish waits for the publish token, the context or the write
// deadline, whichever resolves first. Every failure wraps ErrSendFailed so
// callers match the whole family with one errors.Is check.
func (p *Provider) awaitPublish(ctx context.Context, token mqtt.Token, start time.Time) error {
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-done:
		if err := token.Error(); err != nil {
			p.healthy.Store(false)
			return fmt.Errorf("mqtt publish: %v: %w", err, provider.ErrSendFailed)
		}
		p.latencyMs.Store(time.Since(start).Milliseconds())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish cancelled: %v: %w", ctx.Err(), provider.ErrSendFailed)
	case <-time.After(p.cfg.WriteTimeout):
		p.healthy.Store(false)
		return fmt.Errorf("mqtt publish timeout: %w", provider.ErrSendFailed)
	}
}

// OnMessage registers the single inbound handler.
func (p *Provider) OnMessage(handler provider.MessageHandler) {
	p.handlerMu.Lock()
	p.handler = handler
	p.handlerMu.Unlock()
}

// Disconnect tears down the broker session. The handler lock is taken
// exclusively so any in-flight router callback finishes first; after return
// no further OnMessage invocation can happen. Safe to call multiple times.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.closed = true
	p.mu.Unlock()

	// Barrier: wait out callbacks currently holding the read side.
	p.handlerMu.Lock()
	p.handlerMu.Unlock() //nolint:staticcheck // empty critical section is the barrier

	if client == nil {
		return
	}
	if client.IsConnectionOpen() {
		client.Unsubscribe(p.cfg.TopicRoot + "/#").WaitTimeout(p.cfg.SubscribeTimeout)
	}
	client.Disconnect(p.cfg.DisconnectTimeout)
	p.healthy.Store(false)
	p.log.Info("MQTT disconnected")
}

// Health returns the best-known snapshot without blocking.
func (p *Provider) Health() provider.HealthSnapshot {
	return provider.HealthSnapshot{
		LatencyMs: p.latencyMs.Load(),
		IsHealthy: p.healthy.Load(),
	}
}
