// Package redispub implements the server-push transport provider on top of
// Redis Pub/Sub. Tunnel channels map to Redis channels under a configurable
// prefix; a single pattern subscription receives the fan-out.
package redispub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
)

// Provider is the Redis Pub/Sub transport. Safe for concurrent use.
type Provider struct {
	cfg *config.RedisConfig
	log *log.Logger

	mu     sync.Mutex // guards client lifecycle
	client *redis.Client
	pubsub *redis.PubSub
	recvWG sync.WaitGroup

	handlerMu sync.RWMutex
	handler   provider.MessageHandler

	latencyMs atomic.Int64
	healthy   atomic.Bool
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Redis Pub/Sub provider from configuration.
func New(cfg *config.RedisConfig, logger *log.Logger) *Provider {
	return &Provider{cfg: cfg, log: logger}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "redis" }

// Probe checks that a TCP connection to the Redis address is possible within
// the negotiation budget.
func (p *Provider) Probe(_ context.Context) bool {
	conn, err := net.DialTimeout("tcp", p.cfg.Address, provider.ProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// channelFor maps a tunnel channel to its Redis channel name.
func (p *Provider) channelFor(channel string) string {
	return p.cfg.ChannelPrefix + channel
}

// Connect opens the client, verifies it with a ping and starts the pattern
// subscription. A second call while connected is a no-op success.
func (p *Provider) Connect(ctx context.Context, endpoint, authToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		Password:     authToken,
		DialTimeout:  p.cfg.DialTimeout,
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, p.cfg.PingTimeout)
	defer cancel()
	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("redis ping %s: %w", endpoint, provider.ErrConnectTimeout)
		}
		return fmt.Errorf("redis ping %s: %v: %w", endpoint, err, provider.ErrRejected)
	}
	p.latencyMs.Store(time.Since(start).Milliseconds())

	pubsub := client.PSubscribe(context.Background(), p.cfg.ChannelPrefix+"*")
	// Force the subscription onto the wire before reporting connected.
	if _, err := pubsub.Receive(pingCtx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return fmt.Errorf("redis subscribe: %v: %w", err, provider.ErrRejected)
	}

	p.client = client
	p.pubsub = pubsub
	p.healthy.Store(true)

	p.recvWG.Add(1)
	go p.receiveLoop(pubsub)

	p.log.Info("Redis pub/sub connected to %s", endpoint)
	return nil
}

// receiveLoop delivers inbound messages in arrival order until the
// subscription closes.
func (p *Provider) receiveLoop(pubsub *redis.PubSub) {
	defer p.recvWG.Done()

	for msg := range pubsub.Channel() {
		env, err := envelope.Parse([]byte(msg.Payload))
		if err != nil {
			p.log.Warn("Dropping malformed redis frame on %s: %v", msg.Channel, err)
			continue
		}

		p.handlerMu.RLock()
		handler := p.handler
		p.handlerMu.RUnlock()
		if handler != nil {
			handler(env)
		}
	}
	p.healthy.Store(false)
	p.log.Debug("Redis receive loop exiting")
}

// Send publishes one envelope to the channel's Redis channel. Fails fast when
// disconnected.
func (p *Provider) Send(ctx context.Context, env envelope.Envelope) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return provider.ErrNotConnected
	}

	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := client.Publish(ctx, p.channelFor(env.Channel), data).Err(); err != nil {
		p.healthy.Store(false)
		return fmt.Errorf("redis publish: %v: %w", err, provider.ErrSendFailed)
	}
	p.latencyMs.Store(time.Since(start).Milliseconds())
	p.healthy.Store(true)
	return nil
}

// OnMessage registers the single inbound handler.
func (p *Provider) OnMessage(handler provider.MessageHandler) {
	p.handlerMu.Lock()
	p.handler = handler
	p.handlerMu.Unlock()
}

// Disconnect closes the subscription and the client, waiting for the receive
// loop to exit so no OnMessage invocation can happen after it returns. Safe
// to call multiple times.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	pubsub := p.pubsub
	client := p.client
	p.pubsub = nil
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return
	}

	_ = pubsub.Close()
	p.recvWG.Wait()
	_ = client.Close()
	p.healthy.Store(false)
	p.log.Info("Redis pub/sub disconnected")
}

// Health returns the best-known snapshot without blocking.
func (p *Provider) Health() provider.HealthSnapshot {
	return provider.HealthSnapshot{
		LatencyMs: p.latencyMs.Load(),
		IsHealthy: p.healthy.Load(),
	}
}
