// Package ws implements the persistent-socket transport provider on top of
// gorilla/websocket. Envelopes travel as JSON text frames; health is sampled
// through the websocket ping/pong exchange.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
)

// Provider is the websocket transport. Safe for concurrent use.
type Provider struct {
	cfg *config.WSConfig
	log *log.Logger

	mu      sync.Mutex // guards conn lifecycle
	writeMu sync.Mutex // gorilla allows a single concurrent writer
	conn    *websocket.Conn
	done    chan struct{}
	readWG  sync.WaitGroup

	handlerMu sync.RWMutex
	handler   provider.MessageHandler

	latencyMs  atomic.Int64
	healthy    atomic.Bool
	lastPingAt atomic.Int64 // unix nano of the last ping sent
	lastPongAt atomic.Int64 // unix nano of the last pong received
}

var _ provider.Provider = (*Provider)(nil)

// New creates a websocket provider from configuration.
func New(cfg *config.WSConfig, logger *log.Logger) *Provider {
	return &Provider{cfg: cfg, log: logger}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "websocket" }

// Probe checks that a TCP connection to the endpoint host is possible within
// the negotiation budget.
func (p *Provider) Probe(_ context.Context) bool {
	host, ok := dialAddress(p.cfg.URL)
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

// dialAddress extracts host:port from a ws/wss URL, filling in the default
// port for the scheme.
func dialAddress(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		if u.Scheme == "wss" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return host, true
}

// Connect dials the websocket endpoint. A second call while connected is a
// no-op success.
func (p *Provider) Connect(ctx context.Context, endpoint, authToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: p.cfg.HandshakeTimeout,
	}
	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil || strings.Contains(err.Error(), "timeout") {
			return fmt.Errorf("websocket dial %s: %w", endpoint, provider.ErrConnectTimeout)
		}
		return fmt.Errorf("websocket dial %s: %v: %w", endpoint, err, provider.ErrRejected)
	}

	conn.SetPongHandler(func(string) error {
		now := time.Now().UnixNano()
		p.lastPongAt.Store(now)
		if sent := p.lastPingAt.Load(); sent > 0 {
			p.latencyMs.Store((now - sent) / int64(time.Millisecond))
		}
		p.healthy.Store(true)
		return nil
	})

	p.conn = conn
	p.done = make(chan struct{})
	p.healthy.Store(true)
	p.lastPingAt.Store(0)
	p.lastPongAt.Store(0)

	p.readWG.Add(2)
	go p.readLoop(conn)
	go p.pingLoop(conn, p.done)

	p.log.Info("Websocket connected to %s", endpoint)
	return nil
}

// readLoop delivers inbound frames in network-arrival order until the
// connection closes.
func (p *Provider) readLoop(conn *websocket.Conn) {
	defer p.readWG.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.healthy.Store(false)
			p.log.Debug("Websocket read loop exiting: %v", err)
			return
		}

		env, err := envelope.Parse(data)
		if err != nil {
			p.log.Warn("Dropping malformed websocket frame: %v", err)
			continue
		}

		p.handlerMu.RLock()
		handler := p.handler
		p.handlerMu.RUnlock()
		if handler != nil {
			handler(env)
		}
	}
}

// pingLoop samples liveness. A ping without a pong for two intervals marks
// the connection unhealthy so the orchestrator's health tick can fail over.
func (p *Provider) pingLoop(conn *websocket.Conn, done chan struct{}) {
	defer p.readWG.Done()

	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sent := p.lastPingAt.Load()
			pong := p.lastPongAt.Load()
			if sent > 0 && pong < sent && time.Since(time.Unix(0, sent)) > 2*p.cfg.PingInterval {
				p.healthy.Store(false)
			}

			p.lastPingAt.Store(time.Now().UnixNano())
			p.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.cfg.WriteTimeout))
			p.writeMu.Unlock()
			if err != nil {
				p.healthy.Store(false)
			}
		}
	}
}

// Send transmits one envelope as a JSON frame. Fails fast when disconnected.
func (p *Provider) Send(_ context.Context, env envelope.Envelope) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return provider.ErrNotConnected
	}

	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("websocket write deadline: %v: %w", err, provider.ErrSendFailed)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.healthy.Store(false)
		return fmt.Errorf("websocket write: %v: %w", err, provider.ErrSendFailed)
	}
	return nil
}

// OnMessage registers the single inbound handler.
func (p *Provider) OnMessage(handler provider.MessageHandler) {
	p.handlerMu.Lock()
	p.handler = handler
	p.handlerMu.Unlock()
}

// Disconnect closes the connection and waits for the read loop to exit, so
// no OnMessage invocation can happen after it returns. Safe to call multiple
// times.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	conn := p.conn
	done := p.done
	p.conn = nil
	p.done = nil
	p.mu.Unlock()

	if conn == nil {
		return
	}

	close(done)
	_ = conn.Close()
	p.readWG.Wait()
	p.healthy.Store(false)
	p.log.Info("Websocket disconnected")
}

// Health returns the best-known snapshot without blocking.
func (p *Provider) Health() provider.HealthSnapshot {
	return provider.HealthSnapshot{
		LatencyMs: p.latencyMs.Load(),
		IsHealthy: p.healthy.Load(),
	}
}
