// Package longpoll implements the fallback transport provider over plain
// HTTP: envelopes are sent with POST requests and received through blocking
// GET polls carrying a cursor.
//
// Ordering caveat: each poll response is delivered in order, but independent
// send requests give no cross-request ordering guarantee. Per-channel
// ordering is therefore only as strong as the remote endpoint makes it.
package longpoll

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
)

// pollResponse is the poll endpoint's JSON body: the next cursor and the
// envelopes accumulated since the previous one.
type pollResponse struct {
	Cursor    uint64              `json:"cursor"`
	Envelopes []envelope.Envelope `json:"envelopes"`
}

// Provider is the HTTP long-poll transport. Safe for concurrent use.
type Provider struct {
	cfg *config.PollConfig
	log *log.Logger

	mu        sync.Mutex // guards lifecycle
	client    *http.Client
	cancel    context.CancelFunc
	pollWG    sync.WaitGroup
	endpoint  string
	authToken string

	handlerMu sync.RWMutex
	handler   provider.MessageHandler

	latencyMs atomic.Int64
	healthy   atomic.Bool
}

var _ provider.Provider = (*Provider)(nil)

// New creates a long-poll provider from configuration.
func New(cfg *config.PollConfig, logger *log.Logger) *Provider {
	return &Provider{cfg: cfg, log: logger}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "longpoll" }

// Probe checks that a TCP connection to the endpoint host is possible within
// the negotiation budget.
func (p *Provider) Probe(_ context.Context) bool {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	conn, err := net.DialTimeout("tcp", host, provider.ProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Connect validates the endpoint with a non-blocking poll (wait=0) and then
// starts the poll loop. A second call while connected is a no-op success.
func (p *Provider) Connect(ctx context.Context, endpoint, authToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}

	client := &http.Client{Timeout: p.cfg.RequestTimeout}
	p.authToken = authToken

	cursor, err := p.handshake(ctx, client, endpoint)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.client = client
	p.cancel = cancel
	p.endpoint = endpoint
	p.healthy.Store(true)

	p.pollWG.Add(1)
	go p.pollLoop(loopCtx, client, endpoint, cursor)

	p.log.Info("Long-poll connected to %s", endpoint)
	return nil
}

// handshake performs a zero-wait poll to validate the endpoint and obtain
// the starting cursor.
func (p *Provider) handshake(ctx context.Context, client *http.Client, endpoint string) (uint64, error) {
	start := time.Now()
	resp, err := p.poll(ctx, client, endpoint, 0, 0)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("long-poll handshake %s: %w", endpoint, provider.ErrConnectTimeout)
		}
		return 0, fmt.Errorf("long-poll handshake %s: %v: %w", endpoint, err, provider.ErrRejected)
	}
	p.latencyMs.Store(time.Since(start).Milliseconds())
	return resp.Cursor, nil
}

// poll issues one GET against the endpoint. wait is the requested server-side
// hold time in seconds; 0 returns immediately.
func (p *Provider) poll(ctx context.Context, client *http.Client, endpoint string, cursor uint64, wait time.Duration) (*pollResponse, error) {
	u := endpoint + "?cursor=" + strconv.FormatUint(cursor, 10) +
		"&wait=" + strconv.Itoa(int(wait/time.Second))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body pollResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode poll body: %w", err)
	}
	return &body, nil
}

// pollLoop repeats blocking polls, delivering each response batch in order,
// until the provider disconnects.
func (p *Provider) pollLoop(ctx context.Context, client *http.Client, endpoint string, cursor uint64) {
	defer p.pollWG.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		resp, err := p.poll(ctx, client, endpoint, cursor, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.healthy.Store(false)
			p.log.Debug("Long-poll request failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.latencyMs.Store(time.Since(start).Milliseconds())
		p.healthy.Store(true)
		cursor = resp.Cursor

		for _, env := range resp.Envelopes {
			if env.ID == "" || env.Channel == "" {
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
}

// Send posts one envelope to the endpoint. Fails fast when disconnected.
func (p *Provider) Send(ctx context.Context, env envelope.Envelope) error {
	p.mu.Lock()
	client := p.client
	endpoint := p.endpoint
	p.mu.Unlock()

	if client == nil {
		return provider.ErrNotConnected
	}

	data, err := envelope.Marshal(env)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("long-poll send: %v: %w", err, provider.ErrSendFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		p.healthy.Store(false)
		return fmt.Errorf("long-poll send: %v: %w", err, provider.ErrSendFailed)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("long-poll send status %d: %w", resp.StatusCode, provider.ErrSendFailed)
	}
	return nil
}

// OnMessage registers the single inbound handler.
func (p *Provider) OnMessage(handler provider.MessageHandler) {
	p.handlerMu.Lock()
	p.handler = handler
	p.handlerMu.Unlock()
}

// Disconnect cancels the poll loop and waits for it to exit, so no OnMessage
// invocation can happen after it returns. Safe to call multiple times.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	cancel := p.cancel
	p.client = nil
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	p.pollWG.Wait()
	p.healthy.Store(false)
	p.log.Info("Long-poll disconnected")
}

// Health returns the best-known snapshot without blocking.
func (p *Provider) Health() provider.HealthSnapshot {
	return provider.HealthSnapshot{
		LatencyMs: p.latencyMs.Load(),
		IsHealthy: p.healthy.Load(),
	}
}
