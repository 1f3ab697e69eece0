package longpoll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
)

func testPollConfig(baseURL string) *config.PollConfig {
	return &config.PollConfig{
		BaseURL:        baseURL,
		Enabled:        true,
		Priority:       10,
		PollTimeout:    100 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
}

// pollServer serves the poll protocol: GET drains the queued envelopes and
// advances the cursor, POST records the sent envelope.
type pollServer struct {
	mu     sync.Mutex
	queue  []envelope.Envelope
	cursor uint64
	posted []envelope.Envelope
	auth   []string
}

func (s *pollServer) enqueue(env envelope.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, env)
	s.cursor++
}

func (s *pollServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auth = append(s.auth, r.Header.Get("Authorization"))

		switch r.Method {
		case http.MethodGet:
			resp := pollResponse{Cursor: s.cursor}
			if got, _ := strconv.ParseUint(r.URL.Query().Get("cursor"), 10, 64); got < s.cursor {
				resp.Envelopes = s.queue
				s.queue = nil
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)

		case http.MethodPost:
			var env envelope.Envelope
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			s.posted = append(s.posted, env)
			w.WriteHeader(http.StatusAccepted)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (s *pollServer) postedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posted)
}

func TestProvider_SendNotConnected(t *testing.T) {
	p := New(testPollConfig("http://127.0.0.1:1/poll"), log.New())
	err := p.Send(context.Background(), envelope.New("conversation:1", "message:new", nil, ""))
	assert.ErrorIs(t, err, provider.ErrNotConnected)
}

func TestProvider_ConnectReceive(t *testing.T) {
	server := &pollServer{}
	srv := httptest.NewServer(server.handler())
	defer srv.Close()

	p := New(testPollConfig(srv.URL), log.New())
	received := make(chan envelope.Envelope, 4)
	p.OnMessage(func(env envelope.Envelope) { received <- env })

	require.True(t, p.Probe(context.Background()))
	require.NoError(t, p.Connect(context.Background(), srv.URL, "token-1"))
	defer p.Disconnect()

	// Connect is idempotent while polling.
	require.NoError(t, p.Connect(context.Background(), srv.URL, "token-1"))

	in := envelope.New("conversation:1", "message:new", []byte(`{"text":"hi"}`), "u2")
	server.enqueue(in)

	select {
	case env := <-received:
		assert.Equal(t, in.ID, env.ID)
		assert.Equal(t, "conversation:1", env.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not deliver the envelope")
	}

	assert.True(t, p.Health().IsHealthy)

	server.mu.Lock()
	assert.Contains(t, server.auth, "Bearer token-1")
	server.mu.Unlock()
}

func TestProvider_Send(t *testing.T) {
	server := &pollServer{}
	srv := httptest.NewServer(server.handler())
	defer srv.Close()

	p := New(testPollConfig(srv.URL), log.New())
	require.NoError(t, p.Connect(context.Background(), srv.URL, ""))
	defer p.Disconnect()

	out := envelope.New("conversation:1", "message:new", []byte(`{"text":"hi"}`), "u1")
	require.NoError(t, p.Send(context.Background(), out))

	require.Equal(t, 1, server.postedCount())
	server.mu.Lock()
	assert.Equal(t, out.ID, server.posted[0].ID)
	server.mu.Unlock()
}

func TestProvider_DisconnectStopsDelivery(t *testing.T) {
	server := &pollServer{}
	srv := httptest.NewServer(server.handler())
	defer srv.Close()

	p := New(testPollConfig(srv.URL), log.New())
	received := make(chan envelope.Envelope, 4)
	p.OnMessage(func(env envelope.Envelope) { received <- env })

	require.NoError(t, p.Connect(context.Background(), srv.URL, ""))

	p.Disconnect()
	// Idempotent.
	p.Disconnect()

	assert.False(t, p.Health().IsHealthy)

	server.enqueue(envelope.New("conversation:1", "message:new", nil, ""))
	select {
	case env := <-received:
		t.Fatalf("unexpected delivery after disconnect: %s", env.ID)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestProvider_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := New(testPollConfig(srv.URL), log.New())
	err := p.Connect(context.Background(), srv.URL, "")
	assert.ErrorIs(t, err, provider.ErrRejected)
}

func TestProvider_ProbeUnreachable(t *testing.T) {
	p := New(testPollConfig("http://127.0.0.1:1/poll"), log.New())
	assert.False(t, p.Probe(context.Background()))
}
