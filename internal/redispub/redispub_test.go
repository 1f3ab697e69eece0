package redispub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/envelope"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/provider"
)

func testRedisConfig() *config.RedisConfig {
	return &config.RedisConfig{
		Address:       "127.0.0.1:1",
		ChannelPrefix: "tunnel:",
		Enabled:       true,
		Priority:      20,
		DialTimeout:   time.Second,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
		PingTimeout:   time.Second,
	}
}

func TestChannelFor(t *testing.T) {
	p := New(testRedisConfig(), log.New())
	assert.Equal(t, "tunnel:conversation:42", p.channelFor("conversation:42"))
	assert.Equal(t, "tunnel:presence", p.channelFor("presence"))
}

func TestProvider_SendNotConnected(t *testing.T) {
	p := New(testRedisConfig(), log.New())
	err := p.Send(context.Background(), envelope.New("conversation:1", "message:new", nil, ""))
	assert.ErrorIs(t, err, provider.ErrNotConnected)
}

func TestProvider_ProbeUnreachable(t *testing.T) {
	p := New(testRedisConfig(), log.New())
	assert.False(t, p.Probe(context.Background()))
}

func TestProvider_HealthBeforeConnect(t *testing.T) {
	p := New(testRedisConfig(), log.New())
	assert.False(t, p.Health().IsHealthy)
	assert.Equal(t, "redis", p.Name())
}

func TestProvider_DisconnectBeforeConnect(t *testing.T) {
	p := New(testRedisConfig(), log.New())
	p.Disconnect()
	p.Disconnect()
}
