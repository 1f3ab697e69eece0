// Package main starts the realtime tunnel demo daemon. It is the composition
// root: it builds the provider candidates from configuration, owns the one
// orchestrator instance and hands it to the presence tracker.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openagora/tunnel/internal/config"
	"github.com/openagora/tunnel/internal/log"
	"github.com/openagora/tunnel/internal/longpoll"
	"github.com/openagora/tunnel/internal/mqtt"
	"github.com/openagora/tunnel/internal/presence"
	"github.com/openagora/tunnel/internal/provider"
	"github.com/openagora/tunnel/internal/redispub"
	"github.com/openagora/tunnel/internal/tunnel"
	"github.com/openagora/tunnel/internal/ws"
)

func run() int {
	logger := log.New()
	logger.Info("Starting tunnel daemon")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	candidates := buildCandidates(cfg, logger)
	tun := tunnel.New(&cfg.Tunnel, candidates, logger)
	tracker := presence.NewTracker(&cfg.Presence, tun, logger)
	defer tracker.Close()

	return runMainLoop(tun, tracker, cfg, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Providers: ws=%v(%d) mqtt=%v(%d) redis=%v(%d) poll=%v(%d)",
		cfg.WS.Enabled, cfg.WS.Priority,
		cfg.MQTT.Enabled, cfg.MQTT.Priority,
		cfg.Redis.Enabled, cfg.Redis.Priority,
		cfg.Poll.Enabled, cfg.Poll.Priority)
	logger.Info("Health: interval=%v threshold=%d, Reconnect: base=%v max=%v",
		cfg.Tunnel.HealthInterval, cfg.Tunnel.UnhealthyThreshold,
		cfg.Tunnel.ReconnectBase, cfg.Tunnel.ReconnectMax)
	return cfg, nil
}

// buildCandidates assembles the enabled providers in configuration order.
// The orchestrator sorts them by descending priority.
func buildCandidates(cfg *config.Config, logger *log.Logger) []*provider.Descriptor {
	var candidates []*provider.Descriptor

	if cfg.WS.Enabled {
		candidates = append(candidates, &provider.Descriptor{
			Provider: ws.New(&cfg.WS, logger),
			Priority: cfg.WS.Priority,
			Endpoint: cfg.WS.URL,
		})
	}
	if cfg.MQTT.Enabled {
		candidates = append(candidates, &provider.Descriptor{
			Provider: mqtt.New(&cfg.MQTT, logger),
			Priority: cfg.MQTT.Priority,
			Endpoint: cfg.MQTT.Broker,
		})
	}
	if cfg.Redis.Enabled {
		candidates = append(candidates, &provider.Descriptor{
			Provider: redispub.New(&cfg.Redis, logger),
			Priority: cfg.Redis.Priority,
			Endpoint: cfg.Redis.Address,
		})
	}
	if cfg.Poll.Enabled {
		candidates = append(candidates, &provider.Descriptor{
			Provider: longpoll.New(&cfg.Poll, logger),
			Priority: cfg.Poll.Priority,
			Endpoint: cfg.Poll.BaseURL,
		})
	}
	return candidates
}

func runMainLoop(tun *tunnel.Tunnel, tracker *presence.Tracker, cfg *config.Config, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := tun.Connect(ctx); err != nil {
		// Not fatal: the reconnection policy keeps retrying in the background.
		logger.Warn("Initial connect failed, retrying in background: %v", err)
	} else {
		logger.Info("Tunnel connected via %s", tun.ActiveProvider())
	}

	errChan := make(chan error, 1)
	go func() {
		if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()
	go heartbeatLoop(ctx, tun, tracker, cfg, logger)

	logger.Info("Tunnel daemon started")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
		cancel()
		return handleGracefulShutdown(tun, cfg, logger)

	case err := <-errChan:
		logger.Error("Presence tracker error: %v", err)
		cancel()
		tun.Disconnect()
		return 1
	}
}

// heartbeatLoop announces the configured identity while the tunnel is up.
func heartbeatLoop(ctx context.Context, tun *tunnel.Tunnel, tracker *presence.Tracker, cfg *config.Config, logger *log.Logger) {
	if cfg.Tunnel.Identity == "" {
		return
	}

	ticker := time.NewTicker(cfg.Presence.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tun.State() != tunnel.StateConnected {
				continue
			}
			if err := tracker.Heartbeat(ctx, cfg.Tunnel.Identity); err != nil {
				logger.Debug("Heartbeat failed: %v", err)
			}
		}
	}
}

func handleGracefulShutdown(tun *tunnel.Tunnel, cfg *config.Config, logger *log.Logger) int {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Tunnel.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		tun.Disconnect()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown completed")
		logger.Info("Tunnel daemon stopped")
		return 0
	case <-shutdownCtx.Done():
		logger.Error("Shutdown timeout exceeded")
		return 1
	}
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
