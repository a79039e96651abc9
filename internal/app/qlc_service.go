package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/history"
	"github.com/dokzlo13/qlcremote/internal/session"
	"github.com/dokzlo13/qlcremote/internal/settings"
	"github.com/dokzlo13/qlcremote/internal/transport"
)

// QLCService wraps the WebSocket client and the session driving it.
type QLCService struct {
	cfg *config.Config

	Client  *transport.Client
	Session *session.Session
}

// NewQLCService creates the client and session, not yet connected.
func NewQLCService(cfg *config.Config, store *settings.Store, hist history.Log) *QLCService {
	client := transport.New(transport.Config{
		Path:             cfg.QLC.Path,
		HandshakeTimeout: cfg.QLC.HandshakeTimeout.Duration(),
		WriteTimeout:     cfg.QLC.WriteTimeout.Duration(),
	})

	sess := session.New(session.Options{
		Settings:         store,
		Transport:        client,
		History:          hist,
		RateLimitRPS:     cfg.Output.RateLimitRPS,
		Burst:            cfg.Output.Burst,
		DiscoveryTimeout: cfg.Discovery.Timeout.Duration(),
		Reconnect: session.ReconnectPolicy{
			Auto:     cfg.Reconnect.Auto,
			Interval: cfg.Reconnect.Interval.Duration(),
			Pending:  cfg.Reconnect.Pending.Duration(),
			Grace:    cfg.Reconnect.Grace.Duration(),
		},
	})

	return &QLCService{
		cfg:     cfg,
		Client:  client,
		Session: sess,
	}
}

// Start begins the session loops and the first connection attempt.
func (s *QLCService) Start(ctx context.Context) error {
	return s.Session.Start(ctx)
}

// Close tears the session down and closes the client.
func (s *QLCService) Close() {
	s.Session.Close()
	s.Client.Close()
	log.Debug().Msg("QLC+ service closed")
}
