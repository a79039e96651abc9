package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/script"
)

// ScriptService wraps the Lua runtime and runs the configured startup
// script.
type ScriptService struct {
	cfg     *config.Config
	Runtime *script.Runtime

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScriptService creates a new ScriptService.
func NewScriptService(cfg *config.Config, target script.Target) *ScriptService {
	return &ScriptService{
		cfg:     cfg,
		Runtime: script.New(target, nil),
	}
}

// Start begins the Lua worker goroutine and runs the startup script.
func (s *ScriptService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	// The worker is the ONLY goroutine that touches Lua
	go func() {
		defer close(s.done)
		s.Runtime.Serve(ctx)
	}()

	if s.cfg.Script != "" {
		go func() {
			if err := s.Runtime.Run(ctx, s.cfg.Script); err != nil {
				log.Error().Err(err).Str("path", s.cfg.Script).Msg("Startup script failed")
			}
		}()
	}
}

// Run executes a script file on the worker and waits for it.
func (s *ScriptService) Run(ctx context.Context, path string) error {
	return s.Runtime.Run(ctx, path)
}

// Close stops the worker, waits for it and closes the Lua runtime.
func (s *ScriptService) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.Runtime.Close()
}
