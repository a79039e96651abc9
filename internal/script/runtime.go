// Package script runs Lua macros against a session.
//
// Scripts see three preloaded modules: dmx (channel writes and keypad
// lines), vc (virtual console) and log.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/qlcremote/internal/pace"
	"github.com/dokzlo13/qlcremote/internal/script/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// Target is what scripts control. *session.Session implements it.
type Target interface {
	modules.Desk
	modules.Console
}

// work is executed on the Lua VM. All Lua execution goes through it.
type work func(ctx context.Context)

// Runtime owns one Lua VM and the single goroutine allowed to touch it.
type Runtime struct {
	L *lua.LState

	workQueue chan work

	// Closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a runtime bound to target. sleep paces dmx.sleep; nil uses
// the real clock.
func New(target Target, sleep pace.Func) *Runtime {
	L := lua.NewState()

	r := &Runtime{
		L:         L,
		workQueue: make(chan work, 16),
		closing:   make(chan struct{}),
	}

	L.PreloadModule("log", modules.NewLogModule().Loader)
	L.PreloadModule("dmx", modules.NewDMXModule(target, sleep).Loader)
	L.PreloadModule("vc", modules.NewVCModule(target).Loader)

	return r
}

// Close stops accepting work and closes the Lua state. Call it after Serve
// has returned.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	r.L.Close()
}

// exec queues fn and waits for its result.
func (r *Runtime) exec(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := work(func(c context.Context) {
		done <- fn(c)
	})

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Serve runs the Lua worker until ctx ends or the runtime closes. It is
// the only goroutine that touches the VM.
func (r *Runtime) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closing:
			return
		case w := <-r.workQueue:
			r.executeWork(ctx, w)
		}
	}
}

// executeWork runs one item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, w work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Modules reach the caller's context through L.Context()
	r.L.SetContext(ctx)
	w(ctx)
}

// Run executes the Lua file at path and waits for it to finish.
// Cancelling ctx interrupts the script.
func (r *Runtime) Run(ctx context.Context, path string) error {
	log.Info().Str("path", path).Msg("Running Lua script")

	err := r.exec(ctx, func(context.Context) error {
		r.L.SetContext(ctx)
		return r.L.DoFile(path)
	})
	if err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Str("path", path).Msg("Lua script finished")
	return nil
}

// RunString executes a chunk of Lua source.
func (r *Runtime) RunString(ctx context.Context, source string) error {
	err := r.exec(ctx, func(context.Context) error {
		r.L.SetContext(ctx)
		return r.L.DoString(source)
	})
	if err != nil {
		return fmt.Errorf("failed to execute Lua chunk: %w", err)
	}
	return nil
}
