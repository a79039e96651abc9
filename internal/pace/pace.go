// Package pace provides the cancellable delay used between outgoing commands.
package pace

import (
	"context"
	"time"
)

// Func waits for d or until ctx ends, returning ctx.Err() in the latter case.
// Components take a Func so tests can record pauses instead of sleeping.
type Func func(ctx context.Context, d time.Duration) error

// Sleep is the real Func. A zero or negative d still yields to ctx once.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
