package async

import (
	"context"
	"log"
	"runtime/debug"
	"time"
)

// SafeGo runs fn in a goroutine with panic recovery and a timeout.
// Use it instead of bare `go func()` for background work a handler does
// not wait on, so a panic there cannot crash the process and a hung call
// cannot leak the goroutine forever.
//
// The child context is derived from context.Background() rather than the
// request context: the request context is cancelled the moment the
// response is written, which would cancel the background work the handler
// just scheduled.
func SafeGo(timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoNoError is like SafeGo for functions that don't return errors
func SafeGoNoError(timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
