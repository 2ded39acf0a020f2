package mw

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// panicWithStack carries a handler panic across the goroutine boundary
// with the stack captured at the panic site.
type panicWithStack struct {
	value interface{}
	stack []byte
}

// TimeoutConfig assigns deadlines by path pattern. Generation and edit
// requests wait on the upstream image provider and need far more time
// than a gallery read or a webhook.
type TimeoutConfig struct {
	// Default deadline for most endpoints
	Default time.Duration
	// Extended deadline for provider-bound work
	// (e.g. "/images/generations", "/images/edits")
	Extended time.Duration
	// Patterns that get the extended deadline
	ExtendedPatterns []string
	// Patterns with no deadline at all (e.g. "/r2/" blob downloads,
	// which are bounded by the server write timeout instead)
	SkipPatterns []string
}

// Timeout returns a middleware that enforces the configured deadlines.
// A request that outlives its deadline answers 504; handler panics are
// re-raised on the serving goroutine so Recoverer still sees them.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range cfg.SkipPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			timeout := cfg.Default
			for _, pattern := range cfg.ExtendedPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					timeout = cfg.Extended
					break
				}
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			panicChan := make(chan *panicWithStack, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- &panicWithStack{
							value: p,
							stack: debug.Stack(),
						}
					}
				}()
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				return
			case p := <-panicChan:
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.WriteHeader(http.StatusGatewayTimeout)
					return
				}
			}
		})
	}
}
