// Package reporting forwards errors to Sentry. Every function is a no-op
// until Init is called with a DSN.
package reporting

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Meschack/lyriks/circuitbreaker"
	"github.com/Meschack/lyriks/logcolors"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	log "github.com/sirupsen/logrus"
)

var enabled atomic.Bool

type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Init configures the Sentry client. An empty DSN leaves reporting disabled.
func Init(cfg Config) error {
	if cfg.DSN == "" {
		log.Infof("%s No DSN configured, error reporting disabled", logcolors.LogSentry)
		return nil
	}
	return initWith(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
}

func initWith(opts sentry.ClientOptions) error {
	if err := sentry.Init(opts); err != nil {
		return err
	}
	enabled.Store(true)
	log.Infof("%s Error reporting enabled (env: %s)", logcolors.LogSentry, opts.Environment)
	return nil
}

func Enabled() bool {
	return enabled.Load()
}

// CaptureError reports err with the given tags, using the request's hub when
// ctx carries one.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if !Enabled() || err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// Middleware attaches a hub to every request and reports panics before
// re-panicking. Without a DSN it returns next unchanged.
func Middleware(next http.Handler) http.Handler {
	if !Enabled() {
		return next
	}
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(next)
}

// CircuitBreakerHook reports every transition into OPEN.
func CircuitBreakerHook(name string, from, to circuitbreaker.State, failures int) {
	if !Enabled() || to != circuitbreaker.StateOpen {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("circuit_breaker", name)
		scope.SetTag("from_state", from.String())
		scope.SetExtra("failures", failures)
		scope.SetLevel(sentry.LevelWarning)
		sentry.CaptureMessage("Circuit breaker " + name + " opened")
	})
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	if !Enabled() {
		return
	}
	if !sentry.Flush(timeout) {
		log.Warnf("%s Flush timed out, some events may be lost", logcolors.LogSentry)
	}
}
