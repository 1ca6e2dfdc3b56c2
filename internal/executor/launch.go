package executor

import (
	"context"
	"sync"
)

// LaunchReporter is implemented by invokers that call Launched once their
// agent process has started. Invokers that do not implement it count as
// launched as soon as Invoke is entered.
type LaunchReporter interface {
	ReportsLaunch() bool
}

type launchKey struct{}

type launchSignal struct {
	once sync.Once
	ch   chan struct{}
}

// WithLaunchSignal returns a context whose invoker reports its launch on the
// returned channel. The channel is closed at most once.
func WithLaunchSignal(ctx context.Context) (context.Context, <-chan struct{}) {
	sig := &launchSignal{ch: make(chan struct{})}
	return context.WithValue(ctx, launchKey{}, sig), sig.ch
}

// Launched reports that the agent for ctx has started, or will never start.
// It is a no-op without a launch signal and safe to call repeatedly.
func Launched(ctx context.Context) {
	if sig, ok := ctx.Value(launchKey{}).(*launchSignal); ok {
		sig.once.Do(func() { close(sig.ch) })
	}
}
