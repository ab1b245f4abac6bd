// Package process tracks the widget driver's lifetime: a cancellable
// context, a WaitGroup for in-flight components, and a degraded-mode flag
// raised through Degraded (nothing in the orchestrator calls it).
package process

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ProcessContext is passed to every long-lived component (the transport
// subscription, the room/state subscription, the capability UI dispatcher)
// so a single Shutdown call tears the whole driver down.
type ProcessContext struct {
	wg       *sync.WaitGroup
	ctx      context.Context
	shutdown context.CancelFunc
	degraded atomic.Bool
}

func NewProcessContext() *ProcessContext {
	ctx, shutdown := context.WithCancel(context.Background())
	return &ProcessContext{
		ctx:      ctx,
		shutdown: shutdown,
		wg:       &sync.WaitGroup{},
	}
}

func (b *ProcessContext) Context() context.Context {
	return b.ctx
}

func (b *ProcessContext) ComponentStarted() {
	b.wg.Add(1)
}

func (b *ProcessContext) ComponentFinished() {
	b.wg.Done()
}

// Shutdown cancels the context returned by Context, signalling every
// component to dispose (spec §3.6, §5: "disposing the orchestrator cancels
// all subscriptions, clears pending, and closes the transport").
func (b *ProcessContext) Shutdown() {
	b.shutdown()
}

func (b *ProcessContext) WaitForShutdown() <-chan struct{} {
	return b.ctx.Done()
}

func (b *ProcessContext) WaitForComponentsToFinish() {
	b.wg.Wait()
}

// Degraded marks the driver as no longer able to guarantee the ordering
// invariants of spec §5 (e.g. a room subscription dropped and had to
// resubscribe from a later point). It logs once per transition.
func (b *ProcessContext) Degraded() {
	if b.degraded.CAS(false, true) {
		logrus.Warn("widget driver running in a degraded state")
	}
}

func (b *ProcessContext) IsDegraded() bool {
	return b.degraded.Load()
}
