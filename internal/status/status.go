// Package status defines the callbacks the runtime invokes at well-defined
// points of a run: after every tick, when a loop starts and when a unit
// fails. A headless run installs Noop, so every callback is free.
package status

import (
	"context"
	"time"

	"github.com/vk/agentgrid/internal/ctxlog"
)

// TickInfo summarises one scheduler tick.
type TickInfo struct {
	Tick     int64
	Units    int
	Stepped  int
	Failed   int
	Duration time.Duration
}

// Reporter receives runtime status callbacks. Implementations must be safe
// for concurrent use: LoopEntered and UnitFailed are called from workers.
type Reporter interface {
	TickCompleted(ctx context.Context, info TickInfo)
	LoopEntered(ctx context.Context, name string)
	UnitFailed(ctx context.Context, unit int, err error)
}

// Noop is the headless reporter.
type Noop struct{}

func (Noop) TickCompleted(context.Context, TickInfo) {}
func (Noop) LoopEntered(context.Context, string)     {}
func (Noop) UnitFailed(context.Context, int, error)  {}

// Log writes every callback to the context logger at debug level.
type Log struct{}

func (Log) TickCompleted(ctx context.Context, info TickInfo) {
	ctxlog.FromContext(ctx).Debug("⏱️ Tick completed.",
		"tick", info.Tick, "units", info.Units, "stepped", info.Stepped, "failed", info.Failed, "duration", info.Duration)
}

func (Log) LoopEntered(ctx context.Context, name string) {
	ctxlog.FromContext(ctx).Debug("Loop entered.", "loop", name)
}

func (Log) UnitFailed(ctx context.Context, unit int, err error) {
	ctxlog.FromContext(ctx).Debug("Unit failed.", "unit", unit, "error", err)
}

// Multi fans callbacks out to several reporters.
type Multi []Reporter

func (m Multi) TickCompleted(ctx context.Context, info TickInfo) {
	for _, r := range m {
		r.TickCompleted(ctx, info)
	}
}

func (m Multi) LoopEntered(ctx context.Context, name string) {
	for _, r := range m {
		r.LoopEntered(ctx, name)
	}
}

func (m Multi) UnitFailed(ctx context.Context, unit int, err error) {
	for _, r := range m {
		r.UnitFailed(ctx, unit, err)
	}
}
