package status

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
	"golang.org/x/time/rate"
)

// Emitter is the part of a socket.io client the publisher needs.
type Emitter interface {
	Emit(event string, args ...any) error
}

// SocketIO publishes callbacks as socket.io events: "tick", "loop" and
// "unit_failed". Tick and loop events are throttled; failures never are.
type SocketIO struct {
	emitter Emitter
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewSocketIO publishes through e at most perSecond throttled events per
// second. perSecond <= 0 disables throttling.
func NewSocketIO(e Emitter, perSecond float64) *SocketIO {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &SocketIO{emitter: e, limiter: rate.NewLimiter(limit, 1)}
}

// Dropped counts the events skipped by throttling.
func (s *SocketIO) Dropped() int64 { return s.dropped.Load() }

func (s *SocketIO) TickCompleted(ctx context.Context, info TickInfo) {
	s.throttled(ctx, "tick", map[string]any{
		"tick":        info.Tick,
		"units":       info.Units,
		"stepped":     info.Stepped,
		"failed":      info.Failed,
		"duration_ms": info.Duration.Milliseconds(),
	})
}

func (s *SocketIO) LoopEntered(ctx context.Context, name string) {
	s.throttled(ctx, "loop", map[string]any{"loop": name})
}

func (s *SocketIO) UnitFailed(ctx context.Context, unit int, err error) {
	s.emit(ctx, "unit_failed", map[string]any{"unit": unit, "error": err.Error()})
}

func (s *SocketIO) throttled(ctx context.Context, event string, data map[string]any) {
	if !s.limiter.Allow() {
		s.dropped.Add(1)
		return
	}
	s.emit(ctx, event, data)
}

func (s *SocketIO) emit(ctx context.Context, event string, data map[string]any) {
	if err := s.emitter.Emit(event, data); err != nil {
		ctxlog.FromContext(ctx).Warn("Status event not sent.", "event", event, "error", err)
	}
}

// Dial connects a socket.io client over websocket and waits for the
// connection to be acknowledged.
func Dial(ctx context.Context, rawURL, namespace string, timeout time.Duration) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("status_url", rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("status url: %w", err)
	}
	opts := socket.DefaultOptions()
	opts.SetPath(parsed.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket(namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				connected <- err
				return
			}
		}
		connected <- fmt.Errorf("connect error")
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("status connection failed: %w", err)
		}
		logger.Info("📡 Status publisher connected.", "sid", io.Id())
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, ctx.Err()
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for the status server", timeout)
	}
}
