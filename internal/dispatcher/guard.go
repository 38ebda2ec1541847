package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"boothvideo/internal/infra"
)

// DefaultTickTimeout bounds one shared tick. It stays below the default lease
// TTL so the lease outlives the tick it protects.
const DefaultTickTimeout = 50 * time.Second

// ErrTickInProgress is returned when another process holds the tick lease.
var ErrTickInProgress = errors.New("dispatcher: tick already in progress")

// Ticker runs one dispatch pass.
type Ticker interface {
	Tick(ctx context.Context) (Report, error)
}

// Locker grants a cross-process lease for one tick. Acquire returns
// ErrTickInProgress when the lease is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Guard serializes ticks. Concurrent callers in one process share a single
// in-flight tick and its report; across processes the optional Locker lets
// at most one tick run at a time. The shared tick is detached from the
// caller that started it: one caller going away does not cancel the others.
type Guard struct {
	next    Ticker
	locker  Locker
	group   singleflight.Group
	timeout time.Duration
	logger  *infra.Logger
}

func NewGuard(next Ticker, locker Locker, logger *infra.Logger) *Guard {
	return &Guard{next: next, locker: locker, timeout: DefaultTickTimeout, logger: infra.LoggerOrDiscard(logger)}
}

func (g *Guard) Tick(ctx context.Context) (Report, error) {
	v, err, shared := g.group.Do("tick", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		if g.locker == nil {
			return g.next.Tick(ctx)
		}
		release, err := g.locker.Acquire(ctx)
		if err != nil {
			return Report{}, err
		}
		defer release()
		return g.next.Tick(ctx)
	})
	if shared {
		g.logger.Debug().Msg("dispatcher: joined in-flight tick")
	}
	rep, ok := v.(Report)
	if !ok && err == nil {
		return Report{}, fmt.Errorf("dispatcher: unexpected tick result %T", v)
	}
	return rep, err
}

var (
	_ Ticker = (*Dispatcher)(nil)
	_ Ticker = (*Guard)(nil)
)
