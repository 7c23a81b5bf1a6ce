package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/logger"
	"github.com/spineio/spineweb.go/pkg/models"
)

// Keeper refreshes and cancels subscriptions. connection.Endpoint implements it.
type Keeper interface {
	KeepUp(ctx context.Context, s *models.Subscription) error
	Cancel(ctx context.Context, s *models.Subscription) error
}

// KeepAliveService keeps registered subscriptions alive on the backend until
// they are unsubscribed, then cancels them there.
type KeepAliveService struct {
	keeper   Keeper
	interval time.Duration
	workers  int
	logger   logger.Logger

	mu   sync.Mutex
	subs []*EntitySubscription
}

var _ Registrar = (*KeepAliveService)(nil)

func NewKeepAliveService(keeper Keeper, interval time.Duration, log logger.Logger) *KeepAliveService {
	if interval <= 0 {
		interval = constants.DefaultKeepAliveInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KeepAliveService{
		keeper:   keeper,
		interval: interval,
		workers:  constants.DefaultKeepAliveWorkers,
		logger:   log,
	}
}

func (k *KeepAliveService) Add(es *EntitySubscription) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.subs = append(k.subs, es)
}

// Len returns the number of subscriptions being kept.
func (k *KeepAliveService) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.subs)
}

// Run refreshes subscriptions every interval until ctx is done.
func (k *KeepAliveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.Refresh(ctx)
		}
	}
}

// Refresh keeps up open subscriptions and cancels closed ones, dropping them.
// Failures are logged.
func (k *KeepAliveService) Refresh(ctx context.Context) {
	k.mu.Lock()
	var open, closed []*EntitySubscription
	for _, es := range k.subs {
		if es.Closed() {
			closed = append(closed, es)
		} else {
			open = append(open, es)
		}
	}
	k.subs = open
	k.mu.Unlock()

	p := pool.New().WithContext(ctx).WithMaxGoroutines(k.workers)
	for _, es := range closed {
		p.Go(func(ctx context.Context) error {
			if err := k.keeper.Cancel(ctx, es.Subscription()); err != nil {
				k.logger.Warn("cannot cancel subscription", "id", es.Subscription().ID.Value, "error", err)
			}
			return nil
		})
	}
	for _, es := range open {
		p.Go(func(ctx context.Context) error {
			if err := k.keeper.KeepUp(ctx, es.Subscription()); err != nil {
				k.logger.Warn("cannot keep up subscription", "id", es.Subscription().ID.Value, "error", err)
			}
			return nil
		})
	}
	_ = p.Wait()

	k.logger.Debug("subscriptions refreshed", "kept", len(open), "cancelled", len(closed))
}
