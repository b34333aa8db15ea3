package http

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/service"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/store"
	"github.com/CrispyPorkGang/boxpacks/internal/checkout"
)

type flowEntry struct {
	store    *store.Store
	flow     *checkout.Flow
	lastSeen time.Time
}

// Flows holds one checkout flow per cart session. A session that was evicted
// and reloaded gets a fresh flow bound to its new store.
type Flows struct {
	mu      sync.Mutex
	orders  checkout.OrderCreator
	timeout time.Duration
	log     *zap.Logger
	entries map[string]*flowEntry
	now     func() time.Time
}

func NewFlows(oc checkout.OrderCreator, submitTimeout time.Duration, log *zap.Logger) *Flows {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flows{
		orders:  oc,
		timeout: submitTimeout,
		log:     log,
		entries: make(map[string]*flowEntry),
		now:     time.Now,
	}
}

func (f *Flows) For(sess *service.Session) *checkout.Flow {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[sess.ID]
	if !ok || e.store != sess.Store {
		e = &flowEntry{
			store: sess.Store,
			flow:  checkout.NewFlow(sess.Store, f.orders, f.timeout, f.log.With(zap.String("session_id", sess.ID))),
		}
		f.entries[sess.ID] = e
	}
	e.lastSeen = f.now()
	return e.flow
}

// EvictIdle drops flows unused for maxIdle. A flow that is submitting is kept.
func (f *Flows) EvictIdle(maxIdle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := f.now().Add(-maxIdle)
	n := 0
	for id, e := range f.entries {
		if !e.lastSeen.Before(cutoff) {
			continue
		}
		if e.flow.Submitting() {
			continue
		}
		delete(f.entries, id)
		n++
	}
	return n
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (f *Flows) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := f.EvictIdle(maxIdle); n > 0 {
				f.log.Debug("evicted idle checkout flows", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (f *Flows) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
