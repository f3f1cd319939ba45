package order

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	retryInterval    = 5 * time.Second
	retryMaxAttempts = 5
)

// tokenJob is one pending token write.
type tokenJob struct {
	orderID  string
	token    string
	attempts int
}

// tokenRetrier re-attempts redemption-token writes that failed after an
// order committed. The order and its capacity reservation are authoritative
// regardless; this loop only repairs the persisted token copy instead of
// silently dropping the failure.
type tokenRetrier struct {
	store Store
	lg    *zap.Logger

	mu      sync.Mutex
	pending []tokenJob
}

func newTokenRetrier(store Store, lg *zap.Logger) *tokenRetrier {
	return &tokenRetrier{store: store, lg: lg}
}

func (r *tokenRetrier) enqueue(orderID, tok string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, tokenJob{orderID: orderID, token: tok})
}

// run drains the pending queue on a fixed interval until ctx is cancelled.
func (r *tokenRetrier) run(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

func (r *tokenRetrier) flush(ctx context.Context) {
	r.mu.Lock()
	jobs := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, j := range jobs {
		err := r.store.AttachToken(ctx, j.orderID, j.token)
		if err == nil {
			r.lg.Info("token attach recovered", zap.String("order_id", j.orderID))
			continue
		}

		j.attempts++
		if j.attempts >= retryMaxAttempts {
			// Manual reconciliation territory: the order exists without a
			// persisted token, and the caller already received theirs.
			r.lg.Error("token attach abandoned",
				zap.String("order_id", j.orderID),
				zap.Int("attempts", j.attempts),
				zap.Error(err),
			)
			continue
		}

		r.mu.Lock()
		r.pending = append(r.pending, j)
		r.mu.Unlock()
	}
}
