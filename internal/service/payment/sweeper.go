package payment

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
)

// Sweep expires sessions older than the configured TTL that are not waiting
// on settlement, and drops stale remembered outcomes. It returns how many
// payments were expired.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.now()
	s.outcomes.prune(now)
	if s.opts.TTL <= 0 {
		return 0
	}

	expired := 0
	for _, sess := range s.store.List(ctx) {
		if now.Sub(sess.CreatedAt) < s.opts.TTL {
			continue
		}

		var dec payment.Decision
		cur, err := s.store.Update(ctx, sess.ID, func(cur, p *payment.Session) error {
			d, err := payment.Apply(payment.FlowOf(*cur, p), payment.Event{Kind: payment.EventExpired})
			if err != nil {
				return err
			}
			d.Flow.Assign(cur, p, now)
			dec = d
			return nil
		})
		if errors.Is(err, payment.ErrNotFound) {
			// Partner of a pair expired earlier in this pass.
			continue
		}
		if err != nil {
			s.log.Warnw("expire payment session", "payment_id", sess.ID, "error", err)
			continue
		}
		if dec.Effect != payment.EffectRemove {
			continue
		}

		s.stats.expired.Add(1)
		s.log.Infow("payment expired", "payment_id", cur.ID, "age", now.Sub(sess.CreatedAt).String())
		s.release(ctx, cur, cur.Status)
		expired++
	}
	return expired
}

// RunSweeper calls Sweep every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.log.Infow("swept expired payments", "count", n, "live", s.store.Len())
			}
		}
	}
}
