package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/service/settlement"
)

// Outcome is what a confirmation led to.
type Outcome struct {
	PaymentID string
	Status    payment.Status
	// RedirectURL is the next signing step when Status is FEE_SIGNED.
	RedirectURL    string
	Duplicate      bool
	TransactionIDs []string
}

// Confirm applies a signing result for id delivered over ch. signed=false
// means the payer declined in the wallet.
//
// The check-and-transition runs inside one store update, so of any number
// of concurrent confirmations exactly one observes the pre-settlement state
// and calls the settlement service. Unknown ids return payment.ErrNotFound
// unless the payment finished recently, in which case its remembered status
// comes back as a duplicate.
func (s *Service) Confirm(ctx context.Context, id string, ch payment.Channel, signed bool) (Outcome, error) {
	ev := payment.Event{Kind: payment.EventSigned, Channel: ch}
	if !signed {
		ev.Kind = payment.EventDeclined
	}

	var (
		dec     payment.Decision
		partner *payment.Session
	)
	sess, err := s.store.Update(ctx, id, func(sess, p *payment.Session) error {
		ev.Leg = sess.Leg()
		d, err := payment.Apply(payment.FlowOf(*sess, p), ev)
		if err != nil {
			return err
		}
		d.Flow.Assign(sess, p, s.now())
		dec = d
		if p != nil {
			cp := *p
			partner = &cp
		}
		return nil
	})
	if errors.Is(err, payment.ErrNotFound) {
		if status, ok := s.outcomes.lookup(id, s.now()); ok {
			s.stats.duplicates.Add(1)
			s.log.Debugw("confirmation for finished payment", "payment_id", id, "channel", ch, "status", status)
			return Outcome{PaymentID: id, Status: status, Duplicate: true}, nil
		}
		s.log.Warnw("confirmation for unknown payment", "payment_id", id, "channel", ch)
		return Outcome{}, fmt.Errorf("confirm %s: %w", id, err)
	}
	if err != nil {
		s.log.Warnw("confirmation rejected", "payment_id", id, "channel", ch, "error", err)
		return Outcome{}, fmt.Errorf("confirm %s: %w", id, err)
	}

	if dec.Duplicate {
		s.stats.duplicates.Add(1)
		s.log.Debugw("duplicate confirmation", "payment_id", id, "channel", ch, "status", sess.Status)
	} else if dec.Changed() {
		s.log.Infow("payment advanced", "payment_id", id, "channel", ch, "path", dec.Path)
	}

	out := Outcome{PaymentID: id, Status: sess.Status, Duplicate: dec.Duplicate}
	switch dec.Effect {
	case payment.EffectRedirectNext:
		if partner != nil {
			out.RedirectURL = partner.RedirectURL
		}
	case payment.EffectSettle:
		return s.settle(ctx, sess, partner), nil
	case payment.EffectRemove:
		s.release(ctx, sess, sess.Status)
	}
	return out, nil
}

// settle performs the single settlement call for a fully signed payment and
// records the disposition. The call is detached from ctx cancellation so a
// payer closing the browser cannot strand the payment mid-settlement.
func (s *Service) settle(ctx context.Context, sess payment.Session, partner *payment.Session) Outcome {
	report := settlement.Report{UserID: sess.ID}
	if partner != nil {
		if sess.Leg() == payment.RoleFee {
			report.UserID, report.FeeID = partner.ID, sess.ID
		} else {
			report.FeeID = partner.ID
		}
	}
	primary := report.UserID
	if report.FeeID != "" {
		primary = report.FeeID
	}
	report.IdempotencyKey = "settle:" + primary

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SettlementTimeout)
	defer cancel()

	s.stats.settlements.Add(1)
	disp, err := s.settler.ReportSigned(callCtx, report)

	ev := payment.Event{Kind: payment.EventSettled}
	switch {
	case err != nil:
		ev.Kind = payment.EventSettlementFailed
		s.log.Errorw("settlement call failed, manual reconciliation required",
			"payment_ids", report.IDs(),
			"idempotency_key", report.IdempotencyKey,
			"error", err,
		)
	case !disp.Completed():
		ev.Kind = payment.EventSettlementFailed
		s.log.Errorw("settlement not completed, manual reconciliation required",
			"payment_ids", report.IDs(),
			"status", disp.Status,
			"message", disp.Message,
		)
	}

	final := payment.StatusFailed
	_, uerr := s.store.Update(callCtx, sess.ID, func(cur, p *payment.Session) error {
		d, err := payment.Apply(payment.FlowOf(*cur, p), ev)
		if err != nil {
			return err
		}
		d.Flow.Assign(cur, p, s.now())
		final = d.Flow.Status
		return nil
	})
	if uerr != nil {
		s.log.Errorw("record settlement disposition", "payment_id", sess.ID, "error", uerr)
	}

	s.release(callCtx, sess, final)
	return Outcome{
		PaymentID:      sess.ID,
		Status:         final,
		TransactionIDs: disp.TransactionIDs(),
	}
}

// release removes a terminal payment. The outcome is remembered under every
// leg id before the sessions leave the store, so a confirmation racing the
// removal finds one or the other.
func (s *Service) release(ctx context.Context, sess payment.Session, status payment.Status) {
	now := s.now()
	s.outcomes.remember(sess.ID, status, now)
	if sess.Paired() {
		s.outcomes.remember(sess.PairID, status, now)
	}

	removed, err := s.store.Remove(ctx, sess.ID)
	if err != nil {
		s.log.Warnw("remove payment session", "payment_id", sess.ID, "error", err)
		return
	}

	switch status {
	case payment.StatusCompleted:
		s.stats.completed.Add(1)
	default:
		s.stats.failed.Add(1)
	}
	s.log.Infow("payment finished", "payment_id", sess.ID, "status", status, "removed", len(removed))
}
