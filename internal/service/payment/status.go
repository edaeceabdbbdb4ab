package payment

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
)

// Next tells a polling client what to do.
type Next string

const (
	NextWait     Next = "WAIT"
	NextFeeSign  Next = "FEE_SIGN"
	NextUserSign Next = "USER_SIGN"
	NextDone     Next = "DONE"
)

// StatusView is the answer to a status query.
type StatusView struct {
	Next        Next           `json:"next"`
	RedirectURL string         `json:"redirectUrl,omitempty"`
	Message     string         `json:"message,omitempty"`
	Outcome     payment.Status `json:"outcome,omitempty"`
}

// Status reports what the payer behind id should do next. It only reads.
func (s *Service) Status(ctx context.Context, id string) StatusView {
	if id == "" {
		return StatusView{Next: NextWait, Message: "no payment in progress"}
	}

	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, payment.ErrNotFound) {
		view := StatusView{Next: NextDone}
		if status, ok := s.outcomes.lookup(id, s.now()); ok {
			view.Outcome = status
		}
		return view
	}
	if err != nil {
		return StatusView{Next: NextWait}
	}

	switch sess.Status {
	case payment.StatusWaitingFee:
		return StatusView{Next: NextFeeSign, RedirectURL: s.legURL(ctx, sess, payment.RoleFee), Message: "fee signing pending"}
	case payment.StatusFeeSigned, payment.StatusWaitingUser:
		return StatusView{Next: NextUserSign, RedirectURL: s.legURL(ctx, sess, payment.RoleUser), Message: "payment signing pending"}
	case payment.StatusUserSigned, payment.StatusSigned:
		return StatusView{Next: NextWait, Message: "pending settlement"}
	case payment.StatusCompleted:
		return StatusView{Next: NextDone, Outcome: payment.StatusCompleted}
	default:
		return StatusView{Next: NextWait}
	}
}

func (s *Service) legURL(ctx context.Context, sess payment.Session, role payment.Role) string {
	if sess.Leg() == role {
		return sess.RedirectURL
	}
	if !sess.Paired() {
		return ""
	}
	partner, err := s.store.Get(ctx, sess.PairID)
	if err != nil {
		return ""
	}
	return partner.RedirectURL
}

// Watch emits the status view for id whenever it changes, polling every
// interval. The channel closes after a DONE view or when ctx ends.
func (s *Service) Watch(ctx context.Context, id string, interval time.Duration) <-chan StatusView {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	out := make(chan StatusView, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last StatusView
		first := true
		for {
			view := s.Status(ctx, id)
			if first || view != last {
				select {
				case out <- view:
				case <-ctx.Done():
					return
				}
				first = false
				last = view
			}
			if view.Next == NextDone {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
