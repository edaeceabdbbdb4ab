package payment

import "time"

// FlowOf assembles the pair-level view from a session and its partner.
// partner is nil for single-leg flows.
func FlowOf(s Session, partner *Session) Flow {
	f := Flow{Status: s.Status, Paired: s.Paired()}
	markSigned(&f, s)
	if partner != nil {
		markSigned(&f, *partner)
	}
	return f
}

func markSigned(f *Flow, s Session) {
	if !s.Signed {
		return
	}
	switch s.Leg() {
	case RoleFee:
		f.FeeSigned = true
	case RoleUser:
		f.UserSigned = true
	}
}

// Assign writes the flow back onto both legs so they keep sharing one status.
func (f Flow) Assign(s *Session, partner *Session, now time.Time) {
	for _, leg := range []*Session{s, partner} {
		if leg == nil {
			continue
		}
		signed := f.UserSigned
		if leg.Leg() == RoleFee {
			signed = f.FeeSigned
		}
		if leg.Status != f.Status || leg.Signed != signed {
			leg.UpdatedAt = now
		}
		leg.Status = f.Status
		leg.Signed = signed
	}
}
