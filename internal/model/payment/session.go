package payment

import "time"

// Role tags which leg of a paired flow a session represents.
type Role string

const (
	// RoleFee is the platform fee leg, always signed first.
	RoleFee Role = "FEE_LEG"
	// RoleUser is the payer's principal transfer.
	RoleUser Role = "USER_LEG"
)

// Status is the lifecycle position shared by every leg of a payment.
type Status string

const (
	StatusWaitingFee  Status = "WAITING_FEE"
	StatusFeeSigned   Status = "FEE_SIGNED"
	StatusWaitingUser Status = "WAITING_USER"
	StatusUserSigned  Status = "USER_SIGNED"
	StatusSigned      Status = "SIGNED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PendingSettlement reports whether every leg is signed and the settlement
// disposition is still outstanding.
func (s Status) PendingSettlement() bool {
	return s == StatusUserSigned || s == StatusSigned
}

// Session is the in-flight record of one signing leg.
type Session struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role,omitempty"`
	PairID      string    `json:"pairId,omitempty"`
	Status      Status    `json:"status"`
	RedirectURL string    `json:"redirectUrl"`
	Signed      bool      `json:"signed"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Paired reports whether the session is one half of a fee + user flow.
func (s Session) Paired() bool {
	return s.PairID != ""
}

// Leg returns the role the session plays; single-leg flows are user legs.
func (s Session) Leg() Role {
	if s.Role == "" {
		return RoleUser
	}
	return s.Role
}
