package payment

import (
	"context"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
)

var (
	// ErrNotFound means no live session carries the id.
	ErrNotFound = apperr.New(apperr.KindNotFound, "payment session not found")
	// ErrAlreadyExists means a live session already carries the id.
	ErrAlreadyExists = apperr.New(apperr.KindConflict, "payment session already exists")
)

// Mutator edits a session and, for paired flows, its partner. Returning an
// error discards both edits.
type Mutator func(s *Session, partner *Session) error

// Store keeps live payment sessions. Update is the only way state changes and
// runs the mutator atomically with respect to other updates on the same pair.
type Store interface {
	Create(ctx context.Context, sessions ...Session) error
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, fn Mutator) (Session, error)
	Remove(ctx context.Context, id string) ([]Session, error)
	List(ctx context.Context) []Session
	Len() int
}
