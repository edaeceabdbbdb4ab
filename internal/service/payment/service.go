package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/service/settlement"
)

// ErrInvalidRequest wraps every initiation validation failure.
var ErrInvalidRequest = apperr.New(apperr.KindInvalidRequest, "invalid payment request")

// amountScale is the XRP drop precision.
const amountScale = 6

// Settler is the part of the settlement service the coordinator depends on.
type Settler interface {
	Initiate(ctx context.Context, req settlement.InitiateRequest, requestID string) (settlement.InitiateResponse, error)
	ReportSigned(ctx context.Context, report settlement.Report) (settlement.Disposition, error)
}

// Options tunes Service.
type Options struct {
	// ReturnURL is handed to the signing provider; "{id}" is replaced by the
	// signed payload's id when the payer is sent back.
	ReturnURL         string
	SettlementTimeout time.Duration
	TTL               time.Duration
	OutcomeRetention  time.Duration
	DefaultFeeLeg     bool
}

// Service coordinates payment sessions between the signing provider and the
// settlement service.
type Service struct {
	store    payment.Store
	settler  Settler
	log      *zap.SugaredLogger
	opts     Options
	outcomes *outcomeLog
	stats    counters
	now      func() time.Time
}

// NewService wires the coordinator. It panics on nil dependencies.
func NewService(store payment.Store, settler Settler, opts Options, log *zap.SugaredLogger) *Service {
	if store == nil {
		panic("payment: nil store")
	}
	if settler == nil {
		panic("payment: nil settler")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = 10 * time.Second
	}

	return &Service{
		store:    store,
		settler:  settler,
		log:      log,
		opts:     opts,
		outcomes: newOutcomeLog(opts.OutcomeRetention),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InitiateInput is what the payer submits.
type InitiateInput struct {
	UserName           string `json:"userName"`
	SenderAddress      string `json:"senderAddress"`
	DestinationAddress string `json:"destinationAddress"`
	Amount             string `json:"amount"`
	// Batch selects the paired flow; nil falls back to the configured default.
	Batch *bool `json:"batch,omitempty"`
}

// InitiateResult tells the caller where to send the payer first.
type InitiateResult struct {
	PaymentID   string `json:"paymentId"`
	RedirectURL string `json:"redirectUrl"`
	Legs        int    `json:"legs"`
}

// Initiate registers a payment with the settlement service and stores one
// session per signing leg.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (InitiateResult, error) {
	req, err := s.buildRequest(in)
	if err != nil {
		return InitiateResult{}, err
	}

	requestID := "req-" + uuid.NewString()
	resp, err := s.settler.Initiate(ctx, req, requestID)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("initiate payment: %w", err)
	}

	now := s.now()
	var (
		sessions []payment.Session
		result   InitiateResult
	)
	if resp.Paired() {
		sessions = []payment.Session{
			{ID: resp.FeeUUID, Role: payment.RoleFee, PairID: resp.UserUUID, RedirectURL: resp.FeeRedirectURL},
			{ID: resp.UserUUID, Role: payment.RoleUser, PairID: resp.FeeUUID, RedirectURL: resp.UserRedirectURL},
		}
		result = InitiateResult{PaymentID: resp.FeeUUID, RedirectURL: resp.FeeRedirectURL, Legs: 2}
	} else {
		sessions = []payment.Session{{ID: resp.UserUUID, RedirectURL: resp.UserRedirectURL}}
		result = InitiateResult{PaymentID: resp.UserUUID, RedirectURL: resp.UserRedirectURL, Legs: 1}
	}
	for i := range sessions {
		sessions[i].Status = payment.InitialStatus(resp.Paired())
		sessions[i].RequestID = requestID
		sessions[i].CreatedAt = now
		sessions[i].UpdatedAt = now
	}

	if err := s.store.Create(ctx, sessions...); err != nil {
		return InitiateResult{}, fmt.Errorf("store payment sessions: %w", err)
	}

	s.stats.initiated.Add(1)
	s.log.Infow("payment initiated",
		"payment_id", result.PaymentID,
		"request_id", requestID,
		"legs", result.Legs,
	)
	return result, nil
}

func (s *Service) buildRequest(in InitiateInput) (settlement.InitiateRequest, error) {
	userName := strings.TrimSpace(in.UserName)
	if userName == "" {
		return settlement.InitiateRequest{}, fmt.Errorf("%w: userName is required", ErrInvalidRequest)
	}
	destination := strings.TrimSpace(in.DestinationAddress)
	if destination == "" {
		return settlement.InitiateRequest{}, fmt.Errorf("%w: destinationAddress is required", ErrInvalidRequest)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		return settlement.InitiateRequest{}, fmt.Errorf("%w: amount %q is not a number", ErrInvalidRequest, in.Amount)
	}
	if !amount.IsPositive() {
		return settlement.InitiateRequest{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return settlement.InitiateRequest{}, fmt.Errorf("%w: amount allows at most %d decimal places", ErrInvalidRequest, amountScale)
	}

	batch := s.opts.DefaultFeeLeg
	if in.Batch != nil {
		batch = *in.Batch
	}

	return settlement.InitiateRequest{
		UserName:           userName,
		SenderAddress:      strings.TrimSpace(in.SenderAddress),
		DestinationAddress: destination,
		Amount:             amount,
		Batch:              batch,
		ReturnURL:          s.opts.ReturnURL,
	}, nil
}

// Live reports how many sessions are in flight.
func (s *Service) Live() int {
	return s.store.Len()
}
