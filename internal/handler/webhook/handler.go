package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/pkg/utils"
)

// ErrMalformed means the payload lacks the payload id or the signed flag.
var ErrMalformed = apperr.New(apperr.KindMalformedWebhook, "malformed webhook payload")

const maxBodyBytes = 64 << 10

// Handler receives signing results pushed by the signing provider.
type Handler struct {
	svc *paymentService.Service
	log *zap.SugaredLogger
}

// New creates the webhook handler.
func New(svc *paymentService.Service, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/xaman/webhook", h.handleWebhook)
}

type signingResult struct {
	PayloadUUID string `json:"payload_uuidv4"`
	Signed      *bool  `json:"signed"`
}

type payload struct {
	signingResult
	PayloadResponse *signingResult `json:"payloadResponse"`
}

// Parse extracts the correlation id and signed flag. The provider sends
// them either at the top level or nested under payloadResponse.
func Parse(body []byte) (string, bool, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	res := p.signingResult
	if p.PayloadResponse != nil && res.PayloadUUID == "" {
		res = *p.PayloadResponse
	}

	id := strings.TrimSpace(res.PayloadUUID)
	if id == "" {
		return "", false, fmt.Errorf("%w: payload_uuidv4 is required", ErrMalformed)
	}
	if res.Signed == nil {
		return "", false, fmt.Errorf("%w: signed is required", ErrMalformed)
	}
	return id, *res.Signed, nil
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondAppError(w, fmt.Errorf("%w: %v", ErrMalformed, err))
		return
	}

	id, signed, err := Parse(body)
	if err != nil {
		h.log.Warnw("rejected webhook", "error", err)
		utils.RespondAppError(w, err)
		return
	}

	out, err := h.svc.Confirm(r.Context(), id, payment.ChannelWebhook, signed)
	switch {
	case errors.Is(err, payment.ErrNotFound):
		// Already logged by the coordinator; the provider must not retry.
	case err != nil:
		h.log.Warnw("webhook not applied", "payment_id", id, "error", err)
	default:
		h.log.Infow("webhook applied", "payment_id", id, "signed", signed, "status", out.Status, "duplicate", out.Duplicate)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
