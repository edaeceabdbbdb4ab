package stream

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/pkg/utils"
)

// Handler pushes payment status changes to a waiting page over Server-Sent
// Events or a websocket.
type Handler struct {
	svc       *paymentService.Service
	interval  time.Duration
	heartbeat time.Duration
	cookie    string
	upgrader  websocket.Upgrader
	log       *zap.SugaredLogger
}

// New creates a stream handler polling the store every interval.
func New(svc *paymentService.Service, interval time.Duration, cookieName string, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		svc:       svc,
		interval:  interval,
		heartbeat: 15 * time.Second,
		cookie:    cookieName,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts both push transports.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/payment/status/stream", h.handleSSE)
	r.Get("/payment/status/ws", h.handleWebSocket)
}

// handleSSE streams status views until the payment is done or the client
// goes away.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := h.paymentID(r)
	if id == "" {
		utils.RespondError(w, http.StatusBadRequest, "paymentUuid is required")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	streamID := uuid.NewString()
	log := h.log.With("payment_id", id, "stream_id", streamID)
	log.Debugw("opening status stream")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	views := h.svc.Watch(ctx, id, h.interval)
	for {
		select {
		case <-ctx.Done():
			log.Debugw("status stream closed by client")
			return
		case <-heartbeat.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case view, ok := <-views:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "end", map[string]string{"paymentId": id})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "status", view); err != nil {
				log.Debugw("status stream write failed", "error", err)
				return
			}
		}
	}
}

func (h *Handler) paymentID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("paymentUuid")); id != "" {
		return id
	}
	if c, err := r.Cookie(h.cookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
