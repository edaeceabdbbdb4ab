package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/xrp-pay/backend/internal/handler/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/handler/stream"
	"github.com/zhouzirui/xrp-pay/backend/internal/handler/webhook"
	"github.com/zhouzirui/xrp-pay/backend/internal/logger"
	middlewarePkg "github.com/zhouzirui/xrp-pay/backend/internal/middleware"
	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/pkg/utils"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Payments     *paymentService.Service
	Pages        payment.Pages
	CookieName   string
	PollInterval time.Duration
	Log          *zap.SugaredLogger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger.Std("http"), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Payer-facing flow, provider webhook, status push
	payment.New(deps.Payments, deps.Pages, deps.CookieName, log.Named("payment")).RegisterRoutes(r)
	webhook.New(deps.Payments, log.Named("webhook")).RegisterRoutes(r)
	stream.New(deps.Payments, deps.PollInterval, deps.CookieName, log.Named("stream")).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"payments": deps.Payments.Stats(),
		})
	})

	return r
}
