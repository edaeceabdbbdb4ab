package payment

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/pkg/utils"
)

// Pages are the payer-facing result locations.
type Pages struct {
	Success string
	Failure string
	Pending string
}

// Handler 支付流程的HTTP处理器
type Handler struct {
	svc    *paymentService.Service
	pages  Pages
	cookie string
	log    *zap.SugaredLogger
}

// New 创建支付处理器
func New(svc *paymentService.Service, pages Pages, cookieName string, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, pages: pages, cookie: cookieName, log: log}
}

// RegisterRoutes 注册支付相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/payment/initiate", h.handleInitiate)
	r.Get("/xaman/callback", h.handleCallback)
	r.Get("/payment/status", h.handleStatus)

	r.Get(h.pages.Success, h.handleResultPage("success"))
	r.Get(h.pages.Failure, h.handleResultPage("failure"))
	r.Get(h.pages.Pending, h.handlePendingPage)
}

type initiatePayload struct {
	UserName           string          `json:"userName"`
	SenderAddress      string          `json:"senderAddress"`
	DestinationAddress string          `json:"destinationAddress"`
	Amount             decimal.Decimal `json:"amount"`
	Batch              *bool           `json:"batch"`
}

// handleInitiate 创建支付并把付款人送往第一个签名步骤
func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	in, isForm, err := decodeInitiate(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Initiate(r.Context(), in)
	if err != nil {
		h.log.Warnw("initiate payment failed", "user", in.UserName, "error", err)
		utils.RespondAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    res.PaymentID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if isForm {
		http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, res)
}

func decodeInitiate(r *http.Request) (paymentService.InitiateInput, bool, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return paymentService.InitiateInput{}, true, errors.New("invalid form body")
		}
		in := paymentService.InitiateInput{
			UserName:           r.PostForm.Get("userName"),
			SenderAddress:      r.PostForm.Get("senderAddress"),
			DestinationAddress: r.PostForm.Get("destinationAddress"),
			Amount:             r.PostForm.Get("amount"),
		}
		if raw := strings.TrimSpace(r.PostForm.Get("batch")); raw != "" {
			batch, err := strconv.ParseBool(raw)
			if err != nil {
				return paymentService.InitiateInput{}, true, errors.New("batch must be a boolean")
			}
			in.Batch = &batch
		}
		return in, true, nil
	}

	var payload initiatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return paymentService.InitiateInput{}, false, errors.New("invalid request body")
	}
	return paymentService.InitiateInput{
		UserName:           payload.UserName,
		SenderAddress:      payload.SenderAddress,
		DestinationAddress: payload.DestinationAddress,
		Amount:             payload.Amount.String(),
		Batch:              payload.Batch,
	}, false, nil
}

// handleCallback 付款人从签名服务返回时推进状态并重定向
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	id := h.paymentID(r)
	if id == "" {
		h.log.Warnw("callback without payment id", "remote", r.RemoteAddr)
		http.Redirect(w, r, h.pages.Failure, http.StatusFound)
		return
	}

	out, err := h.svc.Confirm(r.Context(), id, payment.ChannelCallback, true)
	if err != nil {
		http.Redirect(w, r, h.pages.Failure, http.StatusFound)
		return
	}

	http.Redirect(w, r, h.callbackTarget(id, out), http.StatusFound)
}

func (h *Handler) callbackTarget(id string, out paymentService.Outcome) string {
	switch {
	case out.Status == payment.StatusCompleted:
		return h.pages.Success
	case out.Status == payment.StatusFailed:
		return h.pages.Failure
	case out.RedirectURL != "":
		return out.RedirectURL
	default:
		return h.pages.Pending + "?paymentUuid=" + url.QueryEscape(id)
	}
}

// handleStatus 返回付款人下一步该做什么
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Status(r.Context(), h.paymentID(r)))
}

func (h *Handler) handleResultPage(result string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		utils.RespondJSON(w, http.StatusOK, map[string]string{"result": result})
	}
}

func (h *Handler) handlePendingPage(w http.ResponseWriter, r *http.Request) {
	id := h.paymentID(r)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"paymentId": id,
		"status":    h.svc.Status(r.Context(), id),
	})
}

// paymentID prefers the explicit query parameter and falls back to the
// cookie set at initiation.
func (h *Handler) paymentID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("paymentUuid")); id != "" {
		return id
	}
	if c, err := r.Cookie(h.cookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
