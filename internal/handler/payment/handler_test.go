package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/service/settlement"
)

type stubSettler struct {
	mu        sync.Mutex
	reports   []settlement.Report
	reportErr error
}

func (s *stubSettler) Initiate(_ context.Context, req settlement.InitiateRequest, requestID string) (settlement.InitiateResponse, error) {
	resp := settlement.InitiateResponse{RequestID: requestID, UserUUID: "user-1", UserRedirectURL: "https://sign.example/user-1"}
	if req.Batch {
		resp.FeeUUID = "fee-1"
		resp.FeeRedirectURL = "https://sign.example/fee-1"
	}
	return resp, nil
}

func (s *stubSettler) ReportSigned(_ context.Context, report settlement.Report) (settlement.Disposition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	if s.reportErr != nil {
		return settlement.Disposition{}, s.reportErr
	}
	return settlement.Disposition{Status: "COMPLETED"}, nil
}

var testPages = Pages{Success: "/payment/success", Failure: "/payment/failure", Pending: "/payment/pending"}

func setupRouter() (*chi.Mux, *payment.MemoryStore, *stubSettler) {
	store := payment.NewMemoryStore()
	settler := &stubSettler{}
	svc := paymentService.NewService(store, settler, paymentService.Options{DefaultFeeLeg: true, OutcomeRetention: time.Minute}, nil)

	r := chi.NewRouter()
	New(svc, testPages, "payment_id", nil).RegisterRoutes(r)
	return r, store, settler
}

func initiateJSON(t *testing.T, r http.Handler, batch bool) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"userName":           "alice",
		"destinationAddress": "rDest",
		"amount":             "5",
		"batch":              batch,
	})
	req := httptest.NewRequest(http.MethodPost, "/payment/initiate", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	return resp
}

func TestInitiateJSONSetsCookie(t *testing.T) {
	r, store, _ := setupRouter()

	resp := initiateJSON(t, r, false)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var body paymentService.InitiateResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, paymentService.InitiateResult{PaymentID: "user-1", RedirectURL: "https://sign.example/user-1", Legs: 1}, body)

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "payment_id", cookies[0].Name)
	require.Equal(t, "user-1", cookies[0].Value)
	require.Equal(t, 1, store.Len())
}

func TestInitiateFormRedirects(t *testing.T) {
	r, store, _ := setupRouter()

	form := url.Values{"userName": {"alice"}, "destinationAddress": {"rDest"}, "amount": {"1.25"}}
	req := httptest.NewRequest(http.MethodPost, "/payment/initiate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.Code)
	}
	require.Equal(t, "https://sign.example/fee-1", resp.Header().Get("Location"))
	require.Equal(t, 2, store.Len())
}

func TestInitiateInvalidAmount(t *testing.T) {
	r, store, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/payment/initiate", strings.NewReader(`{"userName":"alice","destinationAddress":"rDest","amount":-3}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	require.Contains(t, resp.Body.String(), "invalid_request")
	require.Zero(t, store.Len())
}

func TestSingleLegCallbackToSuccess(t *testing.T) {
	r, store, settler := setupRouter()
	initiateJSON(t, r, false)

	resp := get(r, "/xaman/callback?paymentUuid=user-1")
	if resp.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.Code)
	}
	require.Equal(t, "/payment/success", resp.Header().Get("Location"))
	require.Len(t, settler.reports, 1)
	require.Zero(t, store.Len())

	status := get(r, "/payment/status?paymentUuid=user-1")
	require.JSONEq(t, `{"next":"DONE","outcome":"COMPLETED"}`, status.Body.String())
}

func TestPairedCallbackRedirectsToUserLeg(t *testing.T) {
	r, _, settler := setupRouter()
	initiateJSON(t, r, true)

	resp := get(r, "/xaman/callback?paymentUuid=fee-1")
	require.Equal(t, http.StatusFound, resp.Code)
	require.Equal(t, "https://sign.example/user-1", resp.Header().Get("Location"))

	resp = get(r, "/xaman/callback?paymentUuid=user-1")
	require.Equal(t, "/payment/success", resp.Header().Get("Location"))
	require.Len(t, settler.reports, 1)
	require.Equal(t, []string{"user-1", "fee-1"}, settler.reports[0].IDs())
}

func TestCallbackUsesCookieWhenQueryMissing(t *testing.T) {
	r, _, _ := setupRouter()
	initiateJSON(t, r, false)

	req := httptest.NewRequest(http.MethodGet, "/xaman/callback", nil)
	req.AddCookie(&http.Cookie{Name: "payment_id", Value: "user-1"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, "/payment/success", resp.Header().Get("Location"))
}

func TestCallbackUnknownIDGoesToFailure(t *testing.T) {
	r, _, _ := setupRouter()

	for _, target := range []string{"/xaman/callback?paymentUuid=ghost", "/xaman/callback"} {
		resp := get(r, target)
		require.Equal(t, http.StatusFound, resp.Code)
		require.Equal(t, "/payment/failure", resp.Header().Get("Location"))
	}
}

func TestCallbackSettlementFailureGoesToFailure(t *testing.T) {
	r, store, settler := setupRouter()
	settler.reportErr = errors.New("connection reset")
	initiateJSON(t, r, false)

	resp := get(r, "/xaman/callback?paymentUuid=user-1")
	require.Equal(t, "/payment/failure", resp.Header().Get("Location"))
	require.Zero(t, store.Len())
}

func TestCallbackWhileSettlementPendingGoesToPendingPage(t *testing.T) {
	r, store, _ := setupRouter()
	require.NoError(t, store.Create(context.Background(), payment.Session{ID: "p-1", Status: payment.StatusSigned}))

	resp := get(r, "/xaman/callback?paymentUuid=p-1")
	require.Equal(t, "/payment/pending?paymentUuid=p-1", resp.Header().Get("Location"))

	page := get(r, "/payment/pending?paymentUuid=p-1")
	require.JSONEq(t, `{"paymentId":"p-1","status":{"next":"WAIT","message":"pending settlement"}}`, page.Body.String())
}

func TestStatusWithoutPaymentWaits(t *testing.T) {
	r, _, _ := setupRouter()

	resp := get(r, "/payment/status")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"next":"WAIT","message":"no payment in progress"}`, resp.Body.String())
}

func TestResultPagesClearCookie(t *testing.T) {
	r, _, _ := setupRouter()

	for _, page := range []string{"/payment/success", "/payment/failure"} {
		resp := get(r, page)
		require.Equal(t, http.StatusOK, resp.Code)
		cookies := resp.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, "payment_id", cookies[0].Name)
		require.Negative(t, cookies[0].MaxAge)
	}
}
