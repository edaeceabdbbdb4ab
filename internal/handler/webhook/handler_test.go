package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/xrp-pay/backend/internal/model/payment"
	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
	"github.com/zhouzirui/xrp-pay/backend/internal/service/settlement"
)

type countingSettler struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSettler) Initiate(context.Context, settlement.InitiateRequest, string) (settlement.InitiateResponse, error) {
	return settlement.InitiateResponse{}, nil
}

func (s *countingSettler) ReportSigned(context.Context, settlement.Report) (settlement.Disposition, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return settlement.Disposition{Status: "COMPLETED"}, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *payment.MemoryStore, *countingSettler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()

	store := payment.NewMemoryStore()
	settler := &countingSettler{}
	svc := paymentService.NewService(store, settler, paymentService.Options{}, log)

	r := chi.NewRouter()
	New(svc, log).RegisterRoutes(r)
	return r, store, settler, logs
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/xaman/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		id      string
		signed  bool
		wantErr bool
	}{
		{"flat", `{"payload_uuidv4":"p-1","signed":true}`, "p-1", true, false},
		{"nested", `{"meta":{},"payloadResponse":{"payload_uuidv4":"p-2","signed":false}}`, "p-2", false, false},
		{"missing id", `{"signed":true}`, "", false, true},
		{"missing signed", `{"payload_uuidv4":"p-1"}`, "", false, true},
		{"not json", `signed=true`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, signed, err := Parse([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.id, id)
			require.Equal(t, tt.signed, signed)
		})
	}
}

func TestWebhookMalformedIsClientError(t *testing.T) {
	r, store, _, _ := setupRouter(t)
	require.NoError(t, store.Create(context.Background(), payment.Session{ID: "p-1", Status: payment.StatusWaitingUser}))

	resp := post(r, `{"payload_uuidv4":"p-1"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	require.Contains(t, resp.Body.String(), "malformed_webhook")

	sess, err := store.Get(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, payment.StatusWaitingUser, sess.Status)
}

func TestWebhookUnknownIDAccepted(t *testing.T) {
	r, store, settler, logs := setupRouter(t)

	resp := post(r, `{"payload_uuidv4":"ghost","signed":true}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	require.JSONEq(t, `{"status":"accepted"}`, resp.Body.String())
	require.Zero(t, store.Len())
	require.Zero(t, settler.calls)
	require.Equal(t, 1, logs.FilterField(zap.String("payment_id", "ghost")).Len())
}

func TestWebhookSettlesOnceAndAcceptsRedelivery(t *testing.T) {
	r, store, settler, _ := setupRouter(t)
	require.NoError(t, store.Create(context.Background(), payment.Session{ID: "p-1", Status: payment.StatusWaitingUser}))

	for i := 0; i < 3; i++ {
		resp := post(r, `{"payload_uuidv4":"p-1","signed":true}`)
		require.Equal(t, http.StatusOK, resp.Code)
	}
	require.Equal(t, 1, settler.calls)
	require.Zero(t, store.Len())
}

func TestWebhookDeclineFailsPayment(t *testing.T) {
	r, store, settler, _ := setupRouter(t)
	require.NoError(t, store.Create(context.Background(), payment.Session{ID: "p-1", Status: payment.StatusWaitingUser}))

	resp := post(r, `{"payloadResponse":{"payload_uuidv4":"p-1","signed":false}}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Zero(t, settler.calls)
	require.Zero(t, store.Len())
}
