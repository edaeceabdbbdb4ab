package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
)

func TestRespondAppErrorUsesKind(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondAppError(rec, fmt.Errorf("lookup: %w", apperr.New(apperr.KindNotFound, "payment session not found")))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["kind"] != apperr.KindNotFound {
		t.Fatalf("expected kind %q, got %q", apperr.KindNotFound, body["kind"])
	}
	if body["error"] != "lookup: payment session not found" {
		t.Fatalf("unexpected message %q", body["error"])
	}
}

func TestRespondAppErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondAppError(rec, errors.New("db password wrong"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "internal error" {
		t.Fatalf("expected generic message, got %q", body["error"])
	}
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	if err := SendSSEEvent(rec, rec, "status", map[string]string{"next": "WAIT"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Body.String(); got != "event: status\ndata: {\"next\":\"WAIT\"}\n\n" {
		t.Fatalf("unexpected frame %q", got)
	}
}
