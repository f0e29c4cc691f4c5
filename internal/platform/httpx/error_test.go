package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("user_exists", "email\nalready registered", http.StatusConflict).
		WithDetails(map[string]any{"field": "email"}))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "user_exists" || body["status"] != float64(http.StatusConflict) {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["message"] != "email already registered" {
		t.Fatalf("expected control characters replaced, got %q", body["message"])
	}
	if body["trace_id"] != "trace-1" {
		t.Fatalf("expected trace id from context, got %v", body["trace_id"])
	}
	if body["field"] != "email" {
		t.Fatalf("expected details merged, got %v", body)
	}
	if _, ok := body["request_id"]; ok {
		t.Fatalf("expected request_id omitted without middleware")
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if err := NewError("boom", "failed", 0); err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
}
