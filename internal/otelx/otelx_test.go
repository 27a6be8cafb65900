package otelx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultConfig_DisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("expected tracing disabled by default")
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("ExporterType = %q, want none", cfg.ExporterType)
	}
}

func TestNew_DisabledReturnsNoopTracer(t *testing.T) {
	tracer, err := New(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tracer.Enabled() {
		t.Error("expected a disabled tracer")
	}

	_, span := tracer.StartPollSpan(context.Background(), "fw-01", "collect_throughput")
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on a no-op tracer should not fail: %v", err)
	}
}

func TestNoopTracer_SpanHelpersDoNotPanic(t *testing.T) {
	tracer := NoopTracer()

	ctx, pollSpan := tracer.StartPollSpan(context.Background(), "fw-01", "collect_throughput")
	ctx, opSpan := tracer.StartOpSpan(ctx, "fw-01", "system_info")
	_, storeSpan := tracer.StartStoreSpan(ctx, "InsertSample")

	RecordError(opSpan, nil, "none")
	RecordError(nil, errBoom, "unknown")
	RecordError(opSpan, errBoom, "timeout")

	storeSpan.End()
	opSpan.End()
	pollSpan.End()
}

var errBoom = &boomError{}

type boomError struct{}

func (e *boomError) Error() string { return "boom" }

func TestNew_UnknownExporterErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.ExporterType = "carrier-pigeon"

	_, err := New(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for an unrecognized exporter type")
	}
}

func TestMiddleware_NoopTracerPassesThrough(t *testing.T) {
	tracer := NoopTracer()
	called := false
	handler := Middleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected the wrapped handler to run")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestMiddleware_NilTracerPassesThrough(t *testing.T) {
	called := false
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected the wrapped handler to run with a nil tracer")
	}
}
