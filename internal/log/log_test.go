package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: ComponentApp, Output: &buf}), &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_ComponentTag(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	logger.WithComponent(ComponentWorker).Info("exported", FieldPeriod, "2025-03")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "period=2025-03") {
		t.Errorf("missing fields: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record leaked at info level: %s", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component should appear once: %s", out)
	}
}

func TestMiddlewareAndFromContext(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("fallback logger should be tagged unknown")
	}

	ids := func(context.Context) string { return "req_1" }
	h := Middleware(logger)(RequestIDMiddleware(ids)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "inside")
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("request id not attached: %s", buf.String())
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	sl := NewStructuredLogger(logger)
	r := httptest.NewRequest(http.MethodPost, "/api/sales", nil)

	sl.LogRequestError(context.Background(), r, http.StatusConflict, errors.New("in use"), "referential_conflict")
	sl.LogRequestError(context.Background(), r, http.StatusInternalServerError, errors.New("disk"), "store")
	sl.LogRecordChanged(context.Background(), OpCreate, "sales", 7, 2)

	out := buf.String()
	for _, want := range []string{"level=WARN", "level=ERROR", "error_kind=referential_conflict", "collection=sales", "id=7", "user_id=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithRequestID("").WithRecord("users", 0).WithError(nil, "x")
	if _, ok := f[FieldRequestID]; ok {
		t.Error("empty request id should be omitted")
	}
	if _, ok := f[FieldRecordID]; ok {
		t.Error("zero id should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be omitted")
	}
	if len(f.ToSlice()) != 2 {
		t.Errorf("ToSlice() = %v", f.ToSlice())
	}
}
