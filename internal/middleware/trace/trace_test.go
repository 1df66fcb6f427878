package trace

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kakeibo/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	mw := NewMiddleware(nil)

	var seen string
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("handler should see a request id")
	}
	if mw.TotalRequests() != 1 {
		t.Fatalf("expected 1 request counted, got %d", mw.TotalRequests())
	}
}

func TestMiddlewareLogsStructuredRequestFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	mw := NewMiddleware(func(*http.Request) string { return "192.0.2.7" })
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ui/daily?date=2026-03-10", nil)
	req.Header.Set("User-Agent", "kakeibo-test")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{
		`"` + log.FieldMethod + `":"GET"`,
		`"` + log.FieldPath + `":"/ui/daily"`,
		`"` + log.FieldQuery + `":"date=2026-03-10"`,
		`"` + log.FieldUserAgent + `":"kakeibo-test"`,
		`"` + log.FieldClientIP + `":"192.0.2.7"`,
		`"` + log.FieldStatusCode + `":404`,
		`"` + log.FieldSuccess + `":false`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
