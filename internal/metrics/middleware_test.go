package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := wrapResponseWriter(w)

	if rw.status != http.StatusOK {
		t.Errorf("Expected initial status %d, got %d", http.StatusOK, rw.status)
	}

	rw.WriteHeader(http.StatusNotFound)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rw.status)
	}

	// Second WriteHeader is ignored
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status to remain %d, got %d", http.StatusNotFound, rw.status)
	}
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Post("/groups/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})

	for _, id := range []string{"a@g.us", "b@g.us"} {
		req := httptest.NewRequest("POST", "/groups/"+id+"/toggle", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want 303", rec.Code)
		}
	}

	counter := m.HTTPRequestsTotal.WithLabelValues("POST", "/groups/{id}/toggle", "303")
	if v := counterValue(t, counter); v != 2 {
		t.Errorf("requests = %v, want 2", v)
	}
}

func TestHTTPMiddlewareCountsErrors(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Post("/api/v1/broadcast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest("POST", "/api/v1/broadcast", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if v := counterValue(t, m.HTTPErrorsTotal.WithLabelValues("webhook_error")); v != 1 {
		t.Errorf("webhook_error = %v, want 1", v)
	}
}

func TestHTTPMiddlewareNoMetrics(t *testing.T) {
	SetGlobal(nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	HTTPMiddleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{502, "webhook_error"},
		{500, "server_error"},
		{409, "busy"},
		{401, "auth_error"},
		{403, "auth_error"},
		{404, "not_found"},
		{400, "bad_request"},
		{422, "bad_request"},
		{405, "client_error"},
		{200, "unknown"},
	}

	for _, tt := range tests {
		if result := categorizeStatus(tt.status); result != tt.expected {
			t.Errorf("categorizeStatus(%d) = %q, expected %q", tt.status, result, tt.expected)
		}
	}
}
