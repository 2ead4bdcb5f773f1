package ipfilter

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		allowedIPs []string
		wantCount  int
	}{
		{
			name:       "empty list",
			allowedIPs: []string{},
			wantCount:  0,
		},
		{
			name:       "single IP",
			allowedIPs: []string{"192.168.1.1"},
			wantCount:  1,
		},
		{
			name:       "multiple entries",
			allowedIPs: []string{"192.168.1.1", "10.0.0.0/8", "172.16.0.0/12"},
			wantCount:  3,
		},
		{
			name:       "with whitespace",
			allowedIPs: []string{"  192.168.1.1  ", " 10.0.0.0/8 ", " "},
			wantCount:  2,
		},
		{
			name:       "invalid entries ignored",
			allowedIPs: []string{"192.168.1.1", "invalid", "10.0.0.1/99"},
			wantCount:  1,
		},
		{
			name:       "IPv6",
			allowedIPs: []string{"::1", "2001:db8::/32"},
			wantCount:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New("test", tt.allowedIPs, newTestLogger())
			if f.Count() != tt.wantCount {
				t.Errorf("Count() = %d, want %d", f.Count(), tt.wantCount)
			}
			if f.Enabled() != (tt.wantCount > 0) {
				t.Errorf("Enabled() = %v with %d networks", f.Enabled(), tt.wantCount)
			}
		})
	}
}

func TestFilter_IsAllowed(t *testing.T) {
	f := New("test", []string{"192.168.1.100", "10.0.0.0/8", "::1"}, newTestLogger())

	tests := []struct {
		ip      string
		allowed bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.20.30.40", true},
		{"11.0.0.1", false},
		{"::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		if got := f.IsAllowed(net.ParseIP(tt.ip)); got != tt.allowed {
			t.Errorf("IsAllowed(%s) = %v, want %v", tt.ip, got, tt.allowed)
		}
	}

	if !New("empty", nil, newTestLogger()).IsAllowed(net.ParseIP("8.8.8.8")) {
		t.Error("empty filter should allow everything")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.100:12345", nil, "192.168.1.100"},
		{"remote addr without port", "192.168.1.100", nil, "192.168.1.100"},
		{"forwarded first hop", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1"}, "10.0.0.1"},
		{"real ip", "127.0.0.1:1", map[string]string{"X-Real-IP": "172.16.0.1"}, "172.16.0.1"},
		{"garbage forwarded falls through", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "nope"}, "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			ip := ClientIP(req)
			if ip == nil || ip.String() != tt.want {
				t.Errorf("ClientIP() = %v, want %s", ip, tt.want)
			}
		})
	}
}

func TestFilter_Middleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowedIPs []string
		remoteAddr string
		wantStatus int
	}{
		{"no filter", nil, "8.8.8.8:1", http.StatusOK},
		{"allowed", []string{"10.0.0.0/8"}, "10.1.2.3:1", http.StatusOK},
		{"denied", []string{"10.0.0.0/8"}, "8.8.8.8:1", http.StatusForbidden},
		{"unparseable", []string{"10.0.0.0/8"}, "not-an-ip", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New("test", tt.allowedIPs, newTestLogger()).Middleware(ok)
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
