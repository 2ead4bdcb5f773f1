package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/broadcast/internal/config"
	"github.com/foxzi/broadcast/internal/history"
	"github.com/foxzi/broadcast/internal/metrics"
)

var csrfMeta = regexp.MustCompile(`<meta name="csrf-token" content="([^"]*)">`)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWebhook(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, webhookURL, extra string) *config.Config {
	t.Helper()
	t.Setenv(config.EnvWebhookURL, "")

	data := fmt.Sprintf(`
webhook:
  url: %q
groups:
  - id: g1
    name: Team A
  - id: g2
    name: Team B
history:
  path: %q
metrics:
  enabled: true
%s`, webhookURL, filepath.Join(t.TempDir(), "history.db"), extra)

	cfg, err := config.Parse([]byte(data))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, discardLogger(), "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		metrics.SetGlobal(nil)
	})
	return s
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, testConfig(t, newWebhook(t, &calls).URL, ""))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected security headers")
	}
}

func TestStaticAssets(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, testConfig(t, newWebhook(t, &calls).URL, ""))

	for _, path := range []string{"/static/css/style.css", "/static/js/app.js"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}

	var calls atomic.Int32
	cfg := testConfig(t, newWebhook(t, &calls).URL, fmt.Sprintf(`
auth:
  username: admin
  password_hash: %q
`, hash))
	s := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with credentials, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health should not require auth, got %d", rec.Code)
	}
}

func TestFormPostRequiresCSRFToken(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, testConfig(t, newWebhook(t, &calls).URL, ""))

	req := httptest.NewRequest("POST", "/draft", strings.NewReader("action=send&message=hi&groups=g1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestFormFlowEndToEnd(t *testing.T) {
	var calls atomic.Int32
	cfg := testConfig(t, newWebhook(t, &calls).URL, "")
	s := newTestServer(t, cfg)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	page := fetch(t, client, srv.URL+"/", nil)
	token := extractToken(t, page)

	page = fetch(t, client, srv.URL+"/draft", url.Values{
		"gorilla.csrf.Token": {token},
		"action":             {"send"},
		"message":            {"Hello teams"},
		"groups":             {"g1", "g2"},
	})
	if !strings.Contains(page, "Confirm send") {
		t.Fatalf("expected confirmation dialog, got:\n%s", page)
	}

	page = fetch(t, client, srv.URL+"/confirm", url.Values{
		"gorilla.csrf.Token": {extractToken(t, page)},
	})
	if !strings.Contains(page, "Message sent to 2 group(s)!") {
		t.Fatalf("expected success banner, got:\n%s", page)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 webhook call, got %d", calls.Load())
	}

	var sent dto.Metric
	if err := metrics.Global().SubmissionsTotal.WithLabelValues(metrics.ResultSuccess).Write(&sent); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := sent.GetCounter().GetValue(); got != 1 {
		t.Errorf("success submissions = %v, want 1", got)
	}

	entries, err := s.history.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != history.SourceWeb || entries[0].Status != history.StatusSent {
		t.Errorf("unexpected history %+v", entries)
	}
}

func TestAPIBroadcastSkipsCSRF(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, testConfig(t, newWebhook(t, &calls).URL, ""))

	req := httptest.NewRequest("POST", "/api/v1/broadcast", strings.NewReader(`{"message":"Hi","groups":["g2"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out map[string]any
	json.NewDecoder(rec.Body).Decode(&out)
	if out["status"] != "sent" {
		t.Errorf("unexpected response %v", out)
	}

	entries, err := s.history.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != history.SourceAPI {
		t.Errorf("unexpected history %+v", entries)
	}
}

func fetch(t *testing.T, client *http.Client, target string, form url.Values) string {
	t.Helper()

	var resp *http.Response
	var err error
	if form == nil {
		resp, err = client.Get(target)
	} else {
		resp, err = client.PostForm(target, form)
	}
	if err != nil {
		t.Fatalf("request %s: %v", target, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request %s: status %d: %s", target, resp.StatusCode, body)
	}
	return string(body)
}

func extractToken(t *testing.T, page string) string {
	t.Helper()
	m := csrfMeta.FindStringSubmatch(page)
	if m == nil || m[1] == "" {
		t.Fatal("csrf token not found in page")
	}
	return html.UnescapeString(m[1])
}
