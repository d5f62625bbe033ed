package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vango-dev/posthoginit/internal/config"
)

func newTestServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()

	srv, err := newServer(config.New(), discardLogger(), clock.NewMock())
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = srv.loop.Run(ctx)
	}()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		srv.Close()
	})
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServeHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := get(t, ts.URL+"/healthz")
	if status != http.StatusOK || body != "OK" {
		t.Errorf("GET /healthz = %d %q", status, body)
	}
}

func TestServeConsent(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/consent", "application/json", strings.NewReader(`{"state":"denied"}`))
	if err != nil {
		t.Fatalf("POST /consent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /consent status = %d", resp.StatusCode)
	}

	_, body := get(t, ts.URL+"/consent")
	if !strings.Contains(body, `"state":"denied"`) {
		t.Errorf("GET /consent = %q, want denied", body)
	}
}

func TestServeSessionSettles(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/session?ttl=10s", "", nil)
	if err != nil {
		t.Fatalf("POST /session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /session status = %d", resp.StatusCode)
	}

	// The loop goes idle right after the mount, so the idle path settles.
	want := `posthoginit_settled_total{outcome="initialized"} 1`
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, body := get(t, ts.URL+"/metrics")
		if strings.Contains(body, want) &&
			strings.Contains(body, `posthoginit_scheduled_total{path="idle"} 1`) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics never reported %q:\n%s", want, body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeSessionRejectsBadTTL(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/session?ttl=soon", "", nil)
	if err != nil {
		t.Fatalf("POST /session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /session?ttl=soon status = %d, want 400", resp.StatusCode)
	}
}

func TestServeSessionCookieSetsSharedDecision(t *testing.T) {
	srv, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/session?ttl=10s", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: srv.cfg.Consent.CookieName, Value: "denied"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /session status = %d", resp.StatusCode)
	}

	// A later request without a cookie sees the same decision.
	_, body := get(t, ts.URL+"/consent")
	if !strings.Contains(body, `"state":"denied"`) {
		t.Errorf("GET /consent = %q, want the cookie's decision", body)
	}
}
