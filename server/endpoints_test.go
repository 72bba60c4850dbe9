package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Suyashtnt/slackfm/presence"
	"github.com/Suyashtnt/slackfm/store"
)

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || out["status"] != "ready" {
		t.Errorf("status = %d body = %v, want ready", resp.StatusCode, out)
	}

	env.cfg.StorePath = filepath.Join(t.TempDir(), "gone", "db.json.enc")
	resp, err = http.Get(env.srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if out["failed_check"] != "store" {
		t.Errorf("failed_check = %q, want store", out["failed_check"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	if err := env.store.Add(store.NewPending("U123", "alice", "state-1")); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	resp, err := http.Get(env.srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := out["linked_users"].(float64); got != 1 {
		t.Errorf("linked_users = %v, want 1", got)
	}
	if got := out["workers"].(float64); got != 0 {
		t.Errorf("workers = %v, want 0", got)
	}
	if out["poll_interval"] != "20ms" {
		t.Errorf("poll_interval = %v, want 20ms", out["poll_interval"])
	}
}

func TestLandingPages(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want string
	}{
		{"/installed", "connected"},
		{"/cancelled", "cancelled"},
		{"/error", "went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(env.srv.URL + tt.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.want) {
				t.Errorf("body = %q, want it to mention %q", body, tt.want)
			}
		})
	}
}

func TestPushURLVerification(t *testing.T) {
	env := newTestEnv(t)

	body := `{"type":"url_verification","token":"tok","challenge":"test-challenge-string"}`
	resp := env.signedPost(t, "/push", "application/json", body, testSigningSecret)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "test-challenge-string" {
		t.Errorf("body = %q, want the challenge echoed", got)
	}
}

func TestPushRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)

	body := `{"type":"url_verification","challenge":"x"}`
	resp := env.signedPost(t, "/push", "application/json", body, "wrong-secret")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCorrelationHeader(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation header = %q, want corr-123 echoed", got)
	}

	resp, err = http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id")
	}
}

// TestStart_SurfacesBindFailure tests that a listener that cannot bind
// returns the error instead of hanging; main treats it as fatal
func TestStart_SurfacesBindFailure(t *testing.T) {
	env := newTestEnv(t)

	// Occupy a port so Start's own listener cannot bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	deps := Deps{
		Cfg:   env.cfg,
		Store: env.store,
		Sup:   env.sup,
		Worker: presence.Deps{
			LastFM:   env.lfm.Client(),
			Slack:    env.slack.App(),
			Interval: env.cfg.PollInterval,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Start(ctx, deps, ln.Addr().String())
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Start() on an occupied port returned nil, want bind error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after failing to bind")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "# HELP") {
		t.Error("expected Prometheus exposition output")
	}
}
