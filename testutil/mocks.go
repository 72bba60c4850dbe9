// Package testutil provides mock servers for the Last.fm and Slack
// boundaries so worker, server, and end-to-end tests can run without the
// real platforms.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Suyashtnt/slackfm/lastfm"
	"github.com/Suyashtnt/slackfm/slackapi"
)

// NothingPlayingBody is a recenttracks payload with nothing playing.
const NothingPlayingBody = `{"recenttracks":{"track":[]}}`

// NowPlayingBody builds a recenttracks payload with one playing track.
func NowPlayingBody(mbid, title, artist string) string {
	return fmt.Sprintf(`{"recenttracks":{"track":[{"artist":{"#text":%q},"name":%q,"mbid":%q,"image":[],"album":{"#text":""},"@attr":{"nowplaying":"true"}}]}}`,
		artist, title, mbid)
}

// MockLastFM mocks the Last.fm API. Requests are dispatched on the
// `method` query parameter, matching how the real API routes.
type MockLastFM struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu        sync.Mutex
	script    []string
	scriptIdx int
}

// NewMockLastFM creates a mock Last.fm API server.
func NewMockLastFM(t *testing.T) *MockLastFM {
	t.Helper()
	m := &MockLastFM{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Query().Get("method")]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":3,"message":"Invalid Method"}`)
	}))
	t.Cleanup(m.Close)
	return m
}

// Client returns a lastfm.Client pointed at this server.
func (m *MockLastFM) Client() *lastfm.Client {
	return &lastfm.Client{APIKey: "test-key", BaseURL: m.URL}
}

// MockUserExists answers user.getinfo: listed usernames resolve, everyone
// else gets a "User not found" payload.
func (m *MockLastFM) MockUserExists(usernames ...string) {
	known := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		known[u] = true
	}
	m.Handlers["user.getinfo"] = func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		w.Header().Set("Content-Type", "application/json")
		if known[user] {
			fmt.Fprintf(w, `{"user":{"name":%q}}`, user)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":6,"message":"User not found"}`)
	}
}

// MockUserLookupFailing answers user.getinfo with a transient failure.
func (m *MockLastFM) MockUserLookupFailing() {
	m.Handlers["user.getinfo"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":16,"message":"The service is temporarily unavailable"}`)
	}
}

// ScriptRecentTracks answers user.getrecenttracks with each body in turn,
// repeating the last one. An empty string serves a 502.
func (m *MockLastFM) ScriptRecentTracks(bodies ...string) {
	m.mu.Lock()
	m.script = bodies
	m.scriptIdx = 0
	m.mu.Unlock()
	m.Handlers["user.getrecenttracks"] = func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		i := m.scriptIdx
		if i >= len(m.script) {
			i = len(m.script) - 1
		} else {
			m.scriptIdx++
		}
		body := m.script[i]
		m.mu.Unlock()

		if body == "" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

// MockSlack mocks the Slack Web API and OAuth endpoints. Status pushes are
// recorded in order; StatusCh receives each status text ("" for a clear)
// so tests can wait for pushes instead of sleeping.
type MockSlack struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	StatusCh chan string

	mu       sync.Mutex
	statuses []string
}

// NewMockSlack creates a mock Slack server with profile.set recording
// already wired.
func NewMockSlack(t *testing.T) *MockSlack {
	t.Helper()
	m := &MockSlack{
		Handlers: make(map[string]http.HandlerFunc),
		StatusCh: make(chan string, 64),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	m.MockProfileSet(`{"ok": true}`)
	return m
}

// App returns a slackapi.App wired to this server for both the Web API
// and the OAuth code exchange.
func (m *MockSlack) App() *slackapi.App {
	return &slackapi.App{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURI:  "http://localhost:3000/auth",
		APIURL:       m.URL + "/",
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{host: m.URL},
		},
	}
}

// MockProfileSet answers users.profile.set with the given body, recording
// every pushed status text.
func (m *MockSlack) MockProfileSet(respond string) {
	m.Handlers["/users.profile.set"] = func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		var p struct {
			StatusText string `json:"status_text"`
		}
		if raw := r.FormValue("profile"); raw != "" {
			_ = json.Unmarshal([]byte(raw), &p)
		}
		m.mu.Lock()
		m.statuses = append(m.statuses, p.StatusText)
		m.mu.Unlock()
		select {
		case m.StatusCh <- p.StatusText:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, respond)
	}
}

// MockOAuthExchange answers oauth.v2.access with a user token grant.
func (m *MockSlack) MockOAuthExchange(userID, userToken string) {
	m.Handlers["/api/oauth.v2.access"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"app_id":"A111","authed_user":{"id":%q,"scope":"users.profile:read,users.profile:write","access_token":%q,"token_type":"user"},"scope":"commands","team":{"id":"T111","name":"workspace"}}`,
			userID, userToken)
	}
}

// MockOAuthExchangeFailing answers oauth.v2.access with a Slack error.
func (m *MockSlack) MockOAuthExchangeFailing(code string) {
	m.Handlers["/api/oauth.v2.access"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":false,"error":%q}`, code)
	}
}

// Statuses returns the pushed status texts in order.
func (m *MockSlack) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// rewriteTransport redirects requests for slack.com to the mock server.
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := t.host
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}
