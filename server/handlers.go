package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/Suyashtnt/slackfm/config"
	"github.com/Suyashtnt/slackfm/presence"
	"github.com/Suyashtnt/slackfm/store"
)

// Deps bundles the collaborators the HTTP handlers drive.
type Deps struct {
	Cfg    *config.Config
	Store  *store.Store
	Sup    *presence.Supervisor
	Worker presence.Deps
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg     *config.Config
	store   *store.Store
	sup     *presence.Supervisor
	worker  presence.Deps
	started time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		cfg:     deps.Cfg,
		store:   deps.Store,
		sup:     deps.Sup,
		worker:  deps.Worker,
		started: time.Now(),
	}
}

// spawnWorker starts (or replaces) the mirroring worker for rec.
func (h *Handlers) spawnWorker(rec *store.Record) {
	h.sup.Spawn(rec.ID(), func(ctx context.Context) {
		presence.Run(ctx, h.worker, rec)
	})
}

// verifiedBody reads the request body and checks the Slack signature over it.
// On failure it writes the error response and returns ok=false.
func (h *Handlers) verifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return nil, false
	}
	sv, err := slack.NewSecretsVerifier(r.Header, h.cfg.SlackSigningSecret)
	if err == nil {
		if _, werr := sv.Write(body); werr != nil {
			err = werr
		} else {
			err = sv.Ensure()
		}
	}
	if err != nil {
		slog.Warn("rejecting unsigned slack request", slog.String("path", r.URL.Path), slog.Any("err", err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

// replyEphemeral writes an ephemeral Slack message as the slash command response.
func replyEphemeral(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	msg := slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: text}
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		slog.Warn("encode command response", slog.Any("err", err))
	}
}
