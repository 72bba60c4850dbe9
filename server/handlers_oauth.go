package server

import (
	"log/slog"
	"net/http"

	"github.com/Suyashtnt/slackfm/telemetry"
)

// HandleAuthCallback completes the Slack OAuth flow. Slack redirects here
// with a code and the state we handed out on /slackfm connect; the state is
// looked up among pending records, the code exchanged for a user token, and
// a mirroring worker started for the freshly linked account.
func (h *Handlers) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		// The user declined on the consent screen.
		slog.Info("auth: authorization declined", slog.String("reason", reason))
		http.Redirect(w, r, "/cancelled", http.StatusFound)
		return
	}
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}
	rec := h.store.FindByPendingToken(state)
	if rec == nil {
		http.Error(w, "unknown or expired authorization state", http.StatusBadRequest)
		return
	}

	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("slack_user", rec.ID()))

	userID, token, err := h.worker.Slack.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Error("auth: code exchange failed", slog.Any("err", err))
		http.Redirect(w, r, "/error", http.StatusFound)
		return
	}
	if userID != rec.ID() {
		// The token still works; the linking user just authorized from a
		// different Slack account than the one that ran the command.
		log.Warn("auth: token belongs to a different slack user", slog.String("authed_user", userID))
	}
	if err := h.store.Authorize(rec.ID(), token); err != nil {
		log.Error("auth: persist authorization", slog.Any("err", err))
		http.Redirect(w, r, "/error", http.StatusFound)
		return
	}
	h.spawnWorker(rec)
	log.Info("auth: account linked", slog.String("lastfm_user", rec.TrackedUsername()))
	http.Redirect(w, r, "/installed", http.StatusFound)
}

// HandleInstalled is the landing page after a successful authorization.
func (h *Handlers) HandleInstalled(w http.ResponseWriter, r *http.Request) {
	writePage(w, "slackfm is connected. Your Slack status now follows what you're listening to.")
}

// HandleCancelled is the landing page when the user declines authorization.
func (h *Handlers) HandleCancelled(w http.ResponseWriter, r *http.Request) {
	writePage(w, "Authorization cancelled. Nothing was linked; run /slackfm connect again whenever you like.")
}

// HandleError is the landing page when the OAuth flow fails partway.
func (h *Handlers) HandleError(w http.ResponseWriter, r *http.Request) {
	writePage(w, "Something went wrong finishing authorization. Run /slackfm connect to try again.")
}

func writePage(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text + "\n"))
}
