package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/Suyashtnt/slackfm/slackapi"
	"github.com/Suyashtnt/slackfm/store"
	"github.com/Suyashtnt/slackfm/telemetry"
)

const usageText = "Usage: `/slackfm connect <lastfm username>` or `/slackfm disconnect`."

// HandleCommand receives the /slackfm slash command. The request signature is
// verified before anything else; replies go back as ephemeral messages so only
// the invoking user sees them.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := h.verifiedBody(w, r)
	if !ok {
		return
	}
	// SlashCommandParse consumes the body, which the verifier already read.
	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "unparseable command", http.StatusBadRequest)
		return
	}
	if h.cfg.SlackTeamID != "" && cmd.TeamID != h.cfg.SlackTeamID {
		replyEphemeral(w, "slackfm isn't enabled for this workspace.")
		return
	}

	args := strings.Fields(cmd.Text)
	switch {
	case len(args) == 2 && args[0] == "connect":
		h.connect(r.Context(), w, cmd.UserID, args[1])
	case len(args) == 1 && args[0] == "disconnect":
		h.disconnect(r.Context(), w, cmd.UserID)
	default:
		replyEphemeral(w, usageText)
	}
}

// connect links slackUserID to a Last.fm account. Already-authorized users
// just get their tracked username swapped; everyone else is sent through the
// OAuth consent flow.
func (h *Handlers) connect(ctx context.Context, w http.ResponseWriter, slackUserID, username string) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("slack_user", slackUserID))

	exists, err := h.worker.LastFM.VerifyUser(ctx, username)
	if err != nil {
		log.Error("command: last.fm lookup failed", slog.String("lastfm_user", username), slog.Any("err", err))
		replyEphemeral(w, "Couldn't reach Last.fm to check that account. Try again in a moment.")
		return
	}
	if !exists {
		replyEphemeral(w, fmt.Sprintf("No Last.fm account named %q. Check the spelling and try again.", username))
		return
	}

	if rec := h.store.Get(slackUserID); rec != nil && rec.Authorized() {
		if err := h.store.SetUsername(slackUserID, username); err != nil {
			log.Error("command: persist username change", slog.Any("err", err))
			replyEphemeral(w, "Something went wrong saving your link. Try again.")
			return
		}
		if !h.sup.Running(slackUserID) {
			h.spawnWorker(rec)
		}
		replyEphemeral(w, fmt.Sprintf("Now following %s. Your status will update on the next track change.", username))
		return
	}

	state, err := slackapi.NewState()
	if err != nil {
		log.Error("command: generate oauth state", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	rec := store.NewPending(slackUserID, username, state)
	if err := h.store.Add(rec); err != nil {
		log.Error("command: persist pending link", slog.Any("err", err))
		replyEphemeral(w, "Something went wrong saving your link. Try again.")
		return
	}
	telemetry.SetLinkedUsers(h.store.Len())
	replyEphemeral(w, fmt.Sprintf("Almost there. <%s|Authorize slackfm> to let it set your status.", h.worker.Slack.AuthorizeURL(state)))
}

// disconnect stops the user's worker and forgets their record. The status is
// cleared best-effort when we still hold a token for them.
func (h *Handlers) disconnect(ctx context.Context, w http.ResponseWriter, slackUserID string) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("slack_user", slackUserID))

	h.sup.Cancel(slackUserID)
	rec, err := h.store.Remove(slackUserID)
	if rec == nil {
		replyEphemeral(w, "You're not connected.")
		return
	}
	if token := rec.Token(); token != "" {
		if cerr := h.worker.Slack.UserClient(token).ClearStatus(ctx); cerr != nil {
			log.Warn("command: clear status on disconnect", slog.Any("err", cerr))
		}
	}
	telemetry.SetLinkedUsers(h.store.Len())
	if err != nil {
		// The in-memory removal stands, but the snapshot on disk still holds
		// the record, so a restart would resurrect the worker.
		log.Error("command: persist removal", slog.Any("err", err))
		replyEphemeral(w, "Disconnected for now, but saving that failed. Run `/slackfm disconnect` again if your status comes back after a restart.")
		return
	}
	replyEphemeral(w, "Disconnected. Your status is yours again.")
}
