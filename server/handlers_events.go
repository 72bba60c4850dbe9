package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/slack-go/slack/slackevents"
)

// HandlePush receives Slack Events API deliveries. The only event handled is
// the url_verification handshake Slack performs when the endpoint is saved in
// the app config; everything else is acknowledged and dropped.
func (h *Handlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := h.verifiedBody(w, r)
	if !ok {
		return
	}
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(w, "unparseable event", http.StatusBadRequest)
		return
	}
	switch ev.Type {
	case slackevents.URLVerification:
		var ch *slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &ch); err != nil {
			http.Error(w, "unparseable challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(ch.Challenge))
	default:
		slog.Debug("push: ignoring event", slog.String("type", ev.Type))
		w.WriteHeader(http.StatusOK)
	}
}
