package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Suyashtnt/slackfm/lastfm"
	"github.com/Suyashtnt/slackfm/slackapi"
	"github.com/Suyashtnt/slackfm/store"
	"github.com/Suyashtnt/slackfm/telemetry"
)

// Deps are the collaborators a worker needs.
type Deps struct {
	LastFM   *lastfm.Client
	Slack    *slackapi.App
	Interval time.Duration // poll cadence; <=0 uses lastfm.DefaultPollInterval
}

// Run mirrors one linked user's now-playing state into their Slack
// status until ctx is cancelled. Track changes set the status to
// "<title> - <artist>", stopping playback clears it, and every failure
// past startup is logged and survived: a broken poll or push never kills
// the worker.
//
// The record is the live shared view from the store, so a username change
// made while the worker runs is picked up on the next poll.
func Run(ctx context.Context, deps Deps, rec *store.Record) {
	log := slog.With(slog.String("slack_user", rec.ID()))

	token := rec.Token()
	if token == "" {
		log.Info("worker: record not authorized; exiting")
		return
	}
	sc := deps.Slack.UserClient(token)

	log.Info("worker: started", slog.String("lastfm_user", rec.TrackedUsername()))
	for ev := range deps.LastFM.StreamNowPlaying(ctx, rec, deps.Interval) {
		switch {
		case ev.Err != nil:
			log.Warn("worker: poll failed", slog.Any("err", ev.Err))

		case ev.Track != nil:
			text := fmt.Sprintf("%s - %s", ev.Track.Title, ev.Track.Artist)
			if err := sc.SetStatus(ctx, text); err != nil {
				telemetry.IncStatusUpdate(true)
				log.Warn("worker: status update failed", slog.Any("err", err))
				continue
			}
			telemetry.IncStatusUpdate(false)
			log.Info("worker: status set", slog.String("status", text))

		default:
			if err := sc.ClearStatus(ctx); err != nil {
				telemetry.IncStatusUpdate(true)
				log.Warn("worker: status clear failed", slog.Any("err", err))
				continue
			}
			telemetry.IncStatusUpdate(false)
			log.Info("worker: status cleared")
		}
	}
	log.Info("worker: stopped")
}
