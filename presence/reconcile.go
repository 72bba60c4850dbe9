package presence

import (
	"context"
	"log/slog"

	"github.com/Suyashtnt/slackfm/store"
	"github.com/Suyashtnt/slackfm/telemetry"
)

// Reconcile brings the supervisor in line with the persisted store at
// startup. Authorized records whose Last.fm account no longer exists are
// dropped from the store; the validation pass finishes before any worker
// starts, so no worker ever runs for a dead account. Pending records are
// left alone: their link flow may still complete.
//
// A transient Last.fm failure during validation keeps the record. Only a
// definitive "no such user" answer drops it; the worker's own polling
// copes with an API that is briefly down.
func Reconcile(ctx context.Context, st *store.Store, sup *Supervisor, deps Deps) {
	var spawn []*store.Record
	st.Range(func(rec *store.Record) bool {
		if !rec.Authorized() {
			return true
		}
		username := rec.TrackedUsername()
		exists, err := deps.LastFM.VerifyUser(ctx, username)
		switch {
		case err != nil:
			slog.Warn("reconcile: existence check failed; keeping user",
				slog.String("slack_user", rec.ID()), slog.String("lastfm_user", username), slog.Any("err", err))
			spawn = append(spawn, rec)
		case !exists:
			slog.Info("reconcile: dropping user with stale lastfm account",
				slog.String("slack_user", rec.ID()), slog.String("lastfm_user", username))
			if _, err := st.Remove(rec.ID()); err != nil {
				slog.Error("reconcile: remove stale user", slog.String("slack_user", rec.ID()), slog.Any("err", err))
			}
		default:
			spawn = append(spawn, rec)
		}
		return ctx.Err() == nil
	})

	for _, rec := range spawn {
		sup.Spawn(rec.ID(), func(ctx context.Context) {
			Run(ctx, deps, rec)
		})
	}

	telemetry.SetLinkedUsers(st.Len())
	slog.Info("reconcile: complete", slog.Int("records", st.Len()), slog.Int("workers", len(spawn)))
}
