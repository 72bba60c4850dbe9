// Package main provides a CLI to watch a Last.fm account's now-playing
// stream from the terminal. It drives the same change-detection loop the
// service workers use, which makes it handy for checking what the mirror
// would push before linking an account.
//
// Usage:
//
//	lastfm-poll -user USERNAME [-interval 10s]
//
// Environment Variables:
//
//	LASTFM_API_KEY: Last.fm API key (required)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Suyashtnt/slackfm/lastfm"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "Last.fm username to watch")
	interval := flag.Duration("interval", lastfm.DefaultPollInterval, "poll interval")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: lastfm-poll -user USERNAME [-interval 10s]")
		os.Exit(2)
	}
	apiKey := os.Getenv("LASTFM_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "LASTFM_API_KEY is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &lastfm.Client{APIKey: apiKey}
	fmt.Printf("watching %s (interval %s, first check after one interval)\n", *user, *interval)

	for ev := range client.StreamNowPlaying(ctx, lastfm.Username(*user), *interval) {
		stamp := time.Now().Format(time.TimeOnly)
		switch {
		case ev.Err != nil:
			fmt.Printf("%s  poll error: %v\n", stamp, ev.Err)
		case ev.Track != nil:
			fmt.Printf("%s  now playing: %s - %s\n", stamp, ev.Track.Title, ev.Track.Artist)
		default:
			fmt.Printf("%s  nothing playing\n", stamp)
		}
	}
}
