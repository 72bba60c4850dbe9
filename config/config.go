// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup;
// the Slack and Last.fm credentials have no defaults and are validated up front.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Last.fm
	LastFMAPIKey string

	// Slack app
	SlackClientID      string
	SlackClientSecret  string
	SlackSigningSecret string
	SlackTeamID        string
	SlackRedirectURI   string

	// Credential store
	StorePath       string
	StorePassphrase string

	// Polling
	PollInterval time.Duration

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. Required credentials
// (LASTFM_API_KEY, SLACK_CLIENT_ID, SLACK_CLIENT_SECRET, SLACK_SIGNING_SECRET)
// are reported together in one error so a fresh deployment fails once, not
// once per variable.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.LastFMAPIKey = os.Getenv("LASTFM_API_KEY")
	cfg.SlackClientID = os.Getenv("SLACK_CLIENT_ID")
	cfg.SlackClientSecret = os.Getenv("SLACK_CLIENT_SECRET")
	cfg.SlackSigningSecret = os.Getenv("SLACK_SIGNING_SECRET")

	var missing []string
	if cfg.LastFMAPIKey == "" {
		missing = append(missing, "LASTFM_API_KEY")
	}
	if cfg.SlackClientID == "" {
		missing = append(missing, "SLACK_CLIENT_ID")
	}
	if cfg.SlackClientSecret == "" {
		missing = append(missing, "SLACK_CLIENT_SECRET")
	}
	if cfg.SlackSigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}

	// Optional: when set, slash commands from other workspaces are rejected.
	cfg.SlackTeamID = os.Getenv("SLACK_TEAM_ID")

	cfg.SlackRedirectURI = os.Getenv("SLACK_REDIRECT_URI")
	if cfg.SlackRedirectURI == "" {
		cfg.SlackRedirectURI = "http://localhost:3000/auth"
	}

	cfg.StorePath = os.Getenv("STORE_PATH")
	if cfg.StorePath == "" {
		cfg.StorePath = "db.json.enc"
	}

	// The signing secret doubles as the store passphrase when none is set,
	// so a minimal deployment only manages the Slack credentials.
	cfg.StorePassphrase = os.Getenv("STORE_PASSPHRASE")
	if cfg.StorePassphrase == "" {
		cfg.StorePassphrase = cfg.SlackSigningSecret
	}

	cfg.PollInterval = 10 * time.Second
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL (duration): %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL: must be positive, got %s", d)
		}
		cfg.PollInterval = d
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":3000"
	}

	return cfg, nil
}
