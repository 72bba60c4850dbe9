// Package main provides a CLI tool to rotate the credential store passphrase.
//
// The store is decrypted with the old passphrase and rewritten in place under
// the new one. Run it while the service is stopped; a concurrent rotation
// would race the service's own writes.
//
// Usage:
//
//	rotate-passphrase [--store PATH] [--dry-run]
//
// Environment Variables:
//
//	STORE_PATH: store file location (default db.json.enc, overridden by --store)
//	OLD_STORE_PASSPHRASE: current passphrase (required)
//	NEW_STORE_PASSPHRASE: replacement passphrase (required)
//
// Example:
//
//	export OLD_STORE_PASSPHRASE="..." NEW_STORE_PASSPHRASE="..."
//	./rotate-passphrase --store /var/lib/slackfm/db.json.enc --dry-run
//	./rotate-passphrase --store /var/lib/slackfm/db.json.enc
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/Suyashtnt/slackfm/store"
)

func main() {
	storePath := flag.String("store", "", "store file location (default: STORE_PATH or db.json.enc)")
	dryRun := flag.Bool("dry-run", false, "decrypt and report without rewriting the file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	path := *storePath
	if path == "" {
		path = os.Getenv("STORE_PATH")
	}
	if path == "" {
		path = "db.json.enc"
	}

	oldPass := os.Getenv("OLD_STORE_PASSPHRASE")
	newPass := os.Getenv("NEW_STORE_PASSPHRASE")
	if oldPass == "" || newPass == "" {
		slog.Error("OLD_STORE_PASSPHRASE and NEW_STORE_PASSPHRASE are required")
		os.Exit(1)
	}

	st, err := store.Open(path, oldPass)
	if err != nil {
		slog.Error("failed to open store", slog.String("path", path), slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("store opened", slog.String("path", path), slog.Int("records", st.Len()))

	if *dryRun {
		slog.Info("dry run: store decrypts cleanly, no changes written")
		return
	}

	if err := st.Rekey(newPass); err != nil {
		slog.Error("rekey failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("store re-encrypted under the new passphrase", slog.Int("records", st.Len()))
}
