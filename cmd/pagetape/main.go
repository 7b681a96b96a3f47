// Command pagetape records, replays and stage-isolates interaction sessions
// against page-hosted applications.
//
// Usage:
//
//	pagetape record page/index.html           # capture a session (Ctrl+S saves)
//	pagetape replay <session-id> --speed 2    # replay it twice as fast
//	pagetape stage <session-id> 3             # jump straight to stage 3
//	pagetape sessions                         # list what has been captured
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagetape/browser"
	"github.com/hazyhaar/pagetape/store"
	"github.com/hazyhaar/pagetape/target"
)

var (
	dataDir     string
	profilePath string
	remoteURL   string
	logLevel    string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pagetape",
	Short: "Record, replay and stage-isolate page-hosted application sessions",
	Long: `pagetape drives a Chrome page: it records timed interaction sessions,
replays them on their original timeline, and restores captured stage
snapshots so any stage can be debugged in isolation.

Recordings, snapshots and the crash journal live under the data directory.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", envOr("PAGETAPE_DATA", "pagetape-data"),
		"directory for recordings, snapshots and the journal")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", os.Getenv("PAGETAPE_PROFILE"),
		"target profile YAML (enables stage snapshots)")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "",
		"WebSocket URL of an external Chrome (default: launch one)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openStores returns the recording and snapshot stores under the data dir.
func openStores() (*store.Recordings, *store.Snapshots) {
	return store.NewRecordings(filepath.Join(dataDir, "recordings")),
		store.NewSnapshots(filepath.Join(dataDir, "snapshots"))
}

func journalPath() string {
	return filepath.Join(dataDir, "journal.db")
}

// pageURL resolves a document argument so the documented
// "pagetape record page/index.html" works: local paths become absolute
// file:// URLs, real URLs pass through.
func pageURL(arg string) (string, error) {
	return browser.ResolveURL(arg)
}

// loadProfile loads the target profile named by --profile, nil when unset.
func loadProfile() (*target.Profile, error) {
	if profilePath == "" {
		return nil, nil
	}
	return target.Load(profilePath)
}

// startBrowser launches Chrome, or connects to the instance named by
// --remote.
func startBrowser(headless, stealthOn bool) (*browser.Manager, error) {
	m := browser.NewManager(browser.Config{
		RemoteURL: remoteURL,
		Headless:  headless,
		Stealth:   stealthOn,
		Logger:    logger,
	})
	if err := m.Start(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return m, nil
}
