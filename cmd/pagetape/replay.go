package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/replay"
)

var (
	replaySpeed    float64
	replayURL      string
	replayPause    bool
	replayHeadless bool
	replayStealth  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Replay a recorded session on its original timeline",
	Long: `Dispatches the session's events against a fresh page with the original
inter-event timing. --speed compresses or stretches the timeline; failed
dispatches are reported but do not stop the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "playback speed factor (2 = twice as fast)")
	replayCmd.Flags().StringVar(&replayURL, "url", "", "replay against this document instead of the recorded source")
	replayCmd.Flags().BoolVar(&replayPause, "pause", false, "neutralize the app's timers after the last event")
	replayCmd.Flags().BoolVar(&replayHeadless, "headless", true, "hide the browser window")
	replayCmd.Flags().BoolVar(&replayStealth, "stealth", false, "apply the stealth page profile")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	recordings, _ := openStores()
	rec, err := recordings.Load(args[0])
	if err != nil {
		return err
	}
	url := replayURL
	if url == "" {
		url = rec.Source
	}
	url, err = pageURL(url)
	if err != nil {
		return err
	}

	m, err := startBrowser(replayHeadless, replayStealth)
	if err != nil {
		return err
	}
	defer m.Close()

	page, err := m.NewPage()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	var opts []replay.Option
	if replayPause {
		opts = append(opts, replay.WithPause())
	}
	sum, err := replay.New(logger, opts...).Replay(ctx, page, rec, replaySpeed)
	if err != nil {
		return err
	}

	fmt.Printf("replayed %s: %d/%d events dispatched (%d failed) in %s at %gx\n",
		sum.SessionID, sum.Dispatched, sum.Events, sum.Failed,
		sum.WallTime.Round(time.Millisecond), sum.Speed)
	for _, f := range sum.Failures {
		fmt.Printf("  event %d (%s %s): %s\n", f.Index, f.Kind, f.Selector, f.Reason)
	}
	return nil
}
