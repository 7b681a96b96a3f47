package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/stageload"
)

var (
	stageURL      string
	stageHold     time.Duration
	stageHeadless bool
	stageStealth  bool
)

var stageCmd = &cobra.Command{
	Use:   "stage <session-id> <stage>",
	Short: "Restore a stage snapshot into a fresh page",
	Long: `Loads the snapshot captured when the session entered the preceding stage,
injects its variables, restores the markup region, and invokes the
application entry point for the requested stage. The application then runs
its own logic, isolated from everything that produced the earlier stages.

--hold keeps the page open for inspection before closing.`,
	Args: cobra.ExactArgs(2),
	RunE: runStage,
}

func init() {
	stageCmd.Flags().StringVar(&stageURL, "url", "", "restore into this document instead of the recorded source")
	stageCmd.Flags().DurationVar(&stageHold, "hold", 0, "keep the page open this long for inspection")
	stageCmd.Flags().BoolVar(&stageHeadless, "headless", false, "hide the browser window")
	stageCmd.Flags().BoolVar(&stageStealth, "stealth", false, "apply the stealth page profile")
	rootCmd.AddCommand(stageCmd)
}

func runStage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	stage, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("stage must be an integer, got %q", args[1])
	}

	profile, err := loadProfile()
	if err != nil {
		return err
	}
	if profile == nil {
		return errors.New("stage isolation needs a target profile (--profile)")
	}

	recordings, snapshots := openStores()

	url := stageURL
	if url == "" {
		rec, err := recordings.Load(args[0])
		if err != nil {
			return fmt.Errorf("url omitted and recording unavailable: %w", err)
		}
		url = rec.Source
	}
	url, err = pageURL(url)
	if err != nil {
		return err
	}

	m, err := startBrowser(stageHeadless, stageStealth)
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

	res, err := stageload.New(snapshots, profile, logger).Load(ctx, page, args[0], stage)
	if err != nil {
		return err
	}

	fmt.Printf("stage %d (%s): %d variables injected", res.TargetStage,
		profile.StageName(res.TargetStage), res.Injected)
	if len(res.Failed) > 0 {
		fmt.Printf(", %d failed", len(res.Failed))
	}
	if res.EntryInvoked {
		fmt.Printf(", entry %s", res.EntryCall)
	}
	fmt.Println()

	if stageHold > 0 {
		logger.Info("holding page for inspection", "hold", stageHold)
		select {
		case <-ctx.Done():
		case <-time.After(stageHold):
		}
	}
	return nil
}
