package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/recorder"
	"github.com/hazyhaar/pagetape/session"
	"github.com/hazyhaar/pagetape/store"
)

var (
	recordScript   string
	recordHeadless bool
	recordStealth  bool
)

var recordCmd = &cobra.Command{
	Use:   "record <url>",
	Short: "Capture a timed interaction session (Ctrl+S in the page saves it)",
	Long: `Opens the document, injects the capture script before any page code runs,
and buffers interaction events until the session ends. Ctrl+S inside the page
saves and exits; closing the page or interrupting the command saves what was
captured so far.

With a profile, stage transitions are snapshotted as they happen. With
--script the page is driven from a converted action script instead of a
human.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordScript, "script", "", "drive the page from an action script file")
	recordCmd.Flags().BoolVar(&recordHeadless, "headless", false, "hide the browser window")
	recordCmd.Flags().BoolVar(&recordStealth, "stealth", false, "apply the stealth page profile")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url, err := pageURL(args[0])
	if err != nil {
		return err
	}

	profile, err := loadProfile()
	if err != nil {
		return err
	}
	recordings, snapshots := openStores()
	journal, err := store.OpenJournal(journalPath())
	if err != nil {
		return err
	}
	defer journal.Close()

	m, err := startBrowser(recordHeadless, recordStealth)
	if err != nil {
		return err
	}
	defer m.Close()

	page, err := m.NewPage()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	rec := recorder.New(recorder.Config{
		Recordings: recordings,
		Snapshots:  snapshots,
		Journal:    journal,
		Profile:    profile,
		Logger:     logger,
	})

	var res *recorder.Result
	if recordScript != "" {
		sc, err := loadScript(recordScript)
		if err != nil {
			return err
		}
		res, err = rec.RecordScript(ctx, page, url, sc)
		if err != nil {
			return err
		}
	} else {
		res, err = rec.Record(ctx, page, url)
		if err != nil {
			return err
		}
	}

	fmt.Printf("saved %s: %d events, %d stage snapshots, %.1fs (%s)\n",
		res.SessionID, res.Events, len(res.Stages), res.Duration, res.Reason)
	return nil
}

func loadScript(path string) (*session.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return session.UnmarshalScript(data)
}
