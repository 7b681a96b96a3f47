package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/inspect"
	"github.com/hazyhaar/pagetape/store"
)

var sessionsRecover string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Long: `Lists every persisted session with its event count, duration, source
document and captured stages. --recover rebuilds a recording from the journal
rows a crashed session left behind.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

var stagesCmd = &cobra.Command{
	Use:   "stages <session-id>",
	Short: "List a session's captured stage snapshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runStages,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsRecover, "recover", "", "rebuild a recording from journal rows left by a crash")
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(stagesCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	if sessionsRecover != "" {
		return recoverSession(cmd.Context(), sessionsRecover)
	}

	recordings, snapshots := openStores()
	ids, err := recordings.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	for _, id := range ids {
		rec, err := recordings.Load(id)
		if err != nil {
			logger.Warn("session unreadable, skipped", "session_id", id, "error", err)
			continue
		}
		line := fmt.Sprintf("%s  %d events  %.1fs  %s", id, len(rec.Events), rec.Duration, rec.Source)
		if stages, _ := snapshots.Stages(id); len(stages) > 0 {
			line += fmt.Sprintf("  stages %v", stages)
		}
		fmt.Println(line)
	}
	return nil
}

func recoverSession(ctx context.Context, id string) error {
	journal, err := store.OpenJournal(journalPath())
	if err != nil {
		return err
	}
	defer journal.Close()

	rec, err := journal.Recover(ctx, id)
	if err != nil {
		return err
	}
	recordings, _ := openStores()
	if err := recordings.Persist(rec); err != nil {
		return err
	}
	if err := journal.Clear(ctx, id); err != nil {
		logger.Warn("journal clear failed after recovery", "session_id", id, "error", err)
	}
	fmt.Printf("recovered %s: %d events, %.1fs\n", rec.SessionID, len(rec.Events), rec.Duration)
	return nil
}

func runStages(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile()
	if err != nil {
		return err
	}
	_, snapshots := openStores()

	stages, err := snapshots.Stages(args[0])
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		fmt.Println("no stage snapshots captured")
		return nil
	}
	for _, stage := range stages {
		snap, err := snapshots.Get(args[0], stage)
		if err != nil {
			logger.Warn("snapshot unreadable, skipped", "session_id", args[0], "stage", stage, "error", err)
			continue
		}
		name := fmt.Sprintf("stage %d", stage)
		if profile != nil {
			name = profile.StageName(stage)
		}
		line := fmt.Sprintf("%d  %s  %d vars  at %.1fs", stage, name, len(snap.Variables), snap.CapturedAt)
		if sum, err := inspect.Summarize(snap.Markup); err == nil {
			line += fmt.Sprintf("  %d nodes  %q", sum.Nodes, sum.Excerpt)
		}
		fmt.Println(line)
	}
	return nil
}
