package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/session"
)

var convertOut string

var convertCmd = &cobra.Command{
	Use:   "convert <session-id>",
	Short: "Convert a recording into an action script",
	Long: `Derives an editable action script from a recording: mouse moves are
dropped, event offsets become inter-action waits, and sub-100ms waits are
rounded away. The script can be edited by hand and driven with
"record --script".`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertOut, "out", "", "write the script here instead of stdout")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	recordings, _ := openStores()
	rec, err := recordings.Load(args[0])
	if err != nil {
		return err
	}

	sc := session.ScriptFromRecording(rec)
	data, err := session.MarshalScript(sc)
	if err != nil {
		return err
	}

	if convertOut == "" {
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
		return nil
	}
	if err := os.WriteFile(convertOut, data, 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	fmt.Printf("wrote %s: %d actions\n", convertOut, sc.TotalActions)
	return nil
}
