package main

import (
	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/serve"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Host a directory of target pages without caching",
	Long: `Serves the directory (default .) over HTTP with caching disabled, so
edited target pages always reload fresh during record/replay cycles.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	return serve.Run(cmd.Context(), serve.Config{
		Addr:   serveAddr,
		Dir:    dir,
		Logger: logger,
	})
}
