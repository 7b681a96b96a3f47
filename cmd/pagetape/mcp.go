package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagetape/browser"
	"github.com/hazyhaar/pagetape/mcptool"
)

var mcpHeadless bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the session tools to an MCP client over stdio",
	Long: `Exposes sessions_list, session_describe, replay_session and load_stage as
MCP tools on stdin/stdout. The browser starts lazily on the first tool call
that needs a page.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpHeadless, "headless", true, "hide the browser window")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile()
	if err != nil {
		return err
	}
	recordings, snapshots := openStores()

	var (
		mu sync.Mutex
		m  *browser.Manager
	)
	defer func() {
		if m != nil {
			m.Close()
		}
	}()

	newPage := func(context.Context) (browser.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if m == nil {
			started, err := startBrowser(mcpHeadless, false)
			if err != nil {
				return nil, err
			}
			m = started
		}
		return m.NewPage()
	}

	svc := mcptool.New(mcptool.Config{
		Recordings: recordings,
		Snapshots:  snapshots,
		Profile:    profile,
		Logger:     logger,
		NewPage:    newPage,
	})
	return svc.Run(cmd.Context())
}
