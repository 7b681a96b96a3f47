// Package mcptool exposes the session stores and engines as typed MCP tools
// over stdio, so agent tooling can enumerate recorded sessions, replay them,
// and drop a page into an isolated stage without shelling out to the CLI.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagetape/browser"
	"github.com/hazyhaar/pagetape/inspect"
	"github.com/hazyhaar/pagetape/replay"
	"github.com/hazyhaar/pagetape/stageload"
	"github.com/hazyhaar/pagetape/store"
	"github.com/hazyhaar/pagetape/target"
)

// Config wires a Service. NewPage opens a fresh page for the tools that
// drive a browser; tests substitute a fake.
type Config struct {
	Recordings *store.Recordings
	Snapshots  *store.Snapshots
	Profile    *target.Profile
	Logger     *slog.Logger
	NewPage    func(ctx context.Context) (browser.Page, error)
}

// Service implements the pagetape tool surface.
type Service struct {
	recordings *store.Recordings
	snapshots  *store.Snapshots
	profile    *target.Profile
	logger     *slog.Logger
	newPage    func(ctx context.Context) (browser.Page, error)
	replayer   *replay.Replayer
	loader     *stageload.Loader
}

// New returns a Service for the given configuration.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		recordings: cfg.Recordings,
		snapshots:  cfg.Snapshots,
		profile:    cfg.Profile,
		logger:     cfg.Logger,
		newPage:    cfg.NewPage,
		replayer:   replay.New(cfg.Logger),
		loader:     stageload.New(cfg.Snapshots, cfg.Profile, cfg.Logger),
	}
}

// Register adds every pagetape tool to srv.
func (s *Service) Register(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "sessions_list",
		Description: "List recorded interaction sessions with event counts, duration and captured stages.",
	}, s.SessionsList())
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "session_describe",
		Description: "Describe one session: event counts per kind and per-stage snapshot statistics.",
	}, s.SessionDescribe())
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "replay_session",
		Description: "Replay a recorded session against a fresh page at the given speed and report the dispatch summary.",
	}, s.ReplaySession())
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "load_stage",
		Description: "Restore the snapshot preceding the given stage into a fresh page and invoke the application's entry point.",
	}, s.LoadStage())
}

// Run serves the tools over stdio until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "pagetape", Version: "0.1.0"}, nil)
	s.Register(srv)
	s.logger.Info("mcp server listening on stdio")
	err := srv.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return err
}

// --- sessions_list ---

type SessionsListInput struct{}

type SessionSummary struct {
	SessionID string  `json:"session_id" jsonschema:"session identifier"`
	Events    int     `json:"events" jsonschema:"captured event count"`
	Duration  float64 `json:"duration_seconds" jsonschema:"session length in seconds"`
	Source    string  `json:"source" jsonschema:"document the session was recorded against"`
	Stages    []int   `json:"stages,omitempty" jsonschema:"captured stage indices"`
}

type SessionsListOutput struct {
	Sessions []SessionSummary `json:"sessions" jsonschema:"known sessions, oldest first"`
}

func (s *Service) SessionsList() mcp.ToolHandlerFor[SessionsListInput, SessionsListOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SessionsListInput) (*mcp.CallToolResult, SessionsListOutput, error) {
		ids, err := s.recordings.List()
		if err != nil {
			return nil, SessionsListOutput{}, err
		}
		out := SessionsListOutput{Sessions: make([]SessionSummary, 0, len(ids))}
		for _, id := range ids {
			rec, err := s.recordings.Load(id)
			if err != nil {
				s.logger.Warn("session unreadable, skipped", "session_id", id, "error", err)
				continue
			}
			stages, _ := s.snapshots.Stages(id)
			out.Sessions = append(out.Sessions, SessionSummary{
				SessionID: id,
				Events:    len(rec.Events),
				Duration:  rec.Duration,
				Source:    rec.Source,
				Stages:    stages,
			})
		}
		return nil, out, nil
	}
}

// --- session_describe ---

type SessionDescribeInput struct {
	SessionID string `json:"session_id" jsonschema:"session identifier"`
}

type StageDetail struct {
	Stage      int     `json:"stage" jsonschema:"stage index"`
	Name       string  `json:"name,omitempty" jsonschema:"stage label from the target profile"`
	CapturedAt float64 `json:"captured_at" jsonschema:"seconds into the session when the snapshot was taken"`
	Variables  int     `json:"variables" jsonschema:"captured variable count"`
	Nodes      int     `json:"nodes" jsonschema:"element count of the captured markup"`
	TextLen    int     `json:"text_len" jsonschema:"visible text length of the captured markup"`
	Excerpt    string  `json:"excerpt,omitempty" jsonschema:"leading text of the captured markup"`
}

type SessionDescribeOutput struct {
	SessionID string         `json:"session_id"`
	Source    string         `json:"source"`
	Duration  float64        `json:"duration_seconds"`
	Events    map[string]int `json:"events" jsonschema:"event count per kind"`
	Stages    []StageDetail  `json:"stages,omitempty"`
}

func (s *Service) SessionDescribe() mcp.ToolHandlerFor[SessionDescribeInput, SessionDescribeOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SessionDescribeInput) (*mcp.CallToolResult, SessionDescribeOutput, error) {
		rec, err := s.recordings.Load(in.SessionID)
		if err != nil {
			return nil, SessionDescribeOutput{}, err
		}

		out := SessionDescribeOutput{
			SessionID: rec.SessionID,
			Source:    rec.Source,
			Duration:  rec.Duration,
			Events:    make(map[string]int),
		}
		for kind, n := range rec.CountByKind() {
			out.Events[string(kind)] = n
		}

		stages, err := s.snapshots.Stages(in.SessionID)
		if err != nil {
			return nil, SessionDescribeOutput{}, err
		}
		for _, stage := range stages {
			snap, err := s.snapshots.Get(in.SessionID, stage)
			if err != nil {
				s.logger.Warn("snapshot unreadable, skipped",
					"session_id", in.SessionID,
					"stage", stage,
					"error", err)
				continue
			}
			detail := StageDetail{
				Stage:      snap.Stage,
				CapturedAt: snap.CapturedAt,
				Variables:  len(snap.Variables),
			}
			if s.profile != nil {
				detail.Name = s.profile.StageName(snap.Stage)
			}
			if sum, err := inspect.Summarize(snap.Markup); err == nil {
				detail.Nodes = sum.Nodes
				detail.TextLen = sum.TextLen
				detail.Excerpt = sum.Excerpt
			}
			out.Stages = append(out.Stages, detail)
		}
		return nil, out, nil
	}
}

// --- replay_session ---

type ReplayInput struct {
	SessionID string  `json:"session_id" jsonschema:"session to replay"`
	URL       string  `json:"url,omitempty" jsonschema:"document to replay against, defaults to the recorded source"`
	Speed     float64 `json:"speed,omitempty" jsonschema:"playback speed factor, 1.0 when omitted"`
}

type ReplayOutput struct {
	SessionID  string  `json:"session_id"`
	Events     int     `json:"events"`
	Dispatched int     `json:"dispatched"`
	Failed     int     `json:"failed"`
	Speed      float64 `json:"speed"`
	WallTime   float64 `json:"wall_time_seconds"`
}

func (s *Service) ReplaySession() mcp.ToolHandlerFor[ReplayInput, ReplayOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ReplayInput) (*mcp.CallToolResult, ReplayOutput, error) {
		rec, err := s.recordings.Load(in.SessionID)
		if err != nil {
			return nil, ReplayOutput{}, err
		}
		speed := in.Speed
		if speed == 0 {
			speed = 1.0
		}
		url := in.URL
		if url == "" {
			url = rec.Source
		}
		url, err = browser.ResolveURL(url)
		if err != nil {
			return nil, ReplayOutput{}, err
		}

		page, err := s.newPage(ctx)
		if err != nil {
			return nil, ReplayOutput{}, fmt.Errorf("open page: %w", err)
		}
		defer page.Close()

		if err := page.Navigate(ctx, url); err != nil {
			return nil, ReplayOutput{}, fmt.Errorf("navigate %s: %w", url, err)
		}
		sum, err := s.replayer.Replay(ctx, page, rec, speed)
		if err != nil {
			return nil, ReplayOutput{}, err
		}
		return nil, ReplayOutput{
			SessionID:  sum.SessionID,
			Events:     sum.Events,
			Dispatched: sum.Dispatched,
			Failed:     sum.Failed,
			Speed:      sum.Speed,
			WallTime:   sum.WallTime.Seconds(),
		}, nil
	}
}

// --- load_stage ---

type LoadStageInput struct {
	SessionID string `json:"session_id" jsonschema:"session whose snapshot to restore"`
	Stage     int    `json:"stage" jsonschema:"stage to enter; the snapshot of stage-1 is restored"`
	URL       string `json:"url,omitempty" jsonschema:"document to restore into, defaults to the recorded source"`
}

type LoadStageOutput struct {
	SessionID      string   `json:"session_id"`
	TargetStage    int      `json:"target_stage"`
	SnapshotStage  int      `json:"snapshot_stage"`
	Injected       int      `json:"injected"`
	Failed         []string `json:"failed,omitempty" jsonschema:"variables that could not be injected"`
	MarkupReplaced bool     `json:"markup_replaced"`
	EntryInvoked   bool     `json:"entry_invoked"`
	EntryCall      string   `json:"entry_call,omitempty"`
}

func (s *Service) LoadStage() mcp.ToolHandlerFor[LoadStageInput, LoadStageOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in LoadStageInput) (*mcp.CallToolResult, LoadStageOutput, error) {
		url := in.URL
		if url == "" {
			rec, err := s.recordings.Load(in.SessionID)
			if err != nil {
				return nil, LoadStageOutput{}, fmt.Errorf("url omitted and recording unavailable: %w", err)
			}
			url = rec.Source
		}
		url, err := browser.ResolveURL(url)
		if err != nil {
			return nil, LoadStageOutput{}, err
		}

		page, err := s.newPage(ctx)
		if err != nil {
			return nil, LoadStageOutput{}, fmt.Errorf("open page: %w", err)
		}
		defer page.Close()

		if err := page.Navigate(ctx, url); err != nil {
			return nil, LoadStageOutput{}, fmt.Errorf("navigate %s: %w", url, err)
		}
		res, err := s.loader.Load(ctx, page, in.SessionID, in.Stage)
		if err != nil {
			return nil, LoadStageOutput{}, err
		}

		out := LoadStageOutput{
			SessionID:      res.SessionID,
			TargetStage:    res.TargetStage,
			SnapshotStage:  res.SnapshotStage,
			Injected:       res.Injected,
			MarkupReplaced: res.MarkupReplaced,
			EntryInvoked:   res.EntryInvoked,
			EntryCall:      res.EntryCall,
		}
		for _, f := range res.Failed {
			out.Failed = append(out.Failed, f.Name)
		}
		return nil, out, nil
	}
}
