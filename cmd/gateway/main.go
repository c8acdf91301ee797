// Command gateway is the tracker conversational gateway process
// (SPEC_FULL §4.11): a single cobra root with serve/doctor/cache
// subcommands, following the teacher's cmd/bd root-command construction.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/steveyegge/trackergw/internal/aggregation"
	"github.com/steveyegge/trackergw/internal/auditlog"
	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/nldate"
	"github.com/steveyegge/trackergw/internal/selector"
	"github.com/steveyegge/trackergw/internal/toolloop"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "gateway - conversational tracker gateway",
	Long:  `Dispatches structured tool calls against a project-management tracker on behalf of an LLM chat client.`,
}

func main() {
	rootCmd.AddCommand(serveCmd, doctorCmd, cacheCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// components bundles every constructed gateway dependency; serve and
// doctor both build one from the same config to guarantee they observe
// identical enum maps (config.EnumMaps must be shared: the Cache Engine
// and Aggregation Library disagree about project/status resolution
// otherwise).
type components struct {
	cfg     *config.Config
	tracker *trackerclient.Client
	engine  *cache.Engine
	lib     *aggregation.Library
	direct  *aggregation.DirectCounts
	llmc    *llm.Client
	sel     *selector.Selector
	runtime *toolloop.Runtime
	audit   auditlog.Store
}

func buildComponents(ctx context.Context) (*components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	bearer := cfg.TrackerClientSecret // OAuth provisioning is out of scope; a ready credential is consumed as-is.
	tracker := trackerclient.New(cfg.TrackerBaseURL, cfg.TrackerAPIKey, bearer, nil, cfg.ConnConcurrency)
	tracker.MaxIssues = cfg.CacheMaxIssues

	loc := time.Local
	engine := cache.NewEngine(tracker, cfg.Enums, loc, cfg.CacheTTL)
	lib := aggregation.New(engine, cfg.Enums, loc, cfg.OverloadedThreshold, cfg.BlockedStatus)
	direct := aggregation.NewDirectCounts(tracker, cfg.Enums)

	llmc, err := llm.New(cfg.LLMAPIKey, "")
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	sel := selector.New(llmc)

	audit, err := auditlog.NewStore(ctx, cfg.AuditDSN)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	runtime := &toolloop.Runtime{
		LLM: llmc,
		Executor: &toolloop.Executor{
			Library:      lib,
			DirectCounts: direct,
			Engine:       engine,
			Tracker:      tracker,
			Audit:        audit,
			DateResolver: nldate.New(loc),
		},
	}

	return &components{
		cfg:     cfg,
		tracker: tracker,
		engine:  engine,
		lib:     lib,
		direct:  direct,
		llmc:    llmc,
		sel:     sel,
		runtime: runtime,
		audit:   audit,
	}, nil
}

// pingTracker is a cheap reachability probe shared by serve's startup log
// and doctor's diagnostic: list projects with a short deadline.
func pingTracker(ctx context.Context, c *trackerclient.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.ListProjects(ctx)
	return err
}

// pingLLM is a cheap reachability probe: a minimal completion request.
func pingLLM(ctx context.Context, c *llm.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.Complete(ctx, llm.Request{
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
		MaxTokens: 8,
	})
	return err
}
