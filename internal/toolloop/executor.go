// Package toolloop implements the Phase-2 Tool-Loop Runtime (SPEC_FULL
// §4.6): a bounded, synchronous dispatch loop between the LLM and the
// Aggregation Library / Direct Counts / Cache Engine / Tracker Client,
// built in the registry's tagged-union dispatch style (spec §7: "Use a
// tagged-union dispatch keyed on tool name ... unknown names produce a
// tool-message error, not a panic").
package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/trackergw/internal/aggregation"
	"github.com/steveyegge/trackergw/internal/auditlog"
	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/nldate"
	"github.com/steveyegge/trackergw/internal/registry"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// Executor dispatches one catalogued tool call by name against the live
// aggregation/cache/tracker components.
type Executor struct {
	Library      *aggregation.Library
	DirectCounts *aggregation.DirectCounts
	Engine       *cache.Engine
	Tracker      *trackerclient.Client

	// Audit receives a best-effort record of every dispatch (spec §4.9).
	// Nil is valid and disables auditing; callers normally pass the
	// no-op store NewStore("") returns rather than leaving this nil.
	Audit auditlog.Store

	// DateResolver resolves the optional "when" argument throughput
	// accepts (SPEC_FULL §4.13) into a week count. Nil disables the
	// override; "weeks" (or its default) is then used as given.
	DateResolver *nldate.Resolver
}

// toolArgs is the permissive args shape every tool call is decoded into;
// individual dispatch branches pull the fields they need.
type toolArgs struct {
	Project        interface{} `json:"project"`
	Version        string      `json:"version"`
	Status         string      `json:"status"`
	Tracker        string      `json:"tracker"`
	IssueID        int         `json:"issue_id"`
	Sprints        int         `json:"sprints"`
	Weeks          int         `json:"weeks"`
	When           string      `json:"when"`
	FixedVersionID int         `json:"fixed_version_id"`
	Action         string      `json:"action"`
}

// Dispatch runs one tool call and returns its JSON-text result. Unknown
// tool names return an error rather than panicking, so the caller can
// wrap it as a tool-message error the model can recover from (spec §4.6
// step 6).
func (e *Executor) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (string, error) {
	start := time.Now()
	result, err := e.dispatch(ctx, name, rawArgs)
	if e.Audit != nil {
		entry := auditlog.Entry{
			Kind:      auditlog.KindToolDispatch,
			ToolName:  name,
			Arguments: rawArgs,
			Success:   err == nil,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.ErrorMessage = err.Error()
		}
		_ = e.Audit.Append(ctx, entry) // best effort
	}
	return result, err
}

func (e *Executor) dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (string, error) {
	if _, ok := registry.Lookup(name); !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	var args toolArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %q: %w", name, err)
		}
	}

	var result interface{}
	switch name {
	case "list_issues":
		result = e.listIssues(ctx, args)
	case "get_issue":
		result = e.getIssue(ctx, args)
	case "list_projects":
		result = e.listProjects(ctx)
	case "list_versions":
		result = e.listVersions(ctx, args)
	case "sprint_status":
		result = e.Library.SprintStatus(ctx, projectArg(args), versionArg(args))
	case "backlog_analytics":
		result = e.Library.BacklogAnalytics(ctx, projectArg(args))
	case "team_workload":
		result = e.Library.TeamWorkload(ctx, projectArg(args))
	case "cycle_time":
		result = e.Library.CycleTime(ctx, projectArg(args), e.Tracker)
	case "bug_analytics":
		result = e.Library.BugAnalytics(ctx, projectArg(args))
	case "release_status":
		result = e.Library.ReleaseStatus(ctx, projectArg(args), versionArg(args))
	case "velocity_trend":
		result = e.Library.VelocityTrend(ctx, projectArg(args), args.Sprints)
	case "throughput":
		weeks, err := e.resolveWeeks(args)
		if err != nil {
			return "", err
		}
		result = e.Library.Throughput(ctx, projectArg(args), weeks)
	case "tasks_in_progress":
		result = e.Library.TasksInProgress(ctx, projectArg(args))
	case "blocked_tasks":
		result = e.Library.BlockedTasks(ctx, projectArg(args))
	case "bug_count":
		result = e.DirectCounts.BugCount(ctx, projectArg(args))
	case "sprint_count":
		result = e.DirectCounts.SprintCount(ctx, projectArg(args), args.FixedVersionID)
	case "backlog_count":
		result = e.DirectCounts.BacklogCount(ctx, projectArg(args))
	case "cache_control":
		result = e.cacheControl(ctx, args)
	default:
		// Catalogued but not wired: a descriptor bug, not a runtime one.
		return "", fmt.Errorf("tool %q is catalogued but has no dispatch handler", name)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal result for %q: %w", name, err)
	}
	return string(raw), nil
}

// resolveWeeks honors throughput's "when" override: a natural-language
// span resolves to its own week count instead of the caller-supplied (or
// default) "weeks" integer. A phrase that doesn't parse surfaces as a
// dispatch error rather than silently falling back (spec §7, §4.13).
func (e *Executor) resolveWeeks(a toolArgs) (int, error) {
	if a.When == "" || e.DateResolver == nil {
		return a.Weeks, nil
	}
	span, err := e.DateResolver.ResolveRange(a.When, time.Now())
	if err != nil {
		return 0, fmt.Errorf("tool_argument_invalid: when %q: %w", a.When, err)
	}
	weeks := int(span.End.Sub(span.Start).Hours() / (24 * 7))
	if weeks < 1 {
		weeks = 1
	}
	return weeks, nil
}

func projectArg(a toolArgs) interface{} {
	if a.Project == nil {
		return nil
	}
	return a.Project
}

func versionArg(a toolArgs) interface{} {
	if a.Version == "" {
		return nil
	}
	return a.Version
}
