package toolloop

import (
	"context"

	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/types"
)

// issuesResult is the `issues` shaped response the renderer dispatches on
// (spec §6: "the renderer dispatches on presence of... issues").
type issuesResult struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Issues  []types.Issue `json:"issues,omitempty"`
}

func (e *Executor) listIssues(ctx context.Context, a toolArgs) issuesResult {
	snap, err := e.Engine.Query(ctx)
	if err != nil {
		return issuesResult{Success: false, Error: err.Error()}
	}

	projectID, ok := e.Library.ResolveProject(projectArg(a))
	if !ok {
		return issuesResult{Success: false, Error: "unknown project"}
	}

	var out []types.Issue
	for _, is := range snap.Issues {
		if projectArg(a) != nil && is.Project.ID != projectID {
			continue
		}
		switch a.Status {
		case "":
		case "open":
			if !types.IsOpenStatus(is.Status.Name) {
				continue
			}
		case "closed":
			if types.IsOpenStatus(is.Status.Name) {
				continue
			}
		default:
			if is.Status.Name != a.Status {
				continue
			}
		}
		if a.Tracker != "" && is.Tracker.Name != a.Tracker {
			continue
		}
		out = append(out, is)
	}
	return issuesResult{Success: true, Issues: out}
}

type getIssueResult struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Issue   *types.Issue `json:"issue,omitempty"`
}

func (e *Executor) getIssue(ctx context.Context, a toolArgs) getIssueResult {
	if a.IssueID == 0 {
		return getIssueResult{Success: false, Error: "issue_id is required"}
	}
	wire, journal, err := e.Tracker.GetIssue(ctx, a.IssueID)
	if err != nil {
		return getIssueResult{Success: false, Error: err.Error()}
	}
	issue := cache.MapIssue(*wire, e.Library.Enums(), e.Library.Loc())
	issue = cache.WithJournal(issue, journal, e.Library.Enums(), e.Library.Loc())
	return getIssueResult{Success: true, Issue: &issue}
}

type projectsResult struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Projects []types.Project `json:"projects,omitempty"`
}

func (e *Executor) listProjects(ctx context.Context) projectsResult {
	snap, err := e.Engine.Query(ctx)
	if err != nil {
		return projectsResult{Success: false, Error: err.Error()}
	}
	return projectsResult{Success: true, Projects: snap.Projects}
}

type versionsResult struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Versions []types.Version `json:"versions,omitempty"`
}

func (e *Executor) listVersions(ctx context.Context, a toolArgs) versionsResult {
	snap, err := e.Engine.Query(ctx)
	if err != nil {
		return versionsResult{Success: false, Error: err.Error()}
	}
	projectID, ok := e.Library.ResolveProject(projectArg(a))
	if !ok {
		return versionsResult{Success: false, Error: "unknown project"}
	}
	var out []types.Version
	for _, v := range snap.Versions {
		if v.ProjectID == projectID {
			out = append(out, v)
		}
	}
	return versionsResult{Success: true, Versions: out}
}

type cacheControlResult struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Status   string        `json:"status,omitempty"`
	CacheInfo *cacheInfo   `json:"cache_info,omitempty"`
}

type cacheInfo struct {
	Initialized    bool                    `json:"initialized"`
	LastUpdated    string                  `json:"last_updated,omitempty"`
	AgeSeconds     float64                 `json:"age_seconds"`
	Counts         cacheCounts             `json:"counts"`
	EndpointErrors []cache.EndpointError   `json:"endpoint_errors,omitempty"`
}

type cacheCounts struct {
	Issues   int `json:"issues"`
	Projects int `json:"projects"`
	Users    int `json:"users"`
	Versions int `json:"versions"`
}

func (e *Executor) cacheControl(ctx context.Context, a toolArgs) cacheControlResult {
	switch a.Action {
	case "on":
		if err := e.Engine.Enable(ctx); err != nil {
			return cacheControlResult{Success: false, Error: err.Error()}
		}
		return cacheControlResult{Success: true, Status: "enabled"}
	case "off":
		e.Engine.Disable()
		return cacheControlResult{Success: true, Status: "disabled"}
	case "refresh":
		if _, err := e.Engine.Refresh(ctx); err != nil {
			return cacheControlResult{Success: false, Error: err.Error()}
		}
		return cacheControlResult{Success: true}
	case "status":
		s := e.Engine.StatusNow()
		info := &cacheInfo{
			Initialized:    s.Initialized,
			AgeSeconds:     s.AgeSeconds,
			Counts:         cacheCounts{Issues: s.IssueCount, Projects: s.ProjectCount, Users: s.UserCount, Versions: s.VersionCount},
			EndpointErrors: s.EndpointErrors,
		}
		if !s.LastUpdated.IsZero() {
			info.LastUpdated = s.LastUpdated.Format("2006-01-02T15:04:05Z07:00")
		}
		return cacheControlResult{Success: true, CacheInfo: info}
	default:
		return cacheControlResult{Success: false, Error: "unknown cache action"}
	}
}
