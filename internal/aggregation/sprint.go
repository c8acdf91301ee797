package aggregation

import (
	"context"

	"github.com/steveyegge/trackergw/internal/types"
)

// SprintStatusPayload is the `sprint`+`metrics` shaped response (spec §4.3 #1).
type SprintStatusPayload struct {
	Sprint struct {
		Name    string  `json:"name,omitempty"`
		DueDate *string `json:"due_date,omitempty"`
	} `json:"sprint"`
	Metrics struct {
		Committed           int            `json:"committed"`
		Completed           int            `json:"completed"`
		InProgress          int            `json:"in_progress"`
		Blocked             int            `json:"blocked"`
		Remaining           int            `json:"remaining"`
		CompletionPct       float64        `json:"completion_pct"`
		TotalEstimatedHours float64        `json:"total_estimated_hours"`
		TotalSpentHours     float64        `json:"total_spent_hours"`
		BreakdownByStatus   map[string]int `json:"breakdown_by_status"`
		BurndownAssessment  string         `json:"burndown_assessment"`
	} `json:"metrics"`
}

// SprintStatus is spec §4.3 #1: per-version committed/completed/in-progress/
// blocked counts, hours totals, status breakdown, and a burndown call.
func (l *Library) SprintStatus(ctx context.Context, project interface{}, version interface{}) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}

	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	base := issuesForProject(snap, projectID, project != nil)
	var versionID int
	var versionName string
	var versionDue *string
	if version != nil {
		for _, v := range snap.Versions {
			if v.Name == version {
				versionID = v.ID
				versionName = v.Name
				if v.DueDate != nil {
					s := v.DueDate.Format(trackerDateLayout)
					versionDue = &s
				}
				break
			}
		}
		filtered := make([]types.Issue, 0, len(base))
		for _, is := range base {
			if is.FixedVersion != nil && is.FixedVersion.ID == versionID {
				filtered = append(filtered, is)
			}
		}
		base = filtered
	}

	var p SprintStatusPayload
	p.Sprint.Name = versionName
	p.Sprint.DueDate = versionDue
	p.Metrics.BreakdownByStatus = map[string]int{}

	committed := len(base)
	completed, inProgress, blocked := 0, 0, 0
	var totalEst, totalSpent float64
	for _, is := range base {
		p.Metrics.BreakdownByStatus[is.Status.Name]++
		if types.ClosedStatuses[is.Status.Name] {
			completed++
		}
		if is.Status.Name == types.StatusInProgress {
			inProgress++
		}
		if is.Status.Name == l.BlockedStatus {
			blocked++
		}
		if is.EstimatedHours != nil {
			totalEst += *is.EstimatedHours
		}
		if is.SpentHours != nil {
			totalSpent += *is.SpentHours
		}
	}

	p.Metrics.Committed = committed
	p.Metrics.Completed = completed
	p.Metrics.InProgress = inProgress
	p.Metrics.Blocked = blocked
	p.Metrics.Remaining = committed - completed
	p.Metrics.TotalEstimatedHours = totalEst
	p.Metrics.TotalSpentHours = totalSpent

	var completionPct float64
	if committed > 0 {
		completionPct = round1(100 * float64(completed) / float64(committed))
	}
	p.Metrics.CompletionPct = completionPct

	if completionPct >= 50 {
		p.Metrics.BurndownAssessment = "on_track"
	} else {
		p.Metrics.BurndownAssessment = "behind"
	}

	return ok(p)
}

const trackerDateLayout = "2006-01-02"
