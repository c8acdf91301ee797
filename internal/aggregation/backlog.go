package aggregation

import (
	"context"
	"time"

	"github.com/steveyegge/trackergw/internal/types"
)

// BacklogPayload is the `backlog` shaped response (spec §4.3 #2).
type BacklogPayload struct {
	Backlog struct {
		TotalOpen             int     `json:"total_open"`
		HighPriorityOpen      int     `json:"high_priority_open"`
		UnestimatedPercentage float64 `json:"unestimated_percentage"`
	} `json:"backlog"`
	Aging struct {
		AverageDaysOpen float64 `json:"average_days_open"`
	} `json:"aging"`
	MonthlyActivity struct {
		CreatedThisMonth int    `json:"created_this_month"`
		ClosedThisMonth  int    `json:"closed_this_month"`
		NetChange        int    `json:"net_change"`
		Month            string `json:"month"`
	} `json:"monthly_activity"`
}

// BacklogAnalytics is spec §4.3 #2: open-issue volume, aging, and
// current-month activity for a project's backlog.
func (l *Library) BacklogAnalytics(ctx context.Context, project interface{}) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	all := issuesForProject(snap, projectID, project != nil)
	now := time.Now().In(l.loc)

	var p BacklogPayload
	p.MonthlyActivity.Month = now.Format("2006-01")

	var open []types.Issue
	for _, is := range all {
		if types.IsOpenStatus(is.Status.Name) {
			open = append(open, is)
		}
		if is.CreatedOn.Year() == now.Year() && is.CreatedOn.Month() == now.Month() {
			p.MonthlyActivity.CreatedThisMonth++
		}
		if is.ClosedOn != nil && is.ClosedOn.Year() == now.Year() && is.ClosedOn.Month() == now.Month() {
			p.MonthlyActivity.ClosedThisMonth++
		}
	}
	p.MonthlyActivity.NetChange = p.MonthlyActivity.CreatedThisMonth - p.MonthlyActivity.ClosedThisMonth

	p.Backlog.TotalOpen = len(open)

	var unestimated, highPriority int
	var ageSum float64
	for _, is := range open {
		if types.CriticalPriorities[is.Priority.Name] {
			highPriority++
		}
		if is.EstimatedHours == nil || *is.EstimatedHours == 0 {
			unestimated++
		}
		ageSum += now.Sub(is.CreatedOn).Hours() / 24
	}
	p.Backlog.HighPriorityOpen = highPriority
	if p.Backlog.TotalOpen > 0 {
		p.Backlog.UnestimatedPercentage = round1(100 * float64(unestimated) / float64(p.Backlog.TotalOpen))
		p.Aging.AverageDaysOpen = round1(ageSum / float64(p.Backlog.TotalOpen))
	}

	return ok(p)
}
