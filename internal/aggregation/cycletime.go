package aggregation

import (
	"context"

	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/trackerclient"
	"github.com/steveyegge/trackergw/internal/types"
)

// CycleTimePayload is the `lead_time`/`cycle_time` shaped response
// (spec §4.3 #4).
type CycleTimePayload struct {
	LeadTime struct {
		AverageDays *float64 `json:"average_days"`
	} `json:"lead_time"`
	CycleTime struct {
		AverageDays  *float64 `json:"average_days"`
		FallbackUsed bool     `json:"fallback_used"`
	} `json:"cycle_time"`
	ReopenedTickets struct {
		Count      *int     `json:"count"`
		Percentage *float64 `json:"percentage,omitempty"`
		Reason     string   `json:"reason,omitempty"`
	} `json:"reopened_tickets"`
}

// CycleTime is spec §4.3 #4: lead/cycle time means over closed issues, and
// the reopened-ticket rate derived from each issue's change journal.
//
// The journal is not part of the cached snapshot (Redmine's bulk issue
// listing never includes it — see cache.WithJournal), so this aggregation
// fetches it per closed issue directly from the Tracker Client rather than
// through the Cache Engine's query surface. journalClient is nil-safe: a
// caller without tracker access (e.g. a unit test exercising only the
// lead-time arithmetic) gets `journal_unavailable` instead of a panic.
func (l *Library) CycleTime(ctx context.Context, project interface{}, journalClient *trackerclient.Client) Result {
	projectID, ok2 := l.resolveProject(project)
	if !ok2 {
		return fail("unknown project")
	}
	snap, err := l.engine.Query(ctx)
	if err != nil {
		return fail(err.Error())
	}

	all := issuesForProject(snap, projectID, project != nil)

	var p CycleTimePayload
	var leadSum, cycleSum float64
	var leadN, cycleN int
	fallbackUsed := false
	var closed []types.Issue

	for _, is := range all {
		if is.ClosedOn == nil {
			continue
		}
		closed = append(closed, is)

		leadSum += is.ClosedOn.Sub(is.CreatedOn).Hours() / 24
		leadN++

		if is.StartDate != nil {
			cycleSum += is.ClosedOn.Sub(*is.StartDate).Hours() / 24
		} else {
			cycleSum += is.ClosedOn.Sub(is.CreatedOn).Hours() / 24
			fallbackUsed = true
		}
		cycleN++
	}

	if leadN > 0 {
		avg := round1(leadSum / float64(leadN))
		p.LeadTime.AverageDays = &avg
	}
	if cycleN > 0 {
		avg := round1(cycleSum / float64(cycleN))
		p.CycleTime.AverageDays = &avg
		p.CycleTime.FallbackUsed = fallbackUsed
	}

	if journalClient == nil {
		p.ReopenedTickets.Reason = "journal_unavailable"
		return ok(p)
	}

	reopened, jerr := l.countReopened(ctx, journalClient, closed)
	if jerr != nil {
		p.ReopenedTickets.Reason = "journal_unavailable"
		return ok(p)
	}
	p.ReopenedTickets.Count = &reopened
	if len(closed) > 0 {
		pct := round1(100 * float64(reopened) / float64(len(closed)))
		p.ReopenedTickets.Percentage = &pct
	}

	return ok(p)
}

// countReopened fetches each closed issue's change journal and counts
// those whose journal records a closed->open status transition.
func (l *Library) countReopened(ctx context.Context, c *trackerclient.Client, closed []types.Issue) (int, error) {
	reopened := 0
	for _, is := range closed {
		_, rawJournal, err := c.GetIssue(ctx, is.ID)
		if err != nil {
			return 0, err
		}
		withJournal := cache.WithJournal(is, rawJournal, l.enums, l.loc)
		if hasReopen(withJournal.Journal) {
			reopened++
		}
	}
	return reopened, nil
}

func hasReopen(journal []types.JournalEntry) bool {
	for _, j := range journal {
		if types.ClosedStatuses[j.FromStatus] && types.IsOpenStatus(j.ToStatus) && j.ToStatus != "" {
			return true
		}
	}
	return false
}
