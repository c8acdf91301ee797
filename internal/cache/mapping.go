package cache

import (
	"strconv"
	"time"

	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/trackerclient"
	"github.com/steveyegge/trackergw/internal/types"
)

// loc is the configured zone for date arithmetic; all instants on a mapped
// Issue are zone-aware (spec §3: "date arithmetic is forbidden across
// naive/aware boundaries").
func mapIssues(wire []trackerclient.IssueExport, enums config.EnumMaps, loc *time.Location) []types.Issue {
	out := make([]types.Issue, 0, len(wire))
	for _, w := range wire {
		out = append(out, mapIssue(w, enums, loc))
	}
	return out
}

// mapIssue maps one bulk-listed row. Bulk listing (ListIssues) never
// includes the change journal — Redmine only returns journals on the
// single-issue endpoint — so Journal is left nil here. Callers needing
// journal-derived aggregations (ReopenedTickets, cycle time) fetch it
// separately with GetIssue and attach it via WithJournal.
func mapIssue(w trackerclient.IssueExport, enums config.EnumMaps, loc *time.Location) types.Issue {
	issue := types.Issue{
		ID:       w.ID,
		Subject:  w.Subject,
		Project:  types.IDName{ID: w.Project.ID, Name: resolveName(w.Project.Name, enums.ProjectNameByID, w.Project.ID)},
		Tracker:  types.IDName{ID: w.Tracker.ID, Name: resolveName(w.Tracker.Name, enums.TrackerNameByID, w.Tracker.ID)},
		Status:   types.IDName{ID: w.Status.ID, Name: resolveName(w.Status.Name, enums.StatusNameByID, w.Status.ID)},
		Priority: types.IDName{ID: w.Priority.ID, Name: resolveName(w.Priority.Name, enums.PriorityNameByID, w.Priority.ID)},

		EstimatedHours: w.EstimatedHours,
		SpentHours:     w.SpentHours,
		DoneRatio:      w.DoneRatio,
	}

	if w.Assignee != nil {
		issue.Assignee = &types.IDName{ID: w.Assignee.ID, Name: w.Assignee.Name}
	}
	if w.FixedVersion != nil {
		issue.FixedVersion = &types.IDName{ID: w.FixedVersion.ID, Name: w.FixedVersion.Name}
	}

	issue.CreatedOn = parseTimeIn(w.CreatedOn, loc)
	issue.UpdatedOn = parseTimeIn(w.UpdatedOn, loc)
	issue.ClosedOn = parseTimePtrIn(w.ClosedOn, loc)
	issue.StartDate = parseDatePtrIn(w.StartDate, loc)
	issue.DueDate = parseDatePtrIn(w.DueDate, loc)

	return issue
}

// WithJournal returns a copy of issue with its change journal attached,
// mapped from a GetIssue fetch.
func WithJournal(issue types.Issue, entries []trackerclient.JournalExport, enums config.EnumMaps, loc *time.Location) types.Issue {
	issue.Journal = mapJournal(entries, enums, loc)
	return issue
}

// MapIssue exports mapIssue for callers outside the package (the
// tracker-core get_issue tool fetches a single issue directly rather than
// through a refreshed snapshot, and needs the same wire mapping).
func MapIssue(w trackerclient.IssueExport, enums config.EnumMaps, loc *time.Location) types.Issue {
	return mapIssue(w, enums, loc)
}

func resolveName(wireName string, byID map[int]string, id int) string {
	if wireName != "" {
		return wireName
	}
	if byID != nil {
		if name, ok := byID[id]; ok {
			return name
		}
	}
	return wireName
}

// journalPropertyAttr/journalNameStatusID is the property/name pair
// Redmine uses to record a status change in a journal entry's details.
const (
	journalPropertyAttr = "attr"
	journalNameStatusID = "status_id"
)

// mapJournal extracts status transitions from the tracker's raw
// property/name/old_value/new_value journal details (spec §4.3's
// "reopened" analysis needs closed->open transitions, not Redmine's
// generic change-log shape), resolving status ids to names via enums.
func mapJournal(entries []trackerclient.JournalExport, enums config.EnumMaps, loc *time.Location) []types.JournalEntry {
	if entries == nil {
		return nil
	}
	out := make([]types.JournalEntry, 0, len(entries))
	for _, e := range entries {
		for _, d := range e.Details {
			if d.Property != journalPropertyAttr || d.Name != journalNameStatusID {
				continue
			}
			out = append(out, types.JournalEntry{
				At:         parseTimeIn(e.CreatedOn, loc),
				FromStatus: statusNameForID(d.OldValue, enums),
				ToStatus:   statusNameForID(d.NewValue, enums),
			})
		}
	}
	return out
}

func statusNameForID(idStr string, enums config.EnumMaps) string {
	if idStr == "" {
		return ""
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return ""
	}
	return enums.StatusNameByID[id]
}

const trackerTimeLayout = "2006-01-02T15:04:05Z07:00"
const trackerDateLayout = "2006-01-02"

func parseTimeIn(s string, loc *time.Location) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(trackerTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.In(loc)
}

func parseTimePtrIn(s *string, loc *time.Location) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTimeIn(*s, loc)
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseDatePtrIn(s *string, loc *time.Location) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.ParseInLocation(trackerDateLayout, *s, loc)
	if err != nil {
		return nil
	}
	return &t
}

func mapProjects(wire []trackerclient.Project) []types.Project {
	out := make([]types.Project, 0, len(wire))
	for _, p := range wire {
		out = append(out, types.Project{ID: p.ID, Identifier: p.Identifier, Name: p.Name, Description: p.Description})
	}
	return out
}

func mapVersions(wire []trackerclient.Version, projectID int, loc *time.Location) []types.Version {
	out := make([]types.Version, 0, len(wire))
	for _, v := range wire {
		out = append(out, types.Version{
			ID:        v.ID,
			ProjectID: projectID,
			Name:      v.Name,
			Status:    v.Status,
			DueDate:   parseDatePtrIn(v.DueDate, loc),
		})
	}
	return out
}

func mapUsers(wire []trackerclient.User) []types.User {
	out := make([]types.User, 0, len(wire))
	for _, u := range wire {
		out = append(out, types.User{ID: u.ID, Name: u.Name})
	}
	return out
}
