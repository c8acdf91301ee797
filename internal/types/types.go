// Package types defines the tabular records projected from the issue
// tracker into the analytic snapshot, and the closed enumerations they
// are validated against.
package types

import "time"

// Status partitions the tracker's status enum into open and closed sets.
// "feedback" is treated as the blocked marker by configuration (see
// config.BlockedStatus) rather than hard-coded here.
const (
	StatusNew        = "new"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusFeedback   = "feedback"
	StatusClosed     = "closed"
	StatusRejected   = "rejected"
	StatusBacklog    = "backlog"
	StatusCancelled  = "cancelled"
)

// ClosedStatuses is the closed partition of the status enum.
var ClosedStatuses = map[string]bool{
	StatusClosed:    true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsOpenStatus reports whether name is in the open partition.
func IsOpenStatus(name string) bool {
	return !ClosedStatuses[name]
}

// Priority enum, lowest to highest.
const (
	PriorityLow       = "low"
	PriorityNormal    = "normal"
	PriorityHigh      = "high"
	PriorityUrgent    = "urgent"
	PriorityImmediate = "immediate"
)

// CriticalPriorities is the priority subset that counts as "critical" for
// bug analytics and backlog high-priority counts.
var CriticalPriorities = map[string]bool{
	PriorityHigh:      true,
	PriorityUrgent:    true,
	PriorityImmediate: true,
}

// TrackerBug is the tracker-name value identifying bug-type issues.
const TrackerBug = "bug"

// TrackerStory is the tracker-name value identifying story-type issues.
const TrackerStory = "story"

// Issue is one row of the projected issues table.
type Issue struct {
	ID       int
	Subject  string
	Project  IDName
	Tracker  IDName
	Status   IDName
	Priority IDName

	// Assignee and FixedVersion are nil when the field is unset on the
	// tracker side.
	Assignee     *IDName
	FixedVersion *IDName

	EstimatedHours *float64
	SpentHours     *float64

	CreatedOn time.Time
	UpdatedOn time.Time
	ClosedOn  *time.Time

	StartDate *time.Time
	DueDate   *time.Time

	DoneRatio int

	// Journal holds status transitions, nil when the tracker's change
	// journal could not be fetched for this issue (see ReopenedTickets).
	Journal []JournalEntry
}

// IDName pairs an enum id with its resolved display name.
type IDName struct {
	ID   int
	Name string
}

// JournalEntry is one status transition recorded against an issue.
type JournalEntry struct {
	At         time.Time
	FromStatus string
	ToStatus   string
}

// Project is one row of the projected projects table.
type Project struct {
	ID          int
	Identifier  string
	Name        string
	Description string
}

// Version status enum.
const (
	VersionOpen   = "open"
	VersionLocked = "locked"
	VersionClosed = "closed"
)

// Version is one row of the projected versions table ("sprint" in the
// glossary sense).
type Version struct {
	ID        int
	ProjectID int
	Name      string
	Status    string
	DueDate   *time.Time
}

// User is one row of the projected users table.
type User struct {
	ID   int
	Name string
}
