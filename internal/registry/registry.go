// Package registry is the static tool descriptor catalogue (SPEC_FULL
// §4.4): every tool the Tool-Loop Runtime can expose to the model, tagged
// with a category so the Category Selector's choice filters which subset
// is shown in a given turn. Descriptors are plain data — this package has
// no dependency on the LLM SDK or the Aggregation Library, matching the
// teacher's habit of keeping declarative catalogues (see
// internal/types/types.go's enum-as-const-block style) free of behavior.
package registry

// Category is one of the closed set of tool groupings a Category Selector
// round can choose (spec §4.4, §4.5).
type Category string

const (
	// CategoryTrackerCore covers raw tracker reads: issues, projects,
	// versions, users.
	CategoryTrackerCore Category = "tracker-core"
	// CategoryTrackerAnalytics covers the ten aggregations and the three
	// direct-count fallbacks.
	CategoryTrackerAnalytics Category = "tracker-analytics"
	// CategoryCacheControl covers the on/off/refresh/status cache
	// control tool, mirroring the /api/redmine-cache HTTP surface.
	CategoryCacheControl Category = "cache-control"
)

// AllCategories is the closed enumeration the Category Selector's model
// round and keyword prefilter both validate choices against.
var AllCategories = []Category{CategoryTrackerCore, CategoryTrackerAnalytics, CategoryCacheControl}

// ParamType is the JSON-Schema-like primitive type of one parameter.
type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
)

// Param describes one named tool parameter. AcceptsProjectForm documents the
// dual integer/string acceptance spec §4.4 requires for any parameter
// that accepts a project identifier.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// OneOf restricts a string parameter to a closed enumeration (e.g.
	// cache control's action).
	OneOf []string
	// AcceptsProjectForm documents that this parameter, though typed
	// ParamString in the descriptor, also accepts an integer tracker id
	// — resolved at dispatch time through EnumMaps.NormalizeProjectID.
	AcceptsProjectForm bool
}

// Descriptor is one catalogued tool: stable name, human description for
// the model, its parameter shape, and the category it belongs to.
type Descriptor struct {
	Name        string
	Description string
	Category    Category
	Params      []Param
}

// project is the recurring optional project-identifier parameter shared
// by the aggregation, direct-count and project-scoped tracker-core tools
// (list_issues, list_versions) (spec §4.4: "for project_id
// the recognized forms are integer tracker id and string project slug or
// display name").
func project(required bool) Param {
	return Param{
		Name:               "project",
		Type:               ParamString,
		Description:        "Project identifier: either the tracker's numeric project id, or its slug/display name (e.g. \"ncel\").",
		Required:           required,
		AcceptsProjectForm: true,
	}
}

// catalogue is the full static tool list (spec §4.3's ten aggregations +
// three direct counts, plus tracker-core reads and cache control).
var catalogue = []Descriptor{
	// tracker-core
	{
		Name:        "list_issues",
		Description: "List issues matching optional project, status, and tracker filters.",
		Category:    CategoryTrackerCore,
		Params: []Param{
			project(false),
			{Name: "status", Type: ParamString, Description: "Status name filter (e.g. \"open\", \"closed\", or a specific status name)."},
			{Name: "tracker", Type: ParamString, Description: "Tracker type name filter (e.g. \"bug\", \"story\")."},
		},
	},
	{
		Name:        "get_issue",
		Description: "Fetch a single issue by id, including its change journal.",
		Category:    CategoryTrackerCore,
		Params: []Param{
			{Name: "issue_id", Type: ParamInteger, Description: "Numeric issue id.", Required: true},
		},
	},
	{
		Name:        "list_projects",
		Description: "List all projects known to the tracker.",
		Category:    CategoryTrackerCore,
	},
	{
		Name:        "list_versions",
		Description: "List versions (sprints/releases) for a project.",
		Category:    CategoryTrackerCore,
		Params:      []Param{project(true)},
	},
	// tracker-analytics: aggregations
	{
		Name:        "sprint_status",
		Description: "Committed/completed/blocked counts and completion percentage for a sprint (version).",
		Category:    CategoryTrackerAnalytics,
		Params: []Param{
			project(false),
			{Name: "version", Type: ParamString, Description: "Version (sprint) name. Omit to count all of the project's issues, without a version filter."},
		},
	},
	{
		Name:        "backlog_analytics",
		Description: "Open backlog size, high-priority count, unestimated percentage, aging, and this-month created/closed counts.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	{
		Name:        "team_workload",
		Description: "Open issue count per assignee, unassigned count, and overloaded-member list.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	{
		Name:        "cycle_time",
		Description: "Average lead time and cycle time in days, plus reopened-ticket rate (requires per-issue journal fetches).",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	{
		Name:        "bug_analytics",
		Description: "Open/closed bug totals, critical-open breakdown, bug-to-story ratio, average resolution days.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	{
		Name:        "release_status",
		Description: "Completion percentage and issue counts for one release (version), or the list of all releases for a project.",
		Category:    CategoryTrackerAnalytics,
		Params: []Param{
			project(false),
			{Name: "version", Type: ParamString, Description: "Release/version name. Omit to list all releases for the project."},
		},
	},
	{
		Name:        "velocity_trend",
		Description: "Completed-issue count for each of the last N closed sprints, average velocity, and trend direction.",
		Category:    CategoryTrackerAnalytics,
		Params: []Param{
			project(false),
			{Name: "sprints", Type: ParamInteger, Description: "Number of most recent closed sprints to include. Default 5."},
		},
	},
	{
		Name:        "throughput",
		Description: "Created/closed/net issue counts per ISO week for the last N weeks, with trend direction.",
		Category:    CategoryTrackerAnalytics,
		Params: []Param{
			project(false),
			{Name: "weeks", Type: ParamInteger, Description: "Number of most recent ISO weeks to include. Default 4."},
			{Name: "when", Type: ParamString, Description: "Natural-language relative span (e.g. \"last month\", \"this week\") overriding weeks with its own window length."},
		},
	},
	{
		Name:        "tasks_in_progress",
		Description: "Count of open issues currently in progress.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	{
		Name:        "blocked_tasks",
		Description: "Count of open issues in the configured blocked status.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	// tracker-analytics: direct counts (bypass the cache for exact totals)
	{
		Name:        "bug_count",
		Description: "Exact open/closed/total bug counts, bypassing the analytic cache and its truncation cap.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	{
		Name:        "sprint_count",
		Description: "Exact issue count for one sprint (version), bypassing the analytic cache.",
		Category:    CategoryTrackerAnalytics,
		Params: []Param{
			project(false),
			{Name: "fixed_version_id", Type: ParamInteger, Description: "Numeric version id.", Required: true},
		},
	},
	{
		Name:        "backlog_count",
		Description: "Exact open-issue count, bypassing the analytic cache.",
		Category:    CategoryTrackerAnalytics,
		Params:      []Param{project(false)},
	},
	// cache-control
	{
		Name:        "cache_control",
		Description: "Enable, disable, force-refresh, or query the state of the analytic cache.",
		Category:    CategoryCacheControl,
		Params: []Param{
			{Name: "action", Type: ParamString, Description: "Cache operation to perform.", Required: true, OneOf: []string{"on", "off", "refresh", "status"}},
		},
	},
}

// byName indexes the catalogue for O(1) dispatch-time lookup.
var byName = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(catalogue))
	for _, d := range catalogue {
		m[d.Name] = d
	}
	return m
}()

// Lookup returns the descriptor for name, if catalogued.
func Lookup(name string) (Descriptor, bool) {
	d, ok := byName[name]
	return d, ok
}

// All returns the full static catalogue.
func All() []Descriptor {
	return catalogue
}

// GetToolsForCategory returns the subset of the catalogue that is both
// tagged with category and present (true) in enabled, matching spec
// §4.4's "in the category and currently enabled by the deployer."
func GetToolsForCategory(category Category, enabled map[Category]bool) []Descriptor {
	if !enabled[category] {
		return nil
	}
	out := make([]Descriptor, 0, len(catalogue))
	for _, d := range catalogue {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// FirstEnabled returns the first category (in AllCategories order) that
// is set in enabled — used by the Category Selector's fallback step
// (spec §4.5 step 3).
func FirstEnabled(enabled map[Category]bool) (Category, bool) {
	for _, c := range AllCategories {
		if enabled[c] {
			return c, true
		}
	}
	return "", false
}

// ValidCategory reports whether name is one of the closed category
// enumeration values.
func ValidCategory(name string) (Category, bool) {
	for _, c := range AllCategories {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}
