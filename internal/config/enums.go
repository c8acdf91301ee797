package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// EnumMaps holds the three closed compiled-in maps (status/tracker/priority
// name -> id) plus the project alias table (name/slug -> id), and their
// reverse id -> name maps used when the Cache Engine resolves wire issue
// rows into display names (spec §4.8, §9: "Enum maps... compiled-in for
// the known tracker deployment").
//
// mu is a pointer so that every copy of an EnumMaps value (the Cache
// Engine and the Aggregation Library each hold their own copy passed by
// value at construction, per the shared-wiring invariant in DESIGN.md)
// guards the same underlying maps — a hot reload mutates the project
// alias maps in place rather than replacing them, so the mutex must be
// shared too.
type EnumMaps struct {
	mu *sync.RWMutex

	ProjectByName   map[string]int
	ProjectNameByID map[int]string

	StatusByName   map[string]int
	StatusNameByID map[int]string

	TrackerByName   map[string]int
	TrackerNameByID map[int]string

	PriorityByName   map[string]int
	PriorityNameByID map[int]string
}

// DefaultEnumMaps returns the compiled-in enum maps for the known tracker
// deployment. Project aliases start empty and are populated from the
// YAML sidecar (see Config.Load) or discovered at runtime via
// BuildProjectAliasesFromTracker.
func DefaultEnumMaps() EnumMaps {
	status := map[string]int{
		"new": 1, "in_progress": 2, "resolved": 3, "feedback": 4,
		"closed": 5, "rejected": 6, "backlog": 7, "cancelled": 8,
	}
	tracker := map[string]int{
		"bug": 1, "feature": 2, "support": 3, "story": 4,
	}
	priority := map[string]int{
		"low": 1, "normal": 2, "high": 3, "urgent": 4, "immediate": 5,
	}

	return EnumMaps{
		mu:               &sync.RWMutex{},
		ProjectByName:    map[string]int{},
		ProjectNameByID:  map[int]string{},
		StatusByName:     status,
		StatusNameByID:   reverse(status),
		TrackerByName:    tracker,
		TrackerNameByID:  reverse(tracker),
		PriorityByName:   priority,
		PriorityNameByID: reverse(priority),
	}
}

func reverse(m map[string]int) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// aliasFile is the YAML shape of the project-alias sidecar:
//
//	projects:
//	  ncel: 6
//	  other-project: 7
type aliasFile struct {
	Projects map[string]int `yaml:"projects"`
}

// loadAliasYAML replaces the project alias table's contents with the
// YAML file's own (in place, so every copy sharing these maps sees the
// update) — first load and hot reload both go through this path. A
// missing file is not an error: the alias table is simply cleared.
func (e *EnumMaps) loadAliasYAML(path string) error {
	var f aliasFile
	data, err := os.ReadFile(path) // #nosec G304 -- path derived from operator-supplied ConfigFile
	switch {
	case os.IsNotExist(err):
		// no sidecar: f stays empty and the table is cleared below
	case err != nil:
		return err
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name := range e.ProjectByName {
		delete(e.ProjectByName, name)
	}
	for id := range e.ProjectNameByID {
		delete(e.ProjectNameByID, id)
	}
	for name, id := range f.Projects {
		e.ProjectByName[strings.ToLower(name)] = id
		e.ProjectNameByID[id] = name
	}
	return nil
}

// BuildProjectAliasesFromTracker populates the project alias table from the
// tracker's own /projects.json listing, for deployments generalizing
// beyond the compiled-in map (spec §9: "an implementer generalizing to
// other deployments should load them on startup from the tracker's enum
// endpoints and fail fast if required names are missing").
func (e *EnumMaps) BuildProjectAliasesFromTracker(projects []trackerclient.Project) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range projects {
		e.ProjectByName[strings.ToLower(p.Identifier)] = p.ID
		e.ProjectByName[strings.ToLower(p.Name)] = p.ID
		e.ProjectNameByID[p.ID] = p.Name
	}
}

// NormalizeProjectID accepts either an integer tracker id or a string
// project slug/display name and returns the resolved id. Unknown names
// return ok=false, which callers propagate as
// {success:false, error:"unknown project"} (spec §4.8).
func (e EnumMaps) NormalizeProjectID(identifier interface{}) (int, bool) {
	switch v := identifier.(type) {
	case int:
		e.mu.RLock()
		_, ok := e.ProjectNameByID[v]
		e.mu.RUnlock()
		return v, ok
	case int64:
		return e.NormalizeProjectID(int(v))
	case float64:
		return e.NormalizeProjectID(int(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if id, err := strconv.Atoi(trimmed); err == nil {
			return e.NormalizeProjectID(id)
		}
		e.mu.RLock()
		id, ok := e.ProjectByName[strings.ToLower(trimmed)]
		e.mu.RUnlock()
		return id, ok
	default:
		return 0, false
	}
}
