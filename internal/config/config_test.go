package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/trackergw/internal/registry"
)

func TestParseCategoryToggleEmptyAllowsEverything(t *testing.T) {
	enabled := ParseCategoryToggle("")
	for _, c := range registry.AllCategories {
		if !enabled[c] {
			t.Fatalf("expected category %q allowed by default", c)
		}
	}
}

func TestParseCategoryToggleRestrictsToListed(t *testing.T) {
	enabled := ParseCategoryToggle("tracker-core, cache-control")
	if !enabled[registry.CategoryTrackerCore] || !enabled[registry.CategoryCacheControl] {
		t.Fatalf("expected listed categories allowed, got %v", enabled)
	}
	if enabled[registry.CategoryTrackerAnalytics] {
		t.Fatalf("expected tracker-analytics to be disallowed")
	}
}

func TestCategoryToggleIntersectNarrowsRequestedSet(t *testing.T) {
	toggle := NewCategoryToggle(map[registry.Category]bool{registry.CategoryTrackerCore: true})
	requested := map[registry.Category]bool{
		registry.CategoryTrackerCore:      true,
		registry.CategoryTrackerAnalytics: true,
	}
	got := toggle.Intersect(requested)
	if !got[registry.CategoryTrackerCore] {
		t.Fatalf("expected tracker-core to survive intersection")
	}
	if got[registry.CategoryTrackerAnalytics] {
		t.Fatalf("expected tracker-analytics to be masked off by the toggle")
	}
}

func TestCategoryToggleSetIsVisibleAfterReload(t *testing.T) {
	toggle := NewCategoryToggle(map[registry.Category]bool{registry.CategoryTrackerCore: true})
	toggle.Set(map[registry.Category]bool{registry.CategoryCacheControl: true})

	got := toggle.Intersect(map[registry.Category]bool{
		registry.CategoryTrackerCore:  true,
		registry.CategoryCacheControl: true,
	})
	if got[registry.CategoryTrackerCore] {
		t.Fatalf("expected tracker-core disallowed after Set narrowed the toggle")
	}
	if !got[registry.CategoryCacheControl] {
		t.Fatalf("expected cache-control allowed after Set")
	}
}

func TestConfigReloadUpdatesToggleAndProjectAliases(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gateway.toml")
	aliasPath := filepath.Join(dir, "gateway.aliases.yaml")

	if err := os.WriteFile(cfgPath, []byte(`ENABLED_CATEGORIES = "tracker-core"`+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(aliasPath, []byte("projects:\n  ncel: 6\n"), 0o600); err != nil {
		t.Fatalf("write aliases: %v", err)
	}

	cfg := &Config{
		ConfigFile: cfgPath,
		Enums:      DefaultEnumMaps(),
		Toggle:     NewCategoryToggle(ParseCategoryToggle("")),
	}

	if err := cfg.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	allowed := cfg.Toggle.Intersect(map[registry.Category]bool{
		registry.CategoryTrackerCore:      true,
		registry.CategoryTrackerAnalytics: true,
	})
	if !allowed[registry.CategoryTrackerCore] {
		t.Fatalf("expected tracker-core allowed after reload")
	}
	if allowed[registry.CategoryTrackerAnalytics] {
		t.Fatalf("expected tracker-analytics disallowed after reload narrowed the toggle")
	}

	id, ok := cfg.Enums.NormalizeProjectID("ncel")
	if !ok || id != 6 {
		t.Fatalf("expected alias sidecar to resolve ncel to 6, got id=%d ok=%v", id, ok)
	}
}

func TestConfigReloadClearsRemovedAliases(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gateway.toml")
	aliasPath := filepath.Join(dir, "gateway.aliases.yaml")

	if err := os.WriteFile(cfgPath, []byte(``), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(aliasPath, []byte("projects:\n  ncel: 6\n"), 0o600); err != nil {
		t.Fatalf("write aliases: %v", err)
	}

	cfg := &Config{ConfigFile: cfgPath, Enums: DefaultEnumMaps(), Toggle: NewCategoryToggle(ParseCategoryToggle(""))}
	if err := cfg.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := cfg.Enums.NormalizeProjectID("ncel"); !ok {
		t.Fatalf("expected ncel resolvable after first reload")
	}

	if err := os.WriteFile(aliasPath, []byte("projects:\n  other: 9\n"), 0o600); err != nil {
		t.Fatalf("rewrite aliases: %v", err)
	}
	if err := cfg.reload(); err != nil {
		t.Fatalf("second reload: %v", err)
	}

	if _, ok := cfg.Enums.NormalizeProjectID("ncel"); ok {
		t.Fatalf("expected stale alias ncel to be cleared by reload")
	}
	if _, ok := cfg.Enums.NormalizeProjectID("other"); !ok {
		t.Fatalf("expected new alias other to resolve after reload")
	}
}
