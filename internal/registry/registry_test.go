package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/trackergw/internal/registry"
)

func TestGetToolsForCategoryFiltersByEnabledSet(t *testing.T) {
	enabled := map[registry.Category]bool{registry.CategoryTrackerAnalytics: true}

	tools := registry.GetToolsForCategory(registry.CategoryTrackerAnalytics, enabled)
	assert.NotEmpty(t, tools)
	for _, d := range tools {
		assert.Equal(t, registry.CategoryTrackerAnalytics, d.Category)
	}

	assert.Empty(t, registry.GetToolsForCategory(registry.CategoryTrackerCore, enabled), "tracker-core is not in the enabled set")
	assert.Empty(t, registry.GetToolsForCategory(registry.CategoryCacheControl, enabled), "cache-control is not in the enabled set")
}

func TestGetToolsForCategoryEmptyWhenDisabled(t *testing.T) {
	tools := registry.GetToolsForCategory(registry.CategoryTrackerAnalytics, nil)
	assert.Empty(t, tools)
}

func TestLookupFindsEveryCatalogueEntryByName(t *testing.T) {
	for _, d := range registry.All() {
		found, ok := registry.Lookup(d.Name)
		assert.True(t, ok, "descriptor %q should be findable by name", d.Name)
		assert.Equal(t, d.Name, found.Name)
	}

	_, ok := registry.Lookup("no_such_tool")
	assert.False(t, ok)
}

func TestFirstEnabledPicksInAllCategoriesOrder(t *testing.T) {
	enabled := map[registry.Category]bool{
		registry.CategoryCacheControl:     true,
		registry.CategoryTrackerAnalytics: true,
	}
	cat, ok := registry.FirstEnabled(enabled)
	assert.True(t, ok)
	assert.Equal(t, registry.CategoryTrackerAnalytics, cat, "tracker-analytics precedes cache-control in AllCategories")

	_, ok = registry.FirstEnabled(nil)
	assert.False(t, ok)
}

func TestValidCategoryRejectsUnknownNames(t *testing.T) {
	cat, ok := registry.ValidCategory("tracker-analytics")
	assert.True(t, ok)
	assert.Equal(t, registry.CategoryTrackerAnalytics, cat)

	_, ok = registry.ValidCategory("not-a-real-category")
	assert.False(t, ok)
}

func TestAllDescriptorsDeclareProjectParamConsistently(t *testing.T) {
	for _, d := range registry.All() {
		for _, p := range d.Params {
			if p.Name == "project" {
				assert.True(t, p.AcceptsProjectForm, "tool %q's project param must document dual id/slug acceptance", d.Name)
			}
		}
	}
}
