// Package config loads the gateway's configuration: tracker/LLM
// credentials, HTTP surface settings, and the compiled enum maps used for
// project/status/tracker/priority identifier resolution (SPEC_FULL §4.8).
//
// Layering follows the teacher's internal/config precedence rule (see
// local_config.go's LoadLocalConfigWithEnv: environment wins over file):
// a TOML file holds the human-edited static settings, loaded through
// spf13/viper so every field is also bindable from the environment, and a
// YAML sidecar holds the project alias table —
// the one piece of config an operator is likely to hand-edit or export.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/steveyegge/trackergw/internal/registry"
)

// Config holds all environment/file derived settings for one gateway
// process (one credential per process — see spec Non-goals on
// multi-tenancy).
type Config struct {
	TrackerBaseURL      string
	TrackerAPIKey       string
	TrackerClientID     string
	TrackerClientSecret string

	LLMAPIKey string

	Port            int
	AllowedOrigins  []string
	CacheTTL        time.Duration
	CacheMaxIssues  int
	ConnConcurrency int

	AuditDSN     string
	OTelExporter string
	ConfigFile   string

	// BlockedStatus is the status name treated as the "blocked" marker
	// (SPEC_FULL §9: installation-specific, a configuration value, not a
	// hard-coded constant).
	BlockedStatus string

	// OverloadedThreshold is the open-issue count above which a team
	// member is flagged "overloaded" (spec §4.3 #3).
	OverloadedThreshold int

	Enums EnumMaps

	// Toggle is the operator-controlled, hot-reloadable category
	// allowlist WatchCategoryToggles updates in place (SPEC_FULL §4.8).
	Toggle *CategoryToggle
}

// CategoryToggle is a concurrency-safe, hot-reloadable gateway-wide
// allowlist of tool categories, intersected with whatever a client
// requests per chat turn (internal/httpapi.Server.handleChat). Holding
// it behind a pointer means WatchCategoryToggles's fsnotify callback can
// swap the allowed set without anyone re-wiring the Server or Runtime.
type CategoryToggle struct {
	mu      sync.RWMutex
	enabled map[registry.Category]bool
}

// NewCategoryToggle builds a toggle from an already-parsed allowlist.
func NewCategoryToggle(enabled map[registry.Category]bool) *CategoryToggle {
	return &CategoryToggle{enabled: enabled}
}

// Intersect returns the subset of requested categories this toggle also
// allows, so a disabled category stays disabled regardless of what a
// client's enabledTools payload asks for.
func (t *CategoryToggle) Intersect(requested map[registry.Category]bool) map[registry.Category]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[registry.Category]bool, len(requested))
	for cat, want := range requested {
		out[cat] = want && t.enabled[cat]
	}
	return out
}

// Set replaces the allowed category set.
func (t *CategoryToggle) Set(enabled map[registry.Category]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// ParseCategoryToggle parses a comma-separated category list (as found in
// the ENABLED_CATEGORIES config key) into an allowlist map. An empty
// string allows every known category.
func ParseCategoryToggle(raw string) map[registry.Category]bool {
	out := make(map[registry.Category]bool, len(registry.AllCategories))
	if strings.TrimSpace(raw) == "" {
		for _, c := range registry.AllCategories {
			out[c] = true
		}
		return out
	}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out[registry.Category(part)] = true
		}
	}
	return out
}

// Load reads configuration from the environment (via viper) and, if
// present, from ConfigFile (TOML) and its YAML alias sidecar. Required
// environment variables missing at startup are reported as a single
// aggregate error (spec §6 exit-code contract: non-zero only on missing
// required config).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("PORT", 3001)
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("CACHE_MAX_ISSUES", 1000)
	v.SetDefault("TRACKER_CONN_CONCURRENCY", 8)
	v.SetDefault("BLOCKED_STATUS", "feedback")
	v.SetDefault("OVERLOADED_THRESHOLD", 10)
	v.SetDefault("ENABLED_CATEGORIES", "")

	cfgFile := v.GetString("GATEWAY_CONFIG_FILE")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		TrackerBaseURL:      v.GetString("TRACKER_BASE_URL"),
		TrackerAPIKey:       v.GetString("TRACKER_API_KEY"),
		TrackerClientID:     v.GetString("TRACKER_CLIENT_ID"),
		TrackerClientSecret: v.GetString("TRACKER_CLIENT_SECRET"),
		LLMAPIKey:           v.GetString("LLM_API_KEY"),
		Port:                v.GetInt("PORT"),
		CacheTTL:            time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		CacheMaxIssues:      v.GetInt("CACHE_MAX_ISSUES"),
		ConnConcurrency:     v.GetInt("TRACKER_CONN_CONCURRENCY"),
		AuditDSN:            v.GetString("AUDIT_DSN"),
		OTelExporter:        v.GetString("OTEL_EXPORTER"),
		ConfigFile:          cfgFile,
		BlockedStatus:       v.GetString("BLOCKED_STATUS"),
		OverloadedThreshold: v.GetInt("OVERLOADED_THRESHOLD"),
		Enums:               DefaultEnumMaps(),
	}
	cfg.Toggle = NewCategoryToggle(ParseCategoryToggle(v.GetString("ENABLED_CATEGORIES")))

	if origins := v.GetString("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfgFile != "" {
		if err := cfg.Enums.loadAliasYAML(aliasSidecarPath(cfgFile)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func aliasSidecarPath(tomlPath string) string {
	if strings.HasSuffix(tomlPath, ".toml") {
		return strings.TrimSuffix(tomlPath, ".toml") + ".aliases.yaml"
	}
	return tomlPath + ".aliases.yaml"
}

// validate reports configuration_missing when required environment is
// absent at startup (spec §6: "Exit codes. 0 normal; non-zero only when
// required environment is missing").
func (c *Config) validate() error {
	var missing []string
	if c.TrackerBaseURL == "" {
		missing = append(missing, "TRACKER_BASE_URL")
	}
	if c.TrackerAPIKey == "" && (c.TrackerClientID == "" || c.TrackerClientSecret == "") {
		missing = append(missing, "TRACKER_API_KEY (or TRACKER_CLIENT_ID+TRACKER_CLIENT_SECRET)")
	}
	if c.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if len(missing) > 0 {
		return &MissingConfigError{Keys: missing}
	}
	return nil
}

// MissingConfigError is the configuration_missing error kind.
type MissingConfigError struct {
	Keys []string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("configuration_missing: %s", strings.Join(e.Keys, ", "))
}

// WatchCategoryToggles watches cfg.ConfigFile with fsnotify and, on every
// rewrite, reloads the enabled-tool-category set (cfg.Toggle) and the enum
// alias overrides (cfg.Enums's project alias table) in place — no restart
// required, the same mechanism the teacher wires fsnotify for around its
// own config file. onReload is called with the outcome of each reload
// attempt (nil on success) purely for the caller's own logging.
func WatchCategoryToggles(cfg *Config, onReload func(error)) (*fsnotify.Watcher, error) {
	if cfg.ConfigFile == "" {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", cfg.ConfigFile, err)
	}
	if err := w.Add(cfg.ConfigFile); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", cfg.ConfigFile, err)
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if onReload != nil {
						onReload(cfg.reload())
					} else {
						_ = cfg.reload()
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}

// reload re-reads cfg.ConfigFile's ENABLED_CATEGORIES key into cfg.Toggle
// and the alias YAML sidecar into cfg.Enums's project alias table, both in
// place so every already-constructed component sharing cfg.Enums or
// cfg.Toggle observes the update without re-wiring.
func (c *Config) reload() error {
	v := viper.New()
	v.SetConfigFile(c.ConfigFile)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: reload %s: %w", c.ConfigFile, err)
	}

	c.Toggle.Set(ParseCategoryToggle(v.GetString("ENABLED_CATEGORIES")))

	if err := c.Enums.loadAliasYAML(aliasSidecarPath(c.ConfigFile)); err != nil {
		return fmt.Errorf("config: reload aliases: %w", err)
	}
	return nil
}

// EnvOr returns the environment value for key, or def if unset — used by
// callers (e.g. the operator CLI) that read ad hoc keys outside the main
// Config struct.
func EnvOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// ParseIntOr parses s as an int, returning def on failure.
func ParseIntOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
