package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirName is the name of both the global (~/.flowgen) and repo-level
// configuration directories.
const DirName = ".flowgen"

// Config holds application configuration.
type Config struct {
	// ServiceURL is the base URL of the flowchart generation service.
	ServiceURL string `json:"service_url,omitempty"`

	// RequestTimeoutSeconds bounds a single upload or preview request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// QuietPeriodMS is the debounce window for live preview edits.
	QuietPeriodMS int `json:"quiet_period_ms,omitempty"`

	// ImageExt selects which archive entries are surfaced in the gallery.
	// Matched case-insensitively against the entry name suffix.
	ImageExt string `json:"image_ext,omitempty"`

	// UngroupedKey is the group key for entries without a folder segment.
	UngroupedKey string `json:"ungrouped_key,omitempty"`

	// MaxArchiveBytes caps the size of a received archive and of its
	// decompressed image total.
	MaxArchiveBytes int64 `json:"max_archive_bytes,omitempty"`

	// MaxEntryBytes caps the decompressed size of a single archive entry.
	MaxEntryBytes int64 `json:"max_entry_bytes,omitempty"`

	// ExtractWorkers bounds concurrent entry decompression. 0 means runtime.NumCPU().
	ExtractWorkers int `json:"extract_workers,omitempty"`

	// HistoryLimit keeps only the newest N uploads after each upload. 0 keeps all.
	HistoryLimit int `json:"history_limit,omitempty"`

	// AllowedPaths is an allowlist of directories for archive downloads.
	// Paths outside ~/.flowgen/downloads require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for downloads.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "text" or "json".
	LogFormat string `json:"log_format,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "gallery", "preview".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceURL:            "http://127.0.0.1:8000",
		RequestTimeoutSeconds: 60,
		QuietPeriodMS:         1000,
		ImageExt:              ".png",
		UngroupedKey:          "ungrouped",
		MaxArchiveBytes:       64 << 20,
		MaxEntryBytes:         16 << 20,
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// QuietPeriod returns the debounce window as a duration.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.QuietPeriodMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.flowgen.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.flowgen) and repo (.flowgen) directories.
// Repo config is found by walking upward from startDir to find the nearest .flowgen/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .flowgen/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		ServiceURL:            strings.TrimRight(pickString(overlay.ServiceURL, base.ServiceURL), "/"),
		RequestTimeoutSeconds: pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds),
		QuietPeriodMS:         pickInt(overlay.QuietPeriodMS, base.QuietPeriodMS),
		ImageExt:              pickString(overlay.ImageExt, base.ImageExt),
		UngroupedKey:          pickString(overlay.UngroupedKey, base.UngroupedKey),
		MaxArchiveBytes:       pickInt64(overlay.MaxArchiveBytes, base.MaxArchiveBytes),
		MaxEntryBytes:         pickInt64(overlay.MaxEntryBytes, base.MaxEntryBytes),
		ExtractWorkers:        pickInt(overlay.ExtractWorkers, base.ExtractWorkers),
		HistoryLimit:          pickInt(overlay.HistoryLimit, base.HistoryLimit),
		LogLevel:              pickString(overlay.LogLevel, base.LogLevel),
		LogFormat:             pickString(overlay.LogFormat, base.LogFormat),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickInt64(overlay, base int64) int64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
