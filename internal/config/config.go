package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Tracker describes one upload destination.
type Tracker struct {
	Name        string `toml:"name"`
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	AnnounceURL string `toml:"announce_url"`
	NamingStyle string `toml:"naming_style"`
}

// Workflow contains queue scheduling and retry knobs.
type Workflow struct {
	Workers                int `toml:"workers"`
	QueuePollInterval      int `toml:"queue_poll_interval"`
	StageTimeout           int `toml:"stage_timeout"`
	HeartbeatInterval      int `toml:"heartbeat_interval"`
	HeartbeatTimeout       int `toml:"heartbeat_timeout"`
	MaxAttempts            int `toml:"max_attempts"`
	RetryBackoffSeconds    int `toml:"retry_backoff_seconds"`
	RetryBackoffCapSeconds int `toml:"retry_backoff_cap_seconds"`
	BatchMaxConcurrent     int `toml:"batch_max_concurrent"`
}

// ReferenceData contains tag/category catalog sync configuration.
type ReferenceData struct {
	SyncIntervalHours int      `toml:"sync_interval_hours"`
	RequiredTags      []string `toml:"required_tags"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Queue          bool   `toml:"queue"`
	Errors         bool   `toml:"errors"`
}

// Tools contains external binary configuration.
type Tools struct {
	FFprobeBinary string `toml:"ffprobe_binary"`
	TorrentBinary string `toml:"torrent_binary"`
}

// Logging contains log level and format configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration for the daemon and CLI.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Trackers      []Tracker     `toml:"trackers"`
	Workflow      Workflow      `toml:"workflow"`
	ReferenceData ReferenceData `toml:"reference_data"`
	Notifications Notifications `toml:"notifications"`
	Tools         Tools         `toml:"tools"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the canonical user config location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gantry/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gantry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable used for technical analysis.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Tools.FFprobeBinary); v != "" {
		return v
	}
	return "ffprobe"
}

// TorrentBinary returns the executable used to build torrent files.
func (c *Config) TorrentBinary() string {
	if v := strings.TrimSpace(c.Tools.TorrentBinary); v != "" {
		return v
	}
	return "mktorrent"
}

// TrackerNames returns the configured tracker identifiers in declaration order.
func (c *Config) TrackerNames() []string {
	names := make([]string, 0, len(c.Trackers))
	for _, tracker := range c.Trackers {
		names = append(names, tracker.Name)
	}
	return names
}

// TrackerByName returns the tracker configuration matching the identifier.
func (c *Config) TrackerByName(name string) (Tracker, bool) {
	for _, tracker := range c.Trackers {
		if strings.EqualFold(tracker.Name, name) {
			return tracker, true
		}
	}
	return Tracker{}, false
}

// SampleConfig returns the annotated sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
