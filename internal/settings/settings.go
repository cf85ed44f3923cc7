// Package settings defines configuration for the transfer core.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings defines configuration for the transfer core and its CLI.
type Settings struct {
	// BaseDir replaces the {base} placeholder in destination paths.
	BaseDir string `yaml:"base_dir"`

	// ProbeTimeout bounds the preflight size probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ChunkSize is the copy buffer size for streaming downloads.
	ChunkSize int64 `yaml:"chunk_size"`

	// Retention is how long finished transfer records are kept before
	// the reaper evicts them.
	Retention time.Duration `yaml:"retention"`

	// TermGrace is how long a cancelled git clone gets between SIGTERM
	// and a hard kill.
	TermGrace time.Duration `yaml:"term_grace"`

	// PollInterval is the CLI's status poll interval.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ProgressInterval is the minimum spacing between registry progress
	// writes for a single transfer.
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// RetryMax is the number of HTTP retries per request. Zero means a
	// single attempt; transfers are not retried unless asked for.
	RetryMax int `yaml:"retry_max"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `yaml:"sentry_dsn"`
}

// Default returns Settings with sensible defaults.
func Default() Settings {
	return Settings{
		BaseDir:          ".",
		ProbeTimeout:     5 * time.Second,
		ChunkSize:        256 * 1024,
		Retention:        30 * time.Second,
		TermGrace:        5 * time.Second,
		PollInterval:     500 * time.Millisecond,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// yamlSettings is used for YAML unmarshaling with string durations.
type yamlSettings struct {
	BaseDir          string `yaml:"base_dir"`
	ProbeTimeout     string `yaml:"probe_timeout"`
	ChunkSize        int64  `yaml:"chunk_size"`
	Retention        string `yaml:"retention"`
	TermGrace        string `yaml:"term_grace"`
	PollInterval     string `yaml:"poll_interval"`
	ProgressInterval string `yaml:"progress_interval"`
	RetryMax         int    `yaml:"retry_max"`
	SentryDSN        string `yaml:"sentry_dsn"`
}

// LoadFromFile loads settings from a YAML file on top of the defaults.
func LoadFromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}

	var ys yamlSettings
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}

	s := Default()

	if ys.BaseDir != "" {
		s.BaseDir = ys.BaseDir
	}
	if err := setDuration(&s.ProbeTimeout, ys.ProbeTimeout, "probe_timeout"); err != nil {
		return Settings{}, err
	}
	if ys.ChunkSize != 0 {
		s.ChunkSize = ys.ChunkSize
	}
	if err := setDuration(&s.Retention, ys.Retention, "retention"); err != nil {
		return Settings{}, err
	}
	if err := setDuration(&s.TermGrace, ys.TermGrace, "term_grace"); err != nil {
		return Settings{}, err
	}
	if err := setDuration(&s.PollInterval, ys.PollInterval, "poll_interval"); err != nil {
		return Settings{}, err
	}
	if err := setDuration(&s.ProgressInterval, ys.ProgressInterval, "progress_interval"); err != nil {
		return Settings{}, err
	}
	if ys.RetryMax != 0 {
		s.RetryMax = ys.RetryMax
	}
	if ys.SentryDSN != "" {
		s.SentryDSN = ys.SentryDSN
	}

	return s, nil
}

func setDuration(dst *time.Duration, value, name string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv applies environment overrides. Variables use the
// MODELDEPOT_ prefix.
func (s *Settings) LoadFromEnv() error {
	if v := os.Getenv("MODELDEPOT_BASE_DIR"); v != "" {
		s.BaseDir = v
	}
	if err := setDurationEnv(&s.ProbeTimeout, "MODELDEPOT_PROBE_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("MODELDEPOT_CHUNK_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse MODELDEPOT_CHUNK_SIZE: %w", err)
		}
		s.ChunkSize = n
	}
	if err := setDurationEnv(&s.Retention, "MODELDEPOT_RETENTION"); err != nil {
		return err
	}
	if err := setDurationEnv(&s.TermGrace, "MODELDEPOT_TERM_GRACE"); err != nil {
		return err
	}
	if err := setDurationEnv(&s.PollInterval, "MODELDEPOT_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setDurationEnv(&s.ProgressInterval, "MODELDEPOT_PROGRESS_INTERVAL"); err != nil {
		return err
	}
	if v := os.Getenv("MODELDEPOT_RETRY_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MODELDEPOT_RETRY_MAX: %w", err)
		}
		s.RetryMax = n
	}
	if v := os.Getenv("MODELDEPOT_SENTRY_DSN"); v != "" {
		s.SentryDSN = v
	}
	return nil
}

func setDurationEnv(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	if s.BaseDir == "" {
		return errors.New("settings: base_dir is required")
	}
	if s.ProbeTimeout <= 0 {
		return errors.New("settings: probe_timeout must be positive")
	}
	if s.ChunkSize <= 0 {
		return errors.New("settings: chunk_size must be positive")
	}
	if s.Retention <= 0 {
		return errors.New("settings: retention must be positive")
	}
	if s.TermGrace <= 0 {
		return errors.New("settings: term_grace must be positive")
	}
	if s.PollInterval <= 0 {
		return errors.New("settings: poll_interval must be positive")
	}
	if s.ProgressInterval <= 0 {
		return errors.New("settings: progress_interval must be positive")
	}
	if s.RetryMax < 0 {
		return errors.New("settings: retry_max must not be negative")
	}
	return nil
}

// Merge merges override values into s, returning a new Settings.
// Zero values in override are ignored.
func (s Settings) Merge(override Settings) Settings {
	if override.BaseDir != "" {
		s.BaseDir = override.BaseDir
	}
	if override.ProbeTimeout != 0 {
		s.ProbeTimeout = override.ProbeTimeout
	}
	if override.ChunkSize != 0 {
		s.ChunkSize = override.ChunkSize
	}
	if override.Retention != 0 {
		s.Retention = override.Retention
	}
	if override.TermGrace != 0 {
		s.TermGrace = override.TermGrace
	}
	if override.PollInterval != 0 {
		s.PollInterval = override.PollInterval
	}
	if override.ProgressInterval != 0 {
		s.ProgressInterval = override.ProgressInterval
	}
	if override.RetryMax != 0 {
		s.RetryMax = override.RetryMax
	}
	if override.SentryDSN != "" {
		s.SentryDSN = override.SentryDSN
	}
	return s
}
