// Package config handles configuration loading and defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tgienger/duetask/internal/permission"
)

const appName = "duetask"

// Default values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultSeed      = true
)

// Permissions holds the initial answers for gated capabilities
type Permissions struct {
	Notifications string `toml:"notifications"`
	ExactAlarms   string `toml:"exact_alarms"`
}

// Config holds the full configuration for duetask.
type Config struct {
	DBPath    string `toml:"db_path"`
	LogFile   string `toml:"log_file"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Seed populates example tasks the first time the database is created
	Seed bool `toml:"seed"`

	// AlarmWindow lets reminders go off up to this long after their time
	AlarmWindow time.Duration `toml:"alarm_window"`

	Permissions Permissions `toml:"permissions"`

	// ConfigFile is the file the config was read from, if any
	ConfigFile string `toml:"-"`
}

// Load builds the config from, in increasing priority: defaults, the TOML
// config file, DUETASK_* environment variables and CLI flags.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	var (
		configFile  = fs.String("config", "", "path to config file")
		dbPath      = fs.String("db", "", "path to the task database")
		logFile     = fs.String("log-file", "", "path to the log file")
		logLevel    = fs.String("log-level", "", "debug, info, warn or error")
		logFormat   = fs.String("log-format", "", "text, logfmt or json")
		seed        = fs.Bool("seed", DefaultSeed, "add example tasks to a new database")
		alarmWindow = fs.Duration("alarm-window", 0, "how late a reminder may go off")
	)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	path := *configFile
	if path == "" {
		path = os.Getenv("DUETASK_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = filepath.Join(configDir(), "config.toml")
	}
	if err := loadConfigFile(cfg, path, explicit); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DBPath = *dbPath
		case "log-file":
			cfg.LogFile = *logFile
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "seed":
			cfg.Seed = *seed
		case "alarm-window":
			cfg.AlarmWindow = *alarmWindow
		}
	})

	if err := finalizeConfig(cfg); err != nil {
		return nil, fmt.Errorf("finalizing config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.DBPath = filepath.Join(dataDir(), appName+".db")
	cfg.LogFile = filepath.Join(dataDir(), appName+".log")
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
	cfg.Seed = DefaultSeed
	cfg.Permissions = Permissions{
		Notifications: permission.Undetermined.String(),
		ExactAlarms:   permission.Undetermined.String(),
	}
}

// loadConfigFile decodes TOML over cfg. A missing default file is fine; a
// missing file the user asked for is not.
func loadConfigFile(cfg *Config, path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return err
	}
	cfg.ConfigFile = path
	return nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("DUETASK_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DUETASK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("DUETASK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DUETASK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DUETASK_SEED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DUETASK_SEED: %w", err)
		}
		cfg.Seed = b
	}
	if v := os.Getenv("DUETASK_ALARM_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DUETASK_ALARM_WINDOW: %w", err)
		}
		cfg.AlarmWindow = d
	}
	if v := os.Getenv("DUETASK_NOTIFICATIONS"); v != "" {
		cfg.Permissions.Notifications = v
	}
	if v := os.Getenv("DUETASK_EXACT_ALARMS"); v != "" {
		cfg.Permissions.ExactAlarms = v
	}
	return nil
}

func finalizeConfig(cfg *Config) error {
	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.LogFile = expandPath(cfg.LogFile)

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json", "logfmt":
		cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if cfg.AlarmWindow < 0 {
		return fmt.Errorf("alarm window must not be negative, got %s", cfg.AlarmWindow)
	}
	if _, err := cfg.PermissionStates(); err != nil {
		return err
	}
	return nil
}

// PermissionStates returns the configured initial capability states
func (c *Config) PermissionStates() (map[permission.Capability]permission.State, error) {
	notifications, err := permission.ParseState(c.Permissions.Notifications)
	if err != nil {
		return nil, fmt.Errorf("permissions.notifications: %w", err)
	}
	exact, err := permission.ParseState(c.Permissions.ExactAlarms)
	if err != nil {
		return nil, fmt.Errorf("permissions.exact_alarms: %w", err)
	}
	return map[permission.Capability]permission.State{
		permission.Notifications: notifications,
		permission.ExactAlarm:    exact,
	}, nil
}

// dataDir returns the XDG data directory for the app
func dataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return appName
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appName)
}

// configDir returns the XDG config directory for the app
func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return appName
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName)
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
