package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tgienger/duetask/internal/permission"
)

// isolate points every lookup at a temp dir and clears DUETASK_* variables
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	for _, key := range []string{
		"DUETASK_CONFIG", "DUETASK_DB", "DUETASK_LOG_FILE", "DUETASK_LOG_LEVEL",
		"DUETASK_LOG_FORMAT", "DUETASK_SEED", "DUETASK_ALARM_WINDOW",
		"DUETASK_NOTIFICATIONS", "DUETASK_EXACT_ALARMS",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func load(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), args)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	dir := isolate(t)
	cfg := load(t)

	if want := filepath.Join(dir, "data", "duetask", "duetask.db"); cfg.DBPath != want {
		t.Errorf("DBPath: got %q, want %q", cfg.DBPath, want)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel: got %q", cfg.LogLevel)
	}
	if cfg.Seed != DefaultSeed {
		t.Errorf("Seed: got %v", cfg.Seed)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile: got %q, want none", cfg.ConfigFile)
	}
	states, err := cfg.PermissionStates()
	if err != nil {
		t.Fatalf("permission states: %v", err)
	}
	if states[permission.Notifications] != permission.Undetermined {
		t.Errorf("notifications: got %v", states[permission.Notifications])
	}
}

func TestPrecedence(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config", "duetask", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	content := `
db_path = "/from/file.db"
log_level = "debug"
seed = false
alarm_window = "10s"

[permissions]
notifications = "granted"
exact_alarms = "denied"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DUETASK_LOG_LEVEL", "warn")
	t.Setenv("DUETASK_EXACT_ALARMS", "granted")

	cfg := load(t, "--db", "/from/flag.db")

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile: got %q", cfg.ConfigFile)
	}
	if cfg.DBPath != "/from/flag.db" {
		t.Errorf("DBPath: flag should win, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: env should win over file, got %q", cfg.LogLevel)
	}
	if cfg.Seed {
		t.Error("Seed: file value should apply")
	}
	if cfg.AlarmWindow != 10*time.Second {
		t.Errorf("AlarmWindow: got %s", cfg.AlarmWindow)
	}
	states, _ := cfg.PermissionStates()
	if states[permission.Notifications] != permission.Granted || states[permission.ExactAlarm] != permission.Granted {
		t.Errorf("permissions: %v", states)
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	dir := isolate(t)
	_, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--config", filepath.Join(dir, "nope.toml")})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad format", nil, []string{"--log-format", "xml"}},
		{"bad permission", map[string]string{"DUETASK_NOTIFICATIONS": "sometimes"}, nil},
		{"bad seed", map[string]string{"DUETASK_SEED": "perhaps"}, nil},
		{"negative window", nil, []string{"--alarm-window", "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), tt.args); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
