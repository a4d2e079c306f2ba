// Package config loads the TOML configuration shared by the coordinator and
// the agent subcommands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	General    GeneralConfig    `toml:"general"`
	API        APIConfig        `toml:"api"`
	Database   DatabaseConfig   `toml:"database"`
	Thresholds ThresholdsConfig `toml:"thresholds"`
	Notify     NotifyConfig     `toml:"notify"`
	Sweep      SweepConfig      `toml:"sweep"`
	Agent      AgentConfig      `toml:"agent"`
	Security   SecurityConfig   `toml:"security"`
	Logging    LoggingConfig    `toml:"logging"`
}

type GeneralConfig struct {
	DataDir string `toml:"data_dir"`
}

type APIConfig struct {
	ListenAddr string `toml:"listen_addr"`
	EnableCORS bool   `toml:"enable_cors"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ThresholdConfig is one metric's alert thresholds. A breach must persist
// for sustained_heartbeats consecutive beats before an alert opens.
type ThresholdConfig struct {
	HighPercent         float64 `toml:"high_percent"`
	CriticalPercent     float64 `toml:"critical_percent"`
	SustainedHeartbeats int     `toml:"sustained_heartbeats"`
}

type ThresholdsConfig struct {
	CPU    ThresholdConfig `toml:"cpu"`
	Memory ThresholdConfig `toml:"memory"`
	Disk   ThresholdConfig `toml:"disk"`
}

type NotifyConfig struct {
	// MinSeverity gates notification: anything below it stays silent.
	MinSeverity string `toml:"min_severity"`

	CriticalCooldown  string        `toml:"critical_cooldown"`
	HighCooldown      string        `toml:"high_cooldown"`
	CriticalCooldownD time.Duration `toml:"-"`
	HighCooldownD     time.Duration `toml:"-"`

	WebhookURL      string   `toml:"webhook_url"`
	SlackWebhookURL string   `toml:"slack_webhook_url"`
	SlackChannel    string   `toml:"slack_channel"`
	EmailHost       string   `toml:"email_host"`
	EmailPort       int      `toml:"email_port"`
	EmailUsername   string   `toml:"email_username"`
	EmailPassword   string   `toml:"email_password"`
	EmailFrom       string   `toml:"email_from"`
	EmailTo         []string `toml:"email_to"`
}

type SweepConfig struct {
	OfflineThreshold  string        `toml:"offline_threshold"`
	OfflineInterval   string        `toml:"offline_interval"`
	ExecutionTimeout  string        `toml:"execution_timeout"`
	ReminderInterval  string        `toml:"reminder_interval"`
	OfflineThresholdD time.Duration `toml:"-"`
	OfflineIntervalD  time.Duration `toml:"-"`
	ExecutionTimeoutD time.Duration `toml:"-"`
	ReminderIntervalD time.Duration `toml:"-"`
}

type AgentConfig struct {
	ServerURL       string        `toml:"server_url"`
	ServerID        string        `toml:"server_id"`
	Interval        string        `toml:"interval"`
	DiskPath        string        `toml:"disk_path"`
	CommandTimeout  string        `toml:"command_timeout"`
	RestartStagger  string        `toml:"restart_stagger"`
	IntervalD       time.Duration `toml:"-"`
	CommandTimeoutD time.Duration `toml:"-"`
	RestartStaggerD time.Duration `toml:"-"`
}

type SecurityConfig struct {
	APIKey          string `toml:"api_key"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".homelabcmd")

	return &Config{
		General: GeneralConfig{
			DataDir: dataDir,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:9090",
			EnableCORS: false,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "homelabcmd.db"),
		},
		Thresholds: ThresholdsConfig{
			CPU:    ThresholdConfig{HighPercent: 85, CriticalPercent: 95, SustainedHeartbeats: 3},
			Memory: ThresholdConfig{HighPercent: 90, CriticalPercent: 97, SustainedHeartbeats: 3},
			Disk:   ThresholdConfig{HighPercent: 80, CriticalPercent: 95, SustainedHeartbeats: 1},
		},
		Notify: NotifyConfig{
			MinSeverity:      "high",
			CriticalCooldown: "30m",
			HighCooldown:     "4h",
			EmailPort:        587,
		},
		Sweep: SweepConfig{
			OfflineThreshold: "180s",
			OfflineInterval:  "60s",
			ExecutionTimeout: "1h",
			ReminderInterval: "5m",
		},
		Agent: AgentConfig{
			ServerURL:      "http://127.0.0.1:9090",
			Interval:       "30s",
			DiskPath:       "/",
			CommandTimeout: "2m",
			RestartStagger: "5m",
		},
		Security: SecurityConfig{
			APIKey:          "",
			RateLimitPerMin: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
	}
}

func LoadFromFile(path string) (*Config, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	if err := cfg.postProcess(); err != nil {
		return nil, fmt.Errorf("post process config: %w", err)
	}

	return cfg, nil
}

func (c *Config) postProcess() error {
	durations := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"notify.critical_cooldown", c.Notify.CriticalCooldown, &c.Notify.CriticalCooldownD},
		{"notify.high_cooldown", c.Notify.HighCooldown, &c.Notify.HighCooldownD},
		{"sweep.offline_threshold", c.Sweep.OfflineThreshold, &c.Sweep.OfflineThresholdD},
		{"sweep.offline_interval", c.Sweep.OfflineInterval, &c.Sweep.OfflineIntervalD},
		{"sweep.execution_timeout", c.Sweep.ExecutionTimeout, &c.Sweep.ExecutionTimeoutD},
		{"sweep.reminder_interval", c.Sweep.ReminderInterval, &c.Sweep.ReminderIntervalD},
		{"agent.interval", c.Agent.Interval, &c.Agent.IntervalD},
		{"agent.command_timeout", c.Agent.CommandTimeout, &c.Agent.CommandTimeoutD},
		{"agent.restart_stagger", c.Agent.RestartStagger, &c.Agent.RestartStaggerD},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	var err error
	if c.General.DataDir, err = expandPath(c.General.DataDir); err != nil {
		return fmt.Errorf("expand general.data_dir: %w", err)
	}
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("expand database.path: %w", err)
	}
	if c.Logging.File != "" {
		if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
			return fmt.Errorf("expand logging.file: %w", err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	thresholds := []struct {
		name string
		t    ThresholdConfig
	}{
		{"cpu", c.Thresholds.CPU},
		{"memory", c.Thresholds.Memory},
		{"disk", c.Thresholds.Disk},
	}
	for _, th := range thresholds {
		if th.t.HighPercent < 0 || th.t.HighPercent > 100 {
			return fmt.Errorf("thresholds.%s.high_percent must be between 0 and 100, got %.1f", th.name, th.t.HighPercent)
		}
		if th.t.CriticalPercent < 0 || th.t.CriticalPercent > 100 {
			return fmt.Errorf("thresholds.%s.critical_percent must be between 0 and 100, got %.1f", th.name, th.t.CriticalPercent)
		}
		if th.t.HighPercent > 0 && th.t.CriticalPercent > 0 && th.t.CriticalPercent < th.t.HighPercent {
			return fmt.Errorf("thresholds.%s.critical_percent (%.1f) is below high_percent (%.1f)",
				th.name, th.t.CriticalPercent, th.t.HighPercent)
		}
		if th.t.SustainedHeartbeats < 0 {
			return fmt.Errorf("thresholds.%s.sustained_heartbeats cannot be negative, got %d", th.name, th.t.SustainedHeartbeats)
		}
	}

	validSeverities := map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	if !validSeverities[strings.ToLower(c.Notify.MinSeverity)] {
		return fmt.Errorf("invalid notify.min_severity: %s (valid: low, medium, high, critical)", c.Notify.MinSeverity)
	}

	if c.Security.RateLimitPerMin < 0 {
		return fmt.Errorf("rate_limit_per_min cannot be negative, got %d", c.Security.RateLimitPerMin)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// ApplyEnvOverrides layers HOMELAB_* environment variables over cfg. A .env
// file in the working directory is loaded first, without clobbering
// variables already set in the environment.
func ApplyEnvOverrides(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("HOMELAB_DATA_DIR"); v != "" {
		cfg.General.DataDir = v
	}
	if v := os.Getenv("HOMELAB_API_LISTEN"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("HOMELAB_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HOMELAB_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
	if v := os.Getenv("HOMELAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HOMELAB_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("HOMELAB_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.SlackWebhookURL = v
	}
	if v := os.Getenv("HOMELAB_EMAIL_PASSWORD"); v != "" {
		cfg.Notify.EmailPassword = v
	}
	if v := os.Getenv("HOMELAB_SERVER_URL"); v != "" {
		cfg.Agent.ServerURL = v
	}
	if v := os.Getenv("HOMELAB_SERVER_ID"); v != "" {
		cfg.Agent.ServerID = v
	}
}

func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return filepath.Abs(path)
}
