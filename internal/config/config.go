// Package config loads nanoclaw's configuration from a YAML file under a
// data directory, layering environment-variable overrides on top and
// applying defaults, mirroring the layered-load pattern used throughout the
// rest of the core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nanoclaw/ops/internal/otel"
)

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
	MainChatID int64   `yaml:"main_chat_id"`
}

// PlannerConfig configures the external language-model planner collaborator.
type PlannerConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	CompletionModel  string `yaml:"completion_model"`
	ReasoningModel   string `yaml:"reasoning_model"`
	RequireFreeTier  bool   `yaml:"require_free_tier"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// DispatchConfig configures the Dispatcher's outbound POST to the runner.
type DispatchConfig struct {
	WebhookURL                   string `yaml:"webhook_url"`
	Secret                       string `yaml:"secret"`
	TimeoutSeconds               int    `yaml:"timeout_seconds"`
	EnableLocalApprovedExecution bool   `yaml:"enable_local_approved_execution"`
}

// RunnerConfig configures the runner service.
type RunnerConfig struct {
	BindAddr            string `yaml:"bind_addr"`
	SharedSecret        string `yaml:"shared_secret"`
	MaxParallel         int    `yaml:"max_parallel"`
	SSHTimeoutSeconds   int    `yaml:"ssh_timeout_seconds"`
	HTTPTimeoutSeconds  int    `yaml:"http_timeout_seconds"`
	SSHKnownHosts       string `yaml:"ssh_known_hosts"`
	SSHStrictHostKeys   string `yaml:"ssh_strict_host_key_checking"` // "yes", "no", "accept-new"
	DockerSandboxImage  string `yaml:"docker_sandbox_image"`
	ReadableMirrorURL   string `yaml:"readable_mirror_url"`
	OpencodeEndpointURL string `yaml:"opencode_endpoint_url"`
	OpencodeBearerToken string `yaml:"opencode_bearer_token"`
	ImageToTextURL      string `yaml:"image_to_text_url"`
	VoiceToTextURL      string `yaml:"voice_to_text_url"`
	MediaBearerToken    string `yaml:"media_bearer_token"`
	AddonsDirPath       string `yaml:"addons_dir"`
	NotesDirPath        string `yaml:"notes_dir"`
}

// AddonsDir returns the directory addon_install/create/run operate under,
// defaulting to a fixed subdirectory of the data dir when unset.
func (c RunnerConfig) AddonsDir() string {
	if c.AddonsDirPath != "" {
		return c.AddonsDirPath
	}
	return filepath.Join(DataDir(), "addons")
}

// NotesDir returns the directory obsidian_write patches notes under.
func (c RunnerConfig) NotesDir() string {
	if c.NotesDirPath != "" {
		return c.NotesDirPath
	}
	return filepath.Join(DataDir(), "notes")
}

// Host is a single named remote target reachable by the ssh action.
type Host struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Config is the top-level configuration document.
type Config struct {
	DataDir         string `yaml:"-"`
	LogLevel        string `yaml:"log_level"`
	TriggerPrefix   string `yaml:"trigger_prefix"` // e.g. "nanoclaw" enables "@nanoclaw" in non-main groups
	SchedulerTZ     string `yaml:"scheduler_timezone"`
	MessageLoopMS   int    `yaml:"message_loop_interval_ms"`
	IPCWatcherMS    int    `yaml:"ipc_watcher_interval_ms"`
	SchedulerTickMS int    `yaml:"scheduler_tick_ms"`

	Telegram TelegramConfig  `yaml:"telegram"`
	Planner  PlannerConfig   `yaml:"planner"`
	Dispatch DispatchConfig  `yaml:"dispatch"`
	Runner   RunnerConfig    `yaml:"runner"`
	Hosts    []Host          `yaml:"hosts"`
	Otel     otel.Config     `yaml:"otel"`

	NeedsGenesis bool `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:        "info",
		SchedulerTZ:     "UTC",
		MessageLoopMS:   2000,
		IPCWatcherMS:    1000,
		SchedulerTickMS: 60000,
		Dispatch: DispatchConfig{
			TimeoutSeconds: 10,
		},
		Runner: RunnerConfig{
			BindAddr:           "127.0.0.1:8089",
			MaxParallel:        4,
			SSHTimeoutSeconds:  60,
			HTTPTimeoutSeconds: 20,
			SSHStrictHostKeys:  "accept-new",
			DockerSandboxImage: "golang:alpine",
		},
	}
}

// ConfigPath returns the path to config.yaml within dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}

// DataDir resolves the data directory from NANOCLAW_DATA_DIR, falling back
// to a dotdir under the user's home.
func DataDir() string {
	if override := os.Getenv("NANOCLAW_DATA_DIR"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".nanoclaw")
}

// Load reads config.yaml from DataDir(), applies environment overrides and
// defaults, and returns the effective configuration.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.DataDir = DataDir()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create data dir: %w", err)
	}

	path := ConfigPath(cfg.DataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsGenesis = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SchedulerTZ == "" {
		cfg.SchedulerTZ = "UTC"
	}
	if cfg.MessageLoopMS <= 0 {
		cfg.MessageLoopMS = 2000
	}
	if cfg.IPCWatcherMS <= 0 {
		cfg.IPCWatcherMS = 1000
	}
	if cfg.SchedulerTickMS <= 0 {
		cfg.SchedulerTickMS = 60000
	}
	if cfg.Dispatch.TimeoutSeconds <= 0 {
		cfg.Dispatch.TimeoutSeconds = 10
	}
	if cfg.Runner.BindAddr == "" {
		cfg.Runner.BindAddr = "127.0.0.1:8089"
	}
	if cfg.Runner.MaxParallel <= 0 {
		cfg.Runner.MaxParallel = 4
	}
	if cfg.Runner.SSHTimeoutSeconds <= 0 {
		cfg.Runner.SSHTimeoutSeconds = 60
	}
	if cfg.Runner.HTTPTimeoutSeconds <= 0 {
		cfg.Runner.HTTPTimeoutSeconds = 20
	}
	if cfg.Runner.SSHStrictHostKeys == "" {
		cfg.Runner.SSHStrictHostKeys = "accept-new"
	}
}

// SchedulerLocation parses SchedulerTZ, falling back to UTC on error.
func (c Config) SchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HostAddress resolves a closed-set ssh target name to its configured
// address. ok is false for unknown targets.
func (c Config) HostAddress(name string) (string, bool) {
	for _, h := range c.Hosts {
		if h.Name == name {
			return h.Address, true
		}
	}
	return "", false
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NANOCLAW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NANOCLAW_TRIGGER_PREFIX"); v != "" {
		cfg.TriggerPrefix = v
	}
	if v := os.Getenv("NANOCLAW_SCHEDULER_TZ"); v != "" {
		cfg.SchedulerTZ = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("NANOCLAW_PLANNER_BASE_URL"); v != "" {
		cfg.Planner.BaseURL = v
	}
	if v := os.Getenv("NANOCLAW_PLANNER_API_KEY"); v != "" {
		cfg.Planner.APIKey = v
	}
	if v := os.Getenv("NANOCLAW_COMPLETION_MODEL"); v != "" {
		cfg.Planner.CompletionModel = v
	}
	if v := os.Getenv("NANOCLAW_REASONING_MODEL"); v != "" {
		cfg.Planner.ReasoningModel = v
	}
	if v := os.Getenv("NANOCLAW_WEBHOOK_URL"); v != "" {
		cfg.Dispatch.WebhookURL = v
	}
	if v := os.Getenv("NANOCLAW_WEBHOOK_SECRET"); v != "" {
		cfg.Dispatch.Secret = v
	}
	if v := os.Getenv("NANOCLAW_WEBHOOK_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("NANOCLAW_ENABLE_APPROVED_EXECUTION"); v != "" {
		cfg.Dispatch.EnableLocalApprovedExecution = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("NANOCLAW_RUNNER_SHARED_SECRET"); v != "" {
		cfg.Runner.SharedSecret = v
	}
	if v := os.Getenv("NANOCLAW_RUNNER_BIND_ADDR"); v != "" {
		cfg.Runner.BindAddr = v
	}
	if v := os.Getenv("NANOCLAW_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.MaxParallel = n
		}
	}
}
