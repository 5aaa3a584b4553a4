package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Overseer configuration
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Detection    DetectionConfig    `mapstructure:"detection"`
	Branch       BranchConfig       `mapstructure:"branch"`
	PR           PRConfig           `mapstructure:"pr"`
	Planner      PlannerConfig      `mapstructure:"planner"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Paths        PathsConfig        `mapstructure:"paths"`
}

// OrchestratorConfig controls session and task scheduling behavior
type OrchestratorConfig struct {
	// MaxParallel is the hard ceiling on concurrently running sub-agents.
	// Ready tasks beyond the ceiling wait until a slot frees up. (default: 4)
	MaxParallel int `mapstructure:"max_parallel"`
	// MaxTaskRetries is the number of times a task is re-dispatched after a
	// failed test verification before it is marked failed (default: 3)
	MaxTaskRetries int `mapstructure:"max_task_retries"`
	// ProgressIntervalSeconds is how often a progress summary is emitted while
	// sub-agents are running (default: 120)
	ProgressIntervalSeconds int `mapstructure:"progress_interval_seconds"`
	// AskClarifyingQuestions lets the planner ask questions about the request
	// before decomposing it (default: true)
	AskClarifyingQuestions bool `mapstructure:"ask_clarifying_questions"`
	// RequireApproval pauses for user approval of the task plan before any
	// sub-agent launches (default: true)
	RequireApproval bool `mapstructure:"require_approval"`
}

// AgentConfig controls sub-agent processes and their tmux panes
type AgentConfig struct {
	// Kind selects the coding agent to drive: "claude", "codex", "gemini",
	// or "opencode" (default: "claude")
	Kind string `mapstructure:"kind"`
	// CaptureIntervalMs is how often pane output is captured (in milliseconds)
	CaptureIntervalMs int `mapstructure:"capture_interval_ms"`
	// TmuxWidth is the width of the tmux pane
	TmuxWidth int `mapstructure:"tmux_width"`
	// TmuxHeight is the height of the tmux pane
	TmuxHeight int `mapstructure:"tmux_height"`
	// TmuxHistoryLimit is the number of lines of scrollback to keep in tmux (default: 50000)
	TmuxHistoryLimit int `mapstructure:"tmux_history_limit"`
	// AutoApprove passes the agent's non-interactive permission flag so it
	// never blocks on tool confirmations (default: true)
	AutoApprove bool `mapstructure:"auto_approve"`
}

// DetectionConfig controls how sub-agent completion is detected
type DetectionConfig struct {
	// IdleTimeoutMinutes is the minutes of unchanged pane output before a
	// sub-agent is asked to confirm whether it is finished (0 = disabled)
	IdleTimeoutMinutes int `mapstructure:"idle_timeout_minutes"`
	// CompletionTimeoutMinutes is the maximum total runtime in minutes before
	// a sub-agent is treated as failed (0 = disabled)
	CompletionTimeoutMinutes int `mapstructure:"completion_timeout_minutes"`
	// OutputMarker is the literal marker an agent prints to announce
	// completion when the done-file signal is unavailable
	OutputMarker string `mapstructure:"output_marker"`
}

// BranchConfig controls branch naming conventions
type BranchConfig struct {
	// Prefix is the branch name prefix (default: "agent")
	Prefix string `mapstructure:"prefix"`
	// IncludeID includes the task ID in branch names (default: true)
	// When true: <prefix>/<id>-<slug>
	// When false: <prefix>/<slug>
	IncludeID bool `mapstructure:"include_id"`
}

// PRConfig controls integration request creation behavior
type PRConfig struct {
	// Draft creates PRs as drafts by default
	Draft bool `mapstructure:"draft"`
	// BaseBranch is the branch PRs target; empty means the repository default
	BaseBranch string `mapstructure:"base_branch"`
	// Labels to add to all PRs by default
	Labels []string `mapstructure:"labels"`
}

// PlannerConfig controls the LLM planner boundary
type PlannerConfig struct {
	// Model is the model identifier used for planning calls
	Model string `mapstructure:"model"`
	// MaxTokens caps the planner's response length (default: 8192)
	MaxTokens int `mapstructure:"max_tokens"`
	// MaxParseRetries is how many times a malformed task plan is sent back
	// to the model for correction before falling back (default: 2)
	MaxParseRetries int `mapstructure:"max_parse_retries"`
	// BackoffBaseSeconds is the initial exponential backoff delay for
	// rate-limited or failing API calls (default: 1)
	BackoffBaseSeconds int `mapstructure:"backoff_base_seconds"`
	// BackoffMaxSeconds caps the exponential backoff delay (default: 16)
	BackoffMaxSeconds int `mapstructure:"backoff_max_seconds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// TranscriptMaxMB is the maximum size of a per-task transcript file in
	// megabytes before rollover (default: 10)
	TranscriptMaxMB int `mapstructure:"transcript_max_mb"`
}

// PathsConfig controls where Overseer stores data
type PathsConfig struct {
	// StateDir is the directory where session state is persisted.
	// If empty, defaults to ~/.overseer.
	// Supports ~ for home directory expansion.
	StateDir string `mapstructure:"state_dir"`

	// WorktreeDir is the directory where git worktrees are created.
	// If empty, defaults to ".overseer/worktrees" relative to the repository
	// root. Can be an absolute path to store worktrees outside the repository.
	// Supports ~ for home directory expansion.
	WorktreeDir string `mapstructure:"worktree_dir"`
}

// ResolveStateDir returns the resolved state directory path.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".overseer"
		}
		return filepath.Join(home, ".overseer")
	}
	return expandHome(p.StateDir)
}

// ResolveWorktreeDir returns the resolved worktree directory path.
// If WorktreeDir is empty, it returns the default path relative to baseDir.
// If WorktreeDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveWorktreeDir(baseDir string) string {
	if p.WorktreeDir == "" {
		return filepath.Join(baseDir, ".overseer", "worktrees")
	}

	path := expandHome(p.WorktreeDir)
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxParallel:             4,
			MaxTaskRetries:          3,
			ProgressIntervalSeconds: 120,
			AskClarifyingQuestions:  true,
			RequireApproval:         true,
		},
		Agent: AgentConfig{
			Kind:              "claude",
			CaptureIntervalMs: 2000,
			TmuxWidth:         200,
			TmuxHeight:        50,
			TmuxHistoryLimit:  50000,
			AutoApprove:       true,
		},
		Detection: DetectionConfig{
			IdleTimeoutMinutes:       10,
			CompletionTimeoutMinutes: 0, // No max runtime limit by default
			OutputMarker:             "OVERSEER_TASK_DONE",
		},
		Branch: BranchConfig{
			Prefix:    "agent",
			IncludeID: true,
		},
		PR: PRConfig{
			Draft:      false,
			BaseBranch: "",
			Labels:     []string{},
		},
		Planner: PlannerConfig{
			Model:              "claude-sonnet-4-5",
			MaxTokens:          8192,
			MaxParseRetries:    2,
			BackoffBaseSeconds: 1,
			BackoffMaxSeconds:  16,
		},
		Logging: LoggingConfig{
			Enabled:         true,
			Level:           "info",
			TranscriptMaxMB: 10,
		},
		Paths: PathsConfig{
			StateDir:    "",
			WorktreeDir: "",
		},
	}
}

// CaptureInterval returns the capture interval as a time.Duration
func (c *AgentConfig) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalMs) * time.Millisecond
}

// IdleTimeout returns the idle timeout as a time.Duration (0 means disabled)
func (c *DetectionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// CompletionTimeout returns the completion timeout as a time.Duration (0 means disabled)
func (c *DetectionConfig) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutMinutes) * time.Minute
}

// ProgressInterval returns the progress summary interval as a time.Duration
func (c *OrchestratorConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalSeconds) * time.Second
}

// BackoffBase returns the initial backoff delay as a time.Duration
func (c *PlannerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffMax returns the maximum backoff delay as a time.Duration
func (c *PlannerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Orchestrator defaults
	viper.SetDefault("orchestrator.max_parallel", defaults.Orchestrator.MaxParallel)
	viper.SetDefault("orchestrator.max_task_retries", defaults.Orchestrator.MaxTaskRetries)
	viper.SetDefault("orchestrator.progress_interval_seconds", defaults.Orchestrator.ProgressIntervalSeconds)
	viper.SetDefault("orchestrator.ask_clarifying_questions", defaults.Orchestrator.AskClarifyingQuestions)
	viper.SetDefault("orchestrator.require_approval", defaults.Orchestrator.RequireApproval)

	// Agent defaults
	viper.SetDefault("agent.kind", defaults.Agent.Kind)
	viper.SetDefault("agent.capture_interval_ms", defaults.Agent.CaptureIntervalMs)
	viper.SetDefault("agent.tmux_width", defaults.Agent.TmuxWidth)
	viper.SetDefault("agent.tmux_height", defaults.Agent.TmuxHeight)
	viper.SetDefault("agent.tmux_history_limit", defaults.Agent.TmuxHistoryLimit)
	viper.SetDefault("agent.auto_approve", defaults.Agent.AutoApprove)

	// Detection defaults
	viper.SetDefault("detection.idle_timeout_minutes", defaults.Detection.IdleTimeoutMinutes)
	viper.SetDefault("detection.completion_timeout_minutes", defaults.Detection.CompletionTimeoutMinutes)
	viper.SetDefault("detection.output_marker", defaults.Detection.OutputMarker)

	// Branch defaults
	viper.SetDefault("branch.prefix", defaults.Branch.Prefix)
	viper.SetDefault("branch.include_id", defaults.Branch.IncludeID)

	// PR defaults
	viper.SetDefault("pr.draft", defaults.PR.Draft)
	viper.SetDefault("pr.base_branch", defaults.PR.BaseBranch)
	viper.SetDefault("pr.labels", defaults.PR.Labels)

	// Planner defaults
	viper.SetDefault("planner.model", defaults.Planner.Model)
	viper.SetDefault("planner.max_tokens", defaults.Planner.MaxTokens)
	viper.SetDefault("planner.max_parse_retries", defaults.Planner.MaxParseRetries)
	viper.SetDefault("planner.backoff_base_seconds", defaults.Planner.BackoffBaseSeconds)
	viper.SetDefault("planner.backoff_max_seconds", defaults.Planner.BackoffMaxSeconds)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.transcript_max_mb", defaults.Logging.TranscriptMaxMB)

	// Paths defaults
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "overseer")
	}
	// Fall back to ~/.config/overseer
	home, err := os.UserHomeDir()
	if err != nil {
		return ".overseer"
	}
	return filepath.Join(home, ".config", "overseer")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidAgentKinds returns the list of supported agent kinds
func ValidAgentKinds() []string {
	return []string{"claude", "codex", "gemini", "opencode"}
}

// IsValidAgentKind checks if the given agent kind is supported
func IsValidAgentKind(kind string) bool {
	for _, valid := range ValidAgentKinds() {
		if kind == valid {
			return true
		}
	}
	return false
}
