package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "orchestrator.max_parallel")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters.
// Branch names should start with alphanumeric and can contain alphanumeric,
// hyphen, underscore.
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateDetection()...)
	errors = append(errors, c.validateBranch()...)
	errors = append(errors, c.validatePlanner()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if c.Orchestrator.MaxParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Value:   c.Orchestrator.MaxParallel,
			Message: "must be at least 1",
		})
	}

	// Upper bound keeps a runaway plan from exhausting local resources.
	const maxParallelLimit = 32
	if c.Orchestrator.MaxParallel > maxParallelLimit {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Value:   c.Orchestrator.MaxParallel,
			Message: fmt.Sprintf("exceeds maximum of %d", maxParallelLimit),
		})
	}

	if c.Orchestrator.MaxTaskRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_task_retries",
			Value:   c.Orchestrator.MaxTaskRetries,
			Message: "must be non-negative",
		})
	}

	if c.Orchestrator.ProgressIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.progress_interval_seconds",
			Value:   c.Orchestrator.ProgressIntervalSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateAgent validates the AgentConfig
func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if c.Agent.Kind != "" && !IsValidAgentKind(c.Agent.Kind) {
		errors = append(errors, ValidationError{
			Field:   "agent.kind",
			Value:   c.Agent.Kind,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAgentKinds(), ", ")),
		})
	}

	if c.Agent.CaptureIntervalMs < 100 {
		errors = append(errors, ValidationError{
			Field:   "agent.capture_interval_ms",
			Value:   c.Agent.CaptureIntervalMs,
			Message: "must be at least 100",
		})
	}

	if c.Agent.TmuxWidth < 40 {
		errors = append(errors, ValidationError{
			Field:   "agent.tmux_width",
			Value:   c.Agent.TmuxWidth,
			Message: "must be at least 40",
		})
	}

	if c.Agent.TmuxHeight < 10 {
		errors = append(errors, ValidationError{
			Field:   "agent.tmux_height",
			Value:   c.Agent.TmuxHeight,
			Message: "must be at least 10",
		})
	}

	if c.Agent.TmuxHistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.tmux_history_limit",
			Value:   c.Agent.TmuxHistoryLimit,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateDetection validates the DetectionConfig
func (c *Config) validateDetection() []ValidationError {
	var errors []ValidationError

	if c.Detection.IdleTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.idle_timeout_minutes",
			Value:   c.Detection.IdleTimeoutMinutes,
			Message: "must be non-negative (0 disables)",
		})
	}

	if c.Detection.CompletionTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.completion_timeout_minutes",
			Value:   c.Detection.CompletionTimeoutMinutes,
			Message: "must be non-negative (0 disables)",
		})
	}

	if strings.TrimSpace(c.Detection.OutputMarker) == "" {
		errors = append(errors, ValidationError{
			Field:   "detection.output_marker",
			Value:   c.Detection.OutputMarker,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateBranch validates the BranchConfig
func (c *Config) validateBranch() []ValidationError {
	var errors []ValidationError

	if c.Branch.Prefix == "" {
		errors = append(errors, ValidationError{
			Field:   "branch.prefix",
			Value:   c.Branch.Prefix,
			Message: "must not be empty",
		})
	} else if !branchPrefixRegex.MatchString(c.Branch.Prefix) {
		errors = append(errors, ValidationError{
			Field:   "branch.prefix",
			Value:   c.Branch.Prefix,
			Message: "must start with a letter and contain only letters, digits, hyphens, and underscores",
		})
	}

	return errors
}

// validatePlanner validates the PlannerConfig
func (c *Config) validatePlanner() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Planner.Model) == "" {
		errors = append(errors, ValidationError{
			Field:   "planner.model",
			Value:   c.Planner.Model,
			Message: "must not be empty",
		})
	}

	if c.Planner.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "planner.max_tokens",
			Value:   c.Planner.MaxTokens,
			Message: "must be at least 1",
		})
	}

	if c.Planner.MaxParseRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "planner.max_parse_retries",
			Value:   c.Planner.MaxParseRetries,
			Message: "must be non-negative",
		})
	}

	if c.Planner.BackoffBaseSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "planner.backoff_base_seconds",
			Value:   c.Planner.BackoffBaseSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Planner.BackoffMaxSeconds < c.Planner.BackoffBaseSeconds {
		errors = append(errors, ValidationError{
			Field:   "planner.backoff_max_seconds",
			Value:   c.Planner.BackoffMaxSeconds,
			Message: "must be at least backoff_base_seconds",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.TranscriptMaxMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.transcript_max_mb",
			Value:   c.Logging.TranscriptMaxMB,
			Message: "must be at least 1",
		})
	}

	return errors
}
