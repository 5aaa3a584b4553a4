package detect

import "time"

// TimeoutKind identifies which timeout condition fired.
type TimeoutKind int

const (
	// TimeoutNone means no timeout condition is met.
	TimeoutNone TimeoutKind = iota
	// TimeoutIdle means pane output has not changed for the configured
	// idle period.
	TimeoutIdle
	// TimeoutCompletion means total runtime exceeded the hard limit.
	TimeoutCompletion
)

func (k TimeoutKind) String() string {
	switch k {
	case TimeoutNone:
		return "none"
	case TimeoutIdle:
		return "idle"
	case TimeoutCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// TimeoutConfig holds the thresholds for timeout detection. A zero
// duration disables that check.
type TimeoutConfig struct {
	IdleTimeout       time.Duration
	CompletionTimeout time.Duration
}

// TimeoutChecker evaluates timeout conditions. It is stateless; callers
// track start and last-activity times themselves.
type TimeoutChecker struct {
	config TimeoutConfig
}

// NewTimeoutChecker creates a checker with the given thresholds.
func NewTimeoutChecker(cfg TimeoutConfig) *TimeoutChecker {
	return &TimeoutChecker{config: cfg}
}

// CheckInput carries the timing state for one evaluation.
type CheckInput struct {
	Now          time.Time
	StartTime    time.Time
	LastActivity time.Time
}

// Check returns the highest-priority timeout condition currently met.
// Completion timeout outranks idle timeout.
func (c *TimeoutChecker) Check(input CheckInput) TimeoutKind {
	if c.config.CompletionTimeout > 0 && !input.StartTime.IsZero() {
		if input.Now.Sub(input.StartTime) > c.config.CompletionTimeout {
			return TimeoutCompletion
		}
	}
	if c.config.IdleTimeout > 0 && !input.LastActivity.IsZero() {
		if input.Now.Sub(input.LastActivity) > c.config.IdleTimeout {
			return TimeoutIdle
		}
	}
	return TimeoutNone
}

// IdleEnabled reports whether idle timeout checking is on.
func (c *TimeoutChecker) IdleEnabled() bool { return c.config.IdleTimeout > 0 }

// CompletionEnabled reports whether completion timeout checking is on.
func (c *TimeoutChecker) CompletionEnabled() bool { return c.config.CompletionTimeout > 0 }
