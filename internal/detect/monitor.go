package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/session"
)

// Pane is the slice of pane behavior the monitor needs.
type Pane interface {
	Capture() (string, error)
	Exited() <-chan struct{}
	SendInput(input string) error
}

// Result describes how a task's agent finished.
type Result struct {
	// Source is the detection layer that concluded the task.
	Source session.CompletionSource
	// Report is the agent's self-report, present when the done file
	// exists regardless of which layer fired first.
	Report *DoneReport
	// ExitStatus is the agent process's recorded exit code, meaningful
	// only when Source is CompletionProcessExit. ExitStatusUnknown means
	// the pane died without recording one.
	ExitStatus int
	// FinalOutput is the last pane capture taken before concluding.
	FinalOutput string
}

// Options configures a Monitor.
type Options struct {
	WorktreePath    string
	Marker          string
	CaptureInterval time.Duration
	Timeouts        TimeoutConfig
	Transcript      *logging.TranscriptWriter
	Logger          *logging.Logger
}

// Monitor watches one running agent pane and decides when its task is
// done. Detection layers in priority order: done-file signal, process
// exit, output marker, idle timeout. Whenever a lower layer fires the
// done file is consulted first, so an agent that wrote its report and
// then exited is attributed to the signal layer.
type Monitor struct {
	pane       Pane
	worktree   string
	scanner    *MarkerScanner
	timeouts   *TimeoutChecker
	interval   time.Duration
	transcript *logging.TranscriptWriter
	log        *logging.Logger
}

// confirmationNudge is typed into an idle pane before concluding via
// idle timeout, giving a stalled-but-alive agent one chance to signal.
const confirmationNudge = "If you have finished the task, write the %s file now. Otherwise continue working.\n"

// NewMonitor creates a monitor for a running pane.
func NewMonitor(pane Pane, opts Options) *Monitor {
	interval := opts.CaptureInterval
	if interval <= 0 {
		interval = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	return &Monitor{
		pane:       pane,
		worktree:   opts.WorktreePath,
		scanner:    NewMarkerScanner(opts.Marker),
		timeouts:   NewTimeoutChecker(opts.Timeouts),
		interval:   interval,
		transcript: opts.Transcript,
		log:        log,
	}
}

// Run blocks until a detection layer concludes the task or the context
// is cancelled. It always returns a Result on success; a nil Result
// means the context ended first.
func (m *Monitor) Run(ctx context.Context) (*Result, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create done-file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(m.worktree); err != nil {
		return nil, fmt.Errorf("watch worktree: %w", err)
	}

	// The agent may have written the done file before the watch began.
	if m.doneFileExists() {
		return m.conclude(session.CompletionSignal, "")
	}

	start := time.Now()
	lastActivity := start
	lastOutput := ""
	confirming := false

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				continue
			}
			if filepath.Base(event.Name) == DoneFileName &&
				event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				return m.conclude(session.CompletionSignal, lastOutput)
			}

		case werr, ok := <-watcher.Errors:
			if ok && werr != nil {
				m.log.Warn("done-file watcher error", "error", werr)
			}

		case <-m.pane.Exited():
			// The session may die between the done-file write and the
			// watcher event delivery.
			if m.doneFileExists() {
				return m.conclude(session.CompletionSignal, lastOutput)
			}
			return m.concludeExit(lastOutput)

		case <-ticker.C:
			output, err := m.pane.Capture()
			if err != nil {
				// Capture failures usually mean the session just died;
				// the exit channel will fire on the next iteration.
				m.log.Debug("pane capture failed", "error", err)
				continue
			}
			if m.transcript != nil {
				if err := m.transcript.Append(output); err != nil {
					m.log.Warn("transcript append failed", "error", err)
				}
			}
			if output != lastOutput {
				lastOutput = output
				lastActivity = time.Now()
				confirming = false
			}

			if m.scanner.Seen(output) {
				if m.doneFileExists() {
					return m.conclude(session.CompletionSignal, output)
				}
				return m.conclude(session.CompletionOutputMarker, output)
			}

			switch m.timeouts.Check(CheckInput{
				Now:          time.Now(),
				StartTime:    start,
				LastActivity: lastActivity,
			}) {
			case TimeoutCompletion:
				if m.doneFileExists() {
					return m.conclude(session.CompletionSignal, output)
				}
				return m.conclude(session.CompletionIdleTimeout, output)
			case TimeoutIdle:
				if m.doneFileExists() {
					return m.conclude(session.CompletionSignal, output)
				}
				if !confirming {
					// Nudge once, then grant another full idle period
					// before giving up on the pane.
					confirming = true
					lastActivity = time.Now()
					nudge := fmt.Sprintf(confirmationNudge, DoneFileName)
					if err := m.pane.SendInput(nudge); err != nil {
						m.log.Warn("confirmation nudge failed", "error", err)
					}
					m.log.Info("idle pane nudged for confirmation")
					continue
				}
				return m.conclude(session.CompletionIdleTimeout, output)
			}
		}
	}
}

// concludeExit resolves the process-exit layer: the launch wrapper
// records the agent's exit code next to the done file, so success and
// failure can be told apart even with no self-report.
func (m *Monitor) concludeExit(lastOutput string) (*Result, error) {
	result, err := m.conclude(session.CompletionProcessExit, lastOutput)
	if result != nil {
		status, rerr := ReadExitStatus(m.worktree)
		if rerr != nil {
			m.log.Warn("no exit status recorded for dead pane", "error", rerr)
		}
		result.ExitStatus = status
	}
	return result, err
}

func (m *Monitor) doneFileExists() bool {
	_, err := os.Stat(DoneFilePath(m.worktree))
	return err == nil
}

// conclude assembles the final result, attaching the done-file report
// when one exists and taking a final capture if none was in hand.
func (m *Monitor) conclude(source session.CompletionSource, lastOutput string) (*Result, error) {
	result := &Result{Source: source, FinalOutput: lastOutput}

	if report, err := ReadDoneFile(m.worktree); err == nil {
		result.Report = report
	} else if source == session.CompletionSignal {
		// The watcher fired but the file vanished or is unreadable;
		// treat it as a bare signal.
		m.log.Warn("done file unreadable after signal", "error", err)
	}

	if result.FinalOutput == "" {
		if output, err := m.pane.Capture(); err == nil {
			result.FinalOutput = output
		}
	}

	m.log.Info("task concluded", "source", string(source))
	return result, nil
}
