package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimerOutput receives the lines printed by Timer.PrintSummary.
type TimerOutput interface {
	Output(format string, args ...interface{})
}

// LoggerOutput adapts Logger interface to TimerOutput.
type LoggerOutput struct {
	Logger Logger
}

// Output implements TimerOutput using Logger.Info.
func (o *LoggerOutput) Output(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Info(format, args...)
	}
}

// Phase is one timed step. Child phases have a Parent and Level > 0.
type Phase struct {
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Parent    string
	Level     int
	completed bool
}

// PhaseTimer stops one phase, usually from a defer.
type PhaseTimer struct {
	timer     *Timer
	phaseName string
}

// Stop records the phase duration. Only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.StopPhase(pt.phaseName)
}

// Timer records the duration of named phases of one analysis run.
type Timer struct {
	mu         sync.RWMutex
	name       string
	startTime  time.Time
	phases     map[string]*Phase
	phaseOrder []string
	output     TimerOutput
	enabled    bool
	clock      Clock
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithOutput sets the output strategy for the timer.
func WithOutput(output TimerOutput) TimerOption {
	return func(t *Timer) {
		t.output = output
	}
}

// WithLogger sets a Logger as the output strategy.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		if logger != nil {
			t.output = &LoggerOutput{Logger: logger}
		}
	}
}

// WithEnabled turns every operation into a no-op when false.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock sets the clock.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		phases:  make(map[string]*Phase),
		enabled: true,
		clock:   NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startTime = t.clock.Now()
	return t
}

// Start starts timing a top-level phase.
func (t *Timer) Start(phaseName string) *PhaseTimer {
	return t.StartChild("", phaseName)
}

// StartChild starts timing a phase nested under parentName.
func (t *Timer) StartChild(parentName, childName string) *PhaseTimer {
	pt := &PhaseTimer{timer: t, phaseName: childName}
	if !t.enabled {
		return pt
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	level := 0
	if parent, ok := t.phases[parentName]; ok {
		level = parent.Level + 1
	}
	if _, ok := t.phases[childName]; !ok {
		t.phaseOrder = append(t.phaseOrder, childName)
	}
	t.phases[childName] = &Phase{
		Name:      childName,
		StartTime: t.clock.Now(),
		Parent:    parentName,
		Level:     level,
	}
	return pt
}

// StopPhase stops a phase and returns its duration.
func (t *Timer) StopPhase(phaseName string) time.Duration {
	if !t.enabled {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	phase, ok := t.phases[phaseName]
	if !ok {
		return 0
	}
	if !phase.completed {
		phase.Duration = t.clock.Since(phase.StartTime)
		phase.completed = true
	}
	return phase.Duration
}

// GetDuration returns the duration of a completed phase.
func (t *Timer) GetDuration(phaseName string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if phase, ok := t.phases[phaseName]; ok {
		return phase.Duration
	}
	return 0
}

// TotalDuration returns the time elapsed since the timer was created.
func (t *Timer) TotalDuration() time.Duration {
	return t.clock.Since(t.startTime)
}

// GetPhases returns copies of all phases in start order.
func (t *Timer) GetPhases() []Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()

	phases := make([]Phase, 0, len(t.phaseOrder))
	for _, name := range t.phaseOrder {
		phases = append(phases, *t.phases[name])
	}
	return phases
}

// Durations returns phase durations in milliseconds keyed by phase name.
func (t *Timer) Durations() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]int64, len(t.phases))
	for name, p := range t.phases {
		out[name] = p.Duration.Milliseconds()
	}
	return out
}

func (t *Timer) summaryLines() []string {
	lines := []string{fmt.Sprintf("=== %s Timing Summary ===", t.name)}
	root := 0
	for _, name := range t.phaseOrder {
		phase := t.phases[name]
		label := phase.Name
		if phase.Level == 0 {
			root++
			label = fmt.Sprintf("Phase %d - %s", root, phase.Name)
		}
		lines = append(lines, fmt.Sprintf("%s%s: %v", strings.Repeat("  ", phase.Level), label, phase.Duration))
	}
	return append(lines, fmt.Sprintf("Total: %v", t.TotalDuration()))
}

// Summary returns a formatted summary of all timing phases.
func (t *Timer) Summary() string {
	if !t.enabled {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return strings.Join(t.summaryLines(), "\n") + "\n"
}

// PrintSummary outputs the timing summary using the configured output strategy.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.output == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, line := range t.summaryLines() {
		t.output.Output("%s", line)
	}
}

// TimeFuncWithError times fn as a phase.
func (t *Timer) TimeFuncWithError(phaseName string, fn func() error) (time.Duration, error) {
	pt := t.Start(phaseName)
	err := fn()
	return pt.Stop(), err
}
