package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureOutput struct {
	lines []string
}

func (c *captureOutput) Output(format string, args ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func TestTimer_Phases(t *testing.T) {
	clock := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	timer := NewTimer("analyze", WithClock(clock))

	load := timer.Start("load")
	clock.Advance(100 * time.Millisecond)
	load.Stop()

	scan := timer.Start("scan")
	overall := timer.StartChild("scan", "overall")
	clock.Advance(50 * time.Millisecond)
	overall.Stop()
	detailed := timer.StartChild("scan", "detailed")
	clock.Advance(150 * time.Millisecond)
	detailed.Stop()
	scan.Stop()

	assert.Equal(t, 100*time.Millisecond, timer.GetDuration("load"))
	assert.Equal(t, 200*time.Millisecond, timer.GetDuration("scan"))
	assert.Equal(t, 300*time.Millisecond, timer.TotalDuration())
	assert.Equal(t, map[string]int64{"load": 100, "scan": 200, "overall": 50, "detailed": 150}, timer.Durations())

	phases := timer.GetPhases()
	require.Len(t, phases, 4)
	assert.Equal(t, "overall", phases[2].Name)
	assert.Equal(t, "scan", phases[2].Parent)
	assert.Equal(t, 1, phases[2].Level)
}

func TestTimer_StopTwiceKeepsFirst(t *testing.T) {
	clock := NewMockClock(time.Now())
	timer := NewTimer("t", WithClock(clock))
	pt := timer.Start("p")
	clock.Advance(time.Second)
	assert.Equal(t, time.Second, pt.Stop())
	clock.Advance(time.Second)
	assert.Equal(t, time.Second, pt.Stop())
	assert.Zero(t, timer.StopPhase("missing"))
}

func TestTimer_Summary(t *testing.T) {
	clock := NewMockClock(time.Now())
	out := &captureOutput{}
	timer := NewTimer("heapscan", WithClock(clock), WithOutput(out))

	_, err := timer.TimeFuncWithError("load", func() error {
		clock.Advance(2 * time.Second)
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	child := timer.StartChild("load", "decode")
	child.Stop()

	timer.PrintSummary()
	assert.Equal(t, []string{
		"=== heapscan Timing Summary ===",
		"Phase 1 - load: 2s",
		"  decode: 0s",
		"Total: 2s",
	}, out.lines)
	assert.Contains(t, timer.Summary(), "Phase 1 - load: 2s\n")
}

func TestTimer_Disabled(t *testing.T) {
	out := &captureOutput{}
	timer := NewTimer("t", WithEnabled(false), WithOutput(out))

	assert.Zero(t, timer.Start("p").Stop())
	assert.Empty(t, timer.Summary())
	timer.PrintSummary()
	assert.Empty(t, out.lines)
}

func TestTimer_WithLogger(t *testing.T) {
	timer := NewTimer("t", WithLogger(&NullLogger{}))
	_, ok := timer.output.(*LoggerOutput)
	assert.True(t, ok)
}
