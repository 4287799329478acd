package support

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProblemKind_Names(t *testing.T) {
	for k := ProblemKind(0); k < NumProblemKinds; k++ {
		t.Run(k.String(), func(t *testing.T) {
			assert.NotEmpty(t, k.Description())
			parsed, ok := ParseProblemKind(k.String())
			assert.True(t, ok)
			assert.Equal(t, k, parsed)
		})
	}
	assert.Equal(t, "UNKNOWN", ProblemKind(-1).String())
	_, ok := ParseProblemKind("NOPE")
	assert.False(t, ok)
}

func TestTally(t *testing.T) {
	var a, b Tally
	a.Add(Empty, 48)
	a.Add(Empty, 16)
	a.Add(Boxed, 100)
	b.Add(Small, 8)

	assert.Equal(t, 2, a.Count(Empty))
	assert.Equal(t, int64(64), a.Overhead(Empty))
	assert.Equal(t, int64(164), a.TotalOverhead())

	a.Merge(&b)
	assert.Equal(t, 4, a.TotalCount())
	assert.Equal(t, int64(172), a.TotalOverhead())
}
