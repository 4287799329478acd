package stats

import (
	"fmt"

	"github.com/heapscan/pkg/utils"
)

// ScanOrder selects the traversal of the detailed pass.
type ScanOrder string

const (
	BreadthFirst ScanOrder = "bfs"
	DepthFirst   ScanOrder = "dfs"
)

// ParseScanOrder parses "bfs" or "dfs".
func ParseScanOrder(s string) (ScanOrder, error) {
	switch o := ScanOrder(s); o {
	case BreadthFirst, DepthFirst:
		return o, nil
	}
	return "", fmt.Errorf("unknown scan order %q", s)
}

// DefaultSmallCollectionMaxSize is the largest element count for which a
// collection is compared against a plain array of the same elements.
const DefaultSmallCollectionMaxSize = 4

// Options configures a StandardCalculator.
type Options struct {
	Order ScanOrder
	// Locality picks among unvisited children in depth-first order; nil
	// takes them in field order.
	Locality LocalityPicker
	// AlternateDirection flips the breadth-first frontier direction on
	// every new frontier.
	AlternateDirection bool
	// SmallCollectionMaxSize is the threshold of the SMALL problem.
	SmallCollectionMaxSize int
	Logger                 utils.Logger
}

// DefaultOptions returns breadth-first scanning with alternating frontiers.
func DefaultOptions() Options {
	return Options{
		Order:                  BreadthFirst,
		AlternateDirection:     true,
		SmallCollectionMaxSize: DefaultSmallCollectionMaxSize,
		Logger:                 &utils.NullLogger{},
	}
}

func (o Options) withDefaults() Options {
	if o.Order == "" {
		o.Order = BreadthFirst
	}
	if o.SmallCollectionMaxSize < 0 {
		o.SmallCollectionMaxSize = DefaultSmallCollectionMaxSize
	}
	if o.Logger == nil {
		o.Logger = &utils.NullLogger{}
	}
	return o
}
