package pprof

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Collector records the profiles of one run. The CPU profile covers the
// time between Start and Stop; the others are snapshots taken at Stop.
type Collector struct {
	config *Config

	mu      sync.Mutex
	running bool
	cpuFile *os.File
	written []string
}

// NewCollector creates a new Collector.
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Collector{config: cfg}, nil
}

// Start starts the collector.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("collector is already running")
	}
	if err := os.MkdirAll(c.config.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if c.config.has(ProfileCPU) {
		f, err := os.Create(c.path(ProfileCPU))
		if err != nil {
			return fmt.Errorf("failed to create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start cpu profile: %w", err)
		}
		c.cpuFile = f
	}
	if c.config.has(ProfileBlock) {
		runtime.SetBlockProfileRate(c.config.BlockRate)
	}
	if c.config.has(ProfileMutex) {
		runtime.SetMutexProfileFraction(c.config.MutexFraction)
	}
	c.running = true
	c.written = nil
	return nil
}

// Stop ends the CPU profile and writes the snapshot profiles. It returns
// the files written. Stopping a stopped collector is a no-op.
func (c *Collector) Stop() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, nil
	}
	c.running = false

	var firstErr error
	if c.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := c.cpuFile.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close cpu profile: %w", err)
		} else {
			c.written = append(c.written, c.cpuFile.Name())
		}
		c.cpuFile = nil
	}
	if c.config.has(ProfileBlock) {
		runtime.SetBlockProfileRate(0)
	}
	if c.config.has(ProfileMutex) {
		runtime.SetMutexProfileFraction(0)
	}

	for _, pt := range c.config.Profiles {
		if pt == ProfileCPU {
			continue
		}
		if err := c.writeSnapshot(pt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return c.written, firstErr
}

func (c *Collector) writeSnapshot(pt ProfileType) error {
	p := pprof.Lookup(string(pt))
	if p == nil {
		return fmt.Errorf("unknown profile: %s", pt)
	}
	if pt == ProfileHeap {
		runtime.GC()
	}
	f, err := os.Create(c.path(pt))
	if err != nil {
		return fmt.Errorf("failed to create %s profile: %w", pt, err)
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s profile: %w", pt, err)
	}
	c.written = append(c.written, f.Name())
	return nil
}

func (c *Collector) path(pt ProfileType) string {
	return filepath.Join(c.config.Dir, string(pt)+".pprof")
}

// Run starts a collector for cfg, runs fn and stops the collector. A nil
// cfg runs fn without profiling.
func Run(cfg *Config, fn func() error) (files []string, err error) {
	if cfg == nil {
		return nil, fn()
	}
	c, err := NewCollector(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	fnErr := fn()
	files, err = c.Stop()
	if fnErr != nil {
		return files, fnErr
	}
	return files, err
}
