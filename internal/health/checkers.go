// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LoopChecker reports whether the dispatch loop is still running.
type LoopChecker struct {
	running func() bool
}

// NewLoopChecker creates a checker backed by running.
func NewLoopChecker(running func() bool) *LoopChecker {
	return &LoopChecker{running: running}
}

func (c *LoopChecker) Name() string { return "dispatch_loop" }

func (c *LoopChecker) Check(_ context.Context) CheckResult {
	if !c.running() {
		return CheckResult{Status: StatusUnhealthy, Error: "dispatch loop stopped"}
	}
	return CheckResult{Status: StatusHealthy, Message: "running"}
}

// PingChecker probes a dependency with ping. Optional dependencies report
// degraded instead of unhealthy when the probe fails.
type PingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingChecker creates a checker named name.
func NewPingChecker(name string, ping func(ctx context.Context) error, optional bool) *PingChecker {
	return &PingChecker{name: name, ping: ping, optional: optional}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// CheckWritableDir verifies path is an existing, writable directory.
// The daemon runs it before opening the journal.
func CheckWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)
	return nil
}
