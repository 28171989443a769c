// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os/exec"
)

// SystemdScope wraps command execution in a systemd scope for resource limits.
type SystemdScope struct {
	// Name is the scope name (e.g., "edo-transform-curl-build").
	Name string

	// Resources defines the resource limits.
	Resources ResourceConfig

	// User runs the scope as the current user (--user flag).
	User bool
}

// NewSystemdScope creates a new systemd scope wrapper.
func NewSystemdScope(name string, resources ResourceConfig) *SystemdScope {
	return &SystemdScope{
		Name:      name,
		Resources: resources,
		User:      true, // Default to user scope.
	}
}

// Available checks if systemd-run is available.
func (s *SystemdScope) Available() bool {
	_, err := exec.LookPath("systemd-run")
	return err == nil
}

// WrapCommand wraps a command with systemd-run for resource limits.
// Returns the original command unchanged if systemd is not available
// or no limits are configured.
func (s *SystemdScope) WrapCommand(cmd []string) []string {
	if !s.Available() {
		return cmd
	}

	if !s.Resources.HasLimits() {
		return cmd
	}

	args := []string{"systemd-run"}

	if s.User {
		args = append(args, "--user")
	}

	args = append(args, "--scope")

	if s.Name != "" {
		args = append(args, "--unit="+s.Name)
	}

	// Add resource limits as properties.
	if s.Resources.TasksMax > 0 {
		args = append(args, fmt.Sprintf("--property=TasksMax=%d", s.Resources.TasksMax))
	}

	if s.Resources.MemoryMax != "" {
		args = append(args, fmt.Sprintf("--property=MemoryMax=%s", s.Resources.MemoryMax))
	}

	if s.Resources.CPUQuota != "" {
		args = append(args, fmt.Sprintf("--property=CPUQuota=%s", s.Resources.CPUQuota))
	}

	if s.Resources.CPUWeight > 0 {
		args = append(args, fmt.Sprintf("--property=CPUWeight=%d", s.Resources.CPUWeight))
	}

	// Separator and original command.
	args = append(args, "--")
	args = append(args, cmd...)

	return args
}
