// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"fmt"
	"strings"
)

// Command is a builder that accumulates a deferred series of shell
// operations to run inside an Environment. Every transform that needs
// more than a single one-shot Cmd call uses this to describe its
// steps. Every string argument passes through Handlebars-compatible
// `{{var}}` substitution against the variables accumulated so far via
// Set and CreateNamedDir.
//
// A reference to a variable that is never defined is a build error,
// not a literal string passed through to the shell. Since the
// individual operation methods (Chdir, Run, and so on) are chained
// during script construction rather than called one at a time with
// error checks in between, Command defers that error the way
// bytes.Buffer or a streaming encoder would: the first substitution
// failure is latched in err, every later operation becomes a no-op,
// and Send returns it once the build finishes accumulating operations
// (Script returns only the text and reports no error).
type Command struct {
	id          string
	env         Environment
	interpreter string
	lines       []string
	vars        map[string]string
	err         error
}

// NewCommand starts a new Command builder bound to env, identified by
// id for logging.
func NewCommand(id string, env Environment) *Command {
	return &Command{
		id:          id,
		env:         env,
		interpreter: "bash",
		vars:        make(map[string]string),
	}
}

// SetInterpreter overrides the default "bash" shebang interpreter.
func (c *Command) SetInterpreter(interpreter string) {
	c.interpreter = interpreter
}

// Set records a template variable, itself substituted against
// variables already accumulated.
func (c *Command) Set(key, value string) {
	c.vars[key] = c.sub(value)
}

// sub substitutes s against the variables accumulated so far. Once an
// earlier operation has latched an error, sub stops substituting and
// returns "", since every subsequent line is already moot.
func (c *Command) sub(s string) string {
	if c.err != nil {
		return ""
	}
	expanded, err := substitute(s, c.vars)
	if err != nil {
		c.err = fmt.Errorf("environment: command %s: %w", c.id, err)
		return ""
	}
	return expanded
}

// Chdir emits `cd <path>`.
func (c *Command) Chdir(path string) {
	c.lines = append(c.lines, "cd "+c.sub(path))
}

// Pushd emits `pushd <path>`.
func (c *Command) Pushd(path string) {
	c.lines = append(c.lines, "pushd "+c.sub(path))
}

// Popd emits `popd`.
func (c *Command) Popd() {
	c.lines = append(c.lines, "popd")
}

// CreateDir emits `mkdir -p <path>`.
func (c *Command) CreateDir(path string) {
	c.lines = append(c.lines, "mkdir -p "+c.sub(path))
}

// CreateNamedDir is CreateDir plus capturing the expanded in-environment
// path as a template variable named key, available to subsequent
// operations.
func (c *Command) CreateNamedDir(key, path string) error {
	expanded := c.sub(path)
	if c.err != nil {
		return c.err
	}
	full, err := c.env.Expand(expanded)
	if err != nil {
		return fmt.Errorf("environment: command %s: create_named_dir %s: %w", c.id, key, err)
	}
	c.vars[key] = full
	c.lines = append(c.lines, "mkdir -p "+expanded)
	return nil
}

// RemoveDir emits `rm -r <path>`.
func (c *Command) RemoveDir(path string) {
	c.lines = append(c.lines, "rm -r "+c.sub(path))
}

// RemoveFile emits `rm <path>`.
func (c *Command) RemoveFile(path string) {
	c.lines = append(c.lines, "rm "+c.sub(path))
}

// Mv emits `mv <from> <to>`.
func (c *Command) Mv(from, to string) {
	c.lines = append(c.lines, "mv "+c.sub(from)+" "+c.sub(to))
}

// Copy emits `cp -r <from> <to>`.
func (c *Command) Copy(from, to string) {
	c.lines = append(c.lines, "cp -r "+c.sub(from)+" "+c.sub(to))
}

// Run appends an arbitrary command line, substituted against the
// accumulated variables.
func (c *Command) Run(cmd string) {
	c.lines = append(c.lines, c.sub(cmd))
}

// Script renders the accumulated operations as a shebang-prefixed
// shell script for the environment's chosen interpreter.
func (c *Command) Script() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#!/usr/bin/env %s\n", c.interpreter)
	b.WriteString(strings.Join(c.lines, "\n"))
	return b.String()
}

// Send finalizes the command, expanding path and invoking
// Environment.Run. Returns an error if an earlier operation referenced
// an undefined template variable, or if the script exits
// unsuccessfully.
func (c *Command) Send(ctx context.Context, log Logger, path string) error {
	dir := c.sub(path)
	if c.err != nil {
		return c.err
	}
	full, err := c.env.Expand(dir)
	if err != nil {
		return fmt.Errorf("environment: command %s: %w", c.id, err)
	}
	ok, err := c.env.Run(ctx, log, c.id, full, c)
	if err != nil {
		return fmt.Errorf("environment: command %s: %w", c.id, err)
	}
	if !ok {
		return fmt.Errorf("environment: command %s exited unsuccessfully", c.id)
	}
	return nil
}
