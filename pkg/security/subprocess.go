// Copyright 2024 nmeta System Test Project
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// AllowedCommand represents a command that is allowed to be executed
type AllowedCommand struct {
	Command     string          // Base command (e.g., "ansible-playbook")
	AllowedArgs map[string]bool // Map of allowed literal arguments
	ArgPatterns []string        // Regex patterns for dynamic arguments
	MaxArgs     int             // Maximum number of arguments
	Timeout     time.Duration   // Maximum execution time, zero waits forever
	Env         []string        // Process environment, nil inherits the caller's
	Description string          // Description of the command purpose
}

// ExecResult is the outcome of a command that was started
type ExecResult struct {
	Output   []byte
	ExitCode int
	Duration time.Duration
}

// SecureSubprocessExecutor provides subprocess execution against an allowlist
type SecureSubprocessExecutor struct {
	allowedCommands map[string]*AllowedCommand
	patterns        map[string][]*regexp.Regexp
	maxOutputSize   int64
}

// NewSecureSubprocessExecutor creates an executor with an empty allowlist
func NewSecureSubprocessExecutor() *SecureSubprocessExecutor {
	return &SecureSubprocessExecutor{
		allowedCommands: make(map[string]*AllowedCommand),
		patterns:        make(map[string][]*regexp.Regexp),
		maxOutputSize:   10 * 1024 * 1024, // 10MB max output
	}
}

// RegisterCommand registers a new allowed command
func (se *SecureSubprocessExecutor) RegisterCommand(cmd *AllowedCommand) error {
	if cmd.Command == "" {
		return fmt.Errorf("command name cannot be empty")
	}

	if err := ValidateCommandArgument(cmd.Command); err != nil {
		return fmt.Errorf("invalid command name: %w", err)
	}

	compiled := make([]*regexp.Regexp, 0, len(cmd.ArgPatterns))
	for _, pattern := range cmd.ArgPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid argument pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}

	if cmd.MaxArgs == 0 {
		cmd.MaxArgs = 10
	}

	se.allowedCommands[cmd.Command] = cmd
	se.patterns[cmd.Command] = compiled
	return nil
}

// SecureExecute runs an allowlisted command and waits for it to exit. A
// command that starts but exits non-zero returns both the result and an
// error wrapping *exec.ExitError.
func (se *SecureSubprocessExecutor) SecureExecute(ctx context.Context, command string, args ...string) (*ExecResult, error) {
	allowedCmd, exists := se.allowedCommands[command]
	if !exists {
		return nil, fmt.Errorf("command not in allowlist: %s", command)
	}

	if len(args) > allowedCmd.MaxArgs {
		return nil, fmt.Errorf("too many arguments: %d (max: %d)", len(args), allowedCmd.MaxArgs)
	}

	if err := se.validateArguments(allowedCmd, args); err != nil {
		return nil, fmt.Errorf("argument validation failed: %w", err)
	}

	if allowedCmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, allowedCmd.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if allowedCmd.Env != nil {
		cmd.Env = allowedCmd.Env
	}

	start := time.Now()
	output, err := cmd.CombinedOutput()
	result := &ExecResult{
		Output:   output,
		ExitCode: 0,
		Duration: time.Since(start),
	}

	if int64(len(output)) > se.maxOutputSize {
		result.Output = output[:se.maxOutputSize]
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("command execution failed: %w", err)
		}
		return nil, fmt.Errorf("command could not be started: %w", err)
	}

	return result, nil
}

// validateArguments validates command arguments against allowlists and patterns
func (se *SecureSubprocessExecutor) validateArguments(allowedCmd *AllowedCommand, args []string) error {
	patterns := se.patterns[allowedCmd.Command]

	for i, arg := range args {
		if err := ValidateCommandArgument(arg); err != nil {
			return fmt.Errorf("argument %d failed basic validation: %w", i, err)
		}

		if allowedCmd.AllowedArgs[arg] {
			continue
		}

		matched := false
		for _, re := range patterns {
			if re.MatchString(arg) {
				matched = true
				break
			}
		}

		// If we have allowlists or patterns, argument must match one of them
		if (len(allowedCmd.AllowedArgs) > 0 || len(patterns) > 0) && !matched {
			return fmt.Errorf("argument %d not allowed: %s", i, SanitizeForLog(arg))
		}
	}

	return nil
}
