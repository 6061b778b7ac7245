package playbook

import (
	"context"
	"log/slog"
	"time"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// outputTailLines is how much of a failing run's output is logged
const outputTailLines = 20

const (
	playbookPathPattern = `^\S+\.ya?ml$`
	extraVarsPattern    = `^[A-Za-z_][A-Za-z0-9_]*=\S*( [A-Za-z_][A-Za-z0-9_]*=\S*)*$`
)

// Runner builds and runs playbooks
type Runner interface {
	Command(name string, vars Vars) Command
	Invoke(ctx context.Context, cmd Command) (*Result, error)
}

// Observer is notified after every completed invocation
type Observer interface {
	ObservePlaybook(name string, duration time.Duration, exitCode int)
}

// Result describes a finished invocation
type Result struct {
	Command  Command       `json:"command"`
	ExitCode int           `json:"exitCode"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the playbook exited with status zero
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// InvokerConfig configures an Invoker
type InvokerConfig struct {
	Binary      string
	PlaybookDir string
	// Timeout bounds one invocation. Zero waits until the tool exits.
	Timeout time.Duration
	// IgnoreFailures logs a non-zero exit and carries on instead of
	// returning an InvocationError.
	IgnoreFailures bool
}

// Invoker runs playbooks through the allowlisted subprocess executor
type Invoker struct {
	config   InvokerConfig
	executor *security.SecureSubprocessExecutor
	observer Observer
	logger   *slog.Logger
}

// NewInvoker creates a new playbook invoker
func NewInvoker(config InvokerConfig, logger *slog.Logger) (*Invoker, error) {
	if config.Binary == "" {
		config.Binary = DefaultBinary
	}

	executor := security.NewSecureSubprocessExecutor()
	err := executor.RegisterCommand(&security.AllowedCommand{
		Command:     config.Binary,
		AllowedArgs: map[string]bool{"--extra-vars": true},
		ArgPatterns: []string{playbookPathPattern, extraVarsPattern},
		MaxArgs:     3,
		Timeout:     config.Timeout,
		Description: "Ansible playbook runner for the regression environment",
	})
	if err != nil {
		return nil, harnesserrors.NewConfigError("ansible_bin", err.Error())
	}

	return &Invoker{
		config:   config,
		executor: executor,
		logger:   logger,
	}, nil
}

// SetObserver registers an observer for completed invocations
func (i *Invoker) SetObserver(observer Observer) {
	i.observer = observer
}

// Command resolves a playbook name against the configured directory
func (i *Invoker) Command(name string, vars Vars) Command {
	cmd := BuildCommand(i.config.Binary, i.config.PlaybookDir, name, vars)
	i.logger.Debug("playbook resolved", "playbook", cmd.Playbook)
	i.logger.Debug("playbook command", "cmd", cmd.String())
	return cmd
}

// Invoke runs cmd and blocks until it exits
func (i *Invoker) Invoke(ctx context.Context, cmd Command) (*Result, error) {
	if err := cmd.Vars.Validate(); err != nil {
		return nil, harnesserrors.NewInvocationError(cmd.Name, -1, "", err)
	}

	i.logger.Info("running Ansible playbook...", "playbook", cmd.Name)

	execResult, err := i.executor.SecureExecute(ctx, cmd.Binary, cmd.Args()...)
	result := &Result{Command: cmd, ExitCode: -1}
	if execResult != nil {
		result.ExitCode = execResult.ExitCode
		result.Output = string(execResult.Output)
		result.Duration = execResult.Duration
	}

	if i.observer != nil {
		i.observer.ObservePlaybook(cmd.Name, result.Duration, result.ExitCode)
	}

	if err == nil {
		i.logger.Debug("playbook finished", "playbook", cmd.Name, "duration", result.Duration)
		return result, nil
	}

	for _, line := range security.TailForLog(result.Output, outputTailLines) {
		i.logger.Warn("playbook output", "playbook", cmd.Name, "line", line)
	}

	if ctx.Err() != nil {
		return result, harnesserrors.NewInvocationError(cmd.Name, result.ExitCode, result.Output, ctx.Err())
	}

	// Only a playbook that ran and exited non-zero may be ignored
	if execResult == nil {
		return result, harnesserrors.NewInvocationError(cmd.Name, result.ExitCode, result.Output, err)
	}

	if i.config.IgnoreFailures {
		i.logger.Warn("playbook failed, continuing",
			"playbook", cmd.Name,
			"exit_code", result.ExitCode,
			"error", security.SanitizeErrorForLog(err))
		return result, nil
	}

	return result, harnesserrors.NewInvocationError(cmd.Name, result.ExitCode, result.Output, err)
}
