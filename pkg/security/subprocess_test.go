// Copyright 2024 nmeta System Test Project
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSecureSubprocessExecutor_NewSecureSubprocessExecutor(t *testing.T) {
	executor := NewSecureSubprocessExecutor()

	if executor == nil {
		t.Fatal("Expected non-nil executor")
	}

	if executor.maxOutputSize != 10*1024*1024 {
		t.Errorf("Expected max output size of 10MB, got %d", executor.maxOutputSize)
	}

	if len(executor.allowedCommands) != 0 {
		t.Errorf("Expected empty allowlist, got %d commands", len(executor.allowedCommands))
	}
}

func TestSecureSubprocessExecutor_RegisterCommand(t *testing.T) {
	executor := NewSecureSubprocessExecutor()

	tests := []struct {
		name    string
		command *AllowedCommand
		wantErr bool
	}{
		{
			name: "valid command",
			command: &AllowedCommand{
				Command:     "ansible-playbook",
				AllowedArgs: map[string]bool{"--extra-vars": true},
				ArgPatterns: []string{`^[\w\-./]+\.ya?ml$`},
				MaxArgs:     3,
				Description: "Automation runner",
			},
			wantErr: false,
		},
		{
			name: "empty command name",
			command: &AllowedCommand{
				Command: "",
			},
			wantErr: true,
		},
		{
			name: "command with dangerous characters",
			command: &AllowedCommand{
				Command: "test;rm",
			},
			wantErr: true,
		},
		{
			name: "broken argument pattern",
			command: &AllowedCommand{
				Command:     "true",
				ArgPatterns: []string{`([`},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.RegisterCommand(tt.command)
			if (err != nil) != tt.wantErr {
				t.Errorf("RegisterCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSecureSubprocessExecutor_RegisterCommandDefaultsMaxArgs(t *testing.T) {
	executor := NewSecureSubprocessExecutor()
	cmd := &AllowedCommand{Command: "true"}

	if err := executor.RegisterCommand(cmd); err != nil {
		t.Fatalf("RegisterCommand() error = %v", err)
	}
	if cmd.MaxArgs != 10 {
		t.Errorf("Expected default MaxArgs of 10, got %d", cmd.MaxArgs)
	}
}

func TestSecureSubprocessExecutor_SecureExecute(t *testing.T) {
	executor := NewSecureSubprocessExecutor()
	for _, cmd := range []*AllowedCommand{
		{Command: "true", MaxArgs: 2},
		{Command: "false", MaxArgs: 2},
		{Command: "echo", ArgPatterns: []string{`^[a-z=_ ]+$`}, MaxArgs: 2},
	} {
		if err := executor.RegisterCommand(cmd); err != nil {
			t.Fatalf("RegisterCommand(%s) error = %v", cmd.Command, err)
		}
	}
	ctx := context.Background()

	tests := []struct {
		name         string
		command      string
		args         []string
		wantErr      bool
		wantResult   bool
		wantExitCode int
		errorText    string
	}{
		{
			name:      "command not in allowlist",
			command:   "unknown_command",
			wantErr:   true,
			errorText: "command not in allowlist",
		},
		{
			name:      "too many arguments",
			command:   "true",
			args:      []string{"a", "b", "c"},
			wantErr:   true,
			errorText: "too many arguments",
		},
		{
			name:      "dangerous characters",
			command:   "echo",
			args:      []string{"hello; rm -rf /"},
			wantErr:   true,
			errorText: "argument validation failed",
		},
		{
			name:      "argument not matching pattern",
			command:   "echo",
			args:      []string{"HELLO"},
			wantErr:   true,
			errorText: "not allowed",
		},
		{
			name:         "successful command",
			command:      "echo",
			args:         []string{"results_dir=x policy_name=y"},
			wantResult:   true,
			wantExitCode: 0,
		},
		{
			name:         "non-zero exit",
			command:      "false",
			wantErr:      true,
			wantResult:   true,
			wantExitCode: 1,
			errorText:    "command execution failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.SecureExecute(ctx, tt.command, tt.args...)

			if (err != nil) != tt.wantErr {
				t.Fatalf("SecureExecute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.errorText != "" && (err == nil || !strings.Contains(err.Error(), tt.errorText)) {
				t.Errorf("Expected error containing %q, got %v", tt.errorText, err)
			}
			if (result != nil) != tt.wantResult {
				t.Fatalf("Expected result presence %v, got %v", tt.wantResult, result)
			}
			if result != nil && result.ExitCode != tt.wantExitCode {
				t.Errorf("Expected exit code %d, got %d", tt.wantExitCode, result.ExitCode)
			}
		})
	}
}

func TestSecureSubprocessExecutor_CapturesOutput(t *testing.T) {
	executor := NewSecureSubprocessExecutor()
	if err := executor.RegisterCommand(&AllowedCommand{Command: "echo", MaxArgs: 1}); err != nil {
		t.Fatal(err)
	}

	result, err := executor.SecureExecute(context.Background(), "echo", "ok")
	if err != nil {
		t.Fatalf("SecureExecute() error = %v", err)
	}
	if strings.TrimSpace(string(result.Output)) != "ok" {
		t.Errorf("Expected output %q, got %q", "ok", result.Output)
	}
}

func TestSecureSubprocessExecutor_Timeout(t *testing.T) {
	executor := NewSecureSubprocessExecutor()
	if err := executor.RegisterCommand(&AllowedCommand{
		Command: "sleep",
		MaxArgs: 1,
		Timeout: 50 * time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := executor.SecureExecute(context.Background(), "sleep", "5")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Timeout was not enforced, took %v", time.Since(start))
	}
}
