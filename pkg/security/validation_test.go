// Copyright 2024 nmeta System Test Project
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"strings"
	"testing"
)

func TestValidateCommandArgument(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		wantErr bool
	}{
		{"empty", "", false},
		{"playbook path", "/home/test/automated_tests/nmeta-full-regression-static-template.yml", false},
		{"extra vars", "duration=10 results_dir=/tmp/a/ policy_name=p.yaml pause1=30", false},
		{"semicolon", "a;b", true},
		{"pipe", "a|b", true},
		{"command substitution", "$(id)", true},
		{"backtick", "`id`", true},
		{"double quote", `a"b`, true},
		{"null byte", "a\x00b", true},
		{"too long", strings.Repeat("a", 4097), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandArgument(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCommandArgument(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
		})
	}
}

func TestValidateExtraVarKey(t *testing.T) {
	valid := []string{"results_dir", "policy_name", "pause1", "tcp_port", "_x"}
	for _, key := range valid {
		if err := ValidateExtraVarKey(key); err != nil {
			t.Errorf("ValidateExtraVarKey(%q) unexpected error: %v", key, err)
		}
	}

	invalid := []string{"", "1pause", "results-dir", "a b", "a=b"}
	for _, key := range invalid {
		if err := ValidateExtraVarKey(key); err == nil {
			t.Errorf("ValidateExtraVarKey(%q) expected error", key)
		}
	}
}

func TestValidateExtraVarValue(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"main_policy_regression_static.yaml", false},
		{"/home/test/nmeta_systemtest_results/20240101120000/static/", false},
		{"10", false},
		{"", false},
		{"two words", true},
		{"tab\there", true},
		{"a=b", true},
		{"it's", true},
		{"x;y", true},
	}

	for _, tt := range tests {
		err := ValidateExtraVarValue(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateExtraVarValue(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}
