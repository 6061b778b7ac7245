// Copyright 2024 nmeta System Test Project
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"errors"
	"strings"
	"testing"
)

// TestSanitizeForLog tests the basic log sanitization function
func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "Normal string",
			input:    "normal log message",
			expected: "normal log message",
		},
		{
			name:     "String with newlines",
			input:    "line1\nline2\r\nline3",
			expected: "line1\\nline2\\r\\nline3",
		},
		{
			name:     "String with tabs",
			input:    "column1\tcolumn2",
			expected: "column1\\tcolumn2",
		},
		{
			name:     "String with control characters",
			input:    "test\x00\x01\x1b[31mred\x1b[0m",
			expected: "test\\x00\\x01\\e[31mred\\e[0m",
		},
		{
			name:     "Long string truncation",
			input:    strings.Repeat("a", 600),
			expected: strings.Repeat("a", 509) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeForLog(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeForLog() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestSanitizeErrorForLog(t *testing.T) {
	if got := SanitizeErrorForLog(nil); got != "<nil>" {
		t.Errorf("SanitizeErrorForLog(nil) = %q", got)
	}
	if got := SanitizeErrorForLog(errors.New("bad\nthing")); got != "bad\\nthing" {
		t.Errorf("SanitizeErrorForLog() = %q", got)
	}
}

func TestTailForLog(t *testing.T) {
	output := "PLAY [all]\nTASK [iperf]\nfatal: [pc1]: FAILED!\nPLAY RECAP\n"

	tail := TailForLog(output, 2)
	if len(tail) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %v", len(tail), tail)
	}
	if tail[0] != "fatal: [pc1]: FAILED!" || tail[1] != "PLAY RECAP" {
		t.Errorf("Unexpected tail %v", tail)
	}

	if all := TailForLog(output, 0); len(all) != 4 {
		t.Errorf("Expected all 4 lines, got %d", len(all))
	}
	if empty := TailForLog("", 5); empty != nil {
		t.Errorf("Expected nil for empty output, got %v", empty)
	}
}
