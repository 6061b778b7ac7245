// Copyright 2024 nmeta System Test Project
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"fmt"
	"strings"
	"unicode"
)

// maxLogValueLength bounds a single sanitized value to prevent log flooding
const maxLogValueLength = 512

// SanitizeForLog removes dangerous characters that could be used for log injection
func SanitizeForLog(input string) string {
	if input == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(input))

	for _, r := range input {
		switch {
		case r == '\n':
			result.WriteString("\\n")
		case r == '\r':
			result.WriteString("\\r")
		case r == '\t':
			result.WriteString("\\t")
		case r == 0x1b: // ESC character for ANSI codes
			result.WriteString("\\e")
		case unicode.IsControl(r):
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		default:
			result.WriteRune(r)
		}
	}

	sanitized := result.String()

	if len(sanitized) > maxLogValueLength {
		sanitized = sanitized[:maxLogValueLength-3] + "..."
	}

	return sanitized
}

// SanitizeErrorForLog safely formats error messages for logging
func SanitizeErrorForLog(err error) string {
	if err == nil {
		return "<nil>"
	}
	return SanitizeForLog(err.Error())
}

// TailForLog returns the last lines of multi-line tool output, each sanitized,
// so failing subprocess output can be logged without flooding.
func TailForLog(output string, lines int) []string {
	all := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(all) == 1 && all[0] == "" {
		return nil
	}
	if lines > 0 && len(all) > lines {
		all = all[len(all)-lines:]
	}
	tail := make([]string, len(all))
	for i, line := range all {
		tail[i] = SanitizeForLog(line)
	}
	return tail
}
