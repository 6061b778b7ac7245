// Copyright 2024 nmeta System Test Project
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var extraVarKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateCommandArgument validates command line arguments
func ValidateCommandArgument(arg string) error {
	if arg == "" {
		return nil // Empty arguments are allowed
	}

	if len(arg) > 4096 {
		return fmt.Errorf("command argument too long: %d bytes", len(arg))
	}

	if strings.ContainsRune(arg, 0) {
		return fmt.Errorf("null byte in argument")
	}

	// Check for dangerous characters
	dangerousChars := []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\\", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(arg, char) {
			return fmt.Errorf("dangerous character %q in argument: %s", char, SanitizeForLog(arg))
		}
	}

	return nil
}

// ValidateExtraVarKey checks an automation variable name
func ValidateExtraVarKey(key string) error {
	if !extraVarKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid variable name: %q", key)
	}
	return nil
}

// ValidateExtraVarValue checks that a value survives "k=v k=v" serialization
// unchanged: no whitespace, no quoting and no shell metacharacters.
func ValidateExtraVarValue(value string) error {
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("whitespace or control character in value: %q", value)
		}
	}
	if strings.Contains(value, "=") {
		return fmt.Errorf("'=' in value: %q", value)
	}
	return ValidateCommandArgument(value)
}
