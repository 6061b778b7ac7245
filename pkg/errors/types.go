// Package errors provides the typed failure kinds of a regression run
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents specific error classifications
type ErrorCode string

const (
	// Configuration errors
	ErrCodeUnknownTest ErrorCode = "UNKNOWN_TEST"
	ErrCodeConfig      ErrorCode = "CONFIG_ERROR"

	// Test outcome errors
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	ErrCodeLogErrors  ErrorCode = "LOG_ERRORS_FOUND"

	// Infrastructure errors
	ErrCodeResultFile      ErrorCode = "RESULT_FILE_ERROR"
	ErrCodeInvocation      ErrorCode = "INVOCATION_FAILED"
	ErrCodeDirectoryExists ErrorCode = "DIRECTORY_EXISTS"
)

// ErrorSeverity indicates the severity level of an error
type ErrorSeverity string

const (
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// BaseError provides the foundation for all harness errors
type BaseError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	CauseText string                 `json:"cause,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
}

func newBase(code ErrorCode, severity ErrorSeverity, message string, cause error) *BaseError {
	var causeText string
	if cause != nil {
		causeText = cause.Error()
	}
	return &BaseError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		CauseText: causeText,
		Severity:  severity,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *BaseError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the classification of the error
func (e *BaseError) ErrorCode() ErrorCode {
	return e.Code
}

// UnknownTestError is returned when a test name has no entry in its family's case table
type UnknownTestError struct {
	*BaseError
	Family string `json:"family"`
	Test   string `json:"test"`
}

// NewUnknownTestError creates a new unknown test error
func NewUnknownTestError(family, test string) *UnknownTestError {
	return &UnknownTestError{
		BaseError: newBase(ErrCodeUnknownTest, SeverityCritical,
			fmt.Sprintf("unknown %s test %q", family, test), nil),
		Family: family,
		Test:   test,
	}
}

// ValidationError represents a measured bandwidth outside its threshold
type ValidationError struct {
	*BaseError
	Family    string `json:"family"`
	Test      string `json:"test"`
	Role      string `json:"role"`
	Value     int64  `json:"value"`
	Threshold int64  `json:"threshold"`
}

// NewValidationError creates a new validation error. op is the comparison that
// was expected to hold, "<" or ">".
func NewValidationError(family, test, role string, value int64, op string, threshold int64) *ValidationError {
	err := &ValidationError{
		BaseError: newBase(ErrCodeValidation, SeverityHigh,
			fmt.Sprintf("%s test %s: %s bandwidth %d %s %d does not hold", family, test, role, value, op, threshold), nil),
		Family:    family,
		Test:      test,
		Role:      role,
		Value:     value,
		Threshold: threshold,
	}
	err.Details["operator"] = op
	return err
}

// LogErrorsFoundError reports ERROR or CRITICAL entries in the controller log
type LogErrorsFoundError struct {
	*BaseError
	File string `json:"file"`
	Size int64  `json:"size"`
}

// NewLogErrorsFoundError creates a new log errors found error
func NewLogErrorsFoundError(file string, size int64) *LogErrorsFoundError {
	return &LogErrorsFoundError{
		BaseError: newBase(ErrCodeLogErrors, SeverityCritical,
			fmt.Sprintf("ERROR and/or CRITICAL logs need attention, check file %s", file), nil),
		File: file,
		Size: size,
	}
}

// ResultFileError represents a missing or malformed traffic report
type ResultFileError struct {
	*BaseError
	Path string `json:"path"`
}

// NewResultFileError creates a new result file error
func NewResultFileError(path, message string, cause error) *ResultFileError {
	return &ResultFileError{
		BaseError: newBase(ErrCodeResultFile, SeverityHigh, message, cause),
		Path:      path,
	}
}

// InvocationError represents an external automation run that did not exit cleanly
type InvocationError struct {
	*BaseError
	Playbook string `json:"playbook"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

// NewInvocationError creates a new invocation error
func NewInvocationError(playbook string, exitCode int, output string, cause error) *InvocationError {
	return &InvocationError{
		BaseError: newBase(ErrCodeInvocation, SeverityHigh,
			fmt.Sprintf("playbook %s failed with exit code %d", playbook, exitCode), cause),
		Playbook: playbook,
		ExitCode: exitCode,
		Output:   output,
	}
}

// DirectoryExistsError is returned when a results directory is already present
type DirectoryExistsError struct {
	*BaseError
	Path string `json:"path"`
}

// NewDirectoryExistsError creates a new directory exists error
func NewDirectoryExistsError(path string, cause error) *DirectoryExistsError {
	return &DirectoryExistsError{
		BaseError: newBase(ErrCodeDirectoryExists, SeverityHigh,
			fmt.Sprintf("results directory %s already exists", path), cause),
		Path: path,
	}
}

// ConfigError represents an invalid harness configuration
type ConfigError struct {
	*BaseError
	Field string `json:"field"`
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		BaseError: newBase(ErrCodeConfig, SeverityCritical, message, nil),
		Field:     field,
	}
}

// Helper functions

type coded interface {
	ErrorCode() ErrorCode
}

// GetCode extracts the error code from anywhere in the chain. Errors that are
// not classified return the empty code.
func GetCode(err error) ErrorCode {
	var c coded
	if stderrors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// HasCode reports whether err carries the given classification
func HasCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsUnknownTest checks if error is an unknown test error
func IsUnknownTest(err error) bool { return HasCode(err, ErrCodeUnknownTest) }

// IsValidation checks if error is a threshold validation failure
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsLogErrors checks if error reports logged controller errors
func IsLogErrors(err error) bool { return HasCode(err, ErrCodeLogErrors) }

// IsResultFile checks if error is a result file error
func IsResultFile(err error) bool { return HasCode(err, ErrCodeResultFile) }

// IsInvocation checks if error is an automation invocation failure
func IsInvocation(err error) bool { return HasCode(err, ErrCodeInvocation) }

// IsDirectoryExists checks if error is a directory collision
func IsDirectoryExists(err error) bool { return HasCode(err, ErrCodeDirectoryExists) }

// ExitCode maps an error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err) {
	case ErrCodeUnknownTest:
		return 2
	case ErrCodeValidation:
		return 3
	case ErrCodeLogErrors:
		return 4
	case ErrCodeResultFile:
		return 5
	case ErrCodeInvocation:
		return 6
	case ErrCodeDirectoryExists:
		return 7
	case ErrCodeConfig:
		return 8
	default:
		return 1
	}
}
