package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCode_ThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"unknown test", NewUnknownTestError("static", "bogus"), ErrCodeUnknownTest},
		{"validation", NewValidationError("static", "t", "constrained", 250000, "<", 200000), ErrCodeValidation},
		{"log errors", NewLogErrorsFoundError("/tmp/x/errors_logged.txt", 12), ErrCodeLogErrors},
		{"result file", NewResultFileError("/tmp/r.txt", "missing", fs.ErrNotExist), ErrCodeResultFile},
		{"invocation", NewInvocationError("a.yml", 2, "boom", nil), ErrCodeInvocation},
		{"directory exists", NewDirectoryExistsError("/tmp/static", fs.ErrExist), ErrCodeDirectoryExists},
		{"config", NewConfigError("results_root", "empty"), ErrCodeConfig},
		{"wrapped", fmt.Errorf("static family: %w", NewUnknownTestError("static", "x")), ErrCodeUnknownTest},
		{"plain", stderrors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(stderrors.New("plain")))
	assert.Equal(t, 2, ExitCode(NewUnknownTestError("identity", "x")))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("wrap: %w", NewValidationError("s", "t", "unconstrained", 1, ">", 2))))
	assert.Equal(t, 4, ExitCode(NewLogErrorsFoundError("f", 1)))
	assert.Equal(t, 6, ExitCode(NewInvocationError("p", 1, "", nil)))
}

func TestBaseError_UnwrapKeepsCause(t *testing.T) {
	err := NewResultFileError("/tmp/r.txt", "cannot open result file", fs.ErrNotExist)

	assert.True(t, stderrors.Is(err, fs.ErrNotExist))
	assert.True(t, IsResultFile(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "caused by")
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("static", "constrained-bw-tcp1234", "constrained", 250000, "<", 200000)

	assert.Equal(t, "VALIDATION_FAILED: static test constrained-bw-tcp1234: constrained bandwidth 250000 < 200000 does not hold", err.Error())
	assert.Equal(t, "<", err.Details["operator"])
}

func TestErrors_MarshalJSON(t *testing.T) {
	t.Run("base_fields_and_cause", func(t *testing.T) {
		err := NewInvocationError("nmeta-full-regression-static-template.yml", 4, "", fs.ErrPermission)

		data, mErr := json.Marshal(err)
		require.NoError(t, mErr)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "INVOCATION_FAILED", decoded["code"])
		assert.Equal(t, "high", decoded["severity"])
		assert.Equal(t, fs.ErrPermission.Error(), decoded["cause"])
		assert.Equal(t, "nmeta-full-regression-static-template.yml", decoded["playbook"])
		assert.EqualValues(t, 4, decoded["exit_code"])
	})

	t.Run("kind_fields_are_kept", func(t *testing.T) {
		err := NewValidationError("static", "constrained-bw-tcp1234", "constrained", 250000, "<", 200000)

		data, mErr := json.Marshal(err)
		require.NoError(t, mErr)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "VALIDATION_FAILED", decoded["code"])
		assert.Equal(t, "static", decoded["family"])
		assert.Equal(t, "constrained-bw-tcp1234", decoded["test"])
		assert.Equal(t, "constrained", decoded["role"])
		assert.EqualValues(t, 250000, decoded["value"])
		assert.EqualValues(t, 200000, decoded["threshold"])
		assert.NotContains(t, decoded, "cause")
	})
}
