package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txrelay/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(SubmitView{IDs: []string{"t1"}})
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   SubmitView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"t1"}, resp.Data.IDs)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(store.ErrCodeNotFound, "transaction not found", map[string]string{"id": "t9"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, store.ErrCodeNotFound, resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
	assert.Equal(t, "transaction not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(SubmitView{IDs: []string{"a", "b"}}))
	assert.Equal(t, "submitted a, b\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error(store.ErrCodeDuplicateID, "already stored", "t1"))
	assert.Contains(t, buf.String(), "Error [DUPLICATE_ID]: already stored")
	assert.Contains(t, buf.String(), "Hint: rejected; fix the submission before resending it")
	assert.Contains(t, buf.String(), "Details: t1")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Empty(t, out.String())
	assert.Equal(t, "shown 2\n", errOut.String())

	fallback := &OutputFormatter{Format: "text", Writer: out, Verbose: true}
	fallback.VerboseLog("to stdout")
	assert.Equal(t, "to stdout\n", out.String())
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk gone")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: disk gone", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestErrorCodes(t *testing.T) {
	duplicate := &store.Error{Code: store.ErrCodeDuplicateID, Message: "exists", TxID: "t1"}
	unavailable := &store.Error{Code: store.ErrCodeStorageUnavailable, Message: "open"}

	tests := []struct {
		name      string
		err       error
		code      store.ErrorCode
		exit      int
		retryable bool
	}{
		{"rejection", fmt.Errorf("create: %w", duplicate), store.ErrCodeDuplicateID, ExitFailure, false},
		{"not found", &store.Error{Code: store.ErrCodeNotFound}, store.ErrCodeNotFound, ExitFailure, false},
		{"conflict", &store.Error{Code: store.ErrCodeStatusConflict}, store.ErrCodeStatusConflict, ExitFailure, true},
		{"storage", unavailable, store.ErrCodeStorageUnavailable, ExitCommandError, true},
		{"plain error", errors.New("boom"), CodeUnknown, ExitFailure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := ErrorCodeOf(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.exit, ExitCodeFor(code))
			assert.Equal(t, tt.retryable, retryable(code))
		})
	}
	assert.Equal(t, ExitCommandError, ExitCodeFor(CodeInvalidPayload))
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	cause := &store.Error{Code: store.ErrCodeDependencyNotFound, Message: "missing dependency", TxID: "t2"}

	err := formatter.Fail("submit rejected", cause)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, store.ErrCodeDependencyNotFound, resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
	assert.Equal(t, map[string]any{"id": "t2"}, resp.Error.Details)
}

func TestOutputFormatter_FailStorageText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail("stats query failed", &store.Error{Code: store.ErrCodeStorageUnavailable, Message: "count"})
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [STORAGE_UNAVAILABLE]: stats query failed")
	assert.Contains(t, buf.String(), "Hint: database unavailable; check --db and retry")
}
