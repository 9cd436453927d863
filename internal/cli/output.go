package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/txrelay/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (record not found, rejected submission, node error)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database not openable)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses. Code is a store error
// code or one of the CLI codes below.
type CLIError struct {
	Code      store.ErrorCode `json:"code"`              // e.g. "NOT_FOUND"
	Message   string          `json:"message"`           // human-readable message
	Retryable bool            `json:"retryable"`         // same request may succeed later
	Details   any             `json:"details,omitempty"` // additional context
}

// Codes reported by the CLI itself rather than the store.
const (
	CodeInvalidPayload store.ErrorCode = "INVALID_PAYLOAD"
	CodeTestFailed     store.ErrorCode = "E_TEST_FAILED"
	CodeUnknown        store.ErrorCode = "ERROR"
)

// ErrorCodeOf returns the store code carried by err, or CodeUnknown.
func ErrorCodeOf(err error) store.ErrorCode {
	if code := store.CodeOf(err); code != "" {
		return code
	}
	return CodeUnknown
}

// ExitCodeFor maps an error code onto the process exit code. Storage and
// input failures are command errors; everything else is a failed operation.
func ExitCodeFor(code store.ErrorCode) int {
	switch code {
	case store.ErrCodeStorageUnavailable, CodeInvalidPayload:
		return ExitCommandError
	}
	return ExitFailure
}

func retryable(code store.ErrorCode) bool {
	switch code {
	case store.ErrCodeStorageUnavailable, store.ErrCodeStatusConflict:
		return true
	}
	return false
}

// hint is the extra line printed under a text error.
func hint(code store.ErrorCode) string {
	switch code {
	case store.ErrCodeDuplicateID, store.ErrCodeDependencyNotFound, store.ErrCodeInvalidRecord:
		return "rejected; fix the submission before resending it"
	case store.ErrCodeStorageUnavailable:
		return "database unavailable; check --db and retry"
	case store.ErrCodeStatusConflict:
		return "record changed concurrently; retry"
	case CodeInvalidPayload:
		return "pass hex bytes, or use --text for plain text"
	}
	return ""
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code store.ErrorCode, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:      code,
				Message:   message,
				Retryable: retryable(code),
				Details:   details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if h := hint(code); h != "" {
		fmt.Fprintf(f.Writer, "Hint: %s\n", h)
	}
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under its error code and returns the matching exit error.
func (f *OutputFormatter) Fail(message string, err error) error {
	code := ErrorCodeOf(err)
	var details any
	if store.IsRejection(err) {
		var serr *store.Error
		if errors.As(err, &serr) && serr.TxID != "" {
			details = map[string]string{"id": serr.TxID}
		}
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(ExitCodeFor(code), message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
