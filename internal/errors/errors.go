package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ParseError indicates a tree query missed a required capture or a clause had no predicate
	ParseError ErrorCode = "PARSE_ERROR"
	// ResolveError indicates a type referenced a class that is not in the workspace
	ResolveError ErrorCode = "RESOLVE_ERROR"
	// VerifierError indicates the verifier binary is missing or exited abnormally
	VerifierError ErrorCode = "VERIFIER_ERROR"
	// LLMError indicates a network, auth, or schema failure talking to the model
	LLMError ErrorCode = "LLM_ERROR"
	// RewriteError indicates a rewritten file failed to re-parse
	RewriteError ErrorCode = "REWRITE_ERROR"
	// Cancelled indicates cooperative cancellation
	Cancelled ErrorCode = "CANCELLED"
	// Timeout indicates a wall-clock limit was hit
	Timeout ErrorCode = "TIMEOUT"
	// InvalidRequest indicates malformed command arguments or an unknown target
	InvalidRequest ErrorCode = "INVALID_REQUEST"
	// ConfigError indicates invalid settings or a missing environment variable
	ConfigError ErrorCode = "CONFIG_ERROR"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// SetEnv suggests exporting an environment variable
	SetEnv FixActionType = "set-env"
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Variable    string        `json:"variable,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Error represents an error with code, message, and suggestions
type Error struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a new Error without a cause and a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// KindOf returns the code of the outermost *Error in err's chain.
// Errors that carry no code report InternalError.
func KindOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	VerifierError: {
		{
			Type:        SetEnv,
			Variable:    "AP_COMMAND",
			Description: "Point AP_COMMAND at the AutoProof executable",
		},
	},
	LLMError: {
		{
			Type:        SetEnv,
			Variable:    "GOOGLE_API_KEY",
			Description: "Export a valid API key for the configured provider",
		},
	},
	ConfigError: {
		{
			Type:        RunCommand,
			Command:     "eiffel-lsp config init",
			Description: "Write a default settings file",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
