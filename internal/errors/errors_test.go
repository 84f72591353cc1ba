package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("exec: \"ap\": executable file not found in $PATH")

	err := New(VerifierError, "verifier not found", cause)

	if err.Code != VerifierError {
		t.Errorf("Code = %v, want %v", err.Code, VerifierError)
	}
	if err.Message != "verifier not found" {
		t.Errorf("Message = %q, want %q", err.Message, "verifier not found")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      LLMError,
			message:   "generateContent failed",
			cause:     errors.New("connection refused"),
			wantParts: []string{"LLM_ERROR", "generateContent failed", "connection refused"},
		},
		{
			name:      "without cause",
			code:      ResolveError,
			message:   "class FOO not in workspace",
			cause:     nil,
			wantParts: []string{"RESOLVE_ERROR", "class FOO not in workspace"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := New(RewriteError, "reparse failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	noCause := New(InternalError, "oops", nil)
	if noCause.Unwrap() != nil {
		t.Error("Unwrap() should be nil without a cause")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ParseError, "missing predicate", nil).WithDetails(map[string]int{"row": 3})
	details, ok := err.Details.(map[string]int)
	if !ok || details["row"] != 3 {
		t.Errorf("Details = %v, want row=3", err.Details)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), InternalError},
		{"direct", New(Cancelled, "stop", nil), Cancelled},
		{"wrapped", fmt.Errorf("outer: %w", New(Timeout, "slow", nil)), Timeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	inner := New(VerifierError, "verifier exited 2", nil)
	wrapped := fmt.Errorf("repair ACCOUNT: %w", inner)
	if e, ok := As(wrapped); !ok || e != inner {
		t.Errorf("As(wrapped) = %v, %v", e, ok)
	}
	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As(plain) should be false")
	}
}

func TestIs(t *testing.T) {
	inner := New(Timeout, "llm call", nil)
	outer := New(LLMError, "giving up", inner)

	if !Is(outer, LLMError) {
		t.Error("Is(outer, LLMError) = false, want true")
	}
	if !Is(outer, Timeout) {
		t.Error("Is(outer, Timeout) = false, want true")
	}
	if Is(outer, ParseError) {
		t.Error("Is(outer, ParseError) = true, want false")
	}
	if Is(errors.New("plain"), InternalError) {
		t.Error("plain errors carry no code")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(VerifierError); len(fixes) == 0 || fixes[0].Variable != "AP_COMMAND" {
		t.Errorf("GetSuggestedFixes(VerifierError) = %v", fixes)
	}
	if fixes := GetSuggestedFixes(ParseError); fixes != nil {
		t.Errorf("GetSuggestedFixes(ParseError) = %v, want nil", fixes)
	}
}
