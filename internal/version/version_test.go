package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	tests := []struct {
		commit string
		want   string
	}{
		{"unknown", "0.9.1"},
		{"abc", "0.9.1"},
		{"abc1234567890", "0.9.1 (abc1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.commit, func(t *testing.T) {
			Version, Commit = "0.9.1", tt.commit
			if got := Info(); got != tt.want {
				t.Errorf("Info() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFull(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = origVersion, origCommit, origDate }()

	Version, Commit, BuildDate = "0.9.1", "deadbeef", "2026-01-02"
	got := Full()
	for _, part := range []string{"eiffel-lsp version 0.9.1", "Commit: deadbeef", "Built: 2026-01-02", "Go: go"} {
		if !strings.Contains(got, part) {
			t.Errorf("Full() = %q, want to contain %q", got, part)
		}
	}
}

func TestUserAgent(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3"
	if got := UserAgent(); !strings.HasPrefix(got, "eiffel-lsp/1.2.3 (") {
		t.Errorf("UserAgent() = %q", got)
	}
}
