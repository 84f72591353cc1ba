// Package version identifies the build. Release builds set the variables
// with -ldflags "-X eiffel-lsp/internal/version.Version=... -X ...Commit=...".
package version

import "runtime"

var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the version with the short commit when one was stamped in.
func Info() string {
	if len(Commit) > 7 && Commit != "unknown" {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full is the multi-line text printed by the version command.
func Full() string {
	return "eiffel-lsp version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Go: " + runtime.Version()
}

// UserAgent identifies the server to LLM providers.
func UserAgent() string {
	return "eiffel-lsp/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
