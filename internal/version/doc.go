// Package version exposes build metadata for the publisher binaries.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Short and Full render the version for CLI output, and UserAgent
// identifies the tool to the artifact index and the release API.
package version
