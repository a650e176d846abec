//go:build tools

// Package tools documents development tool dependencies.
// These tools run through `go run` or a global `go install` and are not tracked
// in go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the ports interfaces
//   Run: go generate ./internal/mocks
//   Version: v0.6.0 (pinned in the go:generate directives)
//   Docs: https://github.com/uber-go/mock
//
// golangci-lint - the nolint directives in this repo target its linters
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@v2.1.6
//   Docs: https://golangci-lint.run
