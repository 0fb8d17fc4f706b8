//go:build tools
// +build tools

// Package tools defines helper build time tooling needed by the codebase.
package tools

import (
	// for test coverage.
	_ "github.com/AlekSi/gocov-xml"
	_ "github.com/axw/gocov/gocov"
	// for linting.
	_ "github.com/edaniels/golinters/cmd/combined"
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "github.com/rhysd/actionlint/cmd/actionlint"
	// for module API checks.
	_ "github.com/fullstorydev/grpcurl/cmd/grpcurl"
	// for test output.
	_ "gotest.tools/gotestsum"
)
