//go:build tools

package toll

import (
	// This is a workaround to make sure the linter and related tools are
	// kept in the go.mod file and can be version controlled there.
	_ "github.com/golangci/golangci-lint/v2/cmd/golangci-lint"
	_ "github.com/ory/go-acc"
	_ "github.com/rinchsan/gosimports/cmd/gosimports"
)
