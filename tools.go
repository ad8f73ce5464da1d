//go:build tools

// Package tools pins mockgen so `go generate ./...` resolves the same version
// as the gomock runtime used by the tests.
package chat_hub

import (
	_ "go.uber.org/mock/mockgen"
)
