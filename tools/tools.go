//go:build tools

// Package tools pins the code generators of the module
package tools

import (
	_ "github.com/dmarkham/enumer"
)
