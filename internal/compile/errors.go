package compile

import (
	"errors"
	"fmt"

	"tonyukuk-playground/internal/sandbox"
)

// Rejections produced by the Validator. All of them are client errors.
var (
	ErrCodeTooLarge = errors.New("code too large")
	ErrEmptyBody    = errors.New("empty request body")
	ErrMalformed    = errors.New("malformed request")
	ErrEmptyCode    = errors.New("empty code")
)

var (
	// ErrCompileTimeout means the compiler did not finish within its budget.
	ErrCompileTimeout = fmt.Errorf("compile: %w", sandbox.ErrTimeout)
	// ErrIRMissing means the compiler reported success but wrote no IR file.
	ErrIRMissing = errors.New("compiler reported success without an IR file")
)
