package core

import "errors"

// Common errors
var (
	ErrInvalidSymbol          = errors.New("invalid symbol")
	ErrInvalidTargetPrice     = errors.New("target price must be positive")
	ErrInvalidCondition       = errors.New("unknown alert condition")
	ErrAlertNotFound          = errors.New("alert not found")
	ErrUpstream               = errors.New("upstream exchange error")
	ErrUnsupportedGranularity = errors.New("granularity unsupported")
)
