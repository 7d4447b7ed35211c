package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrUnreachableGateway = errors.New("gateway unreachable")
	ErrRateLimited        = errors.New("rate limited")

	// Builder failures are request-shape problems, so they surface as validation errors.
	ErrEmptyNumberSet = fmt.Errorf("%w: number set is empty", ErrValidation)
	ErrUnparsableFile = fmt.Errorf("%w: file cannot be decoded as tabular data", ErrValidation)
)
