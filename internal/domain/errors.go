package domain

import "errors"

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("%w: ...").
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)
