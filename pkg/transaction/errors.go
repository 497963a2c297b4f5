package transaction

import "github.com/pkg/errors"

var (
	ErrInvalidRequest      = errors.New("transaction: invalid request")
	ErrInvalidResponse     = errors.New("transaction: invalid response")
	ErrInvalidState        = errors.New("transaction: invalid state for operation")
	ErrTransactionNotFound = errors.New("transaction: not found")
	ErrTransactionExists   = errors.New("transaction: already exists")
	ErrTimeout             = errors.New("transaction: timed out")
	ErrTerminated          = errors.New("transaction: already terminated")
	ErrCannotCancel        = errors.New("transaction: cannot cancel in current state")
	ErrMissingVia          = errors.New("transaction: request missing Via header")
	ErrMissingBranch       = errors.New("transaction: Via header missing branch parameter")
	ErrBadBranch           = errors.New("transaction: branch parameter missing magic cookie z9hG4bK")
)
