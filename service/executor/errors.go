package executor

import "errors"

// ErrPanic wraps the value recovered from a panicking work function.
var ErrPanic = errors.New("panic")
