// Package clock provides the time source used for record timestamps.
package clock

import "time"

// NowFunc returns current UTC time. Override in tests for determinism.
var NowFunc = func() time.Time { return time.Now().UTC() }

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }
