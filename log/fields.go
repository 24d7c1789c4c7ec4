/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"time"

	"github.com/ssgreg/logf"
)

// Field hold data of a specific field.
type Field = logf.Field

// Field constructors re-exported from logf, so callers don't import it directly.
var (
	Error    = logf.Error
	String   = logf.String
	Bytes    = logf.Bytes
	Bool     = logf.Bool
	Int      = logf.Int
	Int64    = logf.Int64
	Uint64   = logf.Uint64
	Float64  = logf.Float64
	Duration = logf.Duration
	Object   = logf.Object
)

// DurationMs returns a new Field with the given key and duration in milliseconds as a fractional value.
// Deadlines and latencies are reported this way.
func DurationMs(key string, val time.Duration) Field {
	return Float64(key, float64(val.Microseconds())/1000)
}
