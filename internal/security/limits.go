package security

import "time"

const truncationMarker = "\n[output truncated]"

// Limits constrains snippet execution.
type Limits struct {
	ExecTimeout    time.Duration
	MaxOutputBytes int
}

// DefaultLimits returns the default execution limits.
func DefaultLimits() Limits {
	return Limits{
		ExecTimeout:    30 * time.Second,
		MaxOutputBytes: 64 * 1024,
	}
}

// CapOutput truncates s to MaxOutputBytes, appending a marker when cut.
func (l Limits) CapOutput(s string) string {
	if l.MaxOutputBytes <= 0 || len(s) <= l.MaxOutputBytes {
		return s
	}
	return s[:l.MaxOutputBytes] + truncationMarker
}
