package util

import "time"

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// FixedClock always reports the same instant. Used in tests that assert on
// nonces and deadlines.
type FixedClock struct{ T time.Time }

func (c FixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (c FixedClock) Now() time.Time                         { return c.T }

// Nonce is the wall clock in microseconds, the exchange's nonce unit.
// Calls at the same microsecond collide; callers that need strict ordering
// serialize their requests.
func Nonce(c Clock) uint64 {
	return uint64(c.Now().UnixMicro())
}
