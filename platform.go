package dhcp4client

// Tick is a monotonic timestamp expressed in whole seconds since some
// arbitrary, platform-chosen epoch. Arithmetic on Tick wraps modulo 2^32,
// exactly like the fixed-width tick counter of an embedded monotonic clock;
// callers that need a signed delta must go through TicksUntil rather than
// subtracting Ticks directly.
type Tick uint32

// TicksUntil returns the signed number of seconds from `from` to `to`,
// correctly handling wraparound of the Tick counter (this only produces a
// meaningful answer when the true distance is under 2^31 seconds, which
// MaxTimerSeconds guarantees for every interval the timing engine arms).
func TicksUntil(from, to Tick) int64 {
	return int64(int32(to - from))
}

// Clock is the monotonic time source the timing engine is built on. It is
// an external collaborator: the client never reads the wall clock or an
// OS-specific monotonic API directly.
type Clock interface {
	Now() Tick
}

// OneShotTimer is a single, reusable, one-shot timer bound to a single fire
// callback for its lifetime. SetAt/Unset may be called any number of times;
// each call replaces whatever expiration was previously armed.
type OneShotTimer interface {
	// SetAt arms the timer to invoke its fire callback once, no earlier
	// than the moment the clock reaches `at`.
	SetAt(at Tick)
	// Unset disarms the timer. Safe to call when already disarmed.
	Unset()
}

// Platform bundles the two monotonic-time primitives the timing engine
// depends on: a clock, and a factory for one-shot timers bound to it.
type Platform interface {
	Clock
	// NewTimer creates a OneShotTimer that invokes fire when it expires.
	// fire is called from whatever goroutine the platform's timer
	// implementation uses internally; it must be safe to call at any
	// time and should do nothing more than notify the client.
	NewTimer(fire func()) OneShotTimer
}

// MaxTimerSeconds is the largest interval the timing engine will ever arm
// the timer for in one shot. A real embedded monotonic clock only has a
// limited span before wraparound makes a single far-future deadline
// ambiguous; leases, renewal windows and rebinding windows routinely run
// for hours or days, well past that span. The timing engine copes by
// decomposing long waits into a sequence of sub-MaxTimerSeconds arm/fire
// cycles (see (*Client).armToward), re-deriving the remaining time from
// the absolute clock at each fire rather than trusting accumulated
// intervals, so missed wakeups never cause drift.
//
// The value below is chosen well above the floor of 255 seconds the
// decomposition logic requires, but still small enough that ordinary
// multi-hour renewal and rebinding windows exercise the decomposition path
// rather than fitting in a single timer arming.
const MaxTimerSeconds uint32 = 3600

func init() {
	if MaxTimerSeconds < 255 {
		panic("dhcp4client: MaxTimerSeconds must be at least 255")
	}
}

// defaultRenewTime returns the RFC 2131-recommended default renewal time
// when the server did not supply option 58.
func defaultRenewTime(leaseTimeS uint32) uint32 {
	return leaseTimeS / 2
}

// defaultRebindingTime returns the RFC 2131-recommended default rebinding
// time when the server did not supply option 59.
func defaultRebindingTime(leaseTimeS uint32) uint32 {
	return uint32(uint64(leaseTimeS) * 7 / 8)
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
