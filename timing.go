package dhcp4client

// timingEngine wraps a single platform OneShotTimer, adding the bookkeeping
// the state machine needs: the instant the timer was last armed for
// (lastSetTime), and second-granularity convenience arming relative to now.
type timingEngine struct {
	clock   Clock
	timer   OneShotTimer
	setTime Tick
	armed   bool
}

func newTimingEngine(p Platform, fire func()) *timingEngine {
	e := &timingEngine{clock: p}
	e.timer = p.NewTimer(fire)
	return e
}

// now returns the current tick.
func (e *timingEngine) now() Tick {
	return e.clock.Now()
}

// setAt arms the timer for the given absolute tick.
func (e *timingEngine) setAt(at Tick) {
	e.timer.SetAt(at)
	e.setTime = at
	e.armed = true
}

// setAfter arms the timer for `seconds` from now. seconds must not exceed
// MaxTimerSeconds; callers that need longer waits must decompose them (see
// (*Client).armToward).
func (e *timingEngine) setAfter(seconds uint32) {
	e.setAt(e.now() + Tick(seconds))
}

// unset disarms the timer.
func (e *timingEngine) unset() {
	e.timer.Unset()
	e.armed = false
}

// lastSetTime returns the instant the timer was last armed for, regardless
// of whether it has since fired.
func (e *timingEngine) lastSetTime() Tick {
	return e.setTime
}
