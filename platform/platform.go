// Package platform implements the DHCP client's Clock and OneShotTimer
// collaborators on top of the Go runtime's monotonic clock.
package platform

import (
	"sync"
	"time"

	dhcp4client "github.com/lattice-net/dhcp4client"
)

// Real is a Platform backed by time.Now and time.AfterFunc. Tick 0
// corresponds to the moment New is called; ticks are seconds of monotonic
// elapsed time from there, matching the client's assumption of a
// fixed-width, limited-span tick counter.
type Real struct {
	epoch time.Time
}

// New returns a Platform anchored to the current instant.
func New() *Real {
	return &Real{epoch: time.Now()}
}

// Now implements dhcp4client.Clock.
func (r *Real) Now() dhcp4client.Tick {
	return dhcp4client.Tick(uint32(time.Since(r.epoch).Seconds()))
}

// NewTimer implements dhcp4client.Platform.
func (r *Real) NewTimer(fire func()) dhcp4client.OneShotTimer {
	return &timer{platform: r, fire: fire}
}

type timer struct {
	platform *Real
	fire     func()

	mu sync.Mutex
	t  *time.Timer
}

func (t *timer) SetAt(at dhcp4client.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}

	delta := dhcp4client.TicksUntil(t.platform.Now(), at)
	wait := time.Duration(delta) * time.Second
	if wait < 0 {
		wait = 0
	}
	t.t = time.AfterFunc(wait, t.fire)
}

func (t *timer) Unset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}
