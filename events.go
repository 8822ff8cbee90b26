package dhcp4client

// Event identifies one of the four lease-related occurrences the client
// reports to the application. No error is ever raised to the caller
// synchronously; everything user-visible flows through these events.
type Event int

const (
	// LeaseObtained is reported when a new lease is obtained while no
	// previous lease was active.
	LeaseObtained Event = iota
	// LeaseRenewed is reported when a new lease replaces an existing one
	// (the address may or may not have changed).
	LeaseRenewed
	// LeaseLost is reported when an active lease is withdrawn due to
	// timeout or a NAK, but not because the link went down.
	LeaseLost
	// LinkDown is reported when an active lease is withdrawn because the
	// link went down.
	LinkDown
)

func (e Event) String() string {
	switch e {
	case LeaseObtained:
		return "LeaseObtained"
	case LeaseRenewed:
		return "LeaseRenewed"
	case LeaseLost:
		return "LeaseLost"
	case LinkDown:
		return "LinkDown"
	default:
		return "Unknown"
	}
}

// EventHandler receives lease lifecycle notifications. It is invoked from
// the client's single event-loop goroutine as the last observable effect of
// whatever handler triggered it, so it must not block and must not call
// back into the Client synchronously.
type EventHandler func(Event)
