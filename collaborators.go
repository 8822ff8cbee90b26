package dhcp4client

import "net"

// Transport is the IPv4/UDP transport adapter the client drives to emit
// DHCP datagrams. It is an external collaborator: everything about socket
// options, routing and retransmit-after-ARP-resolution plumbing lives on
// the other side of this interface.
//
// Received datagrams are not modeled as a Transport method; instead the
// transport implementation calls (*Client).HandleDatagram as messages
// arrive, the same way LinkAdapter implementations push ARP and link-state
// observations into the client.
type Transport interface {
	// Broadcast sends payload to 255.255.255.255:67 using src as the
	// source address (which may be net.IPv4zero, in which case the
	// transport must permit a non-local source address).
	Broadcast(src net.IP, payload []byte) error
	// Unicast sends payload to dst:67 using src as the source address.
	Unicast(src, dst net.IP, payload []byte) error
	// SetRetry registers fn to be invoked once if a future send fails
	// only because ARP resolution of the next-hop is pending. Setting a
	// new callback replaces any previously registered one. Every
	// outbound send must call SetRetry or CancelRetry before it is
	// attempted, so that a stale registration can never fire twice.
	SetRetry(fn func())
	// CancelRetry cancels any pending retry registration. Safe to call
	// when none is pending.
	CancelRetry()
}

// LinkAdapter exposes the Ethernet driver facts and actions the client
// needs: the interface's own hardware address, whether the link currently
// has carrier, and the ability to send/observe ARP traffic for the
// duplicate-address probe. Link-state changes and ARP replies are pushed
// into the client via (*Client).HandleLinkChange and
// (*Client).HandleARPObservation respectively, from whatever goroutine the
// adapter implementation uses to watch the link.
type LinkAdapter interface {
	// HardwareAddr returns the interface's own MAC address.
	HardwareAddr() net.HardwareAddr
	// LinkUp reports whether the link currently has carrier.
	LinkUp() bool
	// SendARPQuery transmits an ARP who-has for ip.
	SendARPQuery(ip net.IP) error
	// ObserveARP begins forwarding ARP replies to the client. Must not be
	// called while already observing.
	ObserveARP()
	// UnobserveARP stops forwarding ARP replies. Safe to call when not
	// observing.
	UnobserveARP()
}

// Configurator applies or withdraws the interface's IPv4 address and
// default gateway on the client's behalf. The client owns this resource
// exclusively: Apply/Clear calls are never concurrent with each other.
type Configurator interface {
	// Apply installs ip/prefixLen as the interface address and, if
	// gateway is non-nil, installs it as the default gateway. A gateway
	// of nil means no default route should be installed. Calling Apply
	// again with different values replaces the previous configuration.
	Apply(ip net.IP, prefixLen int, gateway net.IP) error
	// Clear withdraws both the address and the gateway. Calling Clear
	// when nothing is applied is a no-op.
	Clear() error
}
