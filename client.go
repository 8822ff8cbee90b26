// Package dhcp4client implements a DHCPv4 client state machine: the
// discover/request/renew protocol automaton (RFC 2131), its retransmission
// and long-interval timer decomposition, ACK/OFFER/NAK validation and
// fix-up, and the ARP-based duplicate-address probe performed before a
// lease is bound.
//
// The client itself never touches a socket, a raw ARP frame or the kernel's
// routing tables. It is driven entirely through the Transport, LinkAdapter,
// Configurator and Platform interfaces, so the same state machine runs
// unmodified against a real network stack or an in-memory fake in tests.
package dhcp4client

import (
	"net"
	"sync"
)

// Client drives a single Ethernet interface through the DHCP client state
// machine. All of its internal state is owned by one goroutine (see run);
// every exported method is safe to call from any goroutine because it only
// ever hands a loopEvent to that goroutine's channel.
type Client struct {
	cfg       Config
	transport Transport
	link      LinkAdapter
	iface     Configurator
	handler   EventHandler

	timer *timingEngine

	events    chan loopEvent
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Everything below is only ever read or written from run's goroutine.
	state State
	xid   uint32

	// xidRetransmitCount counts DISCOVER retransmits sent with the current
	// XID while SELECTING; it resets and regenerates the XID every
	// XidReuseMax sends.
	xidRetransmitCount uint8
	// rtxTimeout is the current retransmission timeout in seconds, used by
	// the doubling backoff outside RENEWING/REBINDING.
	rtxTimeout uint8
	// requestCount counts REQUESTs sent in REQUESTING/REBOOTING, or ARP
	// queries sent in CHECKING; only one of those states is ever active at
	// a time so a single counter mirrors the source's reused field.
	requestCount uint8

	// leaseAnchor is the tick the request that produced the current or
	// pending lease was first sent; leaseElapsed() is always derived from
	// it rather than accumulated, so a late or missed timer fire can never
	// cause drift.
	leaseAnchor Tick
	// requestSendTime is the tick the most recently (re)transmitted
	// REQUEST was sent, used to detect an implausibly late ACK.
	requestSendTime Tick
	// nextActionElapsed is the leaseElapsed() value at which the next
	// meaningful action (a RENEWING/REBINDING retransmit, or a state
	// transition) is due; timer fires short of it, caused by the
	// MaxTimerSeconds cap, just rearm without acting.
	nextActionElapsed uint32

	// rememberedIP is the address to attempt in REBOOTING on the next link
	// up: the configured RequestIPAddress until a lease is ever bound,
	// then whatever address was most recently bound. dropLease clears it
	// whenever an attempt is abandoned or a lease is lost, after which the
	// next link up goes straight to discovery.
	rememberedIP net.IP

	info          LeaseInfo
	configApplied bool
}

// New constructs a Client bound to the given interface collaborators. If
// the link is already up, discovery (or, if cfg.RequestIPAddress is set,
// the REBOOTING attempt) begins immediately; otherwise the client starts in
// StateLinkDown and waits for a HandleLinkChange(true) call.
func New(cfg Config, transport Transport, link LinkAdapter, iface Configurator, platform Platform, handler EventHandler) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		transport: transport,
		link:      link,
		iface:     iface,
		handler:   handler,
		events:    make(chan loopEvent, 32),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	c.timer = newTimingEngine(platform, c.onTimerFire)
	c.rememberedIP = cfg.RequestIPAddress

	if link.LinkUp() {
		c.startDiscoveryOrRebooting()
	} else {
		c.state = StateLinkDown
	}

	go c.run()

	return c, nil
}

// Close stops the client's event loop and withdraws any interface
// configuration it applied. It does not notify the server: DHCPRELEASE is
// an explicit protocol action, not something an ungraceful shutdown implies
// (RFC 2131 imposes no obligation to send one).
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.stopped

	if c.configApplied {
		c.iface.Clear()
		c.configApplied = false
	}
	c.timer.unset()
	if c.state == StateChecking {
		c.link.UnobserveARP()
	}
	c.transport.CancelRetry()

	return nil
}

// HasLease reports whether an IPv4 address lease is currently active
// (state is BOUND, RENEWING or REBINDING).
func (c *Client) HasLease() bool {
	return c.query().hasLease
}

// Lease returns a snapshot of the current lease and whether one is active.
// The returned LeaseInfo is a defensive copy; mutating it has no effect on
// the client.
func (c *Client) Lease() (LeaseInfo, bool) {
	r := c.query()
	return r.info, r.hasLease
}

func (c *Client) query() queryStateResult {
	reply := make(chan queryStateResult, 1)
	select {
	case c.events <- queryStateEvent{reply}:
	case <-c.stopped:
		return queryStateResult{}
	}
	select {
	case r := <-reply:
		return r
	case <-c.stopped:
		return queryStateResult{}
	}
}

// HandleDatagram delivers a DHCP datagram received from src to the state
// machine. Transport implementations call this from their receive loop.
func (c *Client) HandleDatagram(src net.IP, payload []byte) {
	c.enqueue(datagramEvent{src: src, payload: payload})
}

// HandleARPObservation delivers an observed ARP reply (ip is-at mac) to the
// state machine. LinkAdapter implementations call this while ObserveARP is
// active.
func (c *Client) HandleARPObservation(ip net.IP, mac net.HardwareAddr) {
	c.enqueue(arpObservedEvent{ip: ip, mac: mac})
}

// HandleLinkChange notifies the state machine that link carrier state has
// changed. LinkAdapter implementations call this whenever the interface's
// link-up status flips.
func (c *Client) HandleLinkChange(up bool) {
	c.enqueue(linkChangedEvent{up: up})
}

func (c *Client) onTimerFire() {
	c.enqueue(timerFiredEvent{})
}

// requestRetry is passed to the transport as the retry callback covering
// whatever message was most recently sent.
func (c *Client) requestRetry() {
	c.enqueue(retryRequestedEvent{})
}

func (c *Client) enqueue(e loopEvent) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *Client) run() {
	defer close(c.stopped)
	for {
		select {
		case e := <-c.events:
			c.dispatch(e)
		case <-c.done:
			return
		}
	}
}

func (c *Client) dispatch(e loopEvent) {
	switch ev := e.(type) {
	case timerFiredEvent:
		c.handleTimer()
	case datagramEvent:
		c.handleDatagram(ev.src, ev.payload)
	case arpObservedEvent:
		c.handleARP(ev.ip, ev.mac)
	case linkChangedEvent:
		c.handleLinkChange(ev.up)
	case retryRequestedEvent:
		c.handleRetry()
	case queryStateEvent:
		ev.reply <- queryStateResult{hasLease: c.state.hasLease(), info: c.info.clone()}
	}
}

// newXID derives a fresh transaction ID from the low bits of the monotonic
// clock, matching an implementation with no hardware RNG available.
func (c *Client) newXID() uint32 {
	return uint32(c.timer.now())
}

func (c *Client) emit(ev Event) {
	if c.handler != nil {
		c.handler(ev)
	}
}
