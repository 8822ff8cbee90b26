package dhcp4client

import (
	"net"

	"github.com/krolaw/dhcp4"
)

// leaseElapsed returns the number of seconds since the request that
// produced the current or pending lease was first sent, derived from the
// absolute clock rather than accumulated, so a late or missed timer fire
// never causes drift.
func (c *Client) leaseElapsed() uint32 {
	d := TicksUntil(c.leaseAnchor, c.timer.now())
	if d < 0 {
		return 0
	}
	return uint32(d)
}

func diffOrZero(target, elapsed uint32) uint32 {
	if target <= elapsed {
		return 0
	}
	return target - elapsed
}

// armToward arms the timer for the lesser of the remaining time to
// targetElapsed and MaxTimerSeconds. Waits longer than the timer's span are
// covered by a sequence of these sub-MaxTimerSeconds fires that just
// re-derive leaseElapsed and rearm, until the real target is reached.
func (c *Client) armToward(targetElapsed uint32) {
	remaining := diffOrZero(targetElapsed, c.leaseElapsed())
	if remaining > MaxTimerSeconds {
		remaining = MaxTimerSeconds
	}
	c.timer.setAfter(remaining)
}

// nextRtx doubles cur, capped at max.
func nextRtx(cur, max uint8) uint8 {
	next := uint16(cur) * 2
	if next > uint16(max) || next == 0 {
		return max
	}
	return uint8(next)
}

// --- link state ---

func (c *Client) handleLinkChange(up bool) {
	if up {
		if c.state != StateLinkDown {
			return
		}
		c.startDiscoveryOrRebooting()
		return
	}

	if c.state == StateLinkDown {
		return
	}

	hadLease := c.state.hasLease()
	if c.state == StateChecking {
		c.link.UnobserveARP()
	}
	c.transport.CancelRetry()
	c.timer.unset()
	if c.configApplied {
		c.iface.Clear()
		c.configApplied = false
	}
	c.state = StateLinkDown
	if hadLease {
		c.emit(LinkDown)
	}
}

func (c *Client) startDiscoveryOrRebooting() {
	if c.rememberedIP != nil {
		c.startRebooting()
	} else {
		c.startDiscovery(true)
	}
}

// --- SELECTING ---

func (c *Client) startDiscovery(newXid bool) {
	c.state = StateSelecting
	if newXid {
		c.xid = c.newXID()
	}
	c.xidRetransmitCount = 0
	c.rtxTimeout = c.cfg.BaseRtxTimeoutSeconds
	c.info = LeaseInfo{}
	c.sendDiscover()
	c.timer.setAfter(uint32(c.rtxTimeout))
}

func (c *Client) sendDiscover() {
	c.transport.CancelRetry()
	c.transport.SetRetry(c.requestRetry)
	pkt := c.buildDiscover()
	_ = c.transport.Broadcast(net.IPv4zero, []byte(pkt))
}

func (c *Client) retransmitSelecting() {
	c.xidRetransmitCount++
	if c.xidRetransmitCount >= c.cfg.XidReuseMax {
		c.xid = c.newXID()
		c.xidRetransmitCount = 0
	}
	c.rtxTimeout = nextRtx(c.rtxTimeout, c.cfg.MaxRtxTimeoutSeconds)
	c.sendDiscover()
	c.timer.setAfter(uint32(c.rtxTimeout))
}

// --- REBOOTING ---

func (c *Client) startRebooting() {
	c.state = StateRebooting
	c.xid = c.newXID()
	c.requestCount = 0
	c.rtxTimeout = c.cfg.BaseRtxTimeoutSeconds
	c.info = LeaseInfo{IPAddress: c.rememberedIP}
	c.leaseAnchor = c.timer.now()
	c.sendRequest()
	c.timer.setAfter(uint32(c.rtxTimeout))
}

func (c *Client) retransmitRebooting() {
	c.requestCount++
	if c.requestCount >= c.cfg.MaxRebootRequests {
		c.giveUpAndDiscover()
		return
	}
	c.rtxTimeout = nextRtx(c.rtxTimeout, c.cfg.MaxRtxTimeoutSeconds)
	c.sendRequest()
	c.timer.setAfter(uint32(c.rtxTimeout))
}

// --- REQUESTING ---

func (c *Client) goRequesting(offer decodedMessage) {
	c.state = StateRequesting
	c.requestCount = 0
	c.rtxTimeout = c.cfg.BaseRtxTimeoutSeconds
	c.info.IPAddress = offer.yiaddr
	c.info.ServerIdentifier = offer.opts.serverIdentifier
	c.leaseAnchor = c.timer.now()
	c.sendRequest()
	c.timer.setAfter(uint32(c.rtxTimeout))
}

func (c *Client) retransmitRequesting() {
	c.requestCount++
	if c.requestCount >= c.cfg.MaxRequests {
		c.giveUpAndDiscover()
		return
	}
	c.rtxTimeout = nextRtx(c.rtxTimeout, c.cfg.MaxRtxTimeoutSeconds)
	c.sendRequest()
	c.timer.setAfter(uint32(c.rtxTimeout))
}

// sendRequest transmits (or retransmits) the current state's REQUEST,
// choosing source address and destination per section 6: broadcast with a
// zero ciaddr in REQUESTING/REBOOTING, broadcast with the lease ciaddr in
// REBINDING, unicast to the leasing server with the lease ciaddr in
// RENEWING.
func (c *Client) sendRequest() {
	c.transport.CancelRetry()
	c.transport.SetRetry(c.requestRetry)
	pkt := c.buildRequest()
	c.requestSendTime = c.timer.now()
	raw := []byte(pkt)

	switch c.state {
	case StateRenewing:
		_ = c.transport.Unicast(c.info.IPAddress, c.info.ServerIdentifier, raw)
	case StateRebinding:
		_ = c.transport.Broadcast(c.info.IPAddress, raw)
	default: // StateRequesting, StateRebooting
		_ = c.transport.Broadcast(net.IPv4zero, raw)
	}
}

// --- RESETTING ---

func (c *Client) goResetting() {
	c.state = StateResetting
	c.transport.CancelRetry()
	c.timer.setAfter(uint32(c.cfg.ResetTimeoutSeconds))
}

// giveUpAndDiscover abandons whatever acquisition/renewal attempt is in
// progress and restarts from DISCOVER, reporting LeaseLost if a lease was
// active.
func (c *Client) giveUpAndDiscover() {
	hadLease := c.state.hasLease()
	c.dropLease()
	c.startDiscovery(true)
	if hadLease {
		c.emit(LeaseLost)
	}
}

func (c *Client) dropLease() {
	if c.configApplied {
		c.iface.Clear()
		c.configApplied = false
	}
	c.info = LeaseInfo{}
	c.rememberedIP = nil
}

// --- CHECKING ---

func (c *Client) goChecking() {
	c.state = StateChecking
	c.requestCount = 0
	c.transport.CancelRetry()
	c.link.ObserveARP()
	c.sendArpQuery()
}

func (c *Client) sendArpQuery() {
	c.requestCount++
	_ = c.link.SendARPQuery(c.info.IPAddress)
	c.timer.setAfter(uint32(c.cfg.ArpResponseTimeoutSeconds))
}

func (c *Client) checkingTimerFired() {
	if c.requestCount >= c.cfg.NumArpQueries {
		c.link.UnobserveARP()
		c.bindLease(LeaseObtained)
		return
	}
	c.sendArpQuery()
}

func (c *Client) handleARP(ip net.IP, mac net.HardwareAddr) {
	if c.state != StateChecking {
		return
	}
	if !ip.Equal(c.info.IPAddress) {
		return
	}
	c.sendDecline()
	c.link.UnobserveARP()
	c.goResetting()
}

func (c *Client) sendDecline() {
	c.transport.CancelRetry()
	pkt := c.buildDecline()
	_ = c.transport.Broadcast(net.IPv4zero, []byte(pkt))
}

// --- BOUND / RENEWING / REBINDING ---

// bindLease installs the current lease's address and gateway and arms the
// renewal timer, decomposed via armToward if the renewal window exceeds
// MaxTimerSeconds.
func (c *Client) bindLease(ev Event) {
	c.state = StateBound
	c.rememberedIP = c.info.IPAddress
	c.requestCount = 0

	var gateway net.IP
	if c.info.HaveRouter {
		gateway = c.info.Router
	}
	_ = c.iface.Apply(c.info.IPAddress, c.info.PrefixLen(), gateway)
	c.configApplied = true

	c.nextActionElapsed = c.info.RenewalTimeSeconds
	c.armToward(c.nextActionElapsed)
	c.emit(ev)
}

func (c *Client) boundTimerFired() {
	if c.leaseElapsed() >= c.info.RenewalTimeSeconds {
		c.goRenewing()
		return
	}
	c.armToward(c.nextActionElapsed)
}

func (c *Client) goRenewing() {
	c.state = StateRenewing
	c.sendRequest()
	c.scheduleRenewal(c.info.RebindingTimeSeconds)
}

func (c *Client) renewingTimerFired() {
	elapsed := c.leaseElapsed()
	if elapsed >= c.info.RebindingTimeSeconds {
		c.goRebinding()
		return
	}
	if elapsed >= c.nextActionElapsed {
		c.sendRequest()
		c.scheduleRenewal(c.info.RebindingTimeSeconds)
		return
	}
	c.armToward(c.nextActionElapsed)
}

func (c *Client) goRebinding() {
	c.state = StateRebinding
	c.sendRequest()
	c.scheduleRenewal(c.info.LeaseTimeSeconds)
}

func (c *Client) rebindingTimerFired() {
	elapsed := c.leaseElapsed()
	if elapsed >= c.info.LeaseTimeSeconds {
		c.handleExpiredLease()
		return
	}
	if elapsed >= c.nextActionElapsed {
		c.sendRequest()
		c.scheduleRenewal(c.info.LeaseTimeSeconds)
		return
	}
	c.armToward(c.nextActionElapsed)
}

// scheduleRenewal picks the next RENEWING/REBINDING retransmit instant per
// the max(MinRenewRtxTimeoutSeconds, time_to_next_state/2) schedule and
// records it as nextActionElapsed, then arms the timer toward it (possibly
// via several sub-MaxTimerSeconds fires).
func (c *Client) scheduleRenewal(boundaryElapsed uint32) {
	elapsed := c.leaseElapsed()
	timeToBoundary := diffOrZero(boundaryElapsed, elapsed)

	interval := timeToBoundary / 2
	if interval < uint32(c.cfg.MinRenewRtxTimeoutSeconds) {
		interval = uint32(c.cfg.MinRenewRtxTimeoutSeconds)
	}
	if interval > timeToBoundary {
		interval = timeToBoundary
	}

	c.nextActionElapsed = elapsed + interval
	c.armToward(c.nextActionElapsed)
}

func (c *Client) handleExpiredLease() {
	c.dropLease()
	c.startDiscovery(true)
	c.emit(LeaseLost)
}

// --- timer dispatch ---

func (c *Client) handleTimer() {
	switch c.state {
	case StateLinkDown:
		// The timer is unset in LINK_DOWN; a stray fire is ignored.
	case StateResetting:
		c.startDiscoveryOrRebooting()
	case StateRebooting:
		c.retransmitRebooting()
	case StateSelecting:
		c.retransmitSelecting()
	case StateRequesting:
		c.retransmitRequesting()
	case StateChecking:
		c.checkingTimerFired()
	case StateBound:
		c.boundTimerFired()
	case StateRenewing:
		c.renewingTimerFired()
	case StateRebinding:
		c.rebindingTimerFired()
	}
}

// --- send-retry ---

func (c *Client) handleRetry() {
	switch c.state {
	case StateSelecting:
		c.sendDiscover()
	case StateRequesting, StateRenewing, StateRebinding, StateRebooting:
		c.sendRequest()
	}
}

// --- receive path ---

func (c *Client) handleDatagram(src net.IP, payload []byte) {
	msg, ok := c.decodeMessage(payload)
	if !ok {
		return
	}

	switch msg.msgType {
	case dhcp4.Offer:
		if c.state != StateSelecting {
			return
		}
		c.handleOffer(msg)
	case dhcp4.ACK:
		if !c.state.expectingReply() {
			return
		}
		c.handleAck(src, msg)
	case dhcp4.NAK:
		if !c.state.expectingReply() {
			return
		}
		c.handleNak(msg)
	}
}

func (c *Client) handleOffer(msg decodedMessage) {
	if !checkOfferedAddress(msg.yiaddr) {
		return
	}
	c.goRequesting(msg)
}

func (c *Client) handleNak(msg decodedMessage) {
	if c.state == StateRequesting {
		if !msg.opts.serverIdentifier.Equal(c.info.ServerIdentifier) {
			return
		}
		c.goResetting()
		return
	}
	c.giveUpAndDiscover()
}

func (c *Client) handleAck(src net.IP, msg decodedMessage) {
	opts := msg.opts
	addr := msg.yiaddr

	if !checkAndFixupAck(addr, &opts) {
		return
	}

	switch c.state {
	case StateRequesting:
		if !addr.Equal(c.info.IPAddress) || !opts.serverIdentifier.Equal(c.info.ServerIdentifier) {
			return
		}
	case StateRenewing, StateRebinding:
		elapsed := c.leaseElapsed()
		sentElapsed := uint32(TicksUntil(c.leaseAnchor, c.requestSendTime))
		if elapsed > sentElapsed && elapsed-sentElapsed > MaxTimerSeconds {
			return
		}
	case StateRebooting:
		// No extra checks: the server is free to assign a different
		// address than the one we asked to reboot into.
	default:
		return
	}

	c.applyAck(src, addr, opts)
}

func (c *Client) applyAck(src net.IP, addr net.IP, opts parsedOptions) {
	c.info.IPAddress = addr
	c.info.ServerIdentifier = opts.serverIdentifier
	c.info.ServerAddr = src
	c.info.LeaseTimeSeconds = opts.leaseTimeS
	c.info.RenewalTimeSeconds = opts.renewalTimeS
	c.info.RebindingTimeSeconds = opts.rebindingTimeS
	c.info.SubnetMask = opts.subnetMask
	c.info.HaveRouter = opts.haveRouter
	c.info.Router = opts.router
	c.info.DNSServers = opts.dnsServers

	switch c.state {
	case StateRequesting:
		c.goChecking()
	case StateRenewing, StateRebinding:
		c.leaseAnchor = c.requestSendTime
		c.bindLease(LeaseRenewed)
	case StateRebooting:
		c.leaseAnchor = c.requestSendTime
		c.bindLease(LeaseObtained)
	}
}
