package dhcp4client

import "net"

var (
	loopbackNet    = &net.IPNet{IP: net.IPv4(127, 0, 0, 0).To4(), Mask: net.CIDRMask(8, 32)}
	multicastNet   = &net.IPNet{IP: net.IPv4(224, 0, 0, 0).To4(), Mask: net.CIDRMask(4, 32)}
	allOnesAddress = net.IPv4bcast
)

// checkOfferedAddress applies the sanity checks common to OFFER and ACK
// processing: the address must not be all-zeros, the broadcast address, a
// loopback address, or a multicast address.
func checkOfferedAddress(addr net.IP) bool {
	addr = addr.To4()
	if addr == nil {
		return false
	}
	if addr.IsUnspecified() || addr.Equal(allOnesAddress) {
		return false
	}
	if loopbackNet.Contains(addr) {
		return false
	}
	if multicastNet.Contains(addr) {
		return false
	}
	return true
}

// isSaneMask reports whether mask is "k ones followed by zeros". net.IPMask
// returns bits == 0 from Size for any non-canonical mask, so a successful
// 32-bit parse is exactly the property we need.
func isSaneMask(mask net.IPMask) bool {
	_, bits := mask.Size()
	return bits == 32
}

// classfulDefaultMask returns the classful subnet mask RFC 2131's
// implementers historically fell back to when a server omitted option 1,
// or nil if addr falls in a range with no sane classful default (class D
// or E).
func classfulDefaultMask(addr net.IP) net.IPMask {
	addr = addr.To4()
	switch {
	case addr[0] < 128:
		return net.CIDRMask(8, 32)
	case addr[0] < 192:
		return net.CIDRMask(16, 32)
	case addr[0] < 224:
		return net.CIDRMask(24, 32)
	default:
		return nil
	}
}

// localBroadcast returns the directed broadcast address for addr under
// mask.
func localBroadcast(addr net.IP, mask net.IPMask) net.IP {
	addr = addr.To4()
	out := make(net.IP, 4)
	for i := range out {
		out[i] = addr[i] | ^mask[i]
	}
	return out
}

func sameSubnet(a, b net.IP, mask net.IPMask) bool {
	a, b = a.To4(), b.To4()
	for i := range mask {
		if a[i]&mask[i] != b[i]&mask[i] {
			return false
		}
	}
	return true
}

// checkAndFixupAck validates an ACK's option set and supplies the defaults
// and clamps described in the ACK validation & fix-up pipeline: a
// classful subnet mask if none was given, default renewal/rebinding times
// derived from the lease time, and a router option dropped (not rejected)
// if it falls outside the leased subnet. It mutates opts in place and
// returns false if the ACK must be rejected outright.
func checkAndFixupAck(addr net.IP, opts *parsedOptions) bool {
	if !checkOfferedAddress(addr) {
		return false
	}
	if !opts.haveLease {
		return false
	}

	if !opts.haveMask {
		mask := classfulDefaultMask(addr)
		if mask == nil {
			return false
		}
		opts.subnetMask = mask
		opts.haveMask = true
	}

	if !isSaneMask(opts.subnetMask) {
		return false
	}

	if addr.To4().Equal(localBroadcast(addr, opts.subnetMask)) {
		return false
	}

	if opts.haveRouter && !sameSubnet(opts.router, addr, opts.subnetMask) {
		opts.haveRouter = false
	}

	if !opts.haveRenewal {
		opts.renewalTimeS = defaultRenewTime(opts.leaseTimeS)
	}
	opts.renewalTimeS = minU32(opts.leaseTimeS, opts.renewalTimeS)

	if !opts.haveRebinding {
		opts.rebindingTimeS = defaultRebindingTime(opts.leaseTimeS)
	}
	opts.rebindingTimeS = maxU32(opts.renewalTimeS, minU32(opts.leaseTimeS, opts.rebindingTimeS))

	return true
}
