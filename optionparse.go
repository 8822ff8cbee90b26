package dhcp4client

import (
	"encoding/binary"
	"net"

	"github.com/krolaw/dhcp4"
)

// parsedOptions is the subset of a decoded DHCP message the state machine
// cares about, extracted from the raw dhcp4.Options map returned by
// dhcp4.Packet.ParseOptions.
type parsedOptions struct {
	messageType dhcp4.MessageType
	haveType    bool

	serverIdentifier net.IP
	haveServer       bool

	leaseTimeS uint32
	haveLease  bool

	renewalTimeS uint32
	haveRenewal  bool

	rebindingTimeS uint32
	haveRebinding  bool

	subnetMask net.IPMask
	haveMask   bool

	router     net.IP
	haveRouter bool

	dnsServers []net.IP
}

// parseOptions extracts the fields the client acts on from a raw options
// map. maxDNSServers truncates the option-6 list to the configured budget,
// mirroring an implementation with fixed inline storage.
func parseOptions(opts dhcp4.Options, maxDNSServers uint8) parsedOptions {
	var out parsedOptions

	if v, ok := opts[dhcp4.OptionDHCPMessageType]; ok && len(v) == 1 {
		out.messageType = dhcp4.MessageType(v[0])
		out.haveType = true
	}

	if v, ok := opts[dhcp4.OptionServerIdentifier]; ok && len(v) == 4 {
		out.serverIdentifier = net.IP(append([]byte(nil), v...))
		out.haveServer = true
	}

	if v, ok := parseUint32(opts, dhcp4.OptionIPAddressLeaseTime); ok {
		out.leaseTimeS = v
		out.haveLease = true
	}

	if v, ok := parseUint32(opts, dhcp4.OptionRenewalTimeValue); ok {
		out.renewalTimeS = v
		out.haveRenewal = true
	}

	if v, ok := parseUint32(opts, dhcp4.OptionRebindingTimeValue); ok {
		out.rebindingTimeS = v
		out.haveRebinding = true
	}

	if v, ok := opts[dhcp4.OptionSubnetMask]; ok && len(v) == 4 {
		out.subnetMask = net.IPMask(append([]byte(nil), v...))
		out.haveMask = true
	}

	if v, ok := opts[dhcp4.OptionRouter]; ok && len(v) >= 4 {
		out.router = net.IP(append([]byte(nil), v[:4]...))
		out.haveRouter = true
	}

	if v, ok := opts[dhcp4.OptionDomainNameServer]; ok {
		out.dnsServers = parseIPList(v, maxDNSServers)
	}

	return out
}

func parseUint32(opts dhcp4.Options, code dhcp4.OptionCode) (uint32, bool) {
	v, ok := opts[code]
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func parseIPList(b []byte, max uint8) []net.IP {
	n := len(b) / 4
	if n == 0 {
		return nil
	}
	if uint8(n) > max {
		n = int(max)
	}
	out := make([]net.IP, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, net.IP(append([]byte(nil), b[i*4:i*4+4]...)))
	}
	return out
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
