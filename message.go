package dhcp4client

import (
	"net"

	"github.com/krolaw/dhcp4"
)

// DhcpClientPort and DhcpServerPort are the well-known UDP ports DHCPv4
// runs over (RFC 2131 section 1).
const (
	DhcpClientPort = 68
	DhcpServerPort = 67
)

// dhcpMagicCookie is the four bytes that must immediately precede the
// options area (RFC 2131 section 3).
var dhcpMagicCookie = [4]byte{0x63, 0x82, 0x53, 0x63}

const (
	dhcpHeaderFixedSize = 236 // op..file, before the magic cookie
	dhcpHeaderSize      = dhcpHeaderFixedSize + 4
	htypeEthernet       = 1
	hlenEthernet        = 6

	declineMessageText = "ArpResponse"
)

// buildDiscover assembles a DHCPDISCOVER, RFC 2131 table 3.
func (c *Client) buildDiscover() dhcp4.Packet {
	pkt := dhcp4.NewPacket(dhcp4.BootRequest)
	pkt.SetCHAddr(c.link.HardwareAddr())
	pkt.SetXId(xidBytes(c.xid))
	pkt.SetBroadcast(true)

	c.addCommonOptions(&pkt, dhcp4.Discover)
	pkt.PadToMinSize()
	return pkt
}

// buildRequest assembles a DHCPREQUEST appropriate to the current state:
// unicast-with-ciaddr while renewing, broadcast-with-ciaddr while rebinding,
// and broadcast-with-requested-ip (zero ciaddr) while requesting or
// rebooting (RFC 2131 section 4.3.2).
func (c *Client) buildRequest() dhcp4.Packet {
	pkt := dhcp4.NewPacket(dhcp4.BootRequest)
	pkt.SetCHAddr(c.link.HardwareAddr())
	pkt.SetXId(xidBytes(c.xid))

	switch c.state {
	case StateRequesting, StateRebooting:
		pkt.SetBroadcast(true)
		pkt.SetCIAddr(net.IPv4zero)
	case StateRenewing:
		pkt.SetBroadcast(false)
		pkt.SetCIAddr(c.info.IPAddress)
	case StateRebinding:
		pkt.SetBroadcast(true)
		pkt.SetCIAddr(c.info.IPAddress)
	}

	c.addCommonOptions(&pkt, dhcp4.Request)

	if c.state == StateRequesting {
		pkt.AddOption(dhcp4.OptionServerIdentifier, c.info.ServerIdentifier.To4())
	}
	if c.state == StateRequesting || c.state == StateRebooting {
		pkt.AddOption(dhcp4.OptionRequestedIPAddress, c.info.IPAddress.To4())
	}

	pkt.PadToMinSize()
	return pkt
}

// buildDecline assembles a DHCPDECLINE reporting an ARP conflict on the
// offered address (RFC 2131 section 4.3.3).
func (c *Client) buildDecline() dhcp4.Packet {
	pkt := dhcp4.NewPacket(dhcp4.BootRequest)
	pkt.SetCHAddr(c.link.HardwareAddr())
	pkt.SetXId(xidBytes(c.xid))
	pkt.SetBroadcast(true)

	pkt.AddOption(dhcp4.OptionDHCPMessageType, []byte{byte(dhcp4.Decline)})
	pkt.AddOption(dhcp4.OptionRequestedIPAddress, c.info.IPAddress.To4())
	pkt.AddOption(dhcp4.OptionServerIdentifier, c.info.ServerIdentifier.To4())
	pkt.AddOption(dhcp4.OptionMessage, []byte(declineMessageText))
	if len(c.cfg.ClientID) > 0 {
		pkt.AddOption(dhcp4.OptionClientIdentifier, c.cfg.ClientID)
	}

	pkt.PadToMinSize()
	return pkt
}

// addCommonOptions writes the options every non-DECLINE message carries:
// message type, parameter request list, max message size, and the
// optionally configured client/vendor identifiers.
func (c *Client) addCommonOptions(pkt *dhcp4.Packet, msgType dhcp4.MessageType) {
	pkt.AddOption(dhcp4.OptionDHCPMessageType, []byte{byte(msgType)})

	pkt.AddOption(dhcp4.OptionParameterRequestList, []byte{
		byte(dhcp4.OptionSubnetMask),
		byte(dhcp4.OptionRouter),
		byte(dhcp4.OptionDomainNameServer),
		byte(dhcp4.OptionIPAddressLeaseTime),
		byte(dhcp4.OptionRenewalTimeValue),
		byte(dhcp4.OptionRebindingTimeValue),
	})

	pkt.AddOption(dhcp4.OptionMaximumDHCPMessageSize, uint16Bytes(maxUDPMessageSize))

	if len(c.cfg.VendorClassID) > 0 {
		pkt.AddOption(dhcp4.OptionVendorClassIdentifier, c.cfg.VendorClassID)
	}
	if len(c.cfg.ClientID) > 0 {
		pkt.AddOption(dhcp4.OptionClientIdentifier, c.cfg.ClientID)
	}
}

// maxUDPMessageSize is advertised via option 57 so servers know they may
// send lease information beyond the 300-odd byte minimum BOOTP size.
const maxUDPMessageSize = 1500

func uint16Bytes(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

func xidBytes(xid uint32) []byte {
	return []byte{byte(xid >> 24), byte(xid >> 16), byte(xid >> 8), byte(xid)}
}

func xidUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// decodedMessage is a DHCP message that has passed the receive-path sanity
// checks of section 4.3: correct op/htype/hlen, matching xid and chaddr,
// correct magic cookie, parseable options, a recognized message type, and a
// present server identifier.
type decodedMessage struct {
	msgType dhcp4.MessageType
	yiaddr  net.IP
	opts    parsedOptions
}

// decodeMessage implements the wire-codec receive path. It returns ok=false
// for anything that must be silently dropped.
func (c *Client) decodeMessage(raw []byte) (decodedMessage, bool) {
	if len(raw) < dhcpHeaderSize {
		return decodedMessage{}, false
	}

	if dhcp4.OpCode(raw[0]) != dhcp4.BootReply {
		return decodedMessage{}, false
	}
	if raw[1] != htypeEthernet || raw[2] != hlenEthernet {
		return decodedMessage{}, false
	}

	pkt := dhcp4.Packet(raw)
	if xidUint32(pkt.XId()) != c.xid {
		return decodedMessage{}, false
	}
	if !macEqual(pkt.CHAddr(), c.link.HardwareAddr()) {
		return decodedMessage{}, false
	}

	var magic [4]byte
	copy(magic[:], raw[dhcpHeaderFixedSize:dhcpHeaderSize])
	if magic != dhcpMagicCookie {
		return decodedMessage{}, false
	}

	opts := parseOptions(pkt.ParseOptions(), c.cfg.MaxDNSServers)
	if !opts.haveType {
		return decodedMessage{}, false
	}
	if opts.messageType != dhcp4.Offer && opts.messageType != dhcp4.ACK && opts.messageType != dhcp4.NAK {
		return decodedMessage{}, false
	}
	if !opts.haveServer {
		return decodedMessage{}, false
	}

	return decodedMessage{
		msgType: opts.messageType,
		yiaddr:  pkt.YIAddr(),
		opts:    opts,
	}, true
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
