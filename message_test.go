package dhcp4client

import (
	"net"
	"testing"

	"github.com/krolaw/dhcp4"
)

func TestBuildDiscoverIsWellFormed(t *testing.T) {
	c := &Client{
		cfg:  DefaultConfig(),
		link: fakeLink{mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
		xid:  0xdeadbeef,
	}

	pkt := c.buildDiscover()

	if dhcp4.OpCode(pkt[0]) != dhcp4.BootRequest {
		t.Errorf("op = %d, want BootRequest", pkt[0])
	}
	if !pkt.Broadcast() {
		t.Error("DISCOVER must set the broadcast flag")
	}
	opts := pkt.ParseOptions()
	if dhcp4.MessageType(opts[dhcp4.OptionDHCPMessageType][0]) != dhcp4.Discover {
		t.Error("message type option is not Discover")
	}
	if xidUint32(pkt.XId()) != c.xid {
		t.Error("xid round-trip mismatch")
	}
}

func TestBuildRequestRenewingIsUnicastWithCIAddr(t *testing.T) {
	c := &Client{
		cfg:   DefaultConfig(),
		link:  fakeLink{mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
		xid:   1,
		state: StateRenewing,
		info:  LeaseInfo{IPAddress: net.IPv4(192, 0, 2, 10)},
	}

	pkt := c.buildRequest()

	if pkt.Broadcast() {
		t.Error("RENEWING REQUEST must not set the broadcast flag")
	}
	if !pkt.CIAddr().Equal(c.info.IPAddress) {
		t.Errorf("ciaddr = %v, want %v", pkt.CIAddr(), c.info.IPAddress)
	}
	opts := pkt.ParseOptions()
	if _, ok := opts[dhcp4.OptionServerIdentifier]; ok {
		t.Error("RENEWING REQUEST must not carry a server identifier option")
	}
}

func TestBuildRequestRequestingCarriesRequestedIPAndServerID(t *testing.T) {
	c := &Client{
		cfg:   DefaultConfig(),
		link:  fakeLink{mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
		xid:   1,
		state: StateRequesting,
		info: LeaseInfo{
			IPAddress:        net.IPv4(192, 0, 2, 10),
			ServerIdentifier: net.IPv4(192, 0, 2, 1),
		},
	}

	pkt := c.buildRequest()
	opts := pkt.ParseOptions()

	if !net.IP(opts[dhcp4.OptionRequestedIPAddress]).Equal(c.info.IPAddress) {
		t.Error("requested IP address option missing or wrong")
	}
	if !net.IP(opts[dhcp4.OptionServerIdentifier]).Equal(c.info.ServerIdentifier) {
		t.Error("server identifier option missing or wrong")
	}
}

func TestBuildDeclineCarriesClientIDButNotVendorClass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientID = []byte("host-1")
	cfg.VendorClassID = []byte("acme-widget")
	c := &Client{
		cfg:  cfg,
		link: fakeLink{mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
		xid:  1,
		info: LeaseInfo{
			IPAddress:        net.IPv4(192, 0, 2, 10),
			ServerIdentifier: net.IPv4(192, 0, 2, 1),
		},
	}

	pkt := c.buildDecline()
	opts := pkt.ParseOptions()

	if dhcp4.MessageType(opts[dhcp4.OptionDHCPMessageType][0]) != dhcp4.Decline {
		t.Error("message type option is not Decline")
	}
	if string(opts[dhcp4.OptionClientIdentifier]) != string(cfg.ClientID) {
		t.Error("DECLINE must carry the configured client identifier")
	}
	if _, ok := opts[dhcp4.OptionVendorClassIdentifier]; ok {
		t.Error("DECLINE must not carry a vendor class identifier")
	}
}

func TestDecodeMessageRejectsForeignXID(t *testing.T) {
	c := &Client{
		cfg:  DefaultConfig(),
		link: fakeLink{mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
		xid:  1,
	}

	raw := serverReply(c, 2, dhcp4.Offer)

	if _, ok := c.decodeMessage(raw); ok {
		t.Error("decodeMessage accepted a message with a foreign xid")
	}
}

func TestDecodeMessageAcceptsWellFormedOffer(t *testing.T) {
	c := &Client{
		cfg:  DefaultConfig(),
		link: fakeLink{mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}},
		xid:  1,
	}

	raw := serverReply(c, 1, dhcp4.Offer)

	msg, ok := c.decodeMessage(raw)
	if !ok {
		t.Fatal("decodeMessage rejected a well-formed OFFER")
	}
	if msg.msgType != dhcp4.Offer {
		t.Errorf("msgType = %v, want Offer", msg.msgType)
	}
	if !msg.yiaddr.Equal(net.IPv4(192, 0, 2, 50)) {
		t.Errorf("yiaddr = %v, want 192.0.2.50", msg.yiaddr)
	}
}

// serverReply builds a BOOTREPLY carrying msgType, addressed to c's
// hardware address and echoing the given xid, with a server identifier
// and offered address so it clears decodeMessage's other sanity checks.
func serverReply(c *Client, xid uint32, msgType dhcp4.MessageType) []byte {
	pkt := dhcp4.NewPacket(dhcp4.BootReply)
	pkt.SetCHAddr(c.link.HardwareAddr())
	pkt.SetXId(xidBytes(xid))
	pkt.SetYIAddr(net.IPv4(192, 0, 2, 50))
	pkt.AddOption(dhcp4.OptionDHCPMessageType, []byte{byte(msgType)})
	pkt.AddOption(dhcp4.OptionServerIdentifier, net.IPv4(192, 0, 2, 1).To4())
	pkt.PadToMinSize()
	return []byte(pkt)
}

type fakeLink struct {
	mac net.HardwareAddr
}

func (f fakeLink) HardwareAddr() net.HardwareAddr { return f.mac }
func (f fakeLink) LinkUp() bool                   { return true }
func (f fakeLink) SendARPQuery(net.IP) error      { return nil }
func (f fakeLink) ObserveARP()                    {}
func (f fakeLink) UnobserveARP()                  {}
