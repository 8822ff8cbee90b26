// Package linkarp implements the DHCP client's LinkAdapter collaborator: it
// exposes the interface's MAC address and carrier state, and drives the
// duplicate-address ARP probe via github.com/mdlayher/arp, the same library
// the rest of the retrieval pack uses for raw ARP client/server work.
package linkarp

import (
	"net"
	"sync"
	"time"

	"github.com/mdlayher/arp"
	"github.com/vishvananda/netlink"
)

// Adapter is a LinkAdapter bound to a single Ethernet interface.
type Adapter struct {
	iface *net.Interface
	link  netlink.Link

	client *arp.Client

	deliver func(ip net.IP, mac net.HardwareAddr)
	linkUp  func(up bool)

	mu         sync.Mutex
	observing  bool
	observeGen int
}

// New opens an ARP client on iface and begins watching its link-state.
// deliver is called for every observed ARP reply while ObserveARP is
// active; onLinkChange is called whenever carrier state flips, typically
// (*dhcp4client.Client).HandleARPObservation and HandleLinkChange.
func New(iface *net.Interface, deliver func(net.IP, net.HardwareAddr), onLinkChange func(bool)) (*Adapter, error) {
	client, err := arp.Dial(iface)
	if err != nil {
		return nil, err
	}

	link, err := netlink.LinkByName(iface.Name)
	if err != nil {
		client.Close()
		return nil, err
	}

	a := &Adapter{
		iface:   iface,
		link:    link,
		client:  client,
		deliver: deliver,
		linkUp:  onLinkChange,
	}
	go a.watchLink()
	return a, nil
}

func (a *Adapter) watchLink() {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return
	}
	for u := range updates {
		if u.Link.Attrs().Index != a.link.Attrs().Index {
			continue
		}
		a.linkUp(u.Attrs().OperState == netlink.OperUp)
	}
}

// HardwareAddr implements dhcp4client.LinkAdapter.
func (a *Adapter) HardwareAddr() net.HardwareAddr {
	return a.iface.HardwareAddr
}

// LinkUp implements dhcp4client.LinkAdapter.
func (a *Adapter) LinkUp() bool {
	link, err := netlink.LinkByName(a.iface.Name)
	if err != nil {
		return false
	}
	return link.Attrs().OperState == netlink.OperUp
}

// SendARPQuery implements dhcp4client.LinkAdapter.
func (a *Adapter) SendARPQuery(ip net.IP) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	return a.client.Request(ip4)
}

// ObserveARP implements dhcp4client.LinkAdapter.
func (a *Adapter) ObserveARP() {
	a.mu.Lock()
	if a.observing {
		a.mu.Unlock()
		return
	}
	a.observing = true
	a.observeGen++
	gen := a.observeGen
	a.mu.Unlock()

	go a.readLoop(gen)
}

// UnobserveARP implements dhcp4client.LinkAdapter.
func (a *Adapter) UnobserveARP() {
	a.mu.Lock()
	a.observing = false
	a.observeGen++
	a.mu.Unlock()
}

func (a *Adapter) readLoop(gen int) {
	for {
		a.client.SetReadDeadline(time.Now().Add(time.Second))
		pkt, _, err := a.client.Read()

		a.mu.Lock()
		stillObserving := a.observing && a.observeGen == gen
		a.mu.Unlock()
		if !stillObserving {
			return
		}
		if err != nil {
			continue
		}
		if pkt.Operation != arp.OperationReply {
			continue
		}
		a.deliver(pkt.SenderIP, pkt.SenderHardwareAddr)
	}
}

// Close releases the ARP client.
func (a *Adapter) Close() error {
	return a.client.Close()
}
