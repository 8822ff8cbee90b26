// Package ifconfig implements the DHCP client's Configurator collaborator
// using github.com/vishvananda/netlink to install and withdraw the leased
// IPv4 address and default route.
package ifconfig

import (
	"net"

	"github.com/vishvananda/netlink"
)

// Configurator applies or withdraws IPv4 configuration on a single link.
type Configurator struct {
	link netlink.Link

	appliedAddr *netlink.Addr
	appliedRoute *netlink.Route
}

// New resolves ifaceName to a netlink Link.
func New(ifaceName string) (*Configurator, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return nil, err
	}
	return &Configurator{link: link}, nil
}

// Apply implements dhcp4client.Configurator.
func (c *Configurator) Apply(ip net.IP, prefixLen int, gateway net.IP) error {
	if err := c.Clear(); err != nil {
		return err
	}

	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip.To4(), Mask: net.CIDRMask(prefixLen, 32)}}
	if err := netlink.AddrAdd(c.link, addr); err != nil {
		return err
	}
	c.appliedAddr = addr

	if gateway == nil {
		return nil
	}

	route := &netlink.Route{
		LinkIndex: c.link.Attrs().Index,
		Gw:        gateway.To4(),
	}
	if err := netlink.RouteAdd(route); err != nil {
		netlink.AddrDel(c.link, addr)
		c.appliedAddr = nil
		return err
	}
	c.appliedRoute = route

	return nil
}

// Clear implements dhcp4client.Configurator.
func (c *Configurator) Clear() error {
	if c.appliedRoute != nil {
		netlink.RouteDel(c.appliedRoute)
		c.appliedRoute = nil
	}
	if c.appliedAddr != nil {
		if err := netlink.AddrDel(c.link, c.appliedAddr); err != nil {
			return err
		}
		c.appliedAddr = nil
	}
	return nil
}
