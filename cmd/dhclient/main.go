// Command dhclient runs the DHCPv4 client against a real network
// interface, applying the lease it obtains and logging lease events until
// interrupted.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	dhcp4client "github.com/lattice-net/dhcp4client"
	"github.com/lattice-net/dhcp4client/ifconfig"
	"github.com/lattice-net/dhcp4client/linkarp"
	"github.com/lattice-net/dhcp4client/platform"
	"github.com/lattice-net/dhcp4client/transport"
)

// clientRef lets the link/ARP/transport adapters be constructed (and start
// their background goroutines) before the Client they report to exists.
// Callbacks arriving before Store is called are dropped rather than racing
// a nil dereference.
type clientRef struct {
	p atomic.Pointer[dhcp4client.Client]
}

func (r *clientRef) HandleARPObservation(ip net.IP, mac net.HardwareAddr) {
	if c := r.p.Load(); c != nil {
		c.HandleARPObservation(ip, mac)
	}
}

func (r *clientRef) HandleLinkChange(up bool) {
	if c := r.p.Load(); c != nil {
		c.HandleLinkChange(up)
	}
}

func (r *clientRef) HandleDatagram(src net.IP, payload []byte) {
	if c := r.p.Load(); c != nil {
		c.HandleDatagram(src, payload)
	}
}

func main() {
	ifaceName := flag.String("interface", "eth0", "network interface to configure")
	clientID := flag.String("client-id", "", "optional DHCP client identifier (option 61)")
	flag.Parse()

	iface, err := net.InterfaceByName(*ifaceName)
	if err != nil {
		log.Fatalf("dhclient: %v", err)
	}

	cfg := dhcp4client.DefaultConfig()
	if *clientID != "" {
		cfg.ClientID = []byte(*clientID)
	}

	handler := func(ev dhcp4client.Event) {
		log.Printf("dhclient: %s", ev)
	}

	ifc, err := ifconfig.New(iface.Name)
	if err != nil {
		log.Fatalf("dhclient: interface configurator: %v", err)
	}

	var ref clientRef

	link, err := linkarp.New(iface, ref.HandleARPObservation, ref.HandleLinkChange)
	if err != nil {
		log.Fatalf("dhclient: link adapter: %v", err)
	}
	defer link.Close()

	tp, err := transport.New(iface, ref.HandleDatagram)
	if err != nil {
		log.Fatalf("dhclient: transport: %v", err)
	}
	defer tp.Close()

	client, err := dhcp4client.New(cfg, tp, link, ifc, platform.New(), handler)
	if err != nil {
		log.Fatalf("dhclient: %v", err)
	}
	ref.p.Store(client)
	defer client.Close()

	log.Printf("dhclient: watching %s", iface.Name)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Print("dhclient: shutting down")
}
