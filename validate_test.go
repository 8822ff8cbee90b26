package dhcp4client

import (
	"net"
	"testing"
)

func TestCheckOfferedAddress(t *testing.T) {
	tests := []struct {
		name string
		addr net.IP
		want bool
	}{
		{"ordinary", net.IPv4(192, 0, 2, 10), true},
		{"unspecified", net.IPv4zero, false},
		{"broadcast", net.IPv4bcast, false},
		{"loopback", net.IPv4(127, 0, 0, 1), false},
		{"multicast", net.IPv4(224, 0, 0, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkOfferedAddress(tt.addr); got != tt.want {
				t.Errorf("checkOfferedAddress(%v) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestClassfulDefaultMask(t *testing.T) {
	tests := []struct {
		addr net.IP
		bits int
	}{
		{net.IPv4(10, 0, 0, 1), 8},
		{net.IPv4(172, 16, 0, 1), 16},
		{net.IPv4(192, 168, 1, 1), 24},
		{net.IPv4(224, 0, 0, 1), 0},
	}

	for _, tt := range tests {
		mask := classfulDefaultMask(tt.addr)
		if tt.bits == 0 {
			if mask != nil {
				t.Errorf("classfulDefaultMask(%v) = %v, want nil", tt.addr, mask)
			}
			continue
		}
		ones, _ := mask.Size()
		if ones != tt.bits {
			t.Errorf("classfulDefaultMask(%v) = /%d, want /%d", tt.addr, ones, tt.bits)
		}
	}
}

func TestCheckAndFixupAckDefaults(t *testing.T) {
	opts := parsedOptions{
		leaseTimeS: 3600,
		haveLease:  true,
	}
	addr := net.IPv4(192, 0, 2, 10)

	if !checkAndFixupAck(addr, &opts) {
		t.Fatal("checkAndFixupAck rejected a valid ACK missing only optional fields")
	}
	if ones, _ := opts.subnetMask.Size(); ones != 24 {
		t.Errorf("classful default mask = /%d, want /24", ones)
	}
	if opts.renewalTimeS != 1800 {
		t.Errorf("default renewal time = %d, want 1800", opts.renewalTimeS)
	}
	if opts.rebindingTimeS != 3150 {
		t.Errorf("default rebinding time = %d, want 3150", opts.rebindingTimeS)
	}
}

func TestCheckAndFixupAckRejectsBroadcastAddress(t *testing.T) {
	opts := parsedOptions{
		leaseTimeS: 3600,
		haveLease:  true,
		subnetMask: net.CIDRMask(24, 32),
		haveMask:   true,
	}
	// 192.0.2.255 is the directed broadcast of 192.0.2.0/24.
	if checkAndFixupAck(net.IPv4(192, 0, 2, 255), &opts) {
		t.Fatal("checkAndFixupAck accepted the subnet's directed broadcast address")
	}
}

func TestCheckAndFixupAckDropsOutOfSubnetRouter(t *testing.T) {
	opts := parsedOptions{
		leaseTimeS: 3600,
		haveLease:  true,
		subnetMask: net.CIDRMask(24, 32),
		haveMask:   true,
		router:     net.IPv4(198, 51, 100, 1),
		haveRouter: true,
	}
	if !checkAndFixupAck(net.IPv4(192, 0, 2, 10), &opts) {
		t.Fatal("checkAndFixupAck rejected an otherwise valid ACK over an out-of-subnet router")
	}
	if opts.haveRouter {
		t.Error("router outside the leased subnet should have been dropped, not just left unused")
	}
}

func TestCheckAndFixupAckClampsRebindingTime(t *testing.T) {
	opts := parsedOptions{
		leaseTimeS:     3600,
		haveLease:      true,
		renewalTimeS:   1800,
		haveRenewal:    true,
		rebindingTimeS: 100, // nonsensically before renewal time
		haveRebinding:  true,
	}
	if !checkAndFixupAck(net.IPv4(192, 0, 2, 10), &opts) {
		t.Fatal("checkAndFixupAck rejected a validly-shaped ACK")
	}
	if opts.rebindingTimeS != opts.renewalTimeS {
		t.Errorf("rebindingTimeS = %d, want clamped to renewalTimeS = %d", opts.rebindingTimeS, opts.renewalTimeS)
	}
}
