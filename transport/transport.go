// Package transport implements the DHCP client's Transport collaborator on
// top of a plain UDP/IPv4 socket, adapted from the teacher's inetsocket
// dial/listen split: one long-lived socket bound to :68 that both
// broadcasts and unicasts, with SO_BROADCAST and SO_REUSEADDR set directly
// through golang.org/x/sys/unix since net.ListenUDP has no portable way to
// ask for either.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	clientPort = 68
	serverPort = 67

	// retryBackoff is how long UDPTransport waits before invoking a
	// registered retry callback after a send fails for a reason consistent
	// with pending neighbor resolution (ENOBUFS/EHOSTDOWN/EHOSTUNREACH):
	// long enough for the kernel to have resolved the ARP entry it queued
	// the packet behind.
	retryBackoff = 250 * time.Millisecond
)

// UDPTransport is a Transport implementation bound to a single interface's
// broadcast domain. Broadcast and Unicast ignore their src argument: every
// datagram leaves with the source address the kernel picks for the socket
// bound to 0.0.0.0:68.
type UDPTransport struct {
	conn *net.UDPConn

	mu        sync.Mutex
	retryFn   func()
	retryTime *time.Timer

	deliver func(src net.IP, payload []byte)

	closeOnce sync.Once
	done      chan struct{}
}

// New opens a UDP socket bound to 0.0.0.0:68 on the given interface and
// starts a receive loop that calls deliver for every datagram, until
// Close is called. deliver is typically (*dhcp4client.Client).HandleDatagram.
func New(iface *net.Interface, deliver func(src net.IP, payload []byte)) (*UDPTransport, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				if iface != nil {
					sockErr = unix.BindToDevice(int(fd), iface.Name)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", (&net.UDPAddr{Port: clientPort}).String())
	if err != nil {
		return nil, err
	}

	t := &UDPTransport{
		conn:    pc.(*net.UDPConn),
		deliver: deliver,
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		payload := append([]byte(nil), buf[:n]...)
		t.deliver(addr.IP, payload)
	}
}

// Broadcast implements dhcp4client.Transport.
func (t *UDPTransport) Broadcast(src net.IP, payload []byte) error {
	return t.send(src, net.IPv4bcast, payload)
}

// Unicast implements dhcp4client.Transport.
func (t *UDPTransport) Unicast(src, dst net.IP, payload []byte) error {
	return t.send(src, dst, payload)
}

func (t *UDPTransport) send(_ net.IP, dst net.IP, payload []byte) error {
	_, err := t.conn.WriteToUDP(payload, &net.UDPAddr{IP: dst, Port: serverPort})
	if err != nil && isPendingResolution(err) {
		t.armRetry()
	}
	return err
}

// isPendingResolution reports whether err looks like the kernel deferred
// the packet behind an unresolved link-layer address rather than rejecting
// it outright.
func isPendingResolution(err error) bool {
	return errors.Is(err, syscall.ENOBUFS) || errors.Is(err, syscall.EHOSTDOWN) || errors.Is(err, syscall.EHOSTUNREACH)
}

func (t *UDPTransport) armRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retryFn == nil {
		return
	}
	fn := t.retryFn
	if t.retryTime != nil {
		t.retryTime.Stop()
	}
	t.retryTime = time.AfterFunc(retryBackoff, fn)
}

// SetRetry implements dhcp4client.Transport.
func (t *UDPTransport) SetRetry(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryFn = fn
}

// CancelRetry implements dhcp4client.Transport.
func (t *UDPTransport) CancelRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryFn = nil
	if t.retryTime != nil {
		t.retryTime.Stop()
		t.retryTime = nil
	}
}

// Close stops the receive loop and closes the underlying socket.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
