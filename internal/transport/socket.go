// Package transport opens the UDP socket mtx and mrx exchange packets on,
// including multicast group membership and DSCP marking.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// dscpEF is DSCP Expedited Forwarding (46) shifted into the legacy TOS
// byte with the ECN bits zero, so in-network gear prioritises the stream.
const dscpEF = 0xb8

// isMulticast reports whether addr falls in 224.0.0.0/4.
func isMulticast(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsMulticast()
}

// Conn is a UDP socket with IP_TOS set to DSCP EF and multicast group
// membership joined when the configured address requires it.
type Conn struct {
	*net.UDPConn
	pc     *ipv4.PacketConn
	remote *net.UDPAddr
}

// ListenReceiver binds the receiver's configured port and joins the
// multicast group if addr is a multicast address.
func ListenReceiver(addr string, port int) (*Conn, error) {
	udpAddr := &net.UDPAddr{Port: port}
	if isMulticast(addr) {
		udpAddr.IP = net.IPv4zero
	} else {
		udpAddr.IP = net.ParseIP(addr)
	}

	var lc net.ListenConfig
	if isMulticast(addr) {
		// SO_REUSEADDR before bind, so several receivers on one host can
		// share the multicast port.
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return serr
		}
	}

	pconn, err := lc.ListenPacket(context.Background(), "udp4", udpAddr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s:%d: %w", addr, port, err)
	}
	uc := pconn.(*net.UDPConn)

	pc := ipv4.NewPacketConn(uc)
	if err := pc.SetTOS(dscpEF); err != nil {
		uc.Close()
		return nil, fmt.Errorf("transport: set TOS: %w", err)
	}

	if isMulticast(addr) {
		ifaces, err := multicastInterfaces()
		if err != nil {
			uc.Close()
			return nil, fmt.Errorf("transport: enumerate interfaces: %w", err)
		}
		group := &net.UDPAddr{IP: net.ParseIP(addr)}
		joined := false
		for _, ifi := range ifaces {
			if err := pc.JoinGroup(ifi, group); err == nil {
				joined = true
			}
		}
		if !joined {
			uc.Close()
			return nil, fmt.Errorf("transport: join multicast group %s: no usable interface", addr)
		}
	}

	return &Conn{UDPConn: uc, pc: pc}, nil
}

// DialSender opens the sender's socket on an ephemeral local port, with
// IP_TOS set the same way as the receiver. It returns the socket
// unconnected (rather than via net.Dial) because a multicast destination
// cannot be the target of connect(). Callers send with
// WriteToUDP(payload, RemoteAddr()).
func DialSender(addr string, port int) (*Conn, error) {
	uc, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("transport: open sender socket: %w", err)
	}

	pc := ipv4.NewPacketConn(uc)
	if err := pc.SetTOS(dscpEF); err != nil {
		uc.Close()
		return nil, fmt.Errorf("transport: set TOS: %w", err)
	}

	return &Conn{UDPConn: uc, pc: pc, remote: &net.UDPAddr{IP: net.ParseIP(addr), Port: port}}, nil
}

// RemoteAddr returns the destination address configured by DialSender. It
// is nil on a Conn returned by ListenReceiver.
func (c *Conn) RemoteAddr() *net.UDPAddr { return c.remote }

func multicastInterfaces() ([]*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []*net.Interface
	for i := range ifaces {
		ifi := ifaces[i]
		if ifi.Flags&net.FlagMulticast != 0 && ifi.Flags&net.FlagUp != 0 {
			out = append(out, &ifi)
		}
	}
	return out, nil
}
