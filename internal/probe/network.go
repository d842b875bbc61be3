// Package probe reports the host conditions a reconnection waits for:
// network connectivity and external power.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// DefaultDialTimeout bounds the reachability dial to the server.
const DefaultDialTimeout = 5 * time.Second

// ErrNoUsableInterface is returned when no interface can carry traffic.
var ErrNoUsableInterface = errors.New("no usable network interface")

// Network checks whether the host can reach the messaging server.
type Network struct {
	// Addr is the server host:port dialed by Reachable. When empty only
	// local interfaces are inspected.
	Addr string
	// Timeout bounds the dial. Defaults to DefaultDialTimeout.
	Timeout time.Duration

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
	dial       func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewNetwork creates a network probe for the given server address.
func NewNetwork(addr string) *Network {
	var d net.Dialer
	return &Network{
		Addr:       addr,
		Timeout:    DefaultDialTimeout,
		interfaces: net.Interfaces,
		addrs:      func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() },
		dial:       d.DialContext,
	}
}

// Reachable returns true if a usable interface exists and, when Addr is set,
// the server accepts a TCP connection.
func (n *Network) Reachable(ctx context.Context) bool {
	name, err := n.UsableInterface()
	if err != nil {
		slog.Debug("Network unreachable", "error", err)
		return false
	}
	if n.Addr == "" {
		return true
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := n.dial(ctx, "tcp", n.Addr)
	if err != nil {
		slog.Debug("Server unreachable", "addr", n.Addr, "interface", name, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}

// UsableInterface returns the name of the first interface that is up, is not
// a loopback and has a global unicast address assigned.
func (n *Network) UsableInterface() (string, error) {
	ifaces, err := n.interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := n.addrs(iface)
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ip := addrIP(addr); ip != nil && ip.IsGlobalUnicast() {
				return iface.Name, nil
			}
		}
	}

	return "", ErrNoUsableInterface
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
