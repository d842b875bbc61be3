package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeNetwork(ifaces []net.Interface, addrs map[string][]net.Addr) *Network {
	n := NewNetwork("")
	n.interfaces = func() ([]net.Interface, error) { return ifaces, nil }
	n.addrs = func(iface net.Interface) ([]net.Addr, error) { return addrs[iface.Name], nil }
	return n
}

func ipNet(s string) net.Addr {
	_, n, _ := net.ParseCIDR(s)
	ip, _, _ := net.ParseCIDR(s)
	return &net.IPNet{IP: ip, Mask: n.Mask}
}

func TestNetwork_UsableInterface(t *testing.T) {
	tests := []struct {
		name     string
		ifaces   []net.Interface
		addrs    map[string][]net.Addr
		expected string
		wantErr  bool
	}{
		{
			name:     "ethernet with global address",
			ifaces:   []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}, {Name: "eth0", Flags: net.FlagUp}},
			addrs:    map[string][]net.Addr{"lo": {ipNet("127.0.0.1/8")}, "eth0": {ipNet("192.168.1.10/24")}},
			expected: "eth0",
		},
		{
			name:    "loopback only",
			ifaces:  []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}},
			addrs:   map[string][]net.Addr{"lo": {ipNet("127.0.0.1/8")}},
			wantErr: true,
		},
		{
			name:    "interface down",
			ifaces:  []net.Interface{{Name: "wlan0"}},
			addrs:   map[string][]net.Addr{"wlan0": {ipNet("10.0.0.5/24")}},
			wantErr: true,
		},
		{
			name:    "link local only",
			ifaces:  []net.Interface{{Name: "eth0", Flags: net.FlagUp}},
			addrs:   map[string][]net.Addr{"eth0": {ipNet("fe80::1/64")}},
			wantErr: true,
		},
		{
			name:     "tunnel interface counts",
			ifaces:   []net.Interface{{Name: "tun0", Flags: net.FlagUp}},
			addrs:    map[string][]net.Addr{"tun0": {&net.IPAddr{IP: net.ParseIP("10.8.0.2")}}},
			expected: "tun0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := fakeNetwork(tt.ifaces, tt.addrs)
			name, err := n.UsableInterface()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoUsableInterface)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestNetwork_Reachable(t *testing.T) {
	ifaces := []net.Interface{{Name: "eth0", Flags: net.FlagUp}}
	addrs := map[string][]net.Addr{"eth0": {ipNet("192.168.1.10/24")}}

	t.Run("no address configured", func(t *testing.T) {
		n := fakeNetwork(ifaces, addrs)
		assert.True(t, n.Reachable(context.Background()))
	})

	t.Run("server accepts", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			conn, err := ln.Accept()
			if err == nil {
				_ = conn.Close()
			}
		}()

		n := fakeNetwork(ifaces, addrs)
		n.Addr = ln.Addr().String()
		assert.True(t, n.Reachable(context.Background()))
	})

	t.Run("dial fails", func(t *testing.T) {
		n := fakeNetwork(ifaces, addrs)
		n.Addr = "chat.example.org:5222"
		n.dial = func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}
		assert.False(t, n.Reachable(context.Background()))
	})

	t.Run("no interface", func(t *testing.T) {
		n := fakeNetwork(nil, nil)
		assert.False(t, n.Reachable(context.Background()))
	})
}

func writeSupply(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for k, v := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v+"\n"), 0o644))
	}
}

func TestPower_OnExternalPower(t *testing.T) {
	t.Run("mains online", func(t *testing.T) {
		root := t.TempDir()
		writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})
		writeSupply(t, root, "BAT0", map[string]string{"type": "Battery"})
		assert.True(t, (&Power{root: root}).OnExternalPower())
	})

	t.Run("on battery", func(t *testing.T) {
		root := t.TempDir()
		writeSupply(t, root, "AC", map[string]string{"type": "Mains", "online": "0"})
		writeSupply(t, root, "BAT0", map[string]string{"type": "Battery"})
		assert.False(t, (&Power{root: root}).OnExternalPower())
	})

	t.Run("desktop without battery", func(t *testing.T) {
		root := t.TempDir()
		assert.True(t, (&Power{root: root}).OnExternalPower())
	})

	t.Run("missing power class", func(t *testing.T) {
		assert.True(t, (&Power{root: filepath.Join(t.TempDir(), "missing")}).OnExternalPower())
	})
}

func TestPower_ReadAttrRejectsTraversal(t *testing.T) {
	p := &Power{root: t.TempDir()}
	_, err := p.readAttr("..", "passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside sysfs power directory")
}
