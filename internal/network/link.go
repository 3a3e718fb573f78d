package network

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// Join modes for InterfaceLink.
const (
	JoinNone  = "none"
	JoinNMCLI = "nmcli"
)

// runner executes an external command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// InterfaceLink watches a named Linux network interface.
//
// The link is up when the interface is administratively up and carries at
// least one non-loopback unicast address. With join mode "nmcli", Join
// asks NetworkManager to connect the interface to the configured SSID.
type InterfaceLink struct {
	iface    string
	ssid     string
	password string
	join     string

	lookup func(name string) (*net.Interface, error)
	addrs  func(*net.Interface) ([]net.Addr, error)
	run    runner
}

// NewInterfaceLink returns a link for iface.
func NewInterfaceLink(iface, join, ssid, password string) *InterfaceLink {
	return &InterfaceLink{
		iface:    iface,
		ssid:     ssid,
		password: password,
		join:     join,
		lookup:   net.InterfaceByName,
		addrs:    (*net.Interface).Addrs,
		run:      execRunner,
	}
}

// Name returns the interface name.
func (l *InterfaceLink) Name() string {
	return l.iface
}

// Up reports whether the interface is up with a usable address.
func (l *InterfaceLink) Up(_ context.Context) (bool, error) {
	ifi, err := l.lookup(l.iface)
	if err != nil {
		return false, fmt.Errorf("interface %s: %w", l.iface, err)
	}
	if ifi.Flags&net.FlagUp == 0 {
		return false, nil
	}

	addrs, err := l.addrs(ifi)
	if err != nil {
		return false, fmt.Errorf("interface %s addresses: %w", l.iface, err)
	}
	return hasUsableAddr(addrs), nil
}

// hasUsableAddr reports whether any address is a global or link-local unicast IPv4/IPv6.
func hasUsableAddr(addrs []net.Addr) bool {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		if ip.To4() != nil || ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}

// Join connects the interface to the configured SSID through nmcli.
// With join mode "none" the operating system owns the link and Join does nothing.
func (l *InterfaceLink) Join(ctx context.Context) error {
	if l.join != JoinNMCLI {
		return nil
	}

	args := []string{"device", "wifi", "connect", l.ssid}
	if l.password != "" {
		args = append(args, "password", l.password)
	}
	args = append(args, "ifname", l.iface)

	out, err := l.run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("%w: nmcli: %w: %s", ErrJoinFailed, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// AlwaysUp is the link used with the simulated board.
type AlwaysUp struct{}

// Name returns "sim".
func (AlwaysUp) Name() string { return "sim" }

// Up always reports true.
func (AlwaysUp) Up(context.Context) (bool, error) { return true, nil }

// Join does nothing.
func (AlwaysUp) Join(context.Context) error { return nil }
