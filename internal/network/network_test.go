package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-node/internal/clock"
)

// scriptedLink reports down for the first downFor polls. Join fails for
// the first joinFails calls with joinErr (every call when joinFails is 0).
type scriptedLink struct {
	downFor   int
	polls     int
	joins     int
	joinErr   error
	joinFails int
}

func (l *scriptedLink) Name() string { return "test0" }

func (l *scriptedLink) Up(context.Context) (bool, error) {
	l.polls++
	return l.polls > l.downFor, nil
}

func (l *scriptedLink) Join(context.Context) error {
	l.joins++
	if l.joinFails > 0 && l.joins > l.joinFails {
		return nil
	}
	return l.joinErr
}

func TestConnector_AlreadyUp(t *testing.T) {
	link := &scriptedLink{}
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewConnector(link, 500*time.Millisecond, WithClock(clk))

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.Equal(t, 0, link.joins)
	assert.Empty(t, clk.Sleeps())
}

func TestConnector_PollsAtInterval(t *testing.T) {
	link := &scriptedLink{downFor: 4}
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewConnector(link, 500*time.Millisecond, WithClock(clk))

	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, link.joins, "successful join is not repeated")
	assert.Equal(t, 5, link.polls)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, clk.Sleeps())
}

func TestConnector_JoinBoundedPerOutage(t *testing.T) {
	link := &scriptedLink{downFor: 2, joinErr: errors.New("no nmcli")}
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewConnector(link, 500*time.Millisecond, WithClock(clk))

	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.IsConnected())
	assert.Equal(t, joinAttempts, link.joins, "join gives up after the attempt budget")
	assert.Equal(t, 3, link.polls, "polling continues after join gives up")
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, // between joins
		500 * time.Millisecond,
		500 * time.Millisecond, // between polls
	}, clk.Sleeps())
}

func TestConnector_JoinRetriedUntilAccepted(t *testing.T) {
	link := &scriptedLink{downFor: 1, joinErr: errors.New("device busy"), joinFails: 1}
	clk := clock.NewFake(time.Unix(0, 0))
	c := NewConnector(link, 500*time.Millisecond, WithClock(clk))

	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, 2, link.joins)
	assert.Equal(t, 2, link.polls)
}

func TestConnector_Cancelled(t *testing.T) {
	link := &scriptedLink{downFor: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConnector(link, time.Second, WithClock(clock.NewFake(time.Unix(0, 0))))
	err := c.Connect(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.IsConnected())
}

func TestInterfaceLink_Up(t *testing.T) {
	tests := []struct {
		name  string
		flags net.Flags
		addrs []net.Addr
		want  bool
	}{
		{"down", 0, []net.Addr{ipNet("192.168.1.20")}, false},
		{"up without address", net.FlagUp, nil, false},
		{"loopback only", net.FlagUp, []net.Addr{ipNet("127.0.0.1")}, false},
		{"ipv4", net.FlagUp, []net.Addr{ipNet("192.168.1.20")}, true},
		{"ipv6 link-local only", net.FlagUp, []net.Addr{ipNet("fe80::1")}, false},
		{"ipv6 global", net.FlagUp, []net.Addr{ipNet("2001:db8::5")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewInterfaceLink("wlan0", JoinNone, "", "")
			l.lookup = func(string) (*net.Interface, error) {
				return &net.Interface{Name: "wlan0", Flags: tt.flags}, nil
			}
			l.addrs = func(*net.Interface) ([]net.Addr, error) { return tt.addrs, nil }

			up, err := l.Up(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, up)
		})
	}
}

func TestInterfaceLink_Missing(t *testing.T) {
	l := NewInterfaceLink("wlan9", JoinNone, "", "")
	l.lookup = func(string) (*net.Interface, error) { return nil, errors.New("no such network interface") }

	up, err := l.Up(context.Background())
	assert.False(t, up)
	assert.Error(t, err)
}

func TestInterfaceLink_Join(t *testing.T) {
	var gotName string
	var gotArgs []string
	l := NewInterfaceLink("wlan0", JoinNMCLI, "lab", "s3cret")
	l.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	require.NoError(t, l.Join(context.Background()))
	assert.Equal(t, "nmcli", gotName)
	assert.Equal(t, []string{"device", "wifi", "connect", "lab", "password", "s3cret", "ifname", "wlan0"}, gotArgs)
}

func TestInterfaceLink_JoinFailure(t *testing.T) {
	l := NewInterfaceLink("wlan0", JoinNMCLI, "lab", "")
	l.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Error: No network with SSID 'lab' found.\n"), errors.New("exit status 10")
	}

	err := l.Join(context.Background())
	assert.ErrorIs(t, err, ErrJoinFailed)
	assert.Contains(t, err.Error(), "No network with SSID")
}

func TestInterfaceLink_JoinNone(t *testing.T) {
	l := NewInterfaceLink("wlan0", JoinNone, "lab", "pw")
	l.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("nmcli must not run in join mode none")
		return nil, nil
	}
	assert.NoError(t, l.Join(context.Background()))
}

func TestAlwaysUp(t *testing.T) {
	up, err := AlwaysUp{}.Up(context.Background())
	require.NoError(t, err)
	assert.True(t, up)
}

func ipNet(s string) *net.IPNet {
	ip := net.ParseIP(s)
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(24, len(ip)*8)}
}
