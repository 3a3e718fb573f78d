// Package identity derives the node's MQTT session identifier.
//
// The identifier is stable per device: a configured override, or the
// prefix joined with the low 32 bits of a hardware-unique value, printed as
// lowercase hex. The hardware value is the interface MAC when available,
// otherwise the systemd machine-id.
package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
)

// DefaultMachineIDPath is read when no MAC address is available.
const DefaultMachineIDPath = "/etc/machine-id"

// ErrNoHardwareID is returned when neither source yields an identifier.
var ErrNoHardwareID = errors.New("identity: no hardware identifier available")

// Source names where a client id came from, for the startup log.
type Source string

const (
	SourceConfig    Source = "config"
	SourceMAC       Source = "mac"
	SourceMachineID Source = "machine-id"
)

// Resolver looks up hardware identifiers.
type Resolver struct {
	Interface     string
	MachineIDPath string

	lookup   func(name string) (*net.Interface, error)
	readFile func(name string) ([]byte, error)
}

// NewResolver returns a Resolver for iface reading the default machine-id path.
func NewResolver(iface string) *Resolver {
	return &Resolver{
		Interface:     iface,
		MachineIDPath: DefaultMachineIDPath,
		lookup:        net.InterfaceByName,
		readFile:      os.ReadFile,
	}
}

// Resolve returns override if set, otherwise prefix-<hex>.
func (r *Resolver) Resolve(override, prefix string) (string, Source, error) {
	if override != "" {
		return override, SourceConfig, nil
	}

	if raw, err := r.fromMAC(); err == nil {
		return Derive(prefix, raw), SourceMAC, nil
	}

	raw, err := r.fromMachineID()
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrNoHardwareID, err)
	}
	return Derive(prefix, raw), SourceMachineID, nil
}

// Derive formats prefix-<hex> from the first four bytes of raw, read
// little-endian so the result matches the low word of a 48-bit MAC.
func Derive(prefix string, raw []byte) string {
	var word [4]byte
	copy(word[:], raw)
	return fmt.Sprintf("%s-%x", prefix, binary.LittleEndian.Uint32(word[:]))
}

func (r *Resolver) fromMAC() ([]byte, error) {
	if r.Interface == "" {
		return nil, errors.New("no interface configured")
	}
	ifi, err := r.lookup(r.Interface)
	if err != nil {
		return nil, err
	}
	if len(ifi.HardwareAddr) < 4 {
		return nil, fmt.Errorf("interface %s has no hardware address", r.Interface)
	}
	return ifi.HardwareAddr, nil
}

func (r *Resolver) fromMachineID() ([]byte, error) {
	data, err := r.readFile(r.MachineIDPath)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing machine-id: %w", err)
	}
	return id[:], nil
}
