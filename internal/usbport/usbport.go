// Package usbport defines the abstract USB collaborator that
// DeviceSession and DeviceManager drive, plus a concrete
// implementation over github.com/google/gousb. The interface exists so
// tests can substitute a fake without a real bus, and so the session/
// manager packages never import gousb directly.
package usbport

import (
	"context"
	"time"
)

// DeviceRef identifies one enumerated device as returned by List.
type DeviceRef struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
}

// TransferDirection is the direction of a discovered endpoint.
type TransferDirection int

const (
	DirectionIn TransferDirection = iota
	DirectionOut
)

// TransferType is the USB transfer type of a discovered endpoint.
type TransferType int

const (
	TransferInterrupt TransferType = iota
	TransferBulk
	TransferControl
	TransferIsochronous
)

// Endpoint describes one endpoint exposed by a claimed interface,
// as surfaced by GetActiveConfigDescriptor.
type Endpoint struct {
	Address uint8
	Type    TransferType
	Dir     TransferDirection
}

// Interface describes one interface of the active configuration.
type Interface struct {
	Number    int
	Endpoints []Endpoint
}

// ConfigDescriptor is the active configuration's interface/endpoint tree.
type ConfigDescriptor struct {
	Interfaces []Interface
}

// Handle is an opaque open-device handle. Implementations embed whatever
// state (e.g. a *gousb.Device) they need; callers never inspect it.
type Handle interface {
	// Ref returns the DeviceRef this handle was opened from.
	Ref() DeviceRef
}

// Port is the UsbPort contract: list/open/claim/transfer primitives
// over a real or simulated USB bus. All transfer calls honour the passed
// timeout; a timeout is a recoverable, non-fatal error.
type Port interface {
	List(ctx context.Context) ([]DeviceRef, error)
	Open(ctx context.Context, vendorID, productID uint16) (Handle, error)

	SetConfiguration(h Handle, cfgNumber int) error
	AutoDetachKernelDriver(h Handle, enabled bool) error
	KernelDriverActive(h Handle, iface int) (bool, error)
	DetachKernelDriver(h Handle, iface int) error
	ClaimInterface(h Handle, iface int) error
	ReleaseInterface(h Handle, iface int) error

	GetActiveConfigDescriptor(h Handle) (ConfigDescriptor, error)

	ControlTransfer(h Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
	InterruptTransfer(h Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error)
	BulkTransfer(h Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error)

	Close(h Handle) error
}

// DiscoverEndpoints scans a ConfigDescriptor for the first interrupt
// endpoint in each direction. Either return value is 0 when nothing
// matched, letting the caller fall back to the hardcoded defaults
// (0x81 IN, 0x01 OUT).
func DiscoverEndpoints(cfg ConfigDescriptor) (in, out uint8) {
	for _, iface := range cfg.Interfaces {
		for _, ep := range iface.Endpoints {
			if ep.Type != TransferInterrupt {
				continue
			}
			if ep.Dir == DirectionIn && in == 0 {
				in = ep.Address
			}
			if ep.Dir == DirectionOut && out == 0 {
				out = ep.Address
			}
		}
	}
	return in, out
}

// DiscoverGIPOut scans specifically for an interrupt-OUT endpoint on
// interface 0, which GIP prefers over the general discovery result.
func DiscoverGIPOut(cfg ConfigDescriptor) (out uint8, ok bool) {
	for _, iface := range cfg.Interfaces {
		if iface.Number != 0 {
			continue
		}
		for _, ep := range iface.Endpoints {
			if ep.Type == TransferInterrupt && ep.Dir == DirectionOut {
				return ep.Address, true
			}
		}
	}
	return 0, false
}

// DefaultInEndpoint is the IN fallback when discovery fails.
const DefaultInEndpoint uint8 = 0x81

// DefaultOutEndpoint is the OUT fallback when discovery fails.
const DefaultOutEndpoint uint8 = 0x01
