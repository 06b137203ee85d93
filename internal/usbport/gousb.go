package usbport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// GousbPort implements Port over github.com/google/gousb, opening an
// arbitrary (vendorID, productID) pair per call.
type GousbPort struct {
	ctx *gousb.Context
}

// NewGousbPort opens a libusb context. Callers must Shutdown when done.
func NewGousbPort() *GousbPort {
	return &GousbPort{ctx: gousb.NewContext()}
}

// Shutdown releases the underlying libusb context.
func (p *GousbPort) Shutdown() error {
	return p.ctx.Close()
}

// gousbHandle bundles the open device with whatever interface/config it
// has claimed so far; ClaimInterface/ReleaseInterface populate iface.
type gousbHandle struct {
	ref   DeviceRef
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	epIn  map[uint8]*gousb.InEndpoint
	epOut map[uint8]*gousb.OutEndpoint
}

func (h *gousbHandle) Ref() DeviceRef { return h.ref }

// List enumerates every attached device without claiming any of them.
func (p *GousbPort) List(ctx context.Context) ([]DeviceRef, error) {
	var refs []DeviceRef
	devs, err := p.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		refs = append(refs, DeviceRef{
			VendorID:  uint16(desc.Vendor),
			ProductID: uint16(desc.Product),
			Bus:       desc.Bus,
			Address:   desc.Address,
		})
		return false // never actually open during a list scan
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return refs, fmt.Errorf("enumerate usb devices: %w", err)
	}
	return refs, nil
}

// Open opens the first device matching (vendorID, productID); interfaces
// are claimed separately through ClaimInterface.
func (p *GousbPort) Open(ctx context.Context, vendorID, productID uint16) (Handle, error) {
	var matched *gousb.Device
	devs, err := p.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vendorID) && desc.Product == gousb.ID(productID)
	})
	for _, d := range devs {
		if matched == nil {
			matched = d
			continue
		}
		d.Close()
	}
	if err != nil && matched == nil {
		return nil, fmt.Errorf("open usb device %04x:%04x: %w", vendorID, productID, err)
	}
	if matched == nil {
		return nil, fmt.Errorf("no usb device matched %04x:%04x", vendorID, productID)
	}
	return &gousbHandle{
		ref: DeviceRef{
			VendorID: vendorID, ProductID: productID,
			Bus: matched.Desc.Bus, Address: matched.Desc.Address,
		},
		dev:   matched,
		epIn:  make(map[uint8]*gousb.InEndpoint),
		epOut: make(map[uint8]*gousb.OutEndpoint),
	}, nil
}

// SetConfiguration is best-effort; callers ignore its error.
func (p *GousbPort) SetConfiguration(h Handle, cfgNumber int) error {
	gh := h.(*gousbHandle)
	cfg, err := gh.dev.Config(cfgNumber)
	if err != nil {
		return fmt.Errorf("set configuration %d: %w", cfgNumber, err)
	}
	gh.cfg = cfg
	return nil
}

// AutoDetachKernelDriver is best-effort; callers ignore its error.
func (p *GousbPort) AutoDetachKernelDriver(h Handle, enabled bool) error {
	gh := h.(*gousbHandle)
	return gh.dev.SetAutoDetach(enabled)
}

// KernelDriverActive has no direct gousb primitive: SetAutoDetach above
// already makes libusb detach transparently, so this always reports false
// (nothing left for DeviceSession to detach itself).
func (p *GousbPort) KernelDriverActive(h Handle, iface int) (bool, error) {
	return false, nil
}

// DetachKernelDriver is a no-op companion to KernelDriverActive, kept to
// satisfy the contract for ports that do need an explicit detach.
func (p *GousbPort) DetachKernelDriver(h Handle, iface int) error {
	return nil
}

// ClaimInterface claims iface on the already-configured device.
func (p *GousbPort) ClaimInterface(h Handle, iface int) error {
	gh := h.(*gousbHandle)
	if gh.cfg == nil {
		cfg, err := gh.dev.Config(1)
		if err != nil {
			return fmt.Errorf("claim interface %d: open default config: %w", iface, err)
		}
		gh.cfg = cfg
	}
	intf, err := gh.cfg.Interface(iface, 0)
	if err != nil {
		return fmt.Errorf("claim interface %d: %w", iface, err)
	}
	gh.iface = intf
	return nil
}

// ReleaseInterface releases the claimed interface and its config.
func (p *GousbPort) ReleaseInterface(h Handle, iface int) error {
	gh := h.(*gousbHandle)
	if gh.iface != nil {
		gh.iface.Close()
		gh.iface = nil
	}
	if gh.cfg != nil {
		gh.cfg.Close()
		gh.cfg = nil
	}
	return nil
}

// GetActiveConfigDescriptor reads the device descriptor's interface/
// endpoint tree without needing the interface claimed.
func (p *GousbPort) GetActiveConfigDescriptor(h Handle) (ConfigDescriptor, error) {
	gh := h.(*gousbHandle)
	cfgNum := gh.dev.Desc.Config
	cd, ok := gh.dev.Desc.Configs[cfgNum]
	if !ok {
		return ConfigDescriptor{}, fmt.Errorf("no active config descriptor %d", cfgNum)
	}
	var out ConfigDescriptor
	for _, id := range cd.Interfaces {
		var iface Interface
		iface.Number = id.Number
		for _, alt := range id.AltSettings {
			for _, ep := range alt.Endpoints {
				iface.Endpoints = append(iface.Endpoints, Endpoint{
					Address: uint8(ep.Address),
					Type:    fromGousbTransferType(ep.TransferType),
					Dir:     fromGousbDirection(ep.Direction),
				})
			}
		}
		out.Interfaces = append(out.Interfaces, iface)
	}
	return out, nil
}

func fromGousbTransferType(t gousb.TransferType) TransferType {
	switch t {
	case gousb.TransferTypeBulk:
		return TransferBulk
	case gousb.TransferTypeControl:
		return TransferControl
	case gousb.TransferTypeIsochronous:
		return TransferIsochronous
	default:
		return TransferInterrupt
	}
}

func fromGousbDirection(d gousb.EndpointDirection) TransferDirection {
	if d == gousb.EndpointDirectionOut {
		return DirectionOut
	}
	return DirectionIn
}

// ControlTransfer issues a control request.
func (p *GousbPort) ControlTransfer(h Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	gh := h.(*gousbHandle)
	gh.dev.ControlTimeout = timeout
	n, err := gh.dev.Control(requestType, request, value, index, data)
	if err != nil {
		return n, fmt.Errorf("control transfer: %w", err)
	}
	return n, nil
}

// InterruptTransfer reads or writes an interrupt endpoint, discovered and
// cached lazily on gh, per the endpoint's direction in the claimed
// interface's descriptor.
func (p *GousbPort) InterruptTransfer(h Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	gh := h.(*gousbHandle)
	if endpoint&0x80 != 0 {
		ep, err := gh.inEndpoint(endpoint)
		if err != nil {
			return 0, err
		}
		ep.Timeout = timeout
		n, err := ep.Read(buf)
		if err != nil {
			return n, fmt.Errorf("interrupt in transfer: %w", err)
		}
		return n, nil
	}
	ep, err := gh.outEndpoint(endpoint)
	if err != nil {
		return 0, err
	}
	ep.Timeout = timeout
	n, err := ep.Write(buf)
	if err != nil {
		return n, fmt.Errorf("interrupt out transfer: %w", err)
	}
	return n, nil
}

// BulkTransfer behaves like InterruptTransfer; gousb exposes the same
// endpoint types for both transfer kinds once claimed.
func (p *GousbPort) BulkTransfer(h Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	return p.InterruptTransfer(h, endpoint, buf, timeout)
}

func (h *gousbHandle) inEndpoint(addr uint8) (*gousb.InEndpoint, error) {
	if ep, ok := h.epIn[addr]; ok {
		return ep, nil
	}
	if h.iface == nil {
		return nil, fmt.Errorf("interrupt in transfer: interface not claimed")
	}
	ep, err := h.iface.InEndpoint(int(addr & 0x0F))
	if err != nil {
		return nil, fmt.Errorf("open in endpoint %#x: %w", addr, err)
	}
	h.epIn[addr] = ep
	return ep, nil
}

func (h *gousbHandle) outEndpoint(addr uint8) (*gousb.OutEndpoint, error) {
	if ep, ok := h.epOut[addr]; ok {
		return ep, nil
	}
	if h.iface == nil {
		return nil, fmt.Errorf("interrupt out transfer: interface not claimed")
	}
	ep, err := h.iface.OutEndpoint(int(addr & 0x0F))
	if err != nil {
		return nil, fmt.Errorf("open out endpoint %#x: %w", addr, err)
	}
	h.epOut[addr] = ep
	return ep, nil
}

// Close releases the interface (if still claimed) and closes the device.
func (p *GousbPort) Close(h Handle) error {
	gh := h.(*gousbHandle)
	_ = p.ReleaseInterface(h, 0)
	gh.dev.Close()
	return nil
}
