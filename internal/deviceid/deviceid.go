// Package deviceid identifies a controller family by USB vendor/product pair.
package deviceid

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a (vendor, product) pair. It is comparable and usable as a map key,
// matching the way DeviceConfiguration and Profile key off of it.
type ID struct {
	VendorID  uint16
	ProductID uint16
}

// New builds an ID from a vendor/product pair.
func New(vendorID, productID uint16) ID {
	return ID{VendorID: vendorID, ProductID: productID}
}

// String renders the ID as VVVV:PPPP hex, e.g. "057e:2009".
func (id ID) String() string {
	return fmt.Sprintf("%04x:%04x", id.VendorID, id.ProductID)
}

// Parse decodes a "VVVV:PPPP" hex pair, the form CLI flags and config
// index entries accept, into an ID.
func Parse(s string) (ID, error) {
	vid, pid, ok := strings.Cut(s, ":")
	if !ok {
		return ID{}, fmt.Errorf("device id %q: expected VVVV:PPPP", s)
	}
	v, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return ID{}, fmt.Errorf("device id %q: invalid vendor id: %w", s, err)
	}
	p, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return ID{}, fmt.Errorf("device id %q: invalid product id: %w", s, err)
	}
	return ID{VendorID: uint16(v), ProductID: uint16(p)}, nil
}
