package protocol

import "github.com/dalmatheo/gamepadd/internal/mirror"

// PS5HIDParser decodes a DualSense HID report, which mirrors the PS4
// layout with identical button topology for this core. The larger
// DualSense report carries gyro/touchpad/battery data
// this core does not model, so decoding simply reuses the PS4 byte
// topology over the report's shared leading bytes.
type PS5HIDParser struct {
	Deadzones Deadzones
}

// Parse implements Parser.
func (p *PS5HIDParser) Parse(report []byte, m *mirror.State) bool {
	inner := PS4HIDParser{Deadzones: p.Deadzones}
	return inner.Parse(report, m)
}
