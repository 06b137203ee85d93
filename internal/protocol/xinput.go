package protocol

import (
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

// xinputButtonBit is one digital button's bit position within the 16-bit
// wButtons field at offset 2 of a legacy XInput report.
type xinputButtonBit struct {
	button events.Button
	mask   uint16
}

var xinputButtons = []xinputButtonBit{
	{events.ButtonMenu, 0x0010}, // START
	{events.ButtonView, 0x0020}, // BACK
	{events.ButtonLStick, 0x0040},
	{events.ButtonRStick, 0x0080},
	{events.ButtonL, 0x0100},
	{events.ButtonR, 0x0200},
	{events.ButtonGuide, 0x0400},
	{events.ButtonA, 0x1000},
	{events.ButtonB, 0x2000},
	{events.ButtonX, 0x4000},
	{events.ButtonY, 0x8000},
}

// XInputParser decodes the legacy Xbox 360 XInput wire format: a fixed
// 14-byte report with a `0x00 0x0F` header.
type XInputParser struct {
	Deadzones Deadzones
}

// Parse implements Parser.
func (p *XInputParser) Parse(report []byte, m *mirror.State) bool {
	if len(report) < 14 {
		return false
	}
	// header is advisory, not load-bearing: a device that drifts from the
	// textbook 0x00 0x0F preamble still gets decoded rather than dropped.
	_ = report[0] == 0x00 && report[1] == 0x0F

	buttons := le16(report, 2)
	for _, b := range xinputButtons {
		m.UpdateButton(b.button, buttons&b.mask != 0)
	}
	h, v := dpadFromXInputBits(buttons)
	m.UpdateDPad(events.DefaultDPad, h, v)

	lt, rt := report[4], report[5]
	m.UpdateTrigger(events.TriggerLeft, applyTriggerDeadzone(normalizeTrigger(lt), p.Deadzones.Triggers), lt)
	m.UpdateTrigger(events.TriggerRight, applyTriggerDeadzone(normalizeTrigger(rt), p.Deadzones.Triggers), rt)

	lx, ly := le16s(report, 6), le16s(report, 8)
	rx, ry := le16s(report, 10), le16s(report, 12)
	applyStick(m, events.AxisLeftX, events.AxisLeftY, lx, ly, p.Deadzones.LeftStick)
	applyStick(m, events.AxisRightX, events.AxisRightY, rx, ry, p.Deadzones.RightStick)
	return true
}

func dpadFromXInputBits(buttons uint16) (h, v events.DPadDir) {
	v = events.DirNeutral
	switch {
	case buttons&0x0001 != 0:
		v = events.DirNorth
	case buttons&0x0002 != 0:
		v = events.DirSouth
	}
	h = events.DirNeutral
	switch {
	case buttons&0x0004 != 0:
		h = events.DirWest
	case buttons&0x0008 != 0:
		h = events.DirEast
	}
	return h, v
}
