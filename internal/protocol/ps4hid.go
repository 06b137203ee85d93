package protocol

import (
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

type ps4ButtonBit struct {
	button events.Button
	offset int
	mask   byte
}

// ps4FaceButtons are the buttons above the D-pad hat nibble, packed into
// bytes 5-6 of a PS4 report: byte 5's low nibble is the
// D-pad hat, its high bits hold square/cross/circle/triangle-equivalents.
var ps4FaceButtons = []ps4ButtonBit{
	{events.ButtonX, 5, 0x10}, // Cross
	{events.ButtonA, 5, 0x20}, // Circle
	{events.ButtonB, 5, 0x40}, // Square
	{events.ButtonY, 5, 0x80}, // Triangle
	{events.ButtonL, 6, 0x01},
	{events.ButtonR, 6, 0x02},
	{events.ButtonZL, 6, 0x04},
	{events.ButtonZR, 6, 0x08},
	{events.ButtonMinus, 6, 0x10}, // Share
	{events.ButtonPlus, 6, 0x20},  // Options
	{events.ButtonLStick, 6, 0x40},
	{events.ButtonRStick, 6, 0x80},
}

// PS4HIDParser decodes a DualShock 4 HID report, type 0x01.
type PS4HIDParser struct {
	Deadzones Deadzones
}

// Parse implements Parser.
func (p *PS4HIDParser) Parse(report []byte, m *mirror.State) bool {
	if len(report) < 10 || report[0] != 0x01 {
		return false
	}
	for _, b := range ps4FaceButtons {
		m.UpdateButton(b.button, report[b.offset]&b.mask != 0)
	}

	dpad := report[5] & 0x0F
	if dpad >= 8 {
		m.UpdateDPad(events.DefaultDPad, events.DirNeutral, events.DirNeutral)
	} else {
		h, v := dpadFromHat(dpad)
		m.UpdateDPad(events.DefaultDPad, h, v)
	}

	lx, ly := centeredByte(report[1]), centeredByte(report[2])
	rx, ry := centeredByte(report[3]), centeredByte(report[4])
	applyStick(m, events.AxisLeftX, events.AxisLeftY, lx, ly, p.Deadzones.LeftStick)
	applyStick(m, events.AxisRightX, events.AxisRightY, rx, ry, p.Deadzones.RightStick)

	lt, rt := report[8], report[9]
	m.UpdateTrigger(events.TriggerLeft, applyTriggerDeadzone(normalizeTrigger(lt), p.Deadzones.Triggers), lt)
	m.UpdateTrigger(events.TriggerRight, applyTriggerDeadzone(normalizeTrigger(rt), p.Deadzones.Triggers), rt)
	return true
}
