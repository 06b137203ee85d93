package protocol

import (
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

type switchButtonBit struct {
	button events.Button
	offset int
	mask   byte
}

var switchButtons = []switchButtonBit{
	{events.ButtonY, 3, 0x01},
	{events.ButtonX, 3, 0x02},
	{events.ButtonB, 3, 0x04},
	{events.ButtonA, 3, 0x08},
	{events.ButtonL, 3, 0x40},
	{events.ButtonZL, 3, 0x80},
	{events.ButtonMinus, 4, 0x01},
	{events.ButtonPlus, 4, 0x02},
	{events.ButtonRStick, 4, 0x04},
	{events.ButtonLStick, 4, 0x08},
	{events.ButtonGuide, 4, 0x10},
	{events.ButtonCapture, 4, 0x20},
}

// SwitchHIDParser decodes a Switch Pro-family HID report, type 0x30.
type SwitchHIDParser struct {
	Deadzones Deadzones
}

// Parse implements Parser.
func (p *SwitchHIDParser) Parse(report []byte, m *mirror.State) bool {
	if len(report) < 10 || report[0] != 0x30 {
		return false
	}
	for _, b := range switchButtons {
		m.UpdateButton(b.button, report[b.offset]&b.mask != 0)
	}

	dpad := (report[2] >> 4) & 0x0F
	if dpad >= 8 {
		m.UpdateDPad(events.DefaultDPad, events.DirNeutral, events.DirNeutral)
	} else {
		h, v := dpadFromHat(dpad)
		m.UpdateDPad(events.DefaultDPad, h, v)
	}

	lx, ly := centeredByte(report[6]), centeredByte(report[7])
	rx, ry := centeredByte(report[8]), centeredByte(report[9])
	applyStick(m, events.AxisLeftX, events.AxisLeftY, lx, ly, p.Deadzones.LeftStick)
	applyStick(m, events.AxisRightX, events.AxisRightY, rx, ry, p.Deadzones.RightStick)
	return true
}
