package protocol

import (
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

// gipButtonBit is one face/shoulder button's (byte offset, mask) pair in
// the 0x20 full-input report.
type gipButtonBit struct {
	button events.Button
	offset int
	mask   byte
}

var gip20Buttons = []gipButtonBit{
	{events.ButtonA, 4, 0x10},
	{events.ButtonB, 4, 0x20},
	{events.ButtonX, 4, 0x40},
	{events.ButtonY, 4, 0x80},
	{events.ButtonMenu, 4, 0x04},
	{events.ButtonView, 4, 0x08},
	{events.ButtonL, 5, 0x10},
	{events.ButtonR, 5, 0x20},
}

// GIPParser decodes the Xbox-family Gamepad Interface Protocol:
// three report types routed by byte 0, plus a legacy 0x06 fallback layout.
type GIPParser struct {
	Deadzones Deadzones
}

// Parse implements Parser.
func (p *GIPParser) Parse(report []byte, m *mirror.State) bool {
	if len(report) == 0 {
		return false
	}
	switch report[0] {
	case 0x20:
		return p.parseFullInput(report, m)
	case 0x03:
		return p.parseFaceButtons(report, m)
	case 0x07:
		return p.parseGuide(report, m)
	case 0x06:
		return p.parseLegacy(report, m)
	default:
		return true // recognized-but-empty: no panic, no event
	}
}

func (p *GIPParser) parseFullInput(report []byte, m *mirror.State) bool {
	if len(report) < 19 {
		return false
	}
	for _, b := range gip20Buttons {
		m.UpdateButton(b.button, report[b.offset]&b.mask != 0)
	}

	dpad := report[5] & 0x0F
	h, v := dpadFromGIPNibble(dpad)
	m.UpdateDPad(events.DefaultDPad, h, v)

	lt := le16(report, 6)
	rt := le16(report, 8)
	ltv := applyTriggerDeadzone(float32(lt)/1023.0, p.Deadzones.Triggers)
	rtv := applyTriggerDeadzone(float32(rt)/1023.0, p.Deadzones.Triggers)
	m.UpdateTrigger(events.TriggerLeft, ltv, uint8(clampU16(lt)))
	m.UpdateTrigger(events.TriggerRight, rtv, uint8(clampU16(rt)))

	lx, ly := le16s(report, 10), le16s(report, 12)
	rx, ry := le16s(report, 14), le16s(report, 16)
	applyStick(m, events.AxisLeftX, events.AxisLeftY, lx, ly, p.Deadzones.LeftStick)
	applyStick(m, events.AxisRightX, events.AxisRightY, rx, ry, p.Deadzones.RightStick)
	return true
}

func (p *GIPParser) parseFaceButtons(report []byte, m *mirror.State) bool {
	if len(report) < 5 {
		return false
	}
	if report[1] != 0x01 {
		return true
	}
	m.UpdateButton(events.ButtonA, report[4]&0x10 != 0)
	m.UpdateButton(events.ButtonB, report[4]&0x20 != 0)
	m.UpdateButton(events.ButtonX, report[4]&0x40 != 0)
	m.UpdateButton(events.ButtonY, report[4]&0x80 != 0)
	return true
}

func (p *GIPParser) parseGuide(report []byte, m *mirror.State) bool {
	if len(report) < 5 {
		return false
	}
	m.UpdateButton(events.ButtonGuide, report[4] == 1)
	return true
}

func (p *GIPParser) parseLegacy(report []byte, m *mirror.State) bool {
	if len(report) < 0x0C+4 {
		return false
	}
	for _, b := range gip20Buttons {
		m.UpdateButton(b.button, report[b.offset]&b.mask != 0)
	}
	lt, rt := report[0x06], report[0x07]
	m.UpdateTrigger(events.TriggerLeft, applyTriggerDeadzone(normalizeTrigger(lt), p.Deadzones.Triggers), lt)
	m.UpdateTrigger(events.TriggerRight, applyTriggerDeadzone(normalizeTrigger(rt), p.Deadzones.Triggers), rt)

	lx, ly := le16s(report, 0x08), le16s(report, 0x0A)
	rx, ry := le16s(report, 0x0C), le16s(report, 0x0E)
	applyStick(m, events.AxisLeftX, events.AxisLeftY, lx, ly, p.Deadzones.LeftStick)
	applyStick(m, events.AxisRightX, events.AxisRightY, rx, ry, p.Deadzones.RightStick)
	return true
}

// dpadFromGIPNibble decodes the low nibble of GIP byte 5: bit0=up, bit1=down,
// bit2=left, bit3=right.
func dpadFromGIPNibble(n byte) (h, v events.DPadDir) {
	v = events.DirNeutral
	switch {
	case n&0x01 != 0:
		v = events.DirNorth
	case n&0x02 != 0:
		v = events.DirSouth
	}
	h = events.DirNeutral
	switch {
	case n&0x04 != 0:
		h = events.DirWest
	case n&0x08 != 0:
		h = events.DirEast
	}
	return h, v
}

// applyStick normalizes a raw stick pair, applies the radial deadzone, and
// feeds the resulting axis values into the mirror.
func applyStick(m *mirror.State, xAxis, yAxis events.Axis, rawX, rawY int16, deadzone float64) {
	x, y := normalizeStick(rawX), normalizeStick(rawY)
	x, y = applyDeadzone(x, y, deadzone)
	m.UpdateAxis(xAxis, x, rawX)
	m.UpdateAxis(yAxis, y, rawY)
}

func clampU16(v uint16) uint16 {
	if v > 255 {
		return 255
	}
	return v
}
