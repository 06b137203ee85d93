package protocol

import (
	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

// GenericHIDParser decodes a device whose layout is described by a
// configured report descriptor field list, falling back to a fixed layout
// when no descriptor is configured.
type GenericHIDParser struct {
	Deadzones Deadzones
	Fields    []config.ReportField
}

// Parse implements Parser.
func (p *GenericHIDParser) Parse(report []byte, m *mirror.State) bool {
	if len(report) == 0 {
		return false
	}
	if len(p.Fields) > 0 {
		return p.parseDescriptor(report, m)
	}
	return p.parseFallback(report, m)
}

// parseDescriptor applies each configured field in turn. A field whose
// byte falls outside the report is skipped rather than aborting the whole
// decode, since descriptor fields are independent of one another.
func (p *GenericHIDParser) parseDescriptor(report []byte, m *mirror.State) bool {
	applied := false
	for _, f := range p.Fields {
		if f.ByteOffset < 0 || f.ByteOffset >= len(report) {
			continue
		}
		switch f.Kind {
		case "button":
			bit := f.BitOffset
			mask := byte(1) << uint(bit)
			m.UpdateButton(events.Button(f.Name), report[f.ByteOffset]&mask != 0)
			applied = true
		case "axis":
			if f.ByteOffset+1 >= len(report) {
				continue
			}
			raw := le16s(report, f.ByteOffset)
			v := normalizeStick(raw)
			m.UpdateAxis(events.Axis(f.Name), v, raw)
			applied = true
		case "trigger":
			raw := report[f.ByteOffset]
			m.UpdateTrigger(events.Trigger(f.Name), normalizeTrigger(raw), raw)
			applied = true
		case "hat":
			m.UpdateHat(events.HatID(f.Name), hatAngle(report[f.ByteOffset]))
			applied = true
		}
	}
	return applied
}

// parseFallback decodes the descriptor-less layout: bytes 0..4 as axis
// bytes and button bits from byte 2 on.
func (p *GenericHIDParser) parseFallback(report []byte, m *mirror.State) bool {
	if len(report) < 2 {
		return false
	}
	if len(report) >= 2 {
		lx, ly := centeredByte(report[0]), centeredByte(report[1])
		applyStick(m, events.AxisLeftX, events.AxisLeftY, lx, ly, p.Deadzones.LeftStick)
	}
	if len(report) >= 4 {
		rx, ry := centeredByte(report[2]), centeredByte(report[3])
		applyStick(m, events.AxisRightX, events.AxisRightY, rx, ry, p.Deadzones.RightStick)
	}
	for byteIdx := 2; byteIdx < len(report); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			name := events.Button(genericButtonName(byteIdx, bit))
			m.UpdateButton(name, report[byteIdx]&(1<<uint(bit)) != 0)
		}
	}
	return true
}

// hatAngle converts the 8-way hat nibble to degrees, -1 when centered.
func hatAngle(v uint8) int {
	if v > 7 {
		return -1
	}
	return int(v) * 45
}

func genericButtonName(byteIdx, bit int) string {
	const letters = "01234567"
	return "B" + string(rune('0'+byteIdx)) + "_" + string(letters[bit])
}
