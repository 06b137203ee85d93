// Package protocol implements the family-specific byte-level decoders:
// each ProtocolParser turns a raw interrupt-IN report into mutations
// on a mirror.State. Parsers never hold device state of their own beyond
// the configured deadzones; all "did this change" logic lives in mirror.
package protocol

import (
	"math"

	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

// Deadzones carries the three resolved thresholds a parser applies before
// emitting stick/trigger state.
type Deadzones struct {
	LeftStick  float64
	RightStick float64
	Triggers   float64
}

// DefaultDeadzones returns the family-default thresholds: left stick
// 0.24, right stick 0.27, triggers 0.
func DefaultDeadzones() Deadzones {
	return Deadzones{LeftStick: 0.24, RightStick: 0.27, Triggers: 0}
}

// ResolveDeadzones overlays a configuration's optional overrides onto the
// family defaults; any unset field keeps its default.
func ResolveDeadzones(cfg config.Deadzones) Deadzones {
	dz := DefaultDeadzones()
	if cfg.LeftStick != nil {
		dz.LeftStick = *cfg.LeftStick
	}
	if cfg.RightStick != nil {
		dz.RightStick = *cfg.RightStick
	}
	if cfg.Triggers != nil {
		dz.Triggers = *cfg.Triggers
	}
	return dz
}

// Parser decodes one family's raw reports into mirror.State mutations.
// Parse never returns an error: a malformed report is silently ignored
// rather than aborting the session; the bool result records it for
// callers that want to observe it (tests, debug tooling).
type Parser interface {
	// Parse decodes report into m. ok is false when the report was too
	// short or otherwise malformed for this family and nothing was
	// applied.
	Parse(report []byte, m *mirror.State) (ok bool)
}

// New constructs the Parser for a protocol family with resolved deadzones.
// An unrecognized family falls back to GenericHID's fixed fallback layout:
// any device that reached here at all has a Configuration, so silently
// refusing to parse its reports would be worse than a best-effort decode.
func New(family config.ProtocolFamily, dz Deadzones, descriptor []config.ReportField) Parser {
	switch family {
	case config.FamilyGIP:
		return &GIPParser{Deadzones: dz}
	case config.FamilyXInput:
		return &XInputParser{Deadzones: dz}
	case config.FamilySwitchHID:
		return &SwitchHIDParser{Deadzones: dz}
	case config.FamilyPS4HID:
		return &PS4HIDParser{Deadzones: dz}
	case config.FamilyPS5HID:
		return &PS5HIDParser{Deadzones: dz}
	case config.FamilyGenericHID:
		return &GenericHIDParser{Deadzones: dz, Fields: descriptor}
	default:
		return &GenericHIDParser{Deadzones: dz, Fields: descriptor}
	}
}

// normalizeStick converts a raw signed 16-bit stick sample to [-1,1].
func normalizeStick(raw int16) float32 {
	if raw < -32768 {
		raw = -32768
	}
	return float32(raw) / 32767.0
}

// normalizeTrigger converts a raw unsigned 8-bit trigger sample to [0,1].
func normalizeTrigger(raw uint8) float32 {
	return float32(raw) / 255.0
}

// applyDeadzone applies a radial deadzone: below the threshold the
// stick reports centered; above it, the remaining travel is rescaled so the
// output still reaches 1.0 at full deflection, preserving direction.
func applyDeadzone(x, y float32, t float64) (float32, float32) {
	m := math.Hypot(float64(x), float64(y))
	if m < t {
		return 0, 0
	}
	if m == 0 {
		return 0, 0
	}
	scale := (m - t) / (1 - t)
	if scale < 0 {
		scale = 0
	}
	ux, uy := float64(x)/m, float64(y)/m
	return float32(ux * scale), float32(uy * scale)
}

// applyTriggerDeadzone clamps a normalized trigger value below its
// threshold to zero, matching applyDeadzone's one-dimensional case.
func applyTriggerDeadzone(v float32, t float64) float32 {
	if float64(v) < t {
		return 0
	}
	return v
}

// dpadFromHat maps the 4-bit Switch/PS4 hat encoding (0=N,1=NE,...,7=NW,
// 8 and above=neutral) to a two-axis DPadDir pair; GIP instead uses
// discrete per-direction bits, handled in gip.go directly.
func dpadFromHat(v uint8) (h, vert events.DPadDir) {
	switch v {
	case 0:
		return events.DirNeutral, events.DirNorth
	case 1:
		return events.DirEast, events.DirNorth
	case 2:
		return events.DirEast, events.DirNeutral
	case 3:
		return events.DirEast, events.DirSouth
	case 4:
		return events.DirNeutral, events.DirSouth
	case 5:
		return events.DirWest, events.DirSouth
	case 6:
		return events.DirWest, events.DirNeutral
	case 7:
		return events.DirWest, events.DirNorth
	default:
		return events.DirNeutral, events.DirNeutral
	}
}

func le16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func le16s(b []byte, off int) int16 {
	return int16(le16(b, off))
}

func centeredByte(b byte) int16 {
	return (int16(b) - 128) * 256
}
