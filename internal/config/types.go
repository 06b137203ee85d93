// Package config loads device configurations from a JSON source
// that tolerates `//` and `/* */` comments and trailing commas, and serves
// priority-ordered lookup by (vendor, product).
package config

import (
	"encoding/json"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
)

// ByteArray is a byte slice that encodes to and decodes from a plain JSON
// array of numbers rather than the base64 string encoding.Marshal and
// Unmarshal give a bare []byte. A
// configuration author writes `"dataBytes": [0x05, 0x20]`, not a base64
// blob.
type ByteArray []byte

// MarshalJSON emits b as a JSON array of numbers.
func (b ByteArray) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON accepts a JSON array of numbers.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// SupportedSchemaVersion is the only schemaVersion this build accepts.
// A mismatch is fatal for that one file but does not abort loading the
// rest of the directory.
const SupportedSchemaVersion = "1.0"

// ProtocolFamily selects which ProtocolParser decodes a device's reports.
type ProtocolFamily string

const (
	FamilyGIP        ProtocolFamily = "GIP"
	FamilyXInput     ProtocolFamily = "XInput"
	FamilyGenericHID ProtocolFamily = "GenericHID"
	FamilySwitchHID  ProtocolFamily = "SwitchHID"
	FamilyPS4HID     ProtocolFamily = "PS4HID"
	FamilyPS5HID     ProtocolFamily = "PS5HID"
)

// Endpoints optionally pins explicit IN/OUT endpoint addresses, bypassing
// runtime discovery.
type Endpoints struct {
	In  *uint8 `json:"in,omitempty"`
	Out *uint8 `json:"out,omitempty"`
}

// Deadzones carries per-stick and per-trigger deadzone thresholds in [0,1].
// Zero-value (not configured) is resolved against family defaults by the
// caller (protocol.DefaultDeadzones), not here.
type Deadzones struct {
	LeftStick  *float64 `json:"leftStick,omitempty"`
	RightStick *float64 `json:"rightStick,omitempty"`
	Triggers   *float64 `json:"triggers,omitempty"`
}

// Quirk is a named, optionally-parameterized behavior toggle.
// Unknown quirk names are accepted at decode time and simply ignored by
// consumers.
type Quirk struct {
	Name       string         `json:"name"`
	Enabled    bool           `json:"enabled"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// IntParam reads an integer-valued parameter, returning ok=false if absent
// or not numeric. JSON numbers decode as float64 through map[string]any.
func (q Quirk) IntParam(name string, def int) (int, bool) {
	if q.Parameters == nil {
		return def, false
	}
	v, ok := q.Parameters[name]
	if !ok {
		return def, false
	}
	f, ok := v.(float64)
	if !ok {
		return def, false
	}
	return int(f), true
}

// FloatParam reads a float-valued parameter, returning ok=false if absent
// or not numeric.
func (q Quirk) FloatParam(name string, def float64) (float64, bool) {
	if q.Parameters == nil {
		return def, false
	}
	v, ok := q.Parameters[name]
	if !ok {
		return def, false
	}
	f, ok := v.(float64)
	if !ok {
		return def, false
	}
	return f, true
}

// BytesParam reads a byte-array-valued parameter (JSON array of numbers).
func (q Quirk) BytesParam(name string) ([]byte, bool) {
	if q.Parameters == nil {
		return nil, false
	}
	v, ok := q.Parameters[name]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]byte, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil, false
		}
		out = append(out, byte(f))
	}
	return out, true
}

// InitStepType names the kind of an initialization step.
type InitStepType string

const (
	StepControl   InitStepType = "control"
	StepInterrupt InitStepType = "interrupt"
	StepBulk      InitStepType = "bulk"
	StepGip       InitStepType = "gip"
	StepDelay     InitStepType = "delay"
)

// InitStep is one step of a device's initialization sequence.
// Control/interrupt/bulk/gip steps send DataBytes; delay steps sleep.
type InitStep struct {
	Type        InitStepType `json:"type"`
	Description string       `json:"description,omitempty"`
	DataBytes   ByteArray    `json:"dataBytes,omitempty"`
	Endpoint    uint8        `json:"endpoint,omitempty"`
	RequestType uint8        `json:"requestType,omitempty"`
	Request     uint8        `json:"request,omitempty"`
	Value       uint16       `json:"value,omitempty"`
	Index       uint16       `json:"index,omitempty"`
	TimeoutMs   uint32       `json:"timeoutMs,omitempty"`
	DelayMs     uint32       `json:"delayMs,omitempty"`
}

// ReportField describes one field of a configured HID report descriptor,
// used by the GenericHID parser when a device supplies reportDescriptor
// instead of relying on the fallback fixed layout.
type ReportField struct {
	Name       string `json:"name"`
	ByteOffset int    `json:"byteOffset"`
	BitOffset  int    `json:"bitOffset,omitempty"`
	BitWidth   int    `json:"bitWidth,omitempty"`
	Kind       string `json:"kind"` // "button" | "axis" | "trigger" | "hat"
}

// Configuration is a single loaded, immutable-after-load device config
// record.
type Configuration struct {
	SchemaVersion    string           `json:"schemaVersion"`
	DeviceID         deviceid.ID      `json:"-"`
	VendorIDRaw      uint16           `json:"-"`
	ProductIDRaw     uint16           `json:"-"`
	Name             string           `json:"name"`
	ProtocolFamily   ProtocolFamily   `json:"protocolFamily"`
	Endpoints        *Endpoints       `json:"endpoints,omitempty"`
	ReportSize       int              `json:"reportSize"`
	Initialization   []InitStep       `json:"initialization"`
	DeadzonesCfg     Deadzones        `json:"deadzones,omitempty"`
	Quirks           map[string]Quirk `json:"-"`
	Priority         int              `json:"priority,omitempty"`
	ReportDescriptor []ReportField    `json:"reportDescriptor,omitempty"`
	Enabled          bool             `json:"-"`
}

// QuirkEnabled reports whether the named quirk is present and enabled.
func (c *Configuration) QuirkEnabled(name string) (Quirk, bool) {
	q, ok := c.Quirks[name]
	return q, ok && q.Enabled
}
