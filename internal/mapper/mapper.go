// Package mapper implements the OutputMapper: applying a Profile to
// normalized InputEvents and issuing host key/mouse calls through an
// EventSink, with held-key accounting and chord detection.
package mapper

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/profile"
)

// EventSink is the external host input synthesizer: "assumed as
// a sink with key_down(code, modifiers), key_up, mouse_move(dx,dy),
// mouse_click(button), mouse_scroll(dx,dy)". Implementations must accept
// concurrent calls; Mapper itself only ever calls it from the single
// task that owns a given device's dirty-event stream, but distinct devices
// may call in concurrently.
type EventSink interface {
	KeyDown(code uint16, modifier profile.KeyModifier) error
	KeyUp(code uint16, modifier profile.KeyModifier) error
	MouseMove(dx, dy float64) error
	MouseClick(button string) error
	MouseScroll(dx, dy float64) error
}

// DefaultMouseSensitivity and DefaultMouseDeadzone shape stick-to-pointer
// motion: dx = value * sensitivity * 10, and no motion at all below the
// deadzone.
const (
	DefaultMouseSensitivity = 1.0
	DefaultMouseDeadzone    = 0.08
)

type heldKey struct {
	device   deviceid.ID
	buttonID string
}

// Mapper owns active_inputs and the active Profile per device, and issues
// EventSink calls.
type Mapper struct {
	mu sync.Mutex

	sink EventSink
	log  zerolog.Logger

	// sinkErrLogged throttles sink failure logging to once per device, so
	// a permission-denied sink does not flood the log on every event.
	sinkErrLogged map[deviceid.ID]bool

	// activeInputs tracks held host keys: true entries have been
	// issued key_down and not yet key_up.
	activeInputs map[heldKey]bool

	// profiles is the active Profile for each device; devices without an
	// entry use profile.Default().
	profiles map[deviceid.ID]profile.Profile

	// pendingChord tracks, per device, which components of a not-yet-fired
	// chord mapping are currently pressed, so a chord fires exactly once
	// on the transition that completes it.
	pendingChord map[deviceid.ID]map[string]map[string]bool

	mouseSensitivity float64
	mouseDeadzone    float64
}

// New builds a Mapper calling sink for every mapped output.
func New(sink EventSink, log zerolog.Logger) *Mapper {
	return &Mapper{
		sink:             sink,
		log:              log,
		sinkErrLogged:    make(map[deviceid.ID]bool),
		activeInputs:     make(map[heldKey]bool),
		profiles:         make(map[deviceid.ID]profile.Profile),
		pendingChord:     make(map[deviceid.ID]map[string]map[string]bool),
		mouseSensitivity: DefaultMouseSensitivity,
		mouseDeadzone:    DefaultMouseDeadzone,
	}
}

// SetProfile installs the active Profile for a device. A zero-value
// profile.Profile falls back to profile.Default() at lookup time.
func (m *Mapper) SetProfile(id deviceid.ID, p profile.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[id] = p
}

func (m *Mapper) profileFor(id deviceid.ID) profile.Profile {
	if p, ok := m.profiles[id]; ok {
		return p
	}
	return profile.Default()
}

// Route applies the device's active profile to one batch of events
// (everything one report's EmitDirty produced), in order: a report's
// events are all handled before any event from a subsequent report.
func (m *Mapper) Route(id deviceid.ID, batch []events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.profileFor(id)
	pressedThisBatch := make(map[string]bool)

	for _, ev := range batch {
		switch e := ev.(type) {
		case events.ButtonPress:
			pressedThisBatch[string(e.Button)] = true
			m.onDigitalPress(id, p, string(e.Button), pressedThisBatch)
		case events.ButtonRelease:
			m.onDigitalRelease(id, p, string(e.Button))
		case events.AxisMove:
			m.onAxisMove(id, p, e)
		case events.TriggerMove:
			m.onTriggerMove(id, p, e, pressedThisBatch)
		}
	}
}

// onDigitalPress handles a plain button's press edge and advances chord
// tracking for every chord mapping that references this button.
func (m *Mapper) onDigitalPress(id deviceid.ID, p profile.Profile, buttonID string, pressedThisBatch map[string]bool) {
	if mapping, ok := p.MappingFor(buttonID); ok && !mapping.IsChord() {
		m.fire(id, mapping)
	}
	m.advanceChords(id, p, buttonID, pressedThisBatch)
}

// advanceChords records buttonID as pressed against every chord mapping
// containing it, firing the mapping the instant its full component set is
// pressed. Components pressed in earlier batches count for as long as they
// stay held. There is no timer; only the transition that completes the set
// fires.
func (m *Mapper) advanceChords(id deviceid.ID, p profile.Profile, buttonID string, pressedThisBatch map[string]bool) {
	for _, mapping := range p.ButtonMappings {
		if !mapping.IsChord() {
			continue
		}
		components := mapping.Chord()
		contains := false
		for _, c := range components {
			if c == buttonID {
				contains = true
				break
			}
		}
		if !contains {
			continue
		}

		if m.pendingChord[id] == nil {
			m.pendingChord[id] = make(map[string]map[string]bool)
		}
		set := m.pendingChord[id][mapping.ButtonIdentifier]
		if set == nil {
			set = make(map[string]bool)
			m.pendingChord[id][mapping.ButtonIdentifier] = set
		}
		set[buttonID] = true

		complete := true
		for _, c := range components {
			if !set[c] && !pressedThisBatch[c] {
				complete = false
				break
			}
			if !set[c] {
				set[c] = true
			}
		}
		if complete {
			m.fire(id, mapping)
		}
	}
}

// onDigitalRelease clears a plain mapping's held state and invalidates any
// chord tracking that referenced the released button: a release of any
// component un-holds the chord.
func (m *Mapper) onDigitalRelease(id deviceid.ID, p profile.Profile, buttonID string) {
	if mapping, ok := p.MappingFor(buttonID); ok && !mapping.IsChord() {
		m.release(id, mapping)
	}
	for _, mapping := range p.ButtonMappings {
		if !mapping.IsChord() {
			continue
		}
		for _, c := range mapping.Chord() {
			if c != buttonID {
				continue
			}
			if set := m.pendingChord[id][mapping.ButtonIdentifier]; set != nil {
				delete(set, buttonID)
			}
			m.release(id, mapping)
		}
	}
}

// onAxisMove maps a stick axis to relative pointer motion.
func (m *Mapper) onAxisMove(id deviceid.ID, p profile.Profile, e events.AxisMove) {
	for _, mm := range p.MouseMappings {
		if mm.Action != "move" || mm.ButtonIdentifier != string(e.Axis) {
			continue
		}
		if absF(float64(e.Value)) <= m.mouseDeadzone {
			continue
		}
		sensitivity := mm.Sensitivity
		if sensitivity == 0 {
			sensitivity = m.mouseSensitivity
		}
		delta := float64(e.Value) * sensitivity * 10
		switch e.Axis {
		case events.AxisLeftX, events.AxisRightX:
			_ = m.sink.MouseMove(delta, 0)
		case events.AxisLeftY, events.AxisRightY:
			_ = m.sink.MouseMove(0, delta)
		}
	}
}

// onTriggerMove treats a trigger's IsPressed crossing as a press/release
// edge, exactly like a digital button: a direct mapping keyed by the
// trigger's identifier fires, and the trigger also counts as a component
// of any chord that names it.
func (m *Mapper) onTriggerMove(id deviceid.ID, p profile.Profile, e events.TriggerMove, pressedThisBatch map[string]bool) {
	triggerID := string(e.Trigger)
	if e.IsPressed {
		pressedThisBatch[triggerID] = true
		m.onDigitalPress(id, p, triggerID, pressedThisBatch)
	} else {
		m.onDigitalRelease(id, p, triggerID)
	}
}

// fire issues key_down exactly once per press edge; repeating a press
// when already held is a no-op.
func (m *Mapper) fire(id deviceid.ID, mapping profile.ButtonMapping) {
	key := heldKey{device: id, buttonID: mapping.ButtonIdentifier}
	if m.activeInputs[key] {
		return
	}
	if err := m.sink.KeyDown(mapping.KeyCode, mapping.Modifier); err != nil {
		m.logSinkErr(id, err)
		return
	}
	m.activeInputs[key] = true
}

// release issues key_up exactly once per release edge.
func (m *Mapper) release(id deviceid.ID, mapping profile.ButtonMapping) {
	key := heldKey{device: id, buttonID: mapping.ButtonIdentifier}
	if !m.activeInputs[key] {
		return
	}
	if err := m.sink.KeyUp(mapping.KeyCode, mapping.Modifier); err != nil {
		m.logSinkErr(id, err)
		return
	}
	delete(m.activeInputs, key)
}

// ReleaseAll clears every held entry for a device, issuing the matching
// key_up calls. Session close calls this before dropping the device.
func (m *Mapper) ReleaseAll(id deviceid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseAllLocked(id)
}

func (m *Mapper) releaseAllLocked(id deviceid.ID) {
	p := m.profileFor(id)
	for key, held := range m.activeInputs {
		if !held || key.device != id {
			continue
		}
		if mapping, ok := p.MappingFor(key.buttonID); ok {
			_ = m.sink.KeyUp(mapping.KeyCode, mapping.Modifier)
		}
		delete(m.activeInputs, key)
	}
	delete(m.pendingChord, id)
}

// ReleaseAllDevices runs ReleaseAll across every device with held state,
// for global shutdown.
func (m *Mapper) ReleaseAllDevices() {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[deviceid.ID]bool)
	for key := range m.activeInputs {
		seen[key.device] = true
	}
	for id := range seen {
		m.releaseAllLocked(id)
	}
}

// ActiveCount returns the number of held entries for id, for tests
// verifying the invariant 1 accounting.
func (m *Mapper) ActiveCount(id deviceid.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, held := range m.activeInputs {
		if held && key.device == id {
			n++
		}
	}
	return n
}

// logSinkErr logs a sink failure once per device; sink errors never tear
// the session down.
func (m *Mapper) logSinkErr(id deviceid.ID, err error) {
	if m.sinkErrLogged[id] {
		return
	}
	m.sinkErrLogged[id] = true
	m.log.Warn().Err(err).Str("device_id", id.String()).Msg("event sink rejected input")
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
