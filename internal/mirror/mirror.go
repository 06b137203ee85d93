// Package mirror implements the per-device authoritative input state with
// dirty-bit tracking. A ProtocolParser
// drives a MirrorState's Update* methods; InputRouter then calls EmitDirty
// to collect exactly the state transitions since the last call, in a fixed
// class order (buttons, axes, triggers, dpads, hats), and the dirty set is
// always empty immediately after.
package mirror

import (
	"math"
	"sync"

	"github.com/dalmatheo/gamepadd/internal/events"
)

// AnalogEpsilon is the minimum absolute delta an analog value must move by
// to count as a change.
const AnalogEpsilon = 1e-3

// DefaultStickButtonThreshold is the deflection magnitude, on [0,1], above
// which a stick is considered "pressed as a button".
const DefaultStickButtonThreshold = 0.9

// DefaultTriggerPressThreshold is the analog value above which a trigger's
// digital IsPressed edge fires.
const DefaultTriggerPressThreshold = 0.5

type dpadState struct {
	Horizontal events.DPadDir
	Vertical   events.DPadDir
}

// State is a per-device mirrored input state with dirty-edge tracking.
type State struct {
	mu sync.Mutex

	buttons        map[events.Button]bool
	axes           map[events.Axis]float32
	axesRaw        map[events.Axis]int16
	triggers       map[events.Trigger]float32
	triggersRaw    map[events.Trigger]uint8
	triggerPressed map[events.Trigger]bool
	dpads          map[events.DPadID]dpadState
	hats           map[events.HatID]int

	stickButtonThreshold  float32
	triggerPressThreshold float32

	dirtyButtonsOrder []events.Button
	dirtyButtonsSet   map[events.Button]bool
	dirtyAxesOrder    []events.Axis
	dirtyAxesSet      map[events.Axis]bool
	dirtyTrigOrder    []events.Trigger
	dirtyTrigSet      map[events.Trigger]bool
	dirtyDPadOrder    []events.DPadID
	dirtyDPadSet      map[events.DPadID]bool
	dirtyHatOrder     []events.HatID
	dirtyHatSet       map[events.HatID]bool
}

// New returns an empty State with default thresholds.
func New() *State {
	return &State{
		buttons:               make(map[events.Button]bool),
		axes:                  make(map[events.Axis]float32),
		axesRaw:               make(map[events.Axis]int16),
		triggers:              make(map[events.Trigger]float32),
		triggersRaw:           make(map[events.Trigger]uint8),
		triggerPressed:        make(map[events.Trigger]bool),
		dpads:                 make(map[events.DPadID]dpadState),
		hats:                  make(map[events.HatID]int),
		stickButtonThreshold:  DefaultStickButtonThreshold,
		triggerPressThreshold: DefaultTriggerPressThreshold,
		dirtyButtonsSet:       make(map[events.Button]bool),
		dirtyAxesSet:          make(map[events.Axis]bool),
		dirtyTrigSet:          make(map[events.Trigger]bool),
		dirtyDPadSet:          make(map[events.DPadID]bool),
		dirtyHatSet:           make(map[events.HatID]bool),
	}
}

// SetStickButtonThreshold overrides the default 0.9 stick-as-button
// deflection threshold.
func (s *State) SetStickButtonThreshold(t float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stickButtonThreshold = t
}

// UpdateButton sets a digital button's state, marking it dirty only on a
// strict-inequality change.
func (s *State) UpdateButton(b events.Button, pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateButtonLocked(b, pressed)
}

func (s *State) updateButtonLocked(b events.Button, pressed bool) {
	cur, existed := s.buttons[b]
	if existed && cur == pressed {
		return
	}
	s.buttons[b] = pressed
	// A first sample at rest seeds the baseline without firing a release.
	if !existed && !pressed {
		return
	}
	s.markButtonDirty(b)
}

func (s *State) markButtonDirty(b events.Button) {
	if s.dirtyButtonsSet[b] {
		return
	}
	s.dirtyButtonsSet[b] = true
	s.dirtyButtonsOrder = append(s.dirtyButtonsOrder, b)
}

// UpdateAxis sets a stick axis value (normalized [-1,1]) and its raw i16,
// marking it dirty when |delta| >= AnalogEpsilon, then recomputes the
// derived stick-as-button state for the stick this axis belongs to.
func (s *State) UpdateAxis(a events.Axis, value float32, raw int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, existed := s.axes[a]
	if existed && abs32(value-cur) < AnalogEpsilon {
		return
	}
	s.axes[a] = value
	s.axesRaw[a] = raw
	if !existed && abs32(value) < AnalogEpsilon {
		s.recomputeStickButton(a)
		return
	}
	s.markAxisDirty(a)
	s.recomputeStickButton(a)
}

func (s *State) markAxisDirty(a events.Axis) {
	if s.dirtyAxesSet[a] {
		return
	}
	s.dirtyAxesSet[a] = true
	s.dirtyAxesOrder = append(s.dirtyAxesOrder, a)
}

// recomputeStickButton re-derives LStickUI/RStickUI from the pair of axes
// belonging to the stick that axis a is part of.
func (s *State) recomputeStickButton(a events.Axis) {
	var x, y events.Axis
	var derived events.Button
	switch a {
	case events.AxisLeftX, events.AxisLeftY:
		x, y, derived = events.AxisLeftX, events.AxisLeftY, events.ButtonLStickUI
	case events.AxisRightX, events.AxisRightY:
		x, y, derived = events.AxisRightX, events.AxisRightY, events.ButtonRStickUI
	default:
		return
	}
	xv := float64(s.axes[x])
	yv := float64(s.axes[y])
	mag := math.Max(math.Abs(xv), math.Abs(yv))
	pressed := mag >= float64(s.stickButtonThreshold)
	s.updateButtonLocked(derived, pressed)
}

// UpdateTrigger sets a trigger value (normalized [0,1]) and raw u8, marking
// it dirty on an analog change and recomputing its digital IsPressed edge.
func (s *State) UpdateTrigger(t events.Trigger, value float32, raw uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, existed := s.triggers[t]
	pressed := value >= s.triggerPressThreshold
	changed := !existed || abs32(value-cur) >= AnalogEpsilon
	pressChanged := s.triggerPressed[t] != pressed || !existed

	if !changed && !pressChanged {
		return
	}
	s.triggers[t] = value
	s.triggersRaw[t] = raw
	s.triggerPressed[t] = pressed
	if !existed && abs32(value) < AnalogEpsilon && !pressed {
		return
	}
	s.markTriggerDirty(t)
}

func (s *State) markTriggerDirty(t events.Trigger) {
	if s.dirtyTrigSet[t] {
		return
	}
	s.dirtyTrigSet[t] = true
	s.dirtyTrigOrder = append(s.dirtyTrigOrder, t)
}

// UpdateDPad sets a D-pad's horizontal/vertical direction pair, marking it
// dirty if either axis changed.
func (s *State) UpdateDPad(id events.DPadID, horizontal, vertical events.DPadDir) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, existed := s.dpads[id]
	if existed && cur.Horizontal == horizontal && cur.Vertical == vertical {
		return
	}
	s.dpads[id] = dpadState{Horizontal: horizontal, Vertical: vertical}
	if !existed && horizontal == events.DirNeutral && vertical == events.DirNeutral {
		return
	}
	if s.dirtyDPadSet[id] {
		return
	}
	s.dirtyDPadSet[id] = true
	s.dirtyDPadOrder = append(s.dirtyDPadOrder, id)
}

// UpdateHat sets a hat switch's angle, marking it dirty on change.
func (s *State) UpdateHat(id events.HatID, angle int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, existed := s.hats[id]
	if existed && cur == angle {
		return
	}
	s.hats[id] = angle
	if !existed && angle < 0 {
		return
	}
	if s.dirtyHatSet[id] {
		return
	}
	s.dirtyHatSet[id] = true
	s.dirtyHatOrder = append(s.dirtyHatOrder, id)
}

// EmitDirty drains the dirty set into InputEvents, in the fixed class order
// buttons -> axes -> triggers -> dpads -> hats, all stamped with ts. After
// this call the dirty set is empty.
func (s *State) EmitDirty(ts events.Timestamp) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []events.Event

	for _, b := range s.dirtyButtonsOrder {
		if s.buttons[b] {
			out = append(out, events.NewButtonPress(b, ts))
		} else {
			out = append(out, events.NewButtonRelease(b, ts))
		}
	}
	for _, a := range s.dirtyAxesOrder {
		out = append(out, events.NewAxisMove(a, s.axes[a], s.axesRaw[a], ts))
	}
	for _, t := range s.dirtyTrigOrder {
		out = append(out, events.NewTriggerMove(t, s.triggers[t], s.triggersRaw[t], s.triggerPressed[t], ts))
	}
	for _, id := range s.dirtyDPadOrder {
		d := s.dpads[id]
		out = append(out, events.NewDPadMove(id, d.Horizontal, d.Vertical, ts))
	}
	for _, id := range s.dirtyHatOrder {
		out = append(out, events.NewHatSwitch(id, s.hats[id], ts))
	}

	s.dirtyButtonsOrder = nil
	s.dirtyAxesOrder = nil
	s.dirtyTrigOrder = nil
	s.dirtyDPadOrder = nil
	s.dirtyHatOrder = nil
	s.dirtyButtonsSet = make(map[events.Button]bool)
	s.dirtyAxesSet = make(map[events.Axis]bool)
	s.dirtyTrigSet = make(map[events.Trigger]bool)
	s.dirtyDPadSet = make(map[events.DPadID]bool)
	s.dirtyHatSet = make(map[events.HatID]bool)

	return out
}

// ButtonState returns a button's current mirrored value.
func (s *State) ButtonState(b events.Button) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons[b]
}

// AxisRaw returns an axis's last-seen pre-normalization i16 sample, for
// diagnostic tooling (calibration, debug recording) that needs the raw
// encoding rather than the normalized [-1,1] value.
func (s *State) AxisRaw(a events.Axis) int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axesRaw[a]
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
