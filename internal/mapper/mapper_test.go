package mapper

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/profile"
)

type fakeSink struct {
	downs []uint16
	ups   []uint16
	moves [][2]float64
}

func (f *fakeSink) KeyDown(code uint16, _ profile.KeyModifier) error {
	f.downs = append(f.downs, code)
	return nil
}

func (f *fakeSink) KeyUp(code uint16, _ profile.KeyModifier) error {
	f.ups = append(f.ups, code)
	return nil
}

func (f *fakeSink) MouseMove(dx, dy float64) error {
	f.moves = append(f.moves, [2]float64{dx, dy})
	return nil
}

func (f *fakeSink) MouseClick(string) error { return nil }
func (f *fakeSink) MouseScroll(float64, float64) error { return nil }

var xboxID = deviceid.New(0x045E, 0x02EA)

func aProfile(mappings ...profile.ButtonMapping) profile.Profile {
	return profile.Profile{Name: "t", Version: profile.CurrentVersion, ButtonMappings: mappings}
}

// TestPressReleaseIdempotence: repeating a press when already held, or a
// release when not held, is a no-op.
func TestPressReleaseIdempotence(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, zerolog.Nop())
	m.SetProfile(xboxID, aProfile(profile.ButtonMapping{ButtonIdentifier: "A", KeyCode: 0x04}))

	m.Route(xboxID, []events.Event{events.NewButtonPress(events.ButtonA, 1)})
	m.Route(xboxID, []events.Event{events.NewButtonPress(events.ButtonA, 2)})
	assert.Equal(t, []uint16{0x04}, sink.downs, "repeated press while held must not re-fire key_down")
	assert.Equal(t, 1, m.ActiveCount(xboxID))

	m.Route(xboxID, []events.Event{events.NewButtonRelease(events.ButtonA, 3)})
	m.Route(xboxID, []events.Event{events.NewButtonRelease(events.ButtonA, 4)})
	assert.Equal(t, []uint16{0x04}, sink.ups, "repeated release while not held must not re-fire key_up")
	assert.Equal(t, 0, m.ActiveCount(xboxID))
}

// TestChordFiresOnceOnCompletion: two consecutive reports
// transitioning LB then RB to pressed fire exactly one key_down for the
// chord mapping "LB+RB".
func TestChordFiresOnceOnCompletion(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, zerolog.Nop())
	m.SetProfile(xboxID, aProfile(profile.ButtonMapping{ButtonIdentifier: "LB+RB", KeyCode: 0x31}))

	m.Route(xboxID, []events.Event{events.NewButtonPress(events.Button("LB"), 1)})
	assert.Empty(t, sink.downs, "chord must not fire on a partial press")

	m.Route(xboxID, []events.Event{events.NewButtonPress(events.Button("RB"), 2)})
	require.Len(t, sink.downs, 1)
	assert.Equal(t, uint16(0x31), sink.downs[0])
}

// TestChordFiresOnceWhenBothCompleteInSameBatch covers both components
// transitioning within the same dirty batch.
func TestChordFiresOnceWhenBothCompleteInSameBatch(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, zerolog.Nop())
	m.SetProfile(xboxID, aProfile(profile.ButtonMapping{ButtonIdentifier: "LB+RB", KeyCode: 0x31}))

	m.Route(xboxID, []events.Event{
		events.NewButtonPress(events.Button("LB"), 1),
		events.NewButtonPress(events.Button("RB"), 1),
	})
	require.Len(t, sink.downs, 1)
	assert.Equal(t, uint16(0x31), sink.downs[0])
}

// TestChordWithTriggerComponentFires: a trigger that exists only as a
// chord component still registers as pressed, completes the chord, and
// un-holds it again when its IsPressed edge falls.
func TestChordWithTriggerComponentFires(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, zerolog.Nop())
	m.SetProfile(xboxID, aProfile(profile.ButtonMapping{ButtonIdentifier: "LeftTrigger+RB", KeyCode: 0x2C}))

	m.Route(xboxID, []events.Event{events.NewTriggerMove(events.TriggerLeft, 0.8, 204, true, 1)})
	assert.Empty(t, sink.downs, "a lone trigger press must not fire the chord")

	m.Route(xboxID, []events.Event{events.NewButtonPress(events.Button("RB"), 2)})
	require.Len(t, sink.downs, 1)
	assert.Equal(t, uint16(0x2C), sink.downs[0])

	m.Route(xboxID, []events.Event{events.NewTriggerMove(events.TriggerLeft, 0.1, 26, false, 3)})
	require.Len(t, sink.ups, 1)
	assert.Equal(t, uint16(0x2C), sink.ups[0])
	assert.Equal(t, 0, m.ActiveCount(xboxID))
}

// TestReleaseAllClearsHeldAndIssuesKeyUp: after ReleaseAll for a device,
// its held set is empty and
// every held key has received a matching key_up.
func TestReleaseAllClearsHeldAndIssuesKeyUp(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, zerolog.Nop())
	m.SetProfile(xboxID, aProfile(
		profile.ButtonMapping{ButtonIdentifier: "A", KeyCode: 0x04},
		profile.ButtonMapping{ButtonIdentifier: "B", KeyCode: 0x05},
	))

	m.Route(xboxID, []events.Event{
		events.NewButtonPress(events.ButtonA, 1),
		events.NewButtonPress(events.ButtonB, 1),
	})
	assert.Equal(t, 2, m.ActiveCount(xboxID))

	m.ReleaseAll(xboxID)
	assert.Equal(t, 0, m.ActiveCount(xboxID))
	assert.ElementsMatch(t, []uint16{0x04, 0x05}, sink.ups)
}

// TestMouseMoveRespectsDeadzone: no mouse_move below the mouse deadzone.
func TestMouseMoveRespectsDeadzone(t *testing.T) {
	sink := &fakeSink{}
	m := New(sink, zerolog.Nop())
	p := aProfile()
	p.MouseMappings = []profile.MouseMapping{{ButtonIdentifier: string(events.AxisRightX), Action: "move"}}
	m.SetProfile(xboxID, p)

	m.Route(xboxID, []events.Event{events.NewAxisMove(events.AxisRightX, 0.01, 300, 1)})
	assert.Empty(t, sink.moves, "a move within the deadzone must not call mouse_move")

	m.Route(xboxID, []events.Event{events.NewAxisMove(events.AxisRightX, 0.5, 16000, 2)})
	require.Len(t, sink.moves, 1)
	assert.InDelta(t, 0.5*DefaultMouseSensitivity*10, sink.moves[0][0], 1e-9)
}
