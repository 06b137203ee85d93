package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
)

func TestRouteIgnoresOtherDevices(t *testing.T) {
	id := deviceid.New(0x1, 0x2)
	other := deviceid.New(0x3, 0x4)
	var got []string
	m := New(id, func(s string) { got = append(got, s) })

	m.Route(other, []events.Event{events.NewButtonPress(events.ButtonA, 0)})
	assert.Empty(t, got)
}

func TestRouteFormatsButtonsAxesAndDPad(t *testing.T) {
	id := deviceid.New(0x1, 0x2)
	var got []string
	m := New(id, func(s string) { got = append(got, s) })

	m.Route(id, []events.Event{
		events.NewButtonPress(events.ButtonA, 0),
		events.NewAxisMove(events.AxisLeftX, 0.5, 16000, 0),
		events.NewDPadMove(events.DefaultDPad, events.DirEast, events.DirNorth, 0),
	})

	require := assert.New(t)
	require.Len(got, 1)
	line := got[0]
	require.Contains(line, "+A")
	require.Contains(line, "LeftX=+0.50")
	require.Contains(line, "dpad(East,North)")
}

func TestRouteSuppressesDuplicateLines(t *testing.T) {
	id := deviceid.New(0x1, 0x2)
	var calls int
	m := New(id, func(s string) { calls++ })

	batch := []events.Event{events.NewButtonPress(events.ButtonA, 0)}
	m.Route(id, batch)
	m.Route(id, batch)

	assert.Equal(t, 1, calls, "repeating the exact same formatted line should not re-emit")
}
