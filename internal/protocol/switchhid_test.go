package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

// TestSwitchHIDDPadNorthEast is the end-to-end scenario 2: a report
// whose byte index 2 carries dpad value 1 (high nibble) decodes to
// DPadMove(horizontal=East, vertical=North).
func TestSwitchHIDDPadNorthEast(t *testing.T) {
	report := make([]byte, 10)
	report[0] = 0x30
	report[2] = 0x10 // dpad nibble = 1 -> East/North

	p := &SwitchHIDParser{Deadzones: DefaultDeadzones()}
	m := mirror.New()

	ok := p.Parse(report, m)
	require.True(t, ok)
	batch := m.EmitDirty(0)

	var found bool
	for _, ev := range batch {
		if dp, isDPad := ev.(events.DPadMove); isDPad {
			assert.Equal(t, events.DirEast, dp.Horizontal)
			assert.Equal(t, events.DirNorth, dp.Vertical)
			found = true
		}
	}
	assert.True(t, found, "expected a DPadMove event")
}

// TestSwitchHIDDPadNeutralAtBoundary is the boundary case: "Switch HID
// D-pad value >= 8 -> DPadDir::Neutral".
func TestSwitchHIDDPadNeutralAtBoundary(t *testing.T) {
	report := make([]byte, 10)
	report[0] = 0x30
	report[2] = 0x80 // dpad nibble = 8 -> neutral

	p := &SwitchHIDParser{Deadzones: DefaultDeadzones()}
	m := mirror.New()
	require.True(t, p.Parse(report, m))
	batch := m.EmitDirty(0)

	for _, ev := range batch {
		if dp, isDPad := ev.(events.DPadMove); isDPad {
			assert.Equal(t, events.DirNeutral, dp.Horizontal)
			assert.Equal(t, events.DirNeutral, dp.Vertical)
		}
	}
}

func TestSwitchHIDWrongReportTypeRejected(t *testing.T) {
	p := &SwitchHIDParser{Deadzones: DefaultDeadzones()}
	m := mirror.New()
	ok := p.Parse([]byte{0x21, 0, 0, 0, 0, 0, 0, 0, 0, 0}, m)
	assert.False(t, ok)
}
