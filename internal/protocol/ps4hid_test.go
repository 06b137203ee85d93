package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

// TestPS4LeftStickDeadzone is the end-to-end scenario 3: a report with
// every stick byte at 0x80 (centered) never emits an AxisMove past the
// first sync, since the raw delta after centering is (0,0) every time.
func TestPS4LeftStickDeadzone(t *testing.T) {
	report := []byte{0x01, 0x80, 0x80, 0x80, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00}
	p := &PS4HIDParser{Deadzones: DefaultDeadzones()}
	m := mirror.New()

	require.True(t, p.Parse(report, m))
	m.EmitDirty(0) // drain the initial sync

	require.True(t, p.Parse(report, m))
	batch := m.EmitDirty(0)

	for _, ev := range batch {
		_, isAxis := ev.(events.AxisMove)
		assert.False(t, isAxis, "centered sticks repeated identically must not re-fire AxisMove")
	}
}

func TestPS4WrongReportTypeRejected(t *testing.T) {
	p := &PS4HIDParser{Deadzones: DefaultDeadzones()}
	m := mirror.New()
	ok := p.Parse([]byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0}, m)
	assert.False(t, ok)
}

func TestPS4FaceButtons(t *testing.T) {
	report := make([]byte, 10)
	report[0] = 0x01
	report[5] = 0x20 // Circle -> mapped to ButtonA
	p := &PS4HIDParser{Deadzones: DefaultDeadzones()}
	m := mirror.New()
	require.True(t, p.Parse(report, m))
	assert.True(t, m.ButtonState(events.ButtonA))
}
