// Package monitor renders a live terminal view of the events InputRouter
// emits for one device, whatever parser family is active.
package monitor

import (
	"fmt"
	"strings"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
)

// Monitor prints a one-line live view of routed events for a single
// device, refreshing in place.
type Monitor struct {
	deviceID deviceid.ID
	out      func(string)
	last     string
}

// New returns a Monitor that only reacts to batches for deviceID.
func New(deviceID deviceid.ID, out func(string)) *Monitor {
	if out == nil {
		out = func(s string) { fmt.Printf("\r\033[K%s", s) }
	}
	return &Monitor{deviceID: deviceID, out: out}
}

// Route implements router.Sink, so a Monitor can be wired in directly
// alongside (or instead of) an OutputMapper during a debug session.
func (m *Monitor) Route(id deviceid.ID, batch []events.Event) {
	if id != m.deviceID {
		return
	}
	line := m.format(batch)
	if line == m.last {
		return
	}
	m.last = line
	m.out(line)
}

func (m *Monitor) format(batch []events.Event) string {
	var parts []string
	for _, ev := range batch {
		switch e := ev.(type) {
		case events.ButtonPress:
			parts = append(parts, fmt.Sprintf("+%s", e.Button))
		case events.ButtonRelease:
			parts = append(parts, fmt.Sprintf("-%s", e.Button))
		case events.AxisMove:
			parts = append(parts, fmt.Sprintf("%s=%+.2f", e.Axis, e.Value))
		case events.TriggerMove:
			parts = append(parts, fmt.Sprintf("%s=%.2f", e.Trigger, e.Value))
		case events.DPadMove:
			parts = append(parts, fmt.Sprintf("dpad(%s,%s)", e.Horizontal, e.Vertical))
		case events.HatSwitch:
			parts = append(parts, fmt.Sprintf("hat=%d", e.Angle))
		}
	}
	return strings.Join(parts, " ")
}
