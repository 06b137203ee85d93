package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
)

type recordingSink struct {
	batches [][]events.Event
}

func (r *recordingSink) Route(_ deviceid.ID, batch []events.Event) {
	r.batches = append(r.batches, batch)
}

type fakeParser struct {
	buttonFromByte0 bool
}

func (p *fakeParser) Parse(report []byte, m *mirror.State) bool {
	if len(report) == 0 {
		return false
	}
	m.UpdateButton(events.ButtonA, report[0] != 0)
	return true
}

var dev = deviceid.New(0x1234, 0x5678)

func TestProcessRoutesDirtyBatchToSink(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)
	r.Register(dev, &fakeParser{})

	r.Process(dev, []byte{1})
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 1)
	_, ok := sink.batches[0][0].(events.ButtonPress)
	assert.True(t, ok)
}

// TestProcessSkipsEmptyBatches: a report that changes nothing must not
// call the sink at all (no empty batches routed downstream).
func TestProcessSkipsEmptyBatches(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)
	r.Register(dev, &fakeParser{})

	r.Process(dev, []byte{1})
	r.Process(dev, []byte{1})
	assert.Len(t, sink.batches, 1, "an unchanged report must not produce a second routed batch")
}

func TestProcessUnknownDeviceIsNoop(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)
	assert.NotPanics(t, func() {
		r.Process(dev, []byte{1})
	})
	assert.Empty(t, sink.batches)
}

func TestUnregisterDropsDevice(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink)
	r.Register(dev, &fakeParser{})
	r.Unregister(dev)

	r.Process(dev, []byte{1})
	assert.Empty(t, sink.batches)
}
