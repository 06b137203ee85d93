// Package router implements the InputRouter: per-device plumbing
// from raw report bytes, through a ProtocolParser, into a mirror.State,
// emitting dirty-edge events to an OutputMapper.
package router

import (
	"sync"
	"time"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
	"github.com/dalmatheo/gamepadd/internal/protocol"
)

// Sink receives routed event batches, one per processed report. mapper.Mapper
// satisfies this; it is expressed as an interface here so router does not
// import mapper (keeping the dependency direction output-ward).
type Sink interface {
	Route(id deviceid.ID, batch []events.Event)
}

// deviceState bundles one device's parser and mirror, the two pieces of
// per-device state a Router owns.
type deviceState struct {
	parser protocol.Parser
	mirror *mirror.State
}

// start is set once, at process start, and used to derive the monotonic
// microsecond Timestamp shared by every event emitted from one report.
var start = time.Now()

// Router owns a MirrorState and ProtocolParser per device and routes each
// device's dirty-edge events to a Sink.
type Router struct {
	mu      sync.Mutex
	devices map[deviceid.ID]*deviceState
	sink    Sink
}

// New returns a Router delivering routed batches to sink.
func New(sink Sink) *Router {
	return &Router{
		devices: make(map[deviceid.ID]*deviceState),
		sink:    sink,
	}
}

// Register installs the parser and a fresh mirror for a device, replacing
// anything previously registered (e.g. on a reconnect under the same id).
func (r *Router) Register(id deviceid.ID, parser protocol.Parser) *mirror.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := mirror.New()
	r.devices[id] = &deviceState{parser: parser, mirror: m}
	return m
}

// Unregister drops a device's parser/mirror, e.g. on disconnect.
func (r *Router) Unregister(id deviceid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// Process decodes one raw report for id and routes the resulting dirty
// events to the sink: fetch parser+mirror,
// decode into the mirror, drain dirty events, route in class order.
func (r *Router) Process(id deviceid.ID, report []byte) {
	r.mu.Lock()
	ds, ok := r.devices[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	// A malformed report decodes to no mutations; EmitDirty below is then
	// empty and nothing is routed.
	ds.parser.Parse(report, ds.mirror)

	ts := events.Timestamp(time.Since(start).Microseconds())
	batch := ds.mirror.EmitDirty(ts)
	if len(batch) == 0 {
		return
	}
	r.sink.Route(id, batch)
}
