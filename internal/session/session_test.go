package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/logging"
	"github.com/dalmatheo/gamepadd/internal/mapper"
	"github.com/dalmatheo/gamepadd/internal/profile"
	"github.com/dalmatheo/gamepadd/internal/router"
	"github.com/dalmatheo/gamepadd/internal/usbport"
)

type fakeHandle struct {
	ref usbport.DeviceRef
}

func (h *fakeHandle) Ref() usbport.DeviceRef { return h.ref }

// fakePort is a minimal, always-failing-to-read usbport.Port used to drive
// the read loop's consecutive-error/disconnect path
// without a real USB bus.
type fakePort struct {
	mu                sync.Mutex
	interruptInErrors int
	releasedInterface bool
	closed            bool
	claimedInterface  bool
}

func (p *fakePort) List(ctx context.Context) ([]usbport.DeviceRef, error) { return nil, nil }

func (p *fakePort) Open(ctx context.Context, vendorID, productID uint16) (usbport.Handle, error) {
	return &fakeHandle{ref: usbport.DeviceRef{VendorID: vendorID, ProductID: productID}}, nil
}

func (p *fakePort) SetConfiguration(h usbport.Handle, cfgNumber int) error { return nil }
func (p *fakePort) AutoDetachKernelDriver(h usbport.Handle, enabled bool) error { return nil }
func (p *fakePort) KernelDriverActive(h usbport.Handle, iface int) (bool, error) { return false, nil }
func (p *fakePort) DetachKernelDriver(h usbport.Handle, iface int) error { return nil }

func (p *fakePort) ClaimInterface(h usbport.Handle, iface int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimedInterface = true
	return nil
}

func (p *fakePort) ReleaseInterface(h usbport.Handle, iface int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releasedInterface = true
	return nil
}

func (p *fakePort) GetActiveConfigDescriptor(h usbport.Handle) (usbport.ConfigDescriptor, error) {
	return usbport.ConfigDescriptor{}, nil // no interfaces discovered; session falls back to defaults
}

func (p *fakePort) ControlTransfer(h usbport.Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	return len(data), nil
}

func (p *fakePort) InterruptTransfer(h usbport.Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	if endpoint == usbport.DefaultInEndpoint {
		p.mu.Lock()
		p.interruptInErrors++
		p.mu.Unlock()
		return 0, assert.AnError
	}
	return len(buf), nil
}

func (p *fakePort) BulkTransfer(h usbport.Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	return len(buf), nil
}

func (p *fakePort) Close(h usbport.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) snapshot() (errors int, released, closed, claimed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interruptInErrors, p.releasedInterface, p.closed, p.claimedInterface
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		Name:           "fake",
		ProtocolFamily: config.FamilyGenericHID,
		ReportSize:     8,
		Initialization: nil,
		Quirks:         map[string]config.Quirk{},
		Enabled:        true,
	}
}

// TestDisconnectAfterFiveConsecutiveErrors: after 5
// consecutive transfer timeouts on a running session, the manager
// observes a DeviceDisconnected event and, once Close runs, the USB
// handle is released and active_inputs for the device is empty.
func TestDisconnectAfterFiveConsecutiveErrors(t *testing.T) {
	id := deviceid.New(0x1111, 0x2222)
	cfg := testConfig()
	port := &fakePort{}
	mp := mapper.New(&noopSink{}, logging.Nop())
	rtr := router.New(mp)
	events := make(chan Event, 4)

	s := New(id, cfg, port, rtr, mp, logging.Nop(), events)
	require.NoError(t, s.Open(context.Background()))
	require.Equal(t, StateRunning, s.State())

	mp.SetProfile(id, profile.Profile{ButtonMappings: []profile.ButtonMapping{{ButtonIdentifier: "A", KeyCode: 1}}})

	select {
	case ev := <-events:
		assert.Equal(t, EventDisconnected, ev.Kind)
		assert.Equal(t, id, ev.DeviceID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}

	assert.Equal(t, StateClosing, s.State())

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, mp.ActiveCount(id))

	errCount, released, closed, claimed := port.snapshot()
	assert.GreaterOrEqual(t, errCount, MaxConsecutiveError)
	assert.True(t, released, "interface must be released on Close")
	assert.True(t, closed, "handle must be closed on Close")
	assert.True(t, claimed, "interface must have been claimed during Open")
}

// TestConsecutiveErrorCounterResetsOnSuccess checks the success side of the
// counter: a session whose reads all succeed ends with a consecutive-error
// counter of zero. No failed read precedes the successes here.
func TestConsecutiveErrorCounterResetsOnSuccess(t *testing.T) {
	id := deviceid.New(0x3333, 0x4444)
	cfg := testConfig()
	port := &countingPort{}
	mp := mapper.New(&noopSink{}, logging.Nop())
	rtr := router.New(mp)
	events := make(chan Event, 4)

	s := New(id, cfg, port, rtr, mp, logging.Nop(), events)
	require.NoError(t, s.Open(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, 0, s.consecutiveErrors, "a session that only sees successful reads must never accumulate errors")
}

// TestResumeAfterDeviceLossEntersError: a device that disappears while the
// session is paused drives the next Resume into StateError rather than
// restarting the read loop.
func TestResumeAfterDeviceLossEntersError(t *testing.T) {
	id := deviceid.New(0x5555, 0x6666)
	cfg := testConfig()
	port := &vanishingPort{}
	mp := mapper.New(&noopSink{}, logging.Nop())
	rtr := router.New(mp)
	events := make(chan Event, 4)

	s := New(id, cfg, port, rtr, mp, logging.Nop(), events)
	require.NoError(t, s.Open(context.Background()))

	s.Pause()
	require.Equal(t, StatePaused, s.State())

	port.setGone(true)
	s.Resume()
	assert.Equal(t, StateError, s.State())

	select {
	case ev := <-events:
		assert.Equal(t, EventFatalError, ev.Kind)
	default:
		t.Fatal("expected a fatal-error event after resuming a vanished device")
	}

	require.NoError(t, s.Close(context.Background()))
}

// noopSink is an EventSink that does nothing, for sessions under test that
// never exercise the output path directly.
type noopSink struct{}

func (noopSink) KeyDown(uint16, profile.KeyModifier) error { return nil }
func (noopSink) KeyUp(uint16, profile.KeyModifier) error { return nil }
func (noopSink) MouseMove(float64, float64) error { return nil }
func (noopSink) MouseClick(string) error { return nil }
func (noopSink) MouseScroll(float64, float64) error { return nil }

// countingPort always succeeds its interrupt transfers, returning a
// sensible zero-valued report.
type countingPort struct {
	fakePort
}

func (p *countingPort) InterruptTransfer(h usbport.Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	return len(buf), nil
}

// vanishingPort succeeds until setGone(true), after which every control
// transfer fails the way an unplugged device would.
type vanishingPort struct {
	countingPort
	mu   sync.Mutex
	gone bool
}

func (p *vanishingPort) setGone(gone bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gone = gone
}

func (p *vanishingPort) ControlTransfer(h usbport.Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone {
		return 0, assert.AnError
	}
	return len(data), nil
}
