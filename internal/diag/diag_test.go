package diag

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/monitor"
	"github.com/dalmatheo/gamepadd/internal/rumble"
	"github.com/dalmatheo/gamepadd/internal/usbport"
)

// sweepingPort is a fake usbport.Port that feeds a GIP full-input report
// (report type 0x20) back on every interrupt-IN read, with the left stick
// X axis sweeping across a fixed set of raw samples each call, enough to
// exercise Calibrate's center/range measurement and Monitor's decode loop
// without a real USB bus. Writes (OUT/rumble) are recorded for assertions.
type sweepingPort struct {
	mu      sync.Mutex
	samples []int16
	i       int
	writes  [][]byte
	closed  bool
}

type fakeHandle struct{ ref usbport.DeviceRef }

func (h *fakeHandle) Ref() usbport.DeviceRef { return h.ref }

func (p *sweepingPort) List(ctx context.Context) ([]usbport.DeviceRef, error) { return nil, nil }

func (p *sweepingPort) Open(ctx context.Context, vendorID, productID uint16) (usbport.Handle, error) {
	return &fakeHandle{ref: usbport.DeviceRef{VendorID: vendorID, ProductID: productID, Bus: 1, Address: 2}}, nil
}

func (p *sweepingPort) SetConfiguration(h usbport.Handle, cfgNumber int) error { return nil }
func (p *sweepingPort) AutoDetachKernelDriver(h usbport.Handle, enabled bool) error { return nil }
func (p *sweepingPort) KernelDriverActive(h usbport.Handle, iface int) (bool, error) { return false, nil }
func (p *sweepingPort) DetachKernelDriver(h usbport.Handle, iface int) error { return nil }
func (p *sweepingPort) ClaimInterface(h usbport.Handle, iface int) error { return nil }
func (p *sweepingPort) ReleaseInterface(h usbport.Handle, iface int) error { return nil }

func (p *sweepingPort) GetActiveConfigDescriptor(h usbport.Handle) (usbport.ConfigDescriptor, error) {
	return usbport.ConfigDescriptor{}, nil
}

func (p *sweepingPort) ControlTransfer(h usbport.Handle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	return len(data), nil
}

func (p *sweepingPort) InterruptTransfer(h usbport.Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	if endpoint == usbport.DefaultOutEndpoint {
		p.mu.Lock()
		cp := make([]byte, len(buf))
		copy(cp, buf)
		p.writes = append(p.writes, cp)
		p.mu.Unlock()
		return len(buf), nil
	}

	p.mu.Lock()
	raw := p.samples[p.i%len(p.samples)]
	p.i++
	p.mu.Unlock()

	report := make([]byte, 19)
	report[0] = 0x20
	report[10] = byte(uint16(raw))
	report[11] = byte(uint16(raw) >> 8)
	n := copy(buf, report)
	return n, nil
}

func (p *sweepingPort) BulkTransfer(h usbport.Handle, endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	return p.InterruptTransfer(h, endpoint, buf, timeout)
}

func (p *sweepingPort) Close(h usbport.Handle) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func testConfig() *config.Configuration {
	id := deviceid.New(0x045e, 0x02ea)
	return &config.Configuration{
		DeviceID:       id,
		Name:           "fake GIP pad",
		ProtocolFamily: config.FamilyGIP,
		ReportSize:     19,
		Quirks:         map[string]config.Quirk{},
		Enabled:        true,
	}
}

func TestOpenCloseReleasesHandle(t *testing.T) {
	port := &sweepingPort{samples: []int16{0}}
	s, err := Open(context.Background(), port, testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, port.closed)
}

// TestCalibrateSuggestsNonZeroDeadzoneForASweep feeds a left-stick sweep
// from -32767 to 32767 and checks Calibrate returns a plausible deadzone
// for LeftX.
func TestCalibrateSuggestsNonZeroDeadzoneForASweep(t *testing.T) {
	port := &sweepingPort{samples: []int16{0, 16000, -16000, 32767, -32767}}
	s, err := Open(context.Background(), port, testConfig())
	require.NoError(t, err)
	defer s.Close()

	results, err := s.Calibrate(3, 100*time.Millisecond)
	require.NoError(t, err)

	r, ok := results[events.AxisLeftX]
	require.True(t, ok, "expected LeftX to be measured")
	assert.Greater(t, r.Range.Max, r.Range.Min)
	assert.GreaterOrEqual(t, r.Deadzone, 0.05)
	assert.LessOrEqual(t, r.Deadzone, 0.5)
}

// TestRecordDebugCountsChangesOnSweepingByte is the debugreport package
// wired through diag against a live session: the swept LeftX low byte
// should show up as a changed offset.
func TestRecordDebugCountsChangesOnSweepingByte(t *testing.T) {
	port := &sweepingPort{samples: []int16{0, 1000, 2000, 3000}}
	s, err := Open(context.Background(), port, testConfig())
	require.NoError(t, err)
	defer s.Close()

	rec := s.RecordDebug(8)
	offsets := rec.ActiveOffsets()
	assert.Contains(t, offsets, 10, "byte 10 (LeftX low byte) should be flagged as active")
}

// TestMonitorRoutesDecodedBatches runs the monitor loop briefly against a
// sweeping fake device and checks it receives at least one routed batch
// for the configured device id before ctx is cancelled.
func TestMonitorRoutesDecodedBatches(t *testing.T) {
	port := &sweepingPort{samples: []int16{0, 5000, 10000, 15000, 20000}}
	cfg := testConfig()
	s, err := Open(context.Background(), port, cfg)
	require.NoError(t, err)
	defer s.Close()

	var mu sync.Mutex
	var lines []string
	m := monitor.New(cfg.DeviceID, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Monitor(ctx, m)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, lines, "expected at least one routed monitor line")
}

// TestRumbleWritesMotorPairToOutEndpoint confirms the rumble package is
// exercised through diag.Session.Rumble.
func TestRumbleWritesMotorPairToOutEndpoint(t *testing.T) {
	port := &sweepingPort{samples: []int16{0}}
	s, err := Open(context.Background(), port, testConfig())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Rumble(context.Background(), rumble.MotorPair{Large: 0x80, Small: 0x40}))

	port.mu.Lock()
	defer port.mu.Unlock()
	require.Len(t, port.writes, 1)
	assert.Equal(t, byte(0x80), port.writes[0][1])
	assert.Equal(t, byte(0x40), port.writes[0][2])
}
