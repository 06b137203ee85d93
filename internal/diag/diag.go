// Package diag wires the diagnostic packages (calibrate, debugreport,
// monitor, rumble, sysdiscovery) into standalone, single-device sessions
// the CLI runs instead of the full DeviceManager, against any configured
// protocol family.
package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/dalmatheo/gamepadd/internal/calibrate"
	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/debugreport"
	"github.com/dalmatheo/gamepadd/internal/events"
	"github.com/dalmatheo/gamepadd/internal/mirror"
	"github.com/dalmatheo/gamepadd/internal/monitor"
	"github.com/dalmatheo/gamepadd/internal/protocol"
	"github.com/dalmatheo/gamepadd/internal/rumble"
	"github.com/dalmatheo/gamepadd/internal/sysdiscovery"
	"github.com/dalmatheo/gamepadd/internal/usbport"
)

// ReadTimeout bounds a diagnostic session's raw interrupt reads, matching
// session.ReadTimeout.
const ReadTimeout = time.Second

// Session is a minimal, non-looping open device for diagnostic CLI modes:
// it opens, handles the kernel driver, claims the interface, and discovers
// endpoints, but never runs the configuration's initialization
// sequence or a read/keepalive loop; a diagnostic run reads whatever the
// device is already reporting.
type Session struct {
	port   usbport.Port
	handle usbport.Handle
	epIn   uint8
	epOut  uint8
	cfg    *config.Configuration
	parser protocol.Parser
	mirror *mirror.State
}

// Open claims interface 0 of the device named by cfg.DeviceID and
// discovers its endpoints.
func Open(ctx context.Context, port usbport.Port, cfg *config.Configuration) (*Session, error) {
	h, err := port.Open(ctx, cfg.DeviceID.VendorID, cfg.DeviceID.ProductID)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DeviceID, err)
	}

	_ = port.SetConfiguration(h, 1)
	_ = port.AutoDetachKernelDriver(h, true)
	if active, _ := port.KernelDriverActive(h, 0); active {
		_ = port.DetachKernelDriver(h, 0)
	}
	if err := port.ClaimInterface(h, 0); err != nil {
		_ = port.Close(h)
		return nil, fmt.Errorf("claim interface 0 of %s: %w", cfg.DeviceID, err)
	}

	epIn, epOut := usbport.DefaultInEndpoint, usbport.DefaultOutEndpoint
	if desc, err := port.GetActiveConfigDescriptor(h); err == nil {
		if in, out := usbport.DiscoverEndpoints(desc); in != 0 || out != 0 {
			if in != 0 {
				epIn = in
			}
			if out != 0 {
				epOut = out
			}
		}
	}
	if cfg.Endpoints != nil {
		if cfg.Endpoints.In != nil {
			epIn = *cfg.Endpoints.In
		}
		if cfg.Endpoints.Out != nil {
			epOut = *cfg.Endpoints.Out
		}
	}

	dz := protocol.ResolveDeadzones(cfg.DeadzonesCfg)
	return &Session{
		port:   port,
		handle: h,
		epIn:   epIn,
		epOut:  epOut,
		cfg:    cfg,
		parser: protocol.New(cfg.ProtocolFamily, dz, cfg.ReportDescriptor),
		mirror: mirror.New(),
	}, nil
}

// Close releases the claimed interface and closes the handle.
func (s *Session) Close() error {
	_ = s.port.ReleaseInterface(s.handle, 0)
	return s.port.Close(s.handle)
}

// HidrawPath reports the kernel hidraw node backing this device, when one
// can be located on this host's sysfs tree.
func (s *Session) HidrawPath() (string, error) {
	ref := s.handle.Ref()
	return sysdiscovery.HidrawNodeForUSB(ref.Bus, ref.Address)
}

func (s *Session) readRaw() ([]byte, error) {
	buf := make([]byte, s.cfg.ReportSize)
	n, err := s.port.InterruptTransfer(s.handle, s.epIn, buf, ReadTimeout)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// sample is a calibrate.Sample over this session's live reports: read one
// raw report, decode it, and return the four stick axes (left and right
// X/Y) with their raw i16 values from the mirror.
func (s *Session) sample() (map[events.Axis]int16, error) {
	raw, err := s.readRaw()
	if err != nil {
		return nil, err
	}
	s.parser.Parse(raw, s.mirror)
	return map[events.Axis]int16{
		events.AxisLeftX:  s.mirror.AxisRaw(events.AxisLeftX),
		events.AxisLeftY:  s.mirror.AxisRaw(events.AxisLeftY),
		events.AxisRightX: s.mirror.AxisRaw(events.AxisRightX),
		events.AxisRightY: s.mirror.AxisRaw(events.AxisRightY),
	}, nil
}

// CalibrationResult is one axis's measured range and suggested deadzone.
type CalibrationResult struct {
	Range    calibrate.AxisRange
	Deadzone float64
}

// Calibrate runs the calibration wizard against any family: settle on
// center for centerSamples reads, then sweep both sticks for
// rangeDuration, returning a per-axis suggested deadzone.
func (s *Session) Calibrate(centerSamples int, rangeDuration time.Duration) (map[events.Axis]CalibrationResult, error) {
	if _, err := calibrate.MeasureCenter(s.sample, centerSamples, 20*time.Millisecond); err != nil {
		return nil, fmt.Errorf("measure center: %w", err)
	}
	ranges, err := calibrate.MeasureRange(s.sample, rangeDuration, 20*time.Millisecond, nil)
	if err != nil {
		return nil, fmt.Errorf("measure range: %w", err)
	}
	out := make(map[events.Axis]CalibrationResult, len(ranges))
	for axis, r := range ranges {
		out[axis] = CalibrationResult{Range: r, Deadzone: calibrate.SuggestDeadzone(r)}
	}
	return out, nil
}

// RecordDebug reads up to n raw reports into a debugreport.Recorder for
// byte-level triage of a device with no known protocol family yet. A
// transient read error just skips that sample; it does not abort the
// recording.
func (s *Session) RecordDebug(n int) *debugreport.Recorder {
	rec := debugreport.NewRecorder(s.cfg.ReportSize)
	for i := 0; i < n; i++ {
		raw, err := s.readRaw()
		if err != nil {
			continue
		}
		rec.Record(raw)
	}
	return rec
}

// Monitor feeds decoded event batches into m until ctx is cancelled,
// whatever parser family is active. A transient read error is skipped,
// not fatal.
func (s *Session) Monitor(ctx context.Context, m *monitor.Monitor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := s.readRaw()
		if err != nil {
			continue
		}
		s.parser.Parse(raw, s.mirror)
		batch := s.mirror.EmitDirty(events.Timestamp(time.Now().UnixMicro()))
		if len(batch) > 0 {
			m.Route(s.cfg.DeviceID, batch)
		}
	}
}

// Rumble forwards a single motor-pair instruction to the device's OUT
// endpoint via rumble.Forwarder, with no internal choreography.
func (s *Session) Rumble(ctx context.Context, pair rumble.MotorPair) error {
	f := rumble.NewForwarder(s.port, s.handle, s.epOut)
	return f.Send(ctx, pair)
}
