// Package session implements the DeviceSession state machine: one open
// device's init sequence, read loop, keepalive loop, and teardown.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/drivererr"
	"github.com/dalmatheo/gamepadd/internal/mapper"
	"github.com/dalmatheo/gamepadd/internal/protocol"
	"github.com/dalmatheo/gamepadd/internal/router"
	"github.com/dalmatheo/gamepadd/internal/usbport"
)

// State is one state of the session lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateInitializing
	StateRunning
	StatePaused
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "Opening"
	case StateInitializing:
		return "Initializing"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateClosing:
		return "Closing"
	case StateError:
		return "Error"
	default:
		return "Closed"
	}
}

// EventKind classifies a notification a Session publishes to its manager.
type EventKind int

const (
	EventDisconnected EventKind = iota
	EventFatalError
)

// Event is published through a channel rather than a back-reference to
// the manager, so a session never holds a live pointer to it.
type Event struct {
	DeviceID deviceid.ID
	Kind     EventKind
	Err      error
}

// Timing constants for transfers, keepalive, and the scan loop.
const (
	ReadTimeout         = 1 * time.Second
	ControlTimeout      = 2 * time.Second
	BulkTimeout         = 5 * time.Second
	KeepaliveInterval   = 30 * time.Second
	ReadRetryDelay      = 10 * time.Millisecond
	MaxConsecutiveError = 5
)

// Session owns one open device's handle exclusively; it is never shared.
type Session struct {
	id     deviceid.ID
	cfg    *config.Configuration
	port   usbport.Port
	router *router.Router
	mapper *mapper.Mapper
	log    zerolog.Logger
	events chan<- Event

	mu    sync.Mutex
	state State
	err   error

	handle usbport.Handle
	epIn   uint8
	epOut  uint8

	consecutiveErrors int

	resumeCh chan struct{}
	paused   bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Session in state Closed. events receives disconnect/
// fatal-error notifications; it is never blocked on indefinitely (buffered
// or drained promptly by the manager).
func New(id deviceid.ID, cfg *config.Configuration, port usbport.Port, rtr *router.Router, mp *mapper.Mapper, log zerolog.Logger, events chan<- Event) *Session {
	return &Session{
		id:     id,
		cfg:    cfg,
		port:   port,
		router: rtr,
		mapper: mp,
		log:    log.With().Str("device_id", id.String()).Logger(),
		events: events,
		state:  StateClosed,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the fault that drove the session into StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.err = err
	s.mu.Unlock()
	s.log.Error().Err(err).Msg("session entered error state")
}

// Open runs the full Closed->Opening->Initializing->Running sequence.
func (s *Session) Open(ctx context.Context) error {
	s.setState(StateOpening)

	h, err := s.port.Open(ctx, s.id.VendorID, s.id.ProductID)
	if err != nil {
		e := drivererr.Wrap(drivererr.KindAccessDenied, err, "cannot open device "+s.id.String(), "check udev permissions or unplug/replug the device")
		s.fail(e)
		return e
	}
	s.handle = h

	_ = s.port.SetConfiguration(h, 1)
	_ = s.port.AutoDetachKernelDriver(h, true)

	if active, _ := s.port.KernelDriverActive(h, 0); active {
		if err := s.port.DetachKernelDriver(h, 0); err != nil {
			e := drivererr.Wrap(drivererr.KindKernelDetachFailed, err, "could not detach kernel driver", "close the conflicting application and retry")
			s.fail(e)
			return e
		}
	}

	if err := s.port.ClaimInterface(h, 0); err != nil {
		e := drivererr.Wrap(drivererr.KindInterfaceClaimFailed, err, "could not claim interface 0 of "+s.id.String(), "another process may be holding the device")
		s.fail(e)
		return e
	}

	s.discoverEndpoints(h)

	s.setState(StateInitializing)
	if err := s.runInitSequence(ctx, h); err != nil {
		s.fail(err)
		return err
	}

	s.applyQuirks()

	s.setState(StateRunning)
	s.startLoops(ctx)
	return nil
}

// discoverEndpoints prefers the configuration's explicit endpoints, then
// scans the active config descriptor, then falls back to the hardcoded
// addresses. GIP additionally prefers an interrupt-OUT
// on interface 0 over whatever the general scan found.
func (s *Session) discoverEndpoints(h usbport.Handle) {
	if s.cfg.Endpoints != nil {
		if s.cfg.Endpoints.In != nil {
			s.epIn = *s.cfg.Endpoints.In
		}
		if s.cfg.Endpoints.Out != nil {
			s.epOut = *s.cfg.Endpoints.Out
		}
	}

	desc, err := s.port.GetActiveConfigDescriptor(h)
	if err == nil {
		in, out := usbport.DiscoverEndpoints(desc)
		if s.epIn == 0 && in != 0 {
			s.epIn = in
		}
		if s.epOut == 0 && out != 0 {
			s.epOut = out
		}
		if s.cfg.ProtocolFamily == config.FamilyGIP && (s.cfg.Endpoints == nil || s.cfg.Endpoints.Out == nil) {
			if gipOut, ok := usbport.DiscoverGIPOut(desc); ok {
				s.epOut = gipOut
			}
		}
	}

	if s.epIn == 0 {
		s.epIn = usbport.DefaultInEndpoint
	}
	if s.epOut == 0 {
		s.epOut = usbport.DefaultOutEndpoint
	}
}

// runInitSequence executes the configuration's InitStep list in order;
// any failed step aborts initialization.
func (s *Session) runInitSequence(ctx context.Context, h usbport.Handle) error {
	for i, step := range s.cfg.Initialization {
		if err := s.runStep(h, step); err != nil {
			return drivererr.Wrap(drivererr.KindInitStepFailed, err, fmt.Sprintf("initialization step %d failed", i), "check the device configuration's initialization sequence").WithIndex(i)
		}
	}
	return nil
}

func (s *Session) runStep(h usbport.Handle, step config.InitStep) error {
	timeout := time.Duration(step.TimeoutMs) * time.Millisecond
	switch step.Type {
	case config.StepControl:
		if timeout == 0 {
			timeout = ControlTimeout
		}
		_, err := s.port.ControlTransfer(h, step.RequestType, step.Request, step.Value, step.Index, step.DataBytes, timeout)
		return err
	case config.StepInterrupt:
		if timeout == 0 {
			timeout = ReadTimeout
		}
		ep := step.Endpoint
		if ep == 0 {
			ep = s.epOut
		}
		_, err := s.port.InterruptTransfer(h, ep, step.DataBytes, timeout)
		return err
	case config.StepBulk:
		if timeout == 0 {
			timeout = BulkTimeout
		}
		ep := step.Endpoint
		if ep == 0 {
			ep = s.epOut
		}
		_, err := s.port.BulkTransfer(h, ep, step.DataBytes, timeout)
		return err
	case config.StepGip:
		if timeout == 0 {
			timeout = ReadTimeout
		}
		_, err := s.port.InterruptTransfer(h, s.epOut, step.DataBytes, timeout)
		return err
	case config.StepDelay:
		time.Sleep(time.Duration(step.DelayMs) * time.Millisecond)
		return nil
	default:
		return fmt.Errorf("unknown init step type %q", step.Type)
	}
}

// applyQuirks applies the enabled quirks after initialization. Unknown
// quirks are ignored; delay_after_init sleeps once, here, right after
// initialization and before the read loop starts.
func (s *Session) applyQuirks() {
	if q, ok := s.cfg.QuirkEnabled("delay_after_init"); ok {
		if ms, ok := q.IntParam("ms", 0); ok && ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}
	if q, ok := s.cfg.QuirkEnabled("vendor_specific_led"); ok {
		if pattern, ok := q.BytesParam("pattern"); ok {
			_, _ = s.port.InterruptTransfer(s.handle, s.epOut, pattern, ControlTimeout)
		}
	}
}

// keepaliveEnabled resolves whether this session sends keepalives. The
// configuration's quirks.keepalive wins when present; the vendor (protocol
// family) default applies only when no quirk is configured at all.
func (s *Session) keepaliveEnabled() (bool, []byte) {
	if q, ok := s.cfg.Quirks["keepalive"]; ok {
		if !q.Enabled {
			return false, nil
		}
		packet, _ := q.BytesParam("packet")
		return true, packet
	}
	if s.cfg.ProtocolFamily == config.FamilyGIP {
		return true, []byte{0x09, 0x00}
	}
	return false, nil
}

// startLoops launches the read loop and, if enabled, the keepalive loop
// under one errgroup, which Close waits on. Both loops return nil, so the
// group never reports an error.
func (s *Session) startLoops(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g := new(errgroup.Group)
	s.group = g
	s.resumeCh = make(chan struct{})

	dz := protocol.ResolveDeadzones(s.cfg.DeadzonesCfg)
	// The apply_deadzone quirk overrides both stick thresholds with one
	// value, for configs that predate the per-stick deadzones block.
	if q, ok := s.cfg.QuirkEnabled("apply_deadzone"); ok {
		if v, ok := q.FloatParam("value", 0); ok {
			dz.LeftStick, dz.RightStick = v, v
		}
	}
	parser := protocol.New(s.cfg.ProtocolFamily, dz, s.cfg.ReportDescriptor)
	s.router.Register(s.id, parser)

	g.Go(func() error {
		s.readLoop(runCtx)
		return nil
	})

	if enabled, packet := s.keepaliveEnabled(); enabled {
		g.Go(func() error {
			s.keepaliveLoop(runCtx, packet)
			return nil
		})
	}
}

// readLoop runs the session while Running: repeated interrupt-IN transfers
// routed through the Router, a consecutive-error counter, and Pause
// semantics that stop issuing transfers without closing the session.
func (s *Session) readLoop(ctx context.Context) {
	buf := make([]byte, s.cfg.ReportSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.isPaused() {
			select {
			case <-ctx.Done():
				return
			case <-s.resumeCh:
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		n, err := s.port.InterruptTransfer(s.handle, s.epIn, buf, ReadTimeout)
		if err != nil {
			s.mu.Lock()
			s.consecutiveErrors++
			count := s.consecutiveErrors
			s.mu.Unlock()
			if count >= MaxConsecutiveError {
				s.log.Warn().Int("consecutive_errors", count).Msg("too many consecutive read errors, disconnecting")
				s.setState(StateClosing)
				s.notify(EventDisconnected, drivererr.New(drivererr.KindDeviceDisconnected, "device stopped responding", "unplug and reconnect the device"))
				return
			}
			time.Sleep(ReadRetryDelay)
			continue
		}

		s.mu.Lock()
		s.consecutiveErrors = 0
		s.mu.Unlock()

		if n <= 0 {
			continue
		}
		s.router.Process(s.id, buf[:n])
	}
}

// keepaliveLoop sends packet immediately and then every KeepaliveInterval
// while Running. Errors are logged and retried on the next tick.
func (s *Session) keepaliveLoop(ctx context.Context, packet []byte) {
	send := func() {
		if s.isPaused() {
			return
		}
		if _, err := s.port.InterruptTransfer(s.handle, s.epOut, packet, ControlTimeout); err != nil {
			s.log.Warn().Err(err).Msg("keepalive send failed, will retry next tick")
		}
	}
	send()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

func (s *Session) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Pause implements Running->Paused: the read loop stops requesting
// transfers but the session is not closed.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	s.paused = true
	s.mu.Unlock()
}

// Resume implements Paused->Running: the loop restarts without
// re-initialization. A GET_STATUS probe first checks the device is still
// present; if it disappeared while paused, the session goes to Error
// instead of restarting the read loop.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if _, err := s.port.ControlTransfer(s.handle, 0x80, 0x00, 0, 0, make([]byte, 2), ControlTimeout); err != nil {
		e := drivererr.Wrap(drivererr.KindDeviceDisconnected, err, "device disappeared while paused", "unplug and reconnect the device")
		s.fail(e)
		s.notify(EventFatalError, e)
		return
	}

	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.paused = false
	ch := s.resumeCh
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// notify publishes an Event without blocking indefinitely: a full channel
// only ever means the manager is behind, not a reason to wedge the loop.
func (s *Session) notify(kind EventKind, err error) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- Event{DeviceID: s.id, Kind: kind, Err: err}:
	default:
	}
}

// Close cancels the loops, waits for them, releases every key the device
// still holds (a cancelled session must not lose a key-up obligation),
// sends a best-effort LED-off for Xbox-family vendors, then releases the
// interface and closes the handle.
func (s *Session) Close(ctx context.Context) error {
	s.setState(StateClosing)

	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}

	s.mapper.ReleaseAll(s.id)
	s.router.Unregister(s.id)

	if s.cfg.ProtocolFamily == config.FamilyGIP || s.cfg.ProtocolFamily == config.FamilyXInput {
		off := make([]byte, 3)
		_, _ = s.port.InterruptTransfer(s.handle, s.epOut, off, ControlTimeout)
	}

	_ = s.port.ReleaseInterface(s.handle, 0)
	err := s.port.Close(s.handle)

	s.setState(StateClosed)
	return err
}
