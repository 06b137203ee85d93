// Package manager implements the DeviceManager: discovery scanning,
// session lifecycle, and disconnect propagation, wiring ConfigStore,
// UsbPort, InputRouter, and OutputMapper together per device.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/mapper"
	"github.com/dalmatheo/gamepadd/internal/router"
	"github.com/dalmatheo/gamepadd/internal/session"
	"github.com/dalmatheo/gamepadd/internal/usbport"
)

// ScanInterval is the default discovery scan cadence.
const ScanInterval = 2 * time.Second

// Manager runs discovery and owns every active Session: the scan loop,
// session lifecycle, and disconnect propagation.
type Manager struct {
	port   usbport.Port
	store  *config.Store
	router *router.Router
	mapper *mapper.Mapper
	log    zerolog.Logger

	scanInterval time.Duration

	mu       sync.Mutex
	sessions map[deviceid.ID]*session.Session

	events chan session.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a Manager from its collaborators.
func New(port usbport.Port, store *config.Store, sink mapper.EventSink, log zerolog.Logger) *Manager {
	mp := mapper.New(sink, log)
	return &Manager{
		port:         port,
		store:        store,
		router:       router.New(mp),
		mapper:       mp,
		log:          log,
		scanInterval: ScanInterval,
		sessions:     make(map[deviceid.ID]*session.Session),
		events:       make(chan session.Event, 32),
	}
}

// Mapper exposes the manager's OutputMapper, e.g. so a front-end can swap
// the active Profile for a device (profile.Load/Save remain the caller's
// responsibility).
func (m *Manager) Mapper() *mapper.Mapper { return m.mapper }

// Run starts the scan loop and the event-dispatch loop, both cancelled by
// ctx.
func (m *Manager) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.scanLoop(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.eventLoop(runCtx)
	}()
}

// Shutdown cancels the scan and event loops and closes every active
// session, releasing every USB handle and held key.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[deviceid.ID]*session.Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close(ctx)
	}
	m.mapper.ReleaseAllDevices()
}

// scanLoop polls UsbPort.List every scanInterval, starting a Session for
// every matched device not already running one.
func (m *Manager) scanLoop(ctx context.Context) {
	m.scanOnce(ctx)
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scanOnce(ctx)
		}
	}
}

func (m *Manager) scanOnce(ctx context.Context) {
	refs, err := m.port.List(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("usb enumeration failed")
		return
	}
	for _, ref := range refs {
		id := deviceid.New(ref.VendorID, ref.ProductID)

		m.mu.Lock()
		_, running := m.sessions[id]
		m.mu.Unlock()
		if running {
			continue
		}

		cfg, ok := m.store.Best(ref.VendorID, ref.ProductID)
		if !ok {
			continue
		}
		m.connect(ctx, id, cfg)
	}
}

// connect creates and opens a Session for a freshly matched device.
func (m *Manager) connect(ctx context.Context, id deviceid.ID, cfg *config.Configuration) {
	s := session.New(id, cfg, m.port, m.router, m.mapper, m.log, m.events)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Open(ctx); err != nil {
		m.log.Warn().Err(err).Str("device_id", id.String()).Msg("session failed to open")
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return
	}
	m.log.Info().Str("device_id", id.String()).Str("name", cfg.Name).Msg("device connected")
}

// eventLoop drains Session disconnect/error notifications and tears the
// owning session down and removes it from the registry, so the next scan's
// not-running check can reconnect it.
func (m *Manager) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev session.Event) {
	m.mu.Lock()
	s, ok := m.sessions[ev.DeviceID]
	delete(m.sessions, ev.DeviceID)
	m.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Kind {
	case session.EventDisconnected:
		m.log.Info().Str("device_id", ev.DeviceID.String()).Msg("device disconnected")
	case session.EventFatalError:
		m.log.Error().Err(ev.Err).Str("device_id", ev.DeviceID.String()).Msg("session fatal error")
	}
	_ = s.Close(ctx)
}

// Pause pauses every running session on a system-sleep signal.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.Pause()
	}
}

// Resume resumes every paused session on system wake.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.Resume()
	}
}

// Sessions returns a snapshot of currently tracked device ids, for
// front-ends (status menu, CLI) that want to list connected controllers.
func (m *Manager) Sessions() []deviceid.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]deviceid.ID, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}
