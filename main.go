// Command gamepadd is the daemon entry point: it wires ConfigStore,
// UsbPort, the protocol registry, InputRouter, and OutputMapper into a
// running DeviceManager.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalmatheo/gamepadd/internal/config"
	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/diag"
	"github.com/dalmatheo/gamepadd/internal/logging"
	"github.com/dalmatheo/gamepadd/internal/manager"
	"github.com/dalmatheo/gamepadd/internal/monitor"
	"github.com/dalmatheo/gamepadd/internal/profile"
	"github.com/dalmatheo/gamepadd/internal/usbport"
)

const (
	driverName      = "gamepadd"
	shutdownTimeout = 5 * time.Second
)

func main() {
	configDir := flag.String("config-dir", defaultConfigDir(), "directory of device configuration files")
	profilePath := flag.String("profile", "", "path to a button-mapping profile file, installed for the device its deviceId names; a profile without a deviceId is not installed (empty uses the default profile)")
	daemon := flag.Bool("daemon", false, "run as a background daemon with JSON logging instead of pretty console output")
	calibrateID := flag.String("calibrate", "", "VVVV:PPPP: run the stick calibration wizard against one device instead of the daemon")
	debugReportID := flag.String("debug-report", "", "VVVV:PPPP: record raw input reports and print which byte offsets change")
	monitorID := flag.String("monitor", "", "VVVV:PPPP: print decoded input events for one device instead of the daemon")
	flag.Parse()

	logger := logging.New(os.Stderr, !*daemon)
	logger.Info().Str("driver", driverName).Msg("starting")

	store := config.NewStore()
	if _, errs := store.LoadAll(*configDir); len(errs) > 0 {
		for _, e := range errs {
			logger.Warn().Err(e).Msg("configuration load issue")
		}
	}
	if len(store.All()) == 0 {
		logger.Fatal().Str("config_dir", *configDir).Msg("no device configurations loaded")
	}

	if diagID := firstNonEmpty(*calibrateID, *debugReportID, *monitorID); diagID != "" {
		port := usbport.NewGousbPort()
		defer func() {
			if err := port.Shutdown(); err != nil {
				logger.Warn().Err(err).Msg("usb context shutdown error")
			}
		}()
		runDiag(context.Background(), logger, store, port, *calibrateID, *debugReportID, *monitorID)
		return
	}

	activeProfile := profile.Default()
	if *profilePath != "" {
		p, err := profile.Load(*profilePath)
		if err != nil {
			logger.Warn().Err(err).Msg("could not load profile, falling back to default")
		} else {
			activeProfile = p
		}
	}

	port := usbport.NewGousbPort()
	defer func() {
		if err := port.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("usb context shutdown error")
		}
	}()

	sink := newLoggingSink(logger)
	mgr := manager.New(port, store, sink, logger)

	if activeProfile.DeviceID != nil {
		mgr.Mapper().SetProfile(*activeProfile.DeviceID, activeProfile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Run(ctx)

	waitForSignal()

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// runDiag resolves one configured device and runs whichever single
// diagnostic mode the caller selected.
func runDiag(ctx context.Context, logger zerolog.Logger, store *config.Store, port usbport.Port, calibrateID, debugReportID, monitorID string) {
	idStr := firstNonEmpty(calibrateID, debugReportID, monitorID)
	id, err := deviceid.Parse(idStr)
	if err != nil {
		logger.Fatal().Err(err).Str("device_id", idStr).Msg("invalid device id")
	}
	cfg, ok := store.Best(id.VendorID, id.ProductID)
	if !ok {
		logger.Fatal().Str("device_id", id.String()).Msg("no configuration matches device id")
	}

	sess, err := diag.Open(ctx, port, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open device for diagnostics")
	}
	defer sess.Close()

	switch {
	case calibrateID != "":
		results, err := sess.Calibrate(50, 8*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Msg("calibration failed")
		}
		for axis, r := range results {
			fmt.Printf("%s: min=%d max=%d center=%d suggested_deadzone=%.3f\n", axis, r.Range.Min, r.Range.Max, r.Range.Center, r.Deadzone)
		}

	case debugReportID != "":
		rec := sess.RecordDebug(200)
		fmt.Printf("active byte offsets: %v\n", rec.ActiveOffsets())

	case monitorID != "":
		m := monitor.New(cfg.DeviceID, nil)
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			waitForSignal()
			cancel()
		}()
		sess.Monitor(runCtx, m)
	}
}

// waitForSignal blocks until SIGINT or SIGTERM, the daemon's shutdown
// trigger.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func defaultConfigDir() string {
	if dir := os.Getenv("GAMEPADD_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./configs"
	}
	return filepath.Join(home, ".config", driverName, "devices")
}

// loggingSink is the default EventSink wired when no real host input
// synthesizer is linked in: it logs every call instead of driving the OS.
type loggingSink struct {
	log zerolog.Logger
}

func newLoggingSink(log zerolog.Logger) *loggingSink {
	return &loggingSink{log: log}
}

func (s *loggingSink) KeyDown(code uint16, modifier profile.KeyModifier) error {
	s.log.Debug().Uint16("key_code", code).Str("modifier", string(modifier)).Msg("key_down")
	return nil
}

func (s *loggingSink) KeyUp(code uint16, modifier profile.KeyModifier) error {
	s.log.Debug().Uint16("key_code", code).Str("modifier", string(modifier)).Msg("key_up")
	return nil
}

func (s *loggingSink) MouseMove(dx, dy float64) error {
	s.log.Debug().Float64("dx", dx).Float64("dy", dy).Msg("mouse_move")
	return nil
}

func (s *loggingSink) MouseClick(button string) error {
	s.log.Debug().Str("button", button).Msg("mouse_click")
	return nil
}

func (s *loggingSink) MouseScroll(dx, dy float64) error {
	s.log.Debug().Float64("dx", dx).Float64("dy", dy).Msg("mouse_scroll")
	return nil
}
