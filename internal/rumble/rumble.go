// Package rumble forwards a single left/right motor pair to the device.
// It deliberately does no waveform sequencing or timed choreography; one
// call writes one motor-pair report and returns.
package rumble

import (
	"context"
	"fmt"
	"time"

	"github.com/dalmatheo/gamepadd/internal/usbport"
)

// MotorPair is a rumble instruction: two 8-bit motor intensities, large
// (low-frequency) and small (high-frequency), matching the pair most
// vendor families expose over a single output report.
type MotorPair struct {
	Large byte
	Small byte
}

// Off is the zero-intensity pair used to stop rumble.
var Off = MotorPair{}

// Forwarder writes a MotorPair to a device's OUT endpoint as a single
// output report, with no internal sequencing or pattern playback.
type Forwarder struct {
	port    usbport.Port
	handle  usbport.Handle
	epOut   uint8
	timeout time.Duration
}

// NewForwarder builds a Forwarder writing to handle's epOut.
func NewForwarder(port usbport.Port, handle usbport.Handle, epOut uint8) *Forwarder {
	return &Forwarder{port: port, handle: handle, epOut: epOut, timeout: 2 * time.Second}
}

// Send writes one motor-pair report immediately; it does not choreograph
// timed frames.
func (f *Forwarder) Send(ctx context.Context, m MotorPair) error {
	report := make([]byte, 4)
	report[0] = 0x01 // rumble output report id, vendor-agnostic for this core
	report[1] = m.Large
	report[2] = m.Small
	_, err := f.port.InterruptTransfer(f.handle, f.epOut, report, f.timeout)
	if err != nil {
		return fmt.Errorf("send rumble motor pair: %w", err)
	}
	return nil
}

// Stop is shorthand for Send(ctx, Off).
func (f *Forwarder) Stop(ctx context.Context) error {
	return f.Send(ctx, Off)
}
