// Package calibrate measures stick center, range, and noise from any
// ProtocolParser's raw stick stream, producing deadzone/range suggestions
// instead of a single family's baked-in center/min/max struct.
package calibrate

import (
	"fmt"
	"time"

	"github.com/dalmatheo/gamepadd/internal/events"
)

// Sample reads one fresh set of raw per-axis values from whatever device
// session is being calibrated (a thin adapter over protocol.Parser +
// mirror.State for the caller's device). A family that does not expose a
// given axis simply omits it from the map.
type Sample func() (map[events.Axis]int16, error)

// AxisRange is one axis's measured center and full-deflection extremes.
type AxisRange struct {
	Center int16
	Min    int16
	Max    int16
}

// MeasureCenter averages n samples, spaced delay apart, into a per-axis
// center value. The sticks are expected to rest in their natural center
// for the whole window.
func MeasureCenter(sample Sample, n int, delay time.Duration) (map[events.Axis]int32, error) {
	sums := make(map[events.Axis]int64)
	for i := 0; i < n; i++ {
		vals, err := sample()
		if err != nil {
			return nil, fmt.Errorf("measure center: sample %d: %w", i, err)
		}
		for axis, v := range vals {
			sums[axis] += int64(v)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	centers := make(map[events.Axis]int32, len(sums))
	for axis, sum := range sums {
		centers[axis] = int32(sum / int64(n))
	}
	return centers, nil
}

// MeasureRange samples for duration, spaced delay apart, tracking each
// axis's min/max while the user sweeps both sticks in complete circles.
// A caller-supplied stop channel lets an interactive wizard cut the
// window short; a nil channel just runs the full duration.
func MeasureRange(sample Sample, duration, delay time.Duration, stop <-chan struct{}) (map[events.Axis]AxisRange, error) {
	ranges := make(map[events.Axis]AxisRange)
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		select {
		case <-stop:
			return finalizeRanges(ranges), nil
		default:
		}
		vals, err := sample()
		if err != nil {
			continue // a transient read error should not abort the window
		}
		for axis, v := range vals {
			r, ok := ranges[axis]
			if !ok {
				ranges[axis] = AxisRange{Min: v, Max: v}
				continue
			}
			if v < r.Min {
				r.Min = v
			}
			if v > r.Max {
				r.Max = v
			}
			ranges[axis] = r
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return finalizeRanges(ranges), nil
}

func finalizeRanges(ranges map[events.Axis]AxisRange) map[events.Axis]AxisRange {
	for axis, r := range ranges {
		r.Center = r.Min + (r.Max-r.Min)/2
		ranges[axis] = r
	}
	return ranges
}

// SuggestDeadzone derives a [0,1] deadzone threshold from a measured
// range: the fraction of full deflection the center drifted by, with a
// small safety margin, floored at a sane minimum so a perfectly centered
// stick does not suggest a zero deadzone.
func SuggestDeadzone(r AxisRange) float64 {
	span := float64(r.Max) - float64(r.Min)
	if span <= 0 {
		return 0.1
	}
	drift := absF(float64(r.Center)) / (span / 2)
	suggested := drift*1.5 + 0.05
	if suggested < 0.05 {
		return 0.05
	}
	if suggested > 0.5 {
		return 0.5
	}
	return suggested
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
