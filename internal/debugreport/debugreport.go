// Package debugreport records raw reports from any ProtocolParser's byte
// stream and tracks per-offset statistics, for "which bytes are changing"
// triage against an unfamiliar or misbehaving device.
package debugreport

// ByteStats tracks one byte offset's observed range and change count
// across a recording session.
type ByteStats struct {
	Seen    bool
	Min     byte
	Max     byte
	Changes int
}

// Recorder accumulates raw reports and per-offset statistics, used by the
// `-debug-report` CLI mode and by tests that want to eyeball which bytes a
// real device actually moves.
type Recorder struct {
	Reports [][]byte
	Stats   []ByteStats
}

// NewRecorder returns an empty Recorder sized for reports up to maxBytes
// long; a longer report simply grows Stats on first sight.
func NewRecorder(maxBytes int) *Recorder {
	return &Recorder{Stats: make([]ByteStats, maxBytes)}
}

// Record appends one raw report and updates Stats against the first
// recorded report as the change baseline.
func (r *Recorder) Record(report []byte) {
	cp := make([]byte, len(report))
	copy(cp, report)

	for len(r.Stats) < len(cp) {
		r.Stats = append(r.Stats, ByteStats{})
	}

	first := cp
	if len(r.Reports) > 0 {
		first = r.Reports[0]
	}

	for i, b := range cp {
		st := &r.Stats[i]
		if !st.Seen {
			st.Min, st.Max, st.Seen = b, b, true
		} else {
			if b < st.Min {
				st.Min = b
			}
			if b > st.Max {
				st.Max = b
			}
		}
		if i < len(first) && b != first[i] {
			st.Changes++
		}
	}

	r.Reports = append(r.Reports, cp)
}

// ActiveOffsets returns the byte indices that changed at least once,
// the signal a triage session actually cares about.
func (r *Recorder) ActiveOffsets() []int {
	var out []int
	for i, st := range r.Stats {
		if st.Changes > 0 {
			out = append(out, i)
		}
	}
	return out
}
