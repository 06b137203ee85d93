package debugreport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordTracksMinMaxAndChanges(t *testing.T) {
	r := NewRecorder(4)
	r.Record([]byte{0x10, 0x20, 0x30, 0x40})
	r.Record([]byte{0x10, 0x25, 0x30, 0x41})
	r.Record([]byte{0x10, 0x20, 0x30, 0x42})

	assert.Equal(t, 0, r.Stats[0].Changes, "byte 0 never changed from the baseline")
	assert.Equal(t, 1, r.Stats[1].Changes, "byte 1 changed once, then returned to baseline")
	assert.Equal(t, 0, r.Stats[2].Changes)
	assert.Equal(t, 2, r.Stats[3].Changes, "byte 3 changed on both later reports")

	assert.Equal(t, byte(0x20), r.Stats[1].Min)
	assert.Equal(t, byte(0x25), r.Stats[1].Max)
}

func TestActiveOffsetsOnlyReturnsChangedBytes(t *testing.T) {
	r := NewRecorder(3)
	r.Record([]byte{1, 2, 3})
	r.Record([]byte{1, 9, 3})

	assert.Equal(t, []int{1}, r.ActiveOffsets())
}

func TestRecordGrowsStatsForLongerReports(t *testing.T) {
	r := NewRecorder(2)
	r.Record([]byte{1, 2, 3, 4, 5})
	assert.Len(t, r.Stats, 5)
	assert.True(t, r.Stats[4].Seen)
}

func TestRecordKeepsACopyNotAReference(t *testing.T) {
	buf := []byte{1, 2, 3}
	r := NewRecorder(3)
	r.Record(buf)
	buf[0] = 0xFF
	assert.Equal(t, byte(1), r.Reports[0][0], "mutating the caller's slice after Record must not affect the stored copy")
}
