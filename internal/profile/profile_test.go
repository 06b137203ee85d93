package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/drivererr"
)

// TestProfileSaveLoadRoundTrip checks that a profile written to disk and
// reloaded yields an equal value.
func TestProfileSaveLoadRoundTrip(t *testing.T) {
	id := deviceid.New(0x045E, 0x02EA)
	p := Profile{
		Name:     "p",
		DeviceID: &id,
		ButtonMappings: []ButtonMapping{
			{ButtonIdentifier: "A", KeyCode: 0x00, Modifier: ModifierNone},
		},
		Version: CurrentVersion,
	}

	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, Save(path, p))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestLoadMissingFileIsProfileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	var de *drivererr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, drivererr.KindProfileNotFound, de.Kind)
}

func TestLoadVersionMismatchFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"old","version":0,"buttonMappings":[]}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	var de *drivererr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, drivererr.KindVersionMismatch, de.Kind)
	assert.False(t, de.IsRetryable())

	// Callers fall back to Default() on any load error.
	assert.Equal(t, Default(), Default())
}

func TestChordHelpers(t *testing.T) {
	plain := ButtonMapping{ButtonIdentifier: "A"}
	assert.False(t, plain.IsChord())
	assert.Equal(t, []string{"A"}, plain.Chord())

	chord := ButtonMapping{ButtonIdentifier: "LB+RB"}
	assert.True(t, chord.IsChord())
	assert.Equal(t, []string{"LB", "RB"}, chord.Chord())
}

func TestMappingForExactMatch(t *testing.T) {
	p := Profile{ButtonMappings: []ButtonMapping{
		{ButtonIdentifier: "A", KeyCode: 1},
		{ButtonIdentifier: "LB+RB", KeyCode: 2},
	}}
	m, ok := p.MappingFor("A")
	require.True(t, ok)
	assert.Equal(t, uint16(1), m.KeyCode)

	_, ok = p.MappingFor("B")
	assert.False(t, ok)
}
