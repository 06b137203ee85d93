// Package profile holds button-mapping profiles and their plain-file
// persistence, plus the profile/mapping value types the OutputMapper
// consumes.
package profile

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/drivererr"
)

// KeyModifier is a host modifier key accompanying a mapped key code.
type KeyModifier string

const (
	ModifierNone    KeyModifier = "None"
	ModifierCommand KeyModifier = "Command"
	ModifierControl KeyModifier = "Control"
	ModifierOption  KeyModifier = "Option"
	ModifierShift   KeyModifier = "Shift"
)

// ButtonMapping maps one button identifier (or "+"-joined chord, e.g.
// "LB+RB") to a host key code and modifier.
type ButtonMapping struct {
	ButtonIdentifier string      `json:"buttonIdentifier"`
	KeyCode          uint16      `json:"keyCode"`
	Modifier         KeyModifier `json:"modifier"`
}

// Chord splits a "+"-joined button identifier into its component names.
// A plain (non-chord) identifier returns a single-element slice.
func (m ButtonMapping) Chord() []string {
	return strings.Split(m.ButtonIdentifier, "+")
}

// IsChord reports whether this mapping requires more than one button.
func (m ButtonMapping) IsChord() bool {
	return strings.Contains(m.ButtonIdentifier, "+")
}

// MouseMapping maps a stick axis pair to relative pointer motion, or a
// trigger/button to a mouse click/scroll action, so the output side is
// not limited to keyboard chords.
type MouseMapping struct {
	ButtonIdentifier string  `json:"buttonIdentifier"`
	Action           string  `json:"action"` // "move" | "click" | "scroll"
	Sensitivity      float64 `json:"sensitivity,omitempty"`
	MouseButton      string  `json:"mouseButton,omitempty"`
}

// Profile is a named set of button mappings, optionally pinned to one
// device.
type Profile struct {
	Name           string          `json:"name"`
	DeviceID       *deviceid.ID    `json:"deviceId,omitempty"`
	ButtonMappings []ButtonMapping `json:"buttonMappings"`
	MouseMappings  []MouseMapping  `json:"mouseMappings,omitempty"`
	Version        int             `json:"version"`
}

// CurrentVersion is the only Profile.Version this build accepts from disk
// without an explicit migration.
const CurrentVersion = 1

// Default returns the empty fallback profile used when a configured
// profile cannot be loaded.
func Default() Profile {
	return Profile{Name: "default", Version: CurrentVersion}
}

// MappingFor returns the ButtonMapping whose identifier exactly matches id
// (which may itself be a chord string), if any.
func (p Profile) MappingFor(id string) (ButtonMapping, bool) {
	for _, m := range p.ButtonMappings {
		if m.ButtonIdentifier == id {
			return m, true
		}
	}
	return ButtonMapping{}, false
}

// Load reads and decodes a Profile from a plain JSON file.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, drivererr.Wrap(drivererr.KindProfileNotFound, err, "profile file not found: "+path, "check the profile path or create a new profile")
		}
		return Profile{}, drivererr.Wrap(drivererr.KindProfileInvalidFormat, err, "cannot read profile "+path, "check file permissions")
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, drivererr.Wrap(drivererr.KindProfileInvalidFormat, err, "malformed profile JSON in "+path, "fix the profile JSON or delete it to regenerate a default")
	}
	if p.Version != CurrentVersion {
		return Profile{}, drivererr.New(drivererr.KindVersionMismatch,
			"profile version mismatch in "+path, "re-save the profile to upgrade it to the current version")
	}
	return p, nil
}

// Save writes p to path as indented JSON.
func Save(path string, p Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return drivererr.Wrap(drivererr.KindProfileInvalidFormat, err, "cannot encode profile", "")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return drivererr.Wrap(drivererr.KindProfileInvalidFormat, err, "cannot write profile to "+path, "check directory permissions")
	}
	return nil
}
