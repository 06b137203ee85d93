package config

import (
	"github.com/dalmatheo/gamepadd/internal/deviceid"
	"github.com/dalmatheo/gamepadd/internal/drivererr"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// wireDeviceID mirrors the on-disk `deviceId:{vendorId,productId}` shape.
type wireDeviceID struct {
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
}

// wireConfiguration mirrors one on-disk configuration record. It
// decodes straight off json5, which tolerates `//`/`/* */` comments and
// trailing commas without a hand-rolled comment-stripping pre-pass.
type wireConfiguration struct {
	SchemaVersion    string        `json:"schemaVersion"`
	DeviceID         wireDeviceID  `json:"deviceId"`
	Name             string        `json:"name"`
	ProtocolFamily   string        `json:"protocolFamily"`
	Endpoints        *Endpoints    `json:"endpoints,omitempty"`
	ReportSize       int           `json:"reportSize"`
	Initialization   []InitStep    `json:"initialization"`
	Deadzones        Deadzones     `json:"deadzones,omitempty"`
	Quirks           []Quirk       `json:"quirks,omitempty"`
	Priority         int           `json:"priority,omitempty"`
	ReportDescriptor []ReportField `json:"reportDescriptor,omitempty"`
}

// decodeOne decodes and validates a single configuration record's bytes.
func decodeOne(data []byte) (*Configuration, error) {
	var w wireConfiguration
	if err := json5.Unmarshal(data, &w); err != nil {
		return nil, drivererr.Wrap(drivererr.KindInvalidJSON, err, "malformed configuration JSON", "check the file for syntax errors outside of comments")
	}

	if w.SchemaVersion != SupportedSchemaVersion {
		return nil, drivererr.New(drivererr.KindSchemaMismatch,
			"configuration schemaVersion \""+w.SchemaVersion+"\" is not supported",
			"update the configuration to schemaVersion \""+SupportedSchemaVersion+"\"")
	}

	quirks := make(map[string]Quirk, len(w.Quirks))
	for _, q := range w.Quirks {
		quirks[q.Name] = q
	}

	return &Configuration{
		SchemaVersion:    w.SchemaVersion,
		DeviceID:         deviceid.New(w.DeviceID.VendorID, w.DeviceID.ProductID),
		VendorIDRaw:      w.DeviceID.VendorID,
		ProductIDRaw:     w.DeviceID.ProductID,
		Name:             w.Name,
		ProtocolFamily:   ProtocolFamily(w.ProtocolFamily),
		Endpoints:        w.Endpoints,
		ReportSize:       w.ReportSize,
		Initialization:   w.Initialization,
		DeadzonesCfg:     w.Deadzones,
		Quirks:           quirks,
		Priority:         w.Priority,
		ReportDescriptor: w.ReportDescriptor,
		Enabled:          true,
	}, nil
}

// IndexEntry is one row of the optional controller index.
type IndexEntry struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	Priority  int    `json:"priority"`
	Enabled   bool   `json:"enabled"`
}

// Index is the optional `{schema, version, controllers:[...]}` document.
type Index struct {
	Schema      string       `json:"schema"`
	Version     string       `json:"version"`
	Controllers []IndexEntry `json:"controllers"`
}

// decodeIndex decodes a controller index document.
func decodeIndex(data []byte) (*Index, error) {
	var idx Index
	if err := json5.Unmarshal(data, &idx); err != nil {
		return nil, drivererr.Wrap(drivererr.KindInvalidJSON, err, "malformed controller index JSON", "check the index file for syntax errors")
	}
	return &idx, nil
}
