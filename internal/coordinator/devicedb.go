package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/zcl"
)

// ManufacturerGroup groups device models under one manufacturer name.
type ManufacturerGroup struct {
	Name   string             `json:"name"`
	Models []DeviceDefinition `json:"models"`
}

// DeviceDefinition describes one controller firmware variant.
type DeviceDefinition struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	// ZigbeeModel is the ModelIdentifier the firmware reports.
	ZigbeeModel  string `json:"zigbee_model,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
	// Bind lists clusters bound in addition to the fixed light binding.
	Bind           []uint16            `json:"bind,omitempty"`
	Reporting      []effects.Reporting `json:"reporting,omitempty"`
	EffectGettable bool                `json:"effect_gettable,omitempty"`
	ColorXY        bool                `json:"color_xy,omitempty"`
}

// Profile returns the codec profile for the definition.
func (d *DeviceDefinition) Profile() effects.Profile {
	return effects.Profile{
		Model:          d.Model,
		EffectGettable: d.EffectGettable,
		ColorReporting: d.ColorXY,
		Reporting:      d.Reporting,
	}
}

// BuiltinDevices returns the two known firmware variants: the plain
// ESP32-H2 build, where effects are write-only, and the colour build that
// reports CurrentX/CurrentY and can read the effect back.
func BuiltinDevices() []DeviceDefinition {
	return []DeviceDefinition{
		{
			Manufacturer: "Custom",
			Model:        "WS2812_ESP32H2",
			ZigbeeModel:  "WS2812_Light",
			FriendlyName: "WS2812 LED Strip Light with Effects",
		},
		{
			Manufacturer:   "ESP32-Zigbee",
			Model:          "WS2812_Light",
			ZigbeeModel:    "WS2812_Light",
			FriendlyName:   "WS2812 RGB LED strip with effects",
			EffectGettable: true,
			ColorXY:        true,
		},
	}
}

// DeviceDB holds device definitions keyed by model.
type DeviceDB struct {
	defs map[string]*DeviceDefinition
}

// NewDeviceDB creates a database holding the built-in definitions.
func NewDeviceDB() *DeviceDB {
	db := &DeviceDB{defs: make(map[string]*DeviceDefinition)}
	for _, d := range BuiltinDevices() {
		db.Add(d)
	}
	return db
}

// Add inserts a device definition, replacing any with the same model.
func (db *DeviceDB) Add(def DeviceDefinition) {
	cp := def
	db.defs[def.Model] = &cp
}

// Lookup finds a device definition by model.
func (db *DeviceDB) Lookup(model string) *DeviceDefinition {
	return db.defs[model]
}

// Models returns the known models sorted.
func (db *DeviceDB) Models() []string {
	models := make([]string, 0, len(db.defs))
	for m := range db.defs {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Len returns the number of device definitions.
func (db *DeviceDB) Len() int {
	return len(db.defs)
}

// deviceFile is the JSON structure for files in the devices directory.
type deviceFile struct {
	Clusters      []zcl.ClusterDef    `json:"clusters,omitempty"`
	Devices       []DeviceDefinition  `json:"devices,omitempty"`
	Manufacturers []ManufacturerGroup `json:"manufacturers,omitempty"`
}

// LoadDeviceDir reads all *.json files from a directory, registering custom
// clusters into the ZCL registry and adding device definitions on top of the
// built-in ones. A missing or empty directory is not an error.
func LoadDeviceDir(dir string, registry *zcl.Registry, logger *slog.Logger) (*DeviceDB, error) {
	db := NewDeviceDB()
	if dir == "" {
		return db, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return db, fmt.Errorf("glob devices dir: %w", err)
	}
	if len(matches) == 0 {
		logger.Info("no device definition files found", "dir", dir)
		return db, nil
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return db, fmt.Errorf("read %s: %w", path, err)
		}

		var df deviceFile
		if err := json.Unmarshal(data, &df); err != nil {
			return db, fmt.Errorf("parse %s: %w", path, err)
		}

		for _, c := range df.Clusters {
			if err := registry.Register(c); err != nil {
				return db, fmt.Errorf("%s: cluster 0x%04X: %w", filepath.Base(path), c.ID, err)
			}
		}
		for _, d := range df.Devices {
			db.Add(d)
		}
		for _, mg := range df.Manufacturers {
			for _, d := range mg.Models {
				d.Manufacturer = mg.Name
				db.Add(d)
			}
		}

		deviceCount := len(df.Devices)
		for _, mg := range df.Manufacturers {
			deviceCount += len(mg.Models)
		}
		logger.Info("loaded device file", "path", filepath.Base(path),
			"clusters", len(df.Clusters), "devices", deviceCount)
	}

	logger.Info("device database loaded", "files", len(matches), "devices", db.Len())
	return db, nil
}
