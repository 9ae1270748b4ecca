package effects

import (
	"sort"

	"zigbee-ledfx/internal/zcl"
	"zigbee-ledfx/internal/zcl/clusters"
)

// Vendor surface constants.
const (
	ManufacturerCode uint16 = 0x1234
	Endpoint         uint8  = 10
	Cluster                 = clusters.IDColorControl
	AttrType                = zcl.TypeUint8

	AttrEffect       uint16 = 0xF000
	AttrSpeedRainbow uint16 = 0xF001
	AttrSpeedStrobe  uint16 = 0xF002
	AttrSpeedTwinkle uint16 = 0xF003
)

// Normalized state keys.
const (
	KeyState        = "state"
	KeyBrightness   = "brightness"
	KeyColor        = "color"
	KeyEffect       = "effect"
	KeySpeedRainbow = "speed_rainbow"
	KeySpeedStrobe  = "speed_strobe"
	KeySpeedTwinkle = "speed_twinkle"
)

// Speed bounds. The device treats 0 as "use default", so it is never sent.
const (
	SpeedMin = 1
	SpeedMax = 255
)

// attribute is one row of the vendor table. Speed rows name the kind they
// tune; the effect row has speed == false.
type attribute struct {
	key         string
	attr        uint16
	speed       bool
	kind        Kind
	description string
}

var attrTable = []attribute{
	{key: KeyEffect, attr: AttrEffect, description: "Animation effect"},
	{key: KeySpeedRainbow, attr: AttrSpeedRainbow, speed: true, kind: Rainbow, description: "Rainbow speed (1=slow, 255=fast)"},
	{key: KeySpeedStrobe, attr: AttrSpeedStrobe, speed: true, kind: Strobe, description: "Strobe speed (1=slow, 255=fast)"},
	{key: KeySpeedTwinkle, attr: AttrSpeedTwinkle, speed: true, kind: Twinkle, description: "Twinkle speed (1=slow, 255=fast)"},
}

var (
	byKey  = make(map[string]attribute, len(attrTable))
	byAttr = make(map[uint16]attribute, len(attrTable))
	byKind = make(map[Kind]attribute, len(attrTable))
)

func init() {
	for _, a := range attrTable {
		byKey[a.key] = a
		byAttr[a.attr] = a
		if a.speed {
			byKind[a.kind] = a
		}
	}
}

// Owns reports whether key is one of the vendor keys handled by this package.
func Owns(key string) bool {
	_, ok := byKey[key]
	return ok
}

// Keys returns the vendor keys in table order.
func Keys() []string {
	keys := make([]string, len(attrTable))
	for i, a := range attrTable {
		keys[i] = a.key
	}
	return keys
}

// SpeedKey returns the state key tuning the speed of k. None has no speed.
func SpeedKey(k Kind) (string, bool) {
	a, ok := byKind[k]
	return a.key, ok
}

// SpeedAttr returns the attribute ID holding the speed of k.
func SpeedAttr(k Kind) (uint16, bool) {
	a, ok := byKind[k]
	return a.attr, ok
}

// AttrKeys returns the identifiers of every vendor attribute, sorted by ID.
func AttrKeys() []zcl.AttrKey {
	keys := make([]zcl.AttrKey, 0, len(attrTable))
	for _, a := range attrTable {
		keys = append(keys, zcl.AttrKey{Manufacturer: ManufacturerCode, Cluster: Cluster, Attr: a.attr})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Attr < keys[j].Attr })
	return keys
}

// Overlay returns the vendor attributes as a cluster overlay for the ZCL
// registry.
func Overlay() zcl.ClusterDef {
	def := zcl.ClusterDef{ID: Cluster}
	for _, a := range attrTable {
		def.Attributes = append(def.Attributes, zcl.AttributeDef{
			ID:           a.attr,
			Name:         a.key,
			Type:         AttrType,
			Access:       zcl.AccessRead | zcl.AccessWrite | zcl.AccessReport,
			Manufacturer: ManufacturerCode,
		})
	}
	return def
}
