package effects

import "zigbee-ledfx/internal/zcl"

// Report is an attribute report or read response from one cluster, with raw
// values already decoded from their ZCL types.
type Report struct {
	Cluster      uint16
	Manufacturer uint16
	Attrs        map[uint16]any
}

// Decode turns a report into a patch of vendor fields. The vendor attributes
// only exist under ManufacturerCode, so reports from other clusters or
// without that tag yield an empty patch. An absent effect attribute leaves
// the effect field out entirely. A reported speed of 0 means the firmware
// default and is left out too.
func Decode(r Report) Patch {
	patch := Patch{}
	if r.Cluster != Cluster || r.Manufacturer != ManufacturerCode {
		return patch
	}
	for id, raw := range r.Attrs {
		a, ok := byAttr[id]
		if !ok {
			continue
		}
		if !a.speed {
			kind, _ := EffectFromRaw(raw)
			patch[a.key] = kind.String()
			continue
		}
		if n, ok := zcl.ToInt64(raw); ok && n != 0 {
			patch[a.key] = int(ClampSpeed(n))
		}
	}
	return patch
}

// EffectFromRaw maps a reported effect value to a kind. Values that are not
// a known code yield None and false.
func EffectFromRaw(raw any) (Kind, bool) {
	n, ok := zcl.ToInt64(raw)
	if !ok {
		return None, false
	}
	return KindFromCode(n)
}
