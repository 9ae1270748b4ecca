// Package clusters holds the standard ZCL cluster definitions served by a
// dimmable colour light.
package clusters

import "zigbee-ledfx/internal/zcl"

// Cluster IDs
const (
	IDBasic        uint16 = 0x0000
	IDIdentify     uint16 = 0x0003
	IDOnOff        uint16 = 0x0006
	IDLevelControl uint16 = 0x0008
	IDColorControl uint16 = 0x0300
)

// Standard returns the cluster definitions in registration order.
func Standard() []zcl.ClusterDef {
	return []zcl.ClusterDef{Basic, Identify, OnOff, LevelControl, ColorControl}
}

// RegisterStandard registers every standard cluster into r.
func RegisterStandard(r *zcl.Registry) error {
	for _, c := range Standard() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
