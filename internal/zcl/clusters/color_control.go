package clusters

import "zigbee-ledfx/internal/zcl"

const (
	AttrCurrentX  uint16 = 0x0003
	AttrCurrentY  uint16 = 0x0004
	AttrColorMode uint16 = 0x0008

	CmdMoveToColor uint8 = 0x07
)

// ColorControl carries the XY subset of the cluster. Vendor attributes are
// registered on top of it as manufacturer-specific overlays.
var ColorControl = zcl.ClusterDef{
	ID:   IDColorControl,
	Name: "Color Control",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0002, Name: "RemainingTime", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: AttrCurrentX, Name: "CurrentX", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: AttrCurrentY, Name: "CurrentY", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: AttrColorMode, Name: "ColorMode", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: 0x400A, Name: "ColorCapabilities", Type: zcl.TypeBitmap16, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: CmdMoveToColor, Name: "MoveToColor"},
	},
}
