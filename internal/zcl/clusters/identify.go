package clusters

import "zigbee-ledfx/internal/zcl"

const (
	AttrIdentifyTime uint16 = 0x0000

	CmdIdentify uint8 = 0x00
)

var Identify = zcl.ClusterDef{
	ID:   IDIdentify,
	Name: "Identify",
	Attributes: []zcl.AttributeDef{
		{ID: AttrIdentifyTime, Name: "IdentifyTime", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: CmdIdentify, Name: "Identify"},
	},
}
