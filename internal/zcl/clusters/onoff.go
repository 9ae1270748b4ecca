package clusters

import "zigbee-ledfx/internal/zcl"

const (
	AttrOnOff uint16 = 0x0000

	CmdOff    uint8 = 0x00
	CmdOn     uint8 = 0x01
	CmdToggle uint8 = 0x02
)

var OnOff = zcl.ClusterDef{
	ID:   IDOnOff,
	Name: "On/Off",
	Attributes: []zcl.AttributeDef{
		{ID: AttrOnOff, Name: "OnOff", Type: zcl.TypeBool, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x4003, Name: "StartUpOnOff", Type: zcl.TypeEnum8, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: CmdOff, Name: "Off"},
		{ID: CmdOn, Name: "On"},
		{ID: CmdToggle, Name: "Toggle"},
	},
}
