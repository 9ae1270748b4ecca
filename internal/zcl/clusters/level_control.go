package clusters

import "zigbee-ledfx/internal/zcl"

const (
	AttrCurrentLevel uint16 = 0x0000

	CmdMoveToLevel          uint8 = 0x00
	CmdMoveToLevelWithOnOff uint8 = 0x04
)

var LevelControl = zcl.ClusterDef{
	ID:   IDLevelControl,
	Name: "Level Control",
	Attributes: []zcl.AttributeDef{
		{ID: AttrCurrentLevel, Name: "CurrentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0001, Name: "RemainingTime", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0011, Name: "OnLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessWrite},
	},
	Commands: []zcl.CommandDef{
		{ID: CmdMoveToLevel, Name: "MoveToLevel"},
		{ID: CmdMoveToLevelWithOnOff, Name: "MoveToLevelWithOnOff"},
	},
}
