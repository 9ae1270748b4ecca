package clusters

import "zigbee-ledfx/internal/zcl"

// Basic attribute IDs
const (
	AttrManufacturerName uint16 = 0x0004
	AttrModelIdentifier  uint16 = 0x0005
	AttrSWBuildID        uint16 = 0x4000
)

var Basic = zcl.ClusterDef{
	ID:   IDBasic,
	Name: "Basic",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "ZCLVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "ApplicationVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: AttrManufacturerName, Name: "ManufacturerName", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: AttrModelIdentifier, Name: "ModelIdentifier", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0007, Name: "PowerSource", Type: zcl.TypeEnum8, Access: zcl.AccessRead},
		{ID: AttrSWBuildID, Name: "SWBuildID", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
	},
}
