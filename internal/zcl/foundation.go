package zcl

// Foundation ZCL command IDs (global, not cluster-specific).
const (
	FoundationReadAttributes         uint8 = 0x00
	FoundationReadAttributesResponse uint8 = 0x01
	FoundationWriteAttributes        uint8 = 0x02
	FoundationWriteAttributesResp    uint8 = 0x04
	FoundationConfigReporting        uint8 = 0x06
	FoundationConfigReportingResp    uint8 = 0x07
	FoundationReportAttributes       uint8 = 0x0A
	FoundationDefaultResponse        uint8 = 0x0B
)

// Frame control field bits.
const (
	FrameTypeGlobal        uint8 = 0x00
	FrameTypeCluster       uint8 = 0x01
	FrameManufacturer      uint8 = 0x04
	FrameServerToClient    uint8 = 0x08
	FrameDisableDefaultRsp uint8 = 0x10
)

// ZCL status codes
const (
	ZCLStatusSuccess         uint8 = 0x00
	ZCLStatusFailure         uint8 = 0x01
	ZCLStatusUnsupportedCmd  uint8 = 0x81
	ZCLStatusUnsupportedAttr uint8 = 0x86
	ZCLStatusInvalidValue    uint8 = 0x87
	ZCLStatusReadOnly        uint8 = 0x88
	ZCLStatusUnreportable    uint8 = 0x8C
	ZCLStatusInvalidDataType uint8 = 0x8D
)

// StatusName returns a short name for a ZCL status code.
func StatusName(status uint8) string {
	switch status {
	case ZCLStatusSuccess:
		return "success"
	case ZCLStatusFailure:
		return "failure"
	case ZCLStatusUnsupportedCmd:
		return "unsupported_command"
	case ZCLStatusUnsupportedAttr:
		return "unsupported_attribute"
	case ZCLStatusInvalidValue:
		return "invalid_value"
	case ZCLStatusReadOnly:
		return "read_only"
	case ZCLStatusUnreportable:
		return "unreportable_attribute"
	case ZCLStatusInvalidDataType:
		return "invalid_data_type"
	}
	return "unknown"
}
