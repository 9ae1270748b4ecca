package coordinator

import (
	"fmt"

	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl"
)

// AttributeResult holds one decoded attribute of a report or read response.
type AttributeResult struct {
	AttrID   uint16 `json:"attr_id"`
	AttrName string `json:"attr_name"`
	TypeID   uint8  `json:"type_id"`
	TypeName string `json:"type_name"`
	Value    any    `json:"value"`
	Status   uint8  `json:"status"`
	Error    string `json:"error,omitempty"`
}

// decodeRecords decodes the records of a report. Records that failed or
// could not be decoded are listed in the results but left out of the
// report handed to the codec.
func (c *Coordinator) decodeRecords(evt transport.AttributeReportEvent) (effects.Report, []AttributeResult) {
	report := effects.Report{
		Cluster:      evt.ClusterID,
		Manufacturer: evt.ManufacturerCode,
		Attrs:        make(map[uint16]any, len(evt.Records)),
	}
	results := make([]AttributeResult, 0, len(evt.Records))
	for _, r := range evt.Records {
		key := zcl.AttrKey{Manufacturer: evt.ManufacturerCode, Cluster: evt.ClusterID, Attr: r.AttrID}
		result := AttributeResult{
			AttrID:   r.AttrID,
			AttrName: c.registry.AttrName(key),
			Status:   r.Status,
			TypeID:   r.DataType,
			TypeName: zcl.TypeName(r.DataType),
		}
		if r.Status != zcl.ZCLStatusSuccess {
			result.Error = fmt.Sprintf("status 0x%02X (%s)", r.Status, zcl.StatusName(r.Status))
		} else if len(r.Value) > 0 {
			val, _, err := zcl.DecodeValue(r.DataType, r.Value)
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Value = val
				report.Attrs[r.AttrID] = val
			}
		}
		results = append(results, result)
	}
	return report, results
}
