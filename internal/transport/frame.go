package transport

import (
	"encoding/binary"
	"fmt"

	"zigbee-ledfx/internal/zcl"
)

// Header is a ZCL frame header.
type Header struct {
	FrameControl uint8
	Manufacturer uint16
	Seq          uint8
	Command      uint8
}

// ManufacturerSpecific reports whether the frame carries a manufacturer code.
func (h Header) ManufacturerSpecific() bool {
	return h.FrameControl&zcl.FrameManufacturer != 0
}

// ClusterSpecific reports whether Command is a cluster command rather than a
// foundation command.
func (h Header) ClusterSpecific() bool {
	return h.FrameControl&0x03 == zcl.FrameTypeCluster
}

// NewHeader builds a client-to-server header. A non-zero manufacturer code
// sets the manufacturer-specific bit.
func NewHeader(frameType uint8, manufacturer uint16, seq, command uint8) Header {
	fc := frameType
	if manufacturer != 0 {
		fc |= zcl.FrameManufacturer
	}
	return Header{FrameControl: fc, Manufacturer: manufacturer, Seq: seq, Command: command}
}

// EncodeFrame serializes a header and payload.
func EncodeFrame(h Header, payload []byte) []byte {
	buf := make([]byte, 0, 5+len(payload))
	buf = append(buf, h.FrameControl)
	if h.ManufacturerSpecific() {
		buf = binary.LittleEndian.AppendUint16(buf, h.Manufacturer)
	}
	buf = append(buf, h.Seq, h.Command)
	return append(buf, payload...)
}

// DecodeFrame splits a frame into header and payload.
func DecodeFrame(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) < 3 {
		return h, nil, fmt.Errorf("zcl frame too short: %d bytes", len(data))
	}
	h.FrameControl = data[0]
	data = data[1:]
	if h.ManufacturerSpecific() {
		if len(data) < 4 {
			return h, nil, fmt.Errorf("zcl frame too short for manufacturer code")
		}
		h.Manufacturer = binary.LittleEndian.Uint16(data[:2])
		data = data[2:]
	}
	h.Seq = data[0]
	h.Command = data[1]
	return h, data[2:], nil
}

// EncodeReadAttributes builds a Read Attributes payload.
func EncodeReadAttributes(ids []uint16) []byte {
	buf := make([]byte, 0, 2*len(ids))
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint16(buf, id)
	}
	return buf
}

// ParseReadAttributes parses a Read Attributes payload.
func ParseReadAttributes(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("read attributes payload has odd length %d", len(data))
	}
	ids := make([]uint16, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		ids = append(ids, binary.LittleEndian.Uint16(data[i:]))
	}
	return ids, nil
}

// EncodeWriteAttributes builds a Write Attributes payload.
func EncodeWriteAttributes(records []WriteRecord) []byte {
	var buf []byte
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint16(buf, r.AttrID)
		buf = append(buf, r.DataType)
		buf = append(buf, r.Value...)
	}
	return buf
}

// ParseWriteAttributes parses a Write Attributes payload.
func ParseWriteAttributes(data []byte) ([]WriteRecord, error) {
	var records []WriteRecord
	for len(data) > 0 {
		if len(data) < 3 {
			return records, fmt.Errorf("write record truncated")
		}
		r := WriteRecord{AttrID: binary.LittleEndian.Uint16(data[:2]), DataType: data[2]}
		data = data[3:]
		n, err := valueLen(r.DataType, data)
		if err != nil {
			return records, fmt.Errorf("write record 0x%04X: %w", r.AttrID, err)
		}
		r.Value = append([]byte(nil), data[:n]...)
		data = data[n:]
		records = append(records, r)
	}
	return records, nil
}

// EncodeWriteAttributesResponse builds a Write Attributes Response. A single
// success status is sent when no record failed.
func EncodeWriteAttributesResponse(failed []AttributeRecord) []byte {
	if len(failed) == 0 {
		return []byte{zcl.ZCLStatusSuccess}
	}
	var buf []byte
	for _, r := range failed {
		buf = append(buf, r.Status)
		buf = binary.LittleEndian.AppendUint16(buf, r.AttrID)
	}
	return buf
}

// ParseWriteAttributesResponse returns the failed records of a Write
// Attributes Response.
func ParseWriteAttributesResponse(data []byte) ([]AttributeRecord, error) {
	if len(data) == 1 && data[0] == zcl.ZCLStatusSuccess {
		return nil, nil
	}
	if len(data)%3 != 0 {
		return nil, fmt.Errorf("write response payload has length %d", len(data))
	}
	var failed []AttributeRecord
	for i := 0; i < len(data); i += 3 {
		failed = append(failed, AttributeRecord{
			Status: data[i],
			AttrID: binary.LittleEndian.Uint16(data[i+1:]),
		})
	}
	return failed, nil
}

// EncodeConfigureReporting builds a Configure Reporting payload for one
// record in the "reported" direction.
func EncodeConfigureReporting(r ReportingRecord) []byte {
	buf := []byte{0x00}
	buf = binary.LittleEndian.AppendUint16(buf, r.AttrID)
	buf = append(buf, r.DataType)
	buf = binary.LittleEndian.AppendUint16(buf, r.MinInterval)
	buf = binary.LittleEndian.AppendUint16(buf, r.MaxInterval)
	if analogType(r.DataType) {
		change := make([]byte, zcl.TypeSize(r.DataType))
		copy(change, r.ReportChange)
		buf = append(buf, change...)
	}
	return buf
}

// ParseConfigureReporting parses the records of a Configure Reporting payload.
func ParseConfigureReporting(data []byte) ([]ReportingRecord, error) {
	var records []ReportingRecord
	for len(data) > 0 {
		if len(data) < 8 {
			return records, fmt.Errorf("reporting record truncated")
		}
		if data[0] != 0x00 {
			return records, fmt.Errorf("unsupported reporting direction 0x%02X", data[0])
		}
		r := ReportingRecord{
			AttrID:      binary.LittleEndian.Uint16(data[1:3]),
			DataType:    data[3],
			MinInterval: binary.LittleEndian.Uint16(data[4:6]),
			MaxInterval: binary.LittleEndian.Uint16(data[6:8]),
		}
		data = data[8:]
		if analogType(r.DataType) {
			size := zcl.TypeSize(r.DataType)
			if size < 0 || len(data) < size {
				return records, fmt.Errorf("reportable change truncated for 0x%04X", r.AttrID)
			}
			r.ReportChange = append([]byte(nil), data[:size]...)
			data = data[size:]
		}
		records = append(records, r)
	}
	return records, nil
}

// EncodeReadAttributesResponse builds a Read Attributes Response payload.
func EncodeReadAttributesResponse(records []AttributeRecord) []byte {
	var buf []byte
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint16(buf, r.AttrID)
		buf = append(buf, r.Status)
		if r.Status != zcl.ZCLStatusSuccess {
			continue
		}
		buf = append(buf, r.DataType)
		buf = append(buf, r.Value...)
	}
	return buf
}

// ParseReadAttributesResponse parses a Read Attributes Response payload.
// Parsing stops at the first record whose length cannot be determined.
func ParseReadAttributesResponse(data []byte) []AttributeRecord {
	var results []AttributeRecord
	for len(data) >= 3 {
		ar := AttributeRecord{AttrID: binary.LittleEndian.Uint16(data[0:2]), Status: data[2]}
		data = data[3:]
		if ar.Status != zcl.ZCLStatusSuccess {
			results = append(results, ar)
			continue
		}
		if len(data) < 1 {
			break
		}
		ar.DataType = data[0]
		data = data[1:]
		n, err := valueLen(ar.DataType, data)
		if err != nil {
			results = append(results, ar)
			return results
		}
		ar.Value = append([]byte(nil), data[:n]...)
		data = data[n:]
		results = append(results, ar)
	}
	return results
}

// EncodeReportAttributes builds a Report Attributes payload.
func EncodeReportAttributes(records []AttributeRecord) []byte {
	var buf []byte
	for _, r := range records {
		buf = binary.LittleEndian.AppendUint16(buf, r.AttrID)
		buf = append(buf, r.DataType)
		buf = append(buf, r.Value...)
	}
	return buf
}

// ParseReportAttributes parses a Report Attributes payload.
func ParseReportAttributes(data []byte) ([]AttributeRecord, error) {
	var records []AttributeRecord
	for len(data) > 0 {
		if len(data) < 3 {
			return records, fmt.Errorf("report record truncated")
		}
		r := AttributeRecord{AttrID: binary.LittleEndian.Uint16(data[:2]), DataType: data[2]}
		data = data[3:]
		n, err := valueLen(r.DataType, data)
		if err != nil {
			return records, fmt.Errorf("report record 0x%04X: %w", r.AttrID, err)
		}
		r.Value = append([]byte(nil), data[:n]...)
		data = data[n:]
		records = append(records, r)
	}
	return records, nil
}

// EncodeDefaultResponse builds a Default Response payload.
func EncodeDefaultResponse(command, status uint8) []byte {
	return []byte{command, status}
}

// ParseDefaultResponse parses a Default Response payload.
func ParseDefaultResponse(data []byte) (command, status uint8, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("default response truncated")
	}
	return data[0], data[1], nil
}

func valueLen(dataType uint8, data []byte) (int, error) {
	if dataType == zcl.TypeCharStr {
		if len(data) < 1 {
			return 0, fmt.Errorf("missing string length")
		}
		n := int(data[0])
		if n == 0xFF {
			return 1, nil
		}
		if len(data) < 1+n {
			return 0, fmt.Errorf("string truncated")
		}
		return 1 + n, nil
	}
	size := zcl.TypeSize(dataType)
	if size < 0 {
		return 0, fmt.Errorf("unsupported type 0x%02X", dataType)
	}
	if len(data) < size {
		return 0, fmt.Errorf("value truncated: need %d, have %d", size, len(data))
	}
	return size, nil
}

// analogType reports whether reporting records for t carry a reportable
// change field.
func analogType(t uint8) bool {
	return (t >= 0x20 && t <= 0x2F) || (t >= 0x38 && t <= 0x3A) || (t >= 0xE0 && t <= 0xE2)
}
