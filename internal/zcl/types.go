package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs used by lighting devices.
const (
	TypeNoData   uint8 = 0x00
	TypeBool     uint8 = 0x10
	TypeBitmap8  uint8 = 0x18
	TypeBitmap16 uint8 = 0x19
	TypeUint8    uint8 = 0x20
	TypeUint16   uint8 = 0x21
	TypeUint32   uint8 = 0x23
	TypeInt8     uint8 = 0x28
	TypeInt16    uint8 = 0x29
	TypeEnum8    uint8 = 0x30
	TypeEnum16   uint8 = 0x31
	TypeCharStr  uint8 = 0x42
)

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for
// variable-length or unsupported types.
func TypeSize(typeID uint8) int {
	switch typeID {
	case TypeNoData:
		return 0
	case TypeBool, TypeUint8, TypeInt8, TypeEnum8, TypeBitmap8:
		return 1
	case TypeUint16, TypeInt16, TypeEnum16, TypeBitmap16:
		return 2
	case TypeUint32:
		return 4
	default:
		return -1
	}
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeBool:
		return "bool"
	case TypeBitmap8:
		return "map8"
	case TypeBitmap16:
		return "map16"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeEnum8:
		return "enum8"
	case TypeEnum16:
		return "enum16"
	case TypeCharStr:
		return "string"
	default:
		return fmt.Sprintf("0x%02X", typeID)
	}
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the Go value and bytes consumed.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	if typeID == TypeCharStr {
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("zcl: no length byte for string type")
		}
		length := int(data[0])
		if length == 0xFF {
			return nil, 1, nil // invalid
		}
		if len(data) < 1+length {
			return nil, 0, fmt.Errorf("zcl: string truncated: need %d, have %d", length, len(data)-1)
		}
		return string(data[1 : 1+length]), 1 + length, nil
	}

	size := TypeSize(typeID)
	if size < 0 {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if size == 0 {
		return nil, 0, nil
	}
	if len(data) < size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, size, len(data))
	}

	switch typeID {
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeUint8, TypeEnum8, TypeBitmap8:
		return data[0], 1, nil
	case TypeUint16, TypeEnum16, TypeBitmap16:
		return binary.LittleEndian.Uint16(data[:2]), 2, nil
	case TypeUint32:
		return binary.LittleEndian.Uint32(data[:4]), 4, nil
	case TypeInt8:
		return int8(data[0]), 1, nil
	case TypeInt16:
		return int16(binary.LittleEndian.Uint16(data[:2])), 2, nil
	}
	return data[:size], size, nil
}

// EncodeValue encodes a Go value into ZCL wire format.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	switch typeID {
	case TypeBool:
		v, ok := toBool(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TypeUint8, TypeEnum8, TypeBitmap8:
		v, ok := ToUint64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to uint8", val)
		}
		if v > math.MaxUint8 {
			return nil, fmt.Errorf("zcl: value %d overflows uint8 (max %d)", v, math.MaxUint8)
		}
		return []byte{uint8(v)}, nil

	case TypeUint16, TypeEnum16, TypeBitmap16:
		v, ok := ToUint64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to uint16", val)
		}
		if v > math.MaxUint16 {
			return nil, fmt.Errorf("zcl: value %d overflows uint16 (max %d)", v, math.MaxUint16)
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(v)), nil

	case TypeUint32:
		v, ok := ToUint64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to uint32", val)
		}
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("zcl: value %d overflows uint32 (max %d)", v, uint64(math.MaxUint32))
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), nil

	case TypeInt8:
		v, ok := ToInt64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to int8", val)
		}
		if v < math.MinInt8 || v > math.MaxInt8 {
			return nil, fmt.Errorf("zcl: value %d overflows int8 (range %d..%d)", v, math.MinInt8, math.MaxInt8)
		}
		return []byte{byte(int8(v))}, nil

	case TypeInt16:
		v, ok := ToInt64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to int16", val)
		}
		if v < math.MinInt16 || v > math.MaxInt16 {
			return nil, fmt.Errorf("zcl: value %d overflows int16 (range %d..%d)", v, math.MinInt16, math.MaxInt16)
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(int16(v))), nil

	case TypeCharStr:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to string", val)
		}
		if len(s) > 254 {
			return nil, fmt.Errorf("zcl: string too long for CharStr: %d (max 254)", len(s))
		}
		buf := make([]byte, 1+len(s))
		buf[0] = uint8(len(s))
		copy(buf[1:], s)
		return buf, nil
	}

	return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	case uint8:
		return val != 0, true
	}
	return false, false
}

// ToUint64 converts a decoded or JSON-sourced numeric value to uint64.
// Negative values are rejected.
func ToUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case int64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case float64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	}
	return 0, false
}

// ToInt64 converts any integer or float value to int64, truncating floats
// toward zero.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return ToInt64(float64(val))
	case float64:
		if math.IsNaN(val) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}
