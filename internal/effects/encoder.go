package effects

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"zigbee-ledfx/internal/zcl"
)

// Command is one normalized control request.
type Command struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Write is a single typed attribute write addressed to the vendor surface.
type Write struct {
	Cluster      uint16 `json:"cluster"`
	Attr         uint16 `json:"attr"`
	Type         uint8  `json:"type"`
	Value        uint8  `json:"value"`
	Manufacturer uint16 `json:"manufacturer"`
}

// Key returns the attribute triple targeted by w.
func (w Write) Key() zcl.AttrKey {
	return zcl.AttrKey{Manufacturer: w.Manufacturer, Cluster: w.Cluster, Attr: w.Attr}
}

// Encoded is the result of encoding one command. Write carries the wire-safe
// value; Patch is the optimistic state update. For effect commands the patch
// echoes Requested verbatim, even when Kind fell back to None.
type Encoded struct {
	Key       string
	Write     Write
	Patch     Patch
	Kind      Kind
	Requested any
	// Fallback is set when the value could not be interpreted and a default
	// was sent instead.
	Fallback bool
	// Clamped is set when a speed was saturated into [SpeedMin, SpeedMax].
	Clamped bool
}

// Encode translates a vendor command. It returns false when key is not a
// vendor key; callers route those elsewhere. Values are never rejected.
func Encode(key string, value any) (Encoded, bool) {
	a, ok := byKey[key]
	if !ok {
		return Encoded{}, false
	}
	if a.speed {
		return encodeSpeed(a, value), true
	}
	return EncodeEffect(value), true
}

// EncodeEffect encodes an effect selection. Names are matched
// case-insensitively; anything else is sent as None.
func EncodeEffect(value any) Encoded {
	var name string
	switch v := value.(type) {
	case string:
		name = v
	case nil:
	default:
		name = fmt.Sprint(v)
	}
	kind, ok := ParseKind(name)
	return Encoded{
		Key:       KeyEffect,
		Write:     newWrite(AttrEffect, uint8(kind)),
		Patch:     Patch{KeyEffect: value},
		Kind:      kind,
		Requested: value,
		Fallback:  !ok,
	}
}

// EncodeSpeed encodes a speed for k. It returns false for kinds without a
// speed attribute.
func EncodeSpeed(k Kind, value any) (Encoded, bool) {
	a, ok := byKind[k]
	if !ok {
		return Encoded{}, false
	}
	return encodeSpeed(a, value), true
}

func encodeSpeed(a attribute, value any) Encoded {
	n, ok := parseInt(value)
	speed := ClampSpeed(n)
	return Encoded{
		Key:       a.key,
		Write:     newWrite(a.attr, speed),
		Patch:     Patch{a.key: int(speed)},
		Kind:      a.kind,
		Requested: value,
		Fallback:  !ok,
		Clamped:   ok && int64(speed) != n,
	}
}

// ClampSpeed saturates n into [SpeedMin, SpeedMax].
func ClampSpeed(n int64) uint8 {
	switch {
	case n < SpeedMin:
		return SpeedMin
	case n > SpeedMax:
		return SpeedMax
	}
	return uint8(n)
}

func newWrite(attr uint16, value uint8) Write {
	return Write{
		Cluster:      Cluster,
		Attr:         attr,
		Type:         AttrType,
		Value:        value,
		Manufacturer: ManufacturerCode,
	}
}

// parseInt interprets numbers, numeric strings and json.Number. Fractions are
// truncated toward zero and magnitudes beyond int64 saturate by sign. NaN and
// non-numeric input do not parse.
func parseInt(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		return parseNumericString(v.String())
	case string:
		return parseNumericString(v)
	case uint:
		return parseInt(uint64(v))
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64, true
		}
	case float32:
		return saturate(float64(v))
	case float64:
		return saturate(v)
	}
	return zcl.ToInt64(value)
}

func parseNumericString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return saturate(f)
}

func saturate(f float64) (int64, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(f), true
}
