// Package lighting converts the standard light controls (power, brightness
// and colour) to ZCL cluster commands and decodes their attribute reports.
package lighting

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/zcl"
	"zigbee-ledfx/internal/zcl/clusters"
)

// ErrInvalidValue is returned for values the converter cannot interpret.
var ErrInvalidValue = errors.New("invalid value")

const maxLevel = 254

// Command is a cluster command for the light endpoint.
type Command struct {
	Cluster uint16
	Command uint8
	Payload []byte
}

// Encoded is the result of encoding one control.
type Encoded struct {
	Key     string
	Command Command
	Patch   effects.Patch
}

// Owns reports whether key is handled by this converter.
func Owns(key string) bool {
	switch key {
	case effects.KeyState, effects.KeyBrightness, effects.KeyColor:
		return true
	}
	return false
}

// Encode translates a standard light control into a cluster command.
func Encode(key string, value any) (Encoded, error) {
	switch key {
	case effects.KeyState:
		return encodeState(value)
	case effects.KeyBrightness:
		return encodeBrightness(value)
	case effects.KeyColor:
		return encodeColor(value)
	}
	return Encoded{}, fmt.Errorf("%w: %q", effects.ErrUnknownKey, key)
}

func encodeState(value any) (Encoded, error) {
	var state string
	switch v := value.(type) {
	case bool:
		state = "OFF"
		if v {
			state = "ON"
		}
	case string:
		state = strings.ToUpper(strings.TrimSpace(v))
	default:
		return Encoded{}, fmt.Errorf("%w: state %v", ErrInvalidValue, value)
	}

	enc := Encoded{Key: effects.KeyState, Command: Command{Cluster: clusters.IDOnOff}}
	switch state {
	case "ON":
		enc.Command.Command = clusters.CmdOn
		enc.Patch = effects.Patch{effects.KeyState: "ON"}
	case "OFF":
		enc.Command.Command = clusters.CmdOff
		enc.Patch = effects.Patch{effects.KeyState: "OFF"}
	case "TOGGLE":
		// The result is only known once the device reports it.
		enc.Command.Command = clusters.CmdToggle
		enc.Patch = effects.Patch{}
	default:
		return Encoded{}, fmt.Errorf("%w: state %q", ErrInvalidValue, state)
	}
	return enc, nil
}

func encodeBrightness(value any) (Encoded, error) {
	f, ok := toFloat(value)
	if !ok {
		return Encoded{}, fmt.Errorf("%w: brightness %v", ErrInvalidValue, value)
	}
	level := uint8(math.Max(0, math.Min(maxLevel, f)))

	payload := []byte{level}
	payload = binary.LittleEndian.AppendUint16(payload, 0) // transition time
	state := "ON"
	if level == 0 {
		state = "OFF"
	}
	return Encoded{
		Key:     effects.KeyBrightness,
		Command: Command{Cluster: clusters.IDLevelControl, Command: clusters.CmdMoveToLevelWithOnOff, Payload: payload},
		Patch:   effects.Patch{effects.KeyBrightness: int(level), effects.KeyState: state},
	}, nil
}

func encodeColor(value any) (Encoded, error) {
	x, y, err := parseColor(value)
	if err != nil {
		return Encoded{}, err
	}
	payload := binary.LittleEndian.AppendUint16(nil, toWire(x))
	payload = binary.LittleEndian.AppendUint16(payload, toWire(y))
	payload = binary.LittleEndian.AppendUint16(payload, 0) // transition time
	return Encoded{
		Key:     effects.KeyColor,
		Command: Command{Cluster: clusters.IDColorControl, Command: clusters.CmdMoveToColor, Payload: payload},
		Patch:   effects.Patch{effects.KeyColor: map[string]any{"x": round4(x), "y": round4(y)}},
	}, nil
}

// parseColor accepts {x,y}, {r,g,b}, {hex} or a hex string.
func parseColor(value any) (float64, float64, error) {
	switch v := value.(type) {
	case string:
		return hexToXY(v)
	case map[string]any:
		if hex, ok := v["hex"].(string); ok {
			return hexToXY(hex)
		}
		if x, okX := toFloat(v["x"]); okX {
			y, okY := toFloat(v["y"])
			if !okY || x < 0 || x > 1 || y < 0 || y > 1 {
				return 0, 0, fmt.Errorf("%w: color x/y must be within 0..1", ErrInvalidValue)
			}
			return x, y, nil
		}
		r, okR := toFloat(v["r"])
		g, okG := toFloat(v["g"])
		b, okB := toFloat(v["b"])
		if okR && okG && okB {
			c := colorful.Color{R: clamp01(r / 255), G: clamp01(g / 255), B: clamp01(b / 255)}
			x, y, _ := c.Xyy()
			return x, y, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: color %v", ErrInvalidValue, value)
}

func hexToXY(s string) (float64, float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: color %q", ErrInvalidValue, s)
	}
	x, y, _ := c.Xyy()
	return x, y, nil
}

// Decode turns a standard-cluster report into a patch. Vendor-tagged
// reports are ignored.
func Decode(r effects.Report) effects.Patch {
	patch := effects.Patch{}
	if r.Manufacturer != 0 {
		return patch
	}
	switch r.Cluster {
	case clusters.IDOnOff:
		if v, ok := r.Attrs[clusters.AttrOnOff].(bool); ok {
			patch[effects.KeyState] = "OFF"
			if v {
				patch[effects.KeyState] = "ON"
			}
		}
	case clusters.IDLevelControl:
		if n, ok := zcl.ToInt64(r.Attrs[clusters.AttrCurrentLevel]); ok {
			patch[effects.KeyBrightness] = int(n)
		}
	case clusters.IDColorControl:
		color := map[string]any{}
		if n, ok := zcl.ToInt64(r.Attrs[clusters.AttrCurrentX]); ok {
			color["x"] = round4(float64(n) / 65535)
		}
		if n, ok := zcl.ToInt64(r.Attrs[clusters.AttrCurrentY]); ok {
			color["y"] = round4(float64(n) / 65535)
		}
		if len(color) > 0 {
			patch[effects.KeyColor] = color
		}
	}
	return patch
}

// Hex renders an x/y colour at full brightness as #rrggbb.
func Hex(x, y float64) string {
	if y <= 0 {
		return "#ffffff"
	}
	return colorful.Xyy(x, y, 1).Clamped().Hex()
}

func toWire(v float64) uint16 {
	return uint16(math.Round(clamp01(v) * 65535))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	i, ok := zcl.ToInt64(v)
	return float64(i), ok
}
