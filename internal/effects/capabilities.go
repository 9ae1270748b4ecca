package effects

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"zigbee-ledfx/internal/zcl/clusters"
)

// Access is the bitmask exposed to front-ends for each control.
type Access uint8

const (
	AccessState Access = 1 << iota // published in the device state
	AccessSet                      // accepts commands
	AccessGet                      // can be refreshed from the device
)

// Capability types
const (
	TypeLight     = "light"
	TypeBinary    = "binary"
	TypeNumeric   = "numeric"
	TypeEnum      = "enum"
	TypeComposite = "composite"
)

var (
	ErrUnknownKey   = errors.New("unknown key")
	ErrNotSettable  = errors.New("key is not settable")
	ErrNotGettable  = errors.New("key is not gettable")
	ErrInvalidValue = errors.New("invalid value")
)

// Capability describes one control of the device.
type Capability struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Access      Access       `json:"access"`
	Values      []string     `json:"values,omitempty"`
	ValueMin    *int         `json:"value_min,omitempty"`
	ValueMax    *int         `json:"value_max,omitempty"`
	Description string       `json:"description,omitempty"`
	Features    []Capability `json:"features,omitempty"`
}

// CanSet reports whether the control accepts commands.
func (c Capability) CanSet() bool { return c.Access&AccessSet != 0 }

// CanGet reports whether the control can be read back from the device.
func (c Capability) CanGet() bool { return c.Access&AccessGet != 0 }

// Profile selects between the firmware variants of the controller.
type Profile struct {
	Model string `json:"model"`
	// EffectGettable exposes the effect attribute for read-back.
	EffectGettable bool `json:"effect_gettable,omitempty"`
	// ColorReporting configures reporting of CurrentX/CurrentY.
	ColorReporting bool `json:"color_reporting,omitempty"`
	// Reporting adds entries on top of the default reporting set.
	Reporting []Reporting `json:"reporting,omitempty"`
}

func intPtr(v int) *int { return &v }

// Declare returns the static capability list for p. The result is freshly
// allocated on every call.
func Declare(p Profile) []Capability {
	light := Capability{
		Name: TypeLight,
		Type: TypeLight,
		Features: []Capability{
			{Name: KeyState, Type: TypeBinary, Access: AccessState | AccessSet | AccessGet, Values: []string{"ON", "OFF", "TOGGLE"}, Description: "On/off state of this light"},
			{Name: KeyBrightness, Type: TypeNumeric, Access: AccessState | AccessSet | AccessGet, ValueMin: intPtr(0), ValueMax: intPtr(254), Description: "Brightness of this light"},
			{Name: KeyColor, Type: TypeComposite, Access: AccessState | AccessSet | AccessGet, Description: "Color of this light in the CIE 1931 color space (x/y)"},
		},
	}

	effectAccess := AccessSet
	if p.EffectGettable {
		effectAccess |= AccessState | AccessGet
	}

	caps := []Capability{light}
	for _, a := range attrTable {
		if !a.speed {
			caps = append(caps, Capability{
				Name:        a.key,
				Type:        TypeEnum,
				Access:      effectAccess,
				Values:      Names(),
				Description: a.description,
			})
			continue
		}
		caps = append(caps, Capability{
			Name:        a.key,
			Type:        TypeNumeric,
			Access:      AccessSet,
			ValueMin:    intPtr(SpeedMin),
			ValueMax:    intPtr(SpeedMax),
			Description: a.description,
		})
	}
	return caps
}

// Find looks up a control by key, descending into composite features.
func Find(caps []Capability, key string) (Capability, bool) {
	for _, c := range caps {
		if c.Name == key && c.Type != TypeLight {
			return c, true
		}
		if len(c.Features) > 0 {
			if f, ok := Find(c.Features, key); ok {
				return f, true
			}
		}
	}
	return Capability{}, false
}

// Validate checks a command against the declaration. The encoder itself
// never rejects values; this is for front-ends that want to refuse obviously
// wrong input before it is sent.
func Validate(caps []Capability, key string, value any) error {
	c, ok := Find(caps, key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if !c.CanSet() {
		return fmt.Errorf("%w: %q", ErrNotSettable, key)
	}

	switch c.Type {
	case TypeEnum, TypeBinary:
		if _, ok := value.(bool); ok && c.Type == TypeBinary {
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidValue, key, value)
		}
		if !slices.ContainsFunc(c.Values, func(v string) bool { return strings.EqualFold(v, s) }) {
			return fmt.Errorf("%w: %s must be one of %s", ErrInvalidValue, key, strings.Join(c.Values, ", "))
		}
	case TypeNumeric:
		n, ok := parseInt(value)
		if !ok {
			return fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidValue, key, value)
		}
		if (c.ValueMin != nil && n < int64(*c.ValueMin)) || (c.ValueMax != nil && n > int64(*c.ValueMax)) {
			return fmt.Errorf("%w: %s must be within %d..%d", ErrInvalidValue, key, *c.ValueMin, *c.ValueMax)
		}
	case TypeComposite:
		switch value.(type) {
		case map[string]any, string:
		default:
			return fmt.Errorf("%w: %s must be an object or hex string, got %T", ErrInvalidValue, key, value)
		}
	}
	return nil
}

// Read is an attribute read request derived from the declaration.
type Read struct {
	Cluster      uint16
	Attrs        []uint16
	Manufacturer uint16
}

// ReadFor returns the read request refreshing key under profile p.
func ReadFor(p Profile, key string) (Read, error) {
	c, ok := Find(Declare(p), key)
	if !ok {
		return Read{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if !c.CanGet() {
		return Read{}, fmt.Errorf("%w: %q", ErrNotGettable, key)
	}
	switch key {
	case KeyEffect:
		return Read{Cluster: Cluster, Attrs: []uint16{AttrEffect}, Manufacturer: ManufacturerCode}, nil
	case KeyState:
		return Read{Cluster: clusters.IDOnOff, Attrs: []uint16{clusters.AttrOnOff}}, nil
	case KeyBrightness:
		return Read{Cluster: clusters.IDLevelControl, Attrs: []uint16{clusters.AttrCurrentLevel}}, nil
	case KeyColor:
		return Read{Cluster: clusters.IDColorControl, Attrs: []uint16{clusters.AttrCurrentX, clusters.AttrCurrentY}}, nil
	}
	return Read{}, fmt.Errorf("%w: %q", ErrNotGettable, key)
}

// Gettable returns the keys of every control that can be read back, in
// declaration order.
func Gettable(caps []Capability) []string {
	var keys []string
	for _, c := range caps {
		if c.Type != TypeLight && c.CanGet() {
			keys = append(keys, c.Name)
		}
		keys = append(keys, Gettable(c.Features)...)
	}
	return keys
}
