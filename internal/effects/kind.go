// Package effects translates between the normalized light attribute model
// and the vendor surface of WS2812 strip controllers: manufacturer-specific
// attributes on the Color Control cluster that select an animation and tune
// its speed.
//
// Encoding and decoding are pure functions over a single attribute table.
// Nothing in this package performs I/O except Setup, which drives a caller
// supplied Configurator.
package effects

import (
	"fmt"
	"strings"
)

// Kind is an animation mode. Its numeric value crosses the wire.
type Kind uint8

const (
	None Kind = iota
	Rainbow
	Strobe
	Twinkle
)

var kindNames = [...]string{
	None:    "none",
	Rainbow: "rainbow",
	Strobe:  "strobe",
	Twinkle: "twinkle",
}

// Kinds returns every kind in wire order.
func Kinds() []Kind {
	return []Kind{None, Rainbow, Strobe, Twinkle}
}

// Names returns the lowercase names of every kind in wire order.
func Names() []string {
	names := make([]string, len(kindNames))
	copy(names, kindNames[:])
	return names
}

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind resolves a name case-insensitively. Surrounding whitespace is not
// trimmed. Unknown names yield None and false.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(name)
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return None, false
}

// KindFromCode maps a wire code to a kind. Codes outside the table yield None
// and false.
func KindFromCode(code int64) (Kind, bool) {
	if code < 0 || code >= int64(len(kindNames)) {
		return None, false
	}
	return Kind(code), true
}
