package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindNamesRoundTrip(t *testing.T) {
	for i, name := range Names() {
		k, ok := ParseKind(name)
		assert.True(t, ok, name)
		assert.Equal(t, Kind(i), k)
		assert.Equal(t, name, k.String())

		byCode, ok := KindFromCode(int64(i))
		assert.True(t, ok)
		assert.Equal(t, k, byCode)
	}
}

func TestKindOutOfRange(t *testing.T) {
	k, ok := KindFromCode(4)
	assert.False(t, ok)
	assert.Equal(t, None, k)

	assert.False(t, Kind(7).Valid())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}

func TestSpeedTable(t *testing.T) {
	key, ok := SpeedKey(Twinkle)
	assert.True(t, ok)
	assert.Equal(t, KeySpeedTwinkle, key)

	attr, ok := SpeedAttr(Rainbow)
	assert.True(t, ok)
	assert.Equal(t, AttrSpeedRainbow, attr)

	_, ok = SpeedKey(None)
	assert.False(t, ok)
}

func TestOverlayMatchesTable(t *testing.T) {
	def := Overlay()
	assert.Equal(t, Cluster, def.ID)
	assert.Len(t, def.Attributes, len(Keys()))
	for _, a := range def.Attributes {
		assert.Equal(t, ManufacturerCode, a.Manufacturer)
		assert.Equal(t, AttrType, a.Type)
		assert.True(t, Owns(a.Name), a.Name)
	}

	keys := AttrKeys()
	assert.Equal(t, AttrEffect, keys[0].Attr)
	assert.Equal(t, AttrSpeedTwinkle, keys[len(keys)-1].Attr)
}

func TestPatchMergeNested(t *testing.T) {
	p := Patch{"state": "ON", "color": map[string]any{"x": 0.3, "y": 0.3}}
	p.Merge(Patch{"color": map[string]any{"y": 0.4}, "effect": "rainbow"})

	assert.Equal(t, "ON", p["state"])
	assert.Equal(t, "rainbow", p["effect"])
	assert.Equal(t, map[string]any{"x": 0.3, "y": 0.4}, p["color"])
	assert.Equal(t, []string{"color", "effect", "state"}, p.Keys())
}

func TestPatchCloneIsIndependent(t *testing.T) {
	p := Patch{"color": map[string]any{"x": 0.1}}
	cp := p.Clone()
	cp.Merge(Patch{"color": map[string]any{"x": 0.9}})
	assert.Equal(t, 0.1, p["color"].(map[string]any)["x"])
}
