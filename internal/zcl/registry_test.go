package zcl

import (
	"log/slog"
	"os"
	"strings"
	"testing"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := newTestRegistry()

	err := r.Register(ClusterDef{
		ID:   0x0006,
		Name: "On/Off",
		Attributes: []AttributeDef{
			{ID: 0, Name: "OnOff", Type: TypeBool, Access: AccessRead},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := r.Get(0x0006)
	if got == nil {
		t.Fatal("cluster not found")
	}
	if got.Name != "On/Off" {
		t.Errorf("name = %q, want %q", got.Name, "On/Off")
	}
	if len(got.Attributes) != 1 {
		t.Errorf("attrs = %d, want 1", len(got.Attributes))
	}
}

func TestRegistryManufacturerOverlay(t *testing.T) {
	r := newTestRegistry()

	base := ClusterDef{
		ID:   0x0300,
		Name: "Color Control",
		Attributes: []AttributeDef{
			{ID: 0x0003, Name: "CurrentX", Type: TypeUint16, Access: AccessRead},
		},
	}
	if err := r.Register(base); err != nil {
		t.Fatal(err)
	}
	overlay := ClusterDef{
		ID: 0x0300,
		Attributes: []AttributeDef{
			{ID: 0xF000, Name: "effect", Type: TypeUint8, Access: AccessRead | AccessWrite, Manufacturer: 0x1234},
		},
	}
	if err := r.Register(overlay); err != nil {
		t.Fatal(err)
	}

	attr := r.Lookup(AttrKey{Manufacturer: 0x1234, Cluster: 0x0300, Attr: 0xF000})
	if attr == nil {
		t.Fatal("manufacturer attribute not found")
	}
	if attr.Name != "effect" {
		t.Errorf("name = %q, want effect", attr.Name)
	}

	// Same attribute ID without the manufacturer code is a different triple.
	if r.Lookup(AttrKey{Cluster: 0x0300, Attr: 0xF000}) != nil {
		t.Error("lookup without manufacturer code should miss")
	}

	// Registering the same overlay twice is a no-op.
	if err := r.Register(overlay); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if n := len(r.Get(0x0300).Attributes); n != 2 {
		t.Errorf("attrs = %d, want 2", n)
	}
}

func TestRegistryRejectsConflictingTriple(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register(ClusterDef{
		ID:         0x0300,
		Attributes: []AttributeDef{{ID: 0xF000, Name: "effect", Type: TypeUint8, Manufacturer: 0x1234}},
	}); err != nil {
		t.Fatal(err)
	}

	err := r.Register(ClusterDef{
		ID:         0x0300,
		Attributes: []AttributeDef{{ID: 0xF000, Name: "scene", Type: TypeUint8, Manufacturer: 0x1234}},
	})
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if !strings.Contains(err.Error(), "effect") {
		t.Errorf("error should name the existing attribute: %v", err)
	}

	// A different vendor may reuse the ID.
	if err := r.Register(ClusterDef{
		ID:         0x0300,
		Attributes: []AttributeDef{{ID: 0xF000, Name: "scene", Type: TypeUint8, Manufacturer: 0x115F}},
	}); err != nil {
		t.Fatalf("other vendor: %v", err)
	}

	// The failed registration left the cluster untouched.
	if got := r.AttrName(AttrKey{Manufacturer: 0x1234, Cluster: 0x0300, Attr: 0xF000}); got != "effect" {
		t.Errorf("AttrName = %q, want effect", got)
	}
}

func TestRegistryRejectsDuplicateWithinDefinition(t *testing.T) {
	r := newTestRegistry()
	err := r.Register(ClusterDef{
		ID: 0x0008,
		Attributes: []AttributeDef{
			{ID: 0x0000, Name: "CurrentLevel", Type: TypeUint8},
			{ID: 0x0000, Name: "Level", Type: TypeUint16},
		},
	})
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if r.Get(0x0008) != nil {
		t.Error("invalid cluster should not be stored")
	}
}

func TestRegistryAttrNameUnknown(t *testing.T) {
	r := newTestRegistry()
	if got := r.AttrName(AttrKey{Cluster: 0x0006, Attr: 0x4003}); got != "0x4003" {
		t.Errorf("AttrName = %q, want 0x4003", got)
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := newTestRegistry()

	r.Register(ClusterDef{ID: 3, Name: "C"})
	r.Register(ClusterDef{ID: 1, Name: "A"})
	r.Register(ClusterDef{ID: 2, Name: "B"})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("got %d clusters, want 3", len(all))
	}
	for i, want := range []string{"A", "B", "C"} {
		if all[i].Name != want {
			t.Errorf("all[%d] = %q, want %q", i, all[i].Name, want)
		}
	}
}

func TestAttrKeyString(t *testing.T) {
	if got := (AttrKey{Cluster: 0x0006, Attr: 0}).String(); got != "0x0006/0x0000" {
		t.Errorf("got %q", got)
	}
	if got := (AttrKey{Manufacturer: 0x1234, Cluster: 0x0300, Attr: 0xF001}).String(); got != "0x0300/0xF001@0x1234" {
		t.Errorf("got %q", got)
	}
}
