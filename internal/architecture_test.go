package internal

import (
	"testing"

	"github.com/kcmvp/archunit"
)

func TestArchitecture(t *testing.T) {
	core := archunit.Packages("core", []string{".../internal/effects", ".../internal/lighting"})
	wire := archunit.Packages("wire", []string{".../internal/transport", ".../internal/virtual"})
	adapter := archunit.Packages("adapter", []string{".../internal/adapter"})
	surfaces := archunit.Packages("surfaces", []string{".../internal/mqtt", ".../internal/web", ".../internal/automation"})
	persistence := archunit.Packages("persistence", []string{".../internal/store", ".../internal/coordinator"})

	check := func(rule string, err error) {
		t.Helper()
		if err != nil {
			t.Errorf("%s: %v", rule, err)
		}
	}

	// The codec knows attributes and values, never how they travel.
	check("core -> wire", core.ShouldNotReferLayers(wire))
	check("core -> adapter", core.ShouldNotReferLayers(adapter))
	check("core -> surfaces", core.ShouldNotReferLayers(surfaces))
	check("core -> persistence", core.ShouldNotReferLayers(persistence))

	check("adapter -> surfaces", adapter.ShouldNotReferLayers(surfaces))
	check("adapter -> persistence", adapter.ShouldNotReferLayers(persistence))

	check("wire -> adapter", wire.ShouldNotReferLayers(adapter))
	check("wire -> surfaces", wire.ShouldNotReferLayers(surfaces))
	check("wire -> persistence", wire.ShouldNotReferLayers(persistence))
}

func TestCorePackagesPresent(t *testing.T) {
	core := archunit.Packages("core", []string{".../internal/effects"})
	if len(core.Packages()) == 0 {
		t.Error("effects package not found")
	}
}
