package effects

import (
	"context"
	"fmt"
	"sort"

	"zigbee-ledfx/internal/zcl"
	"zigbee-ledfx/internal/zcl/clusters"
)

// Binding is the fixed set of clusters bound from the light endpoint to the
// coordinator.
type Binding struct {
	Endpoint uint8    `json:"endpoint"`
	Clusters []uint16 `json:"clusters"`
}

// BindingFor returns the binding every controller variant needs, on endpoint.
// Zero selects Endpoint.
func BindingFor(endpoint uint8) Binding {
	if endpoint == 0 {
		endpoint = Endpoint
	}
	return Binding{
		Endpoint: endpoint,
		Clusters: []uint16{clusters.IDOnOff, clusters.IDLevelControl, clusters.IDColorControl},
	}
}

// Reporting is one attribute reporting configuration.
type Reporting struct {
	Cluster   uint16 `json:"cluster"`
	Attribute uint16 `json:"attribute"`
	Type      uint8  `json:"type"`
	Min       uint16 `json:"min"`
	Max       uint16 `json:"max"`
	Change    uint16 `json:"change"`
}

const reportMaxInterval = 3600

// ReportingFor returns the reporting set for p: on/off and brightness, plus
// CurrentX/CurrentY when the profile reports colour, plus any profile extras.
// Entries are unique per (cluster, attribute); later entries override.
func ReportingFor(p Profile) []Reporting {
	entries := []Reporting{
		{Cluster: clusters.IDOnOff, Attribute: clusters.AttrOnOff, Type: zcl.TypeBool, Min: 0, Max: reportMaxInterval},
		{Cluster: clusters.IDLevelControl, Attribute: clusters.AttrCurrentLevel, Type: zcl.TypeUint8, Min: 10, Max: reportMaxInterval, Change: 1},
	}
	if p.ColorReporting {
		entries = append(entries,
			Reporting{Cluster: clusters.IDColorControl, Attribute: clusters.AttrCurrentX, Type: zcl.TypeUint16, Min: 10, Max: reportMaxInterval, Change: 1},
			Reporting{Cluster: clusters.IDColorControl, Attribute: clusters.AttrCurrentY, Type: zcl.TypeUint16, Min: 10, Max: reportMaxInterval, Change: 1},
		)
	}
	entries = append(entries, p.Reporting...)

	type key struct{ cluster, attr uint16 }
	idx := make(map[key]int, len(entries))
	var out []Reporting
	for _, e := range entries {
		k := key{e.Cluster, e.Attribute}
		if i, ok := idx[k]; ok {
			out[i] = e
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}

// Configurator performs the network operations Setup needs.
type Configurator interface {
	Bind(ctx context.Context, endpoint uint8, cluster uint16) error
	ConfigureReporting(ctx context.Context, endpoint uint8, r Reporting) error
}

// Applied records what Setup configured. Running Setup again with the same
// profile yields an equal record.
type Applied struct {
	Endpoint  uint8       `json:"endpoint"`
	Clusters  []uint16    `json:"clusters"`
	Reporting []Reporting `json:"reporting"`
}

// Setup binds the light endpoint and configures reporting on it. A zero
// endpoint selects Endpoint. It stops at the first failing step and returns
// its error.
func Setup(ctx context.Context, c Configurator, p Profile, endpoint uint8) (Applied, error) {
	b := BindingFor(endpoint)
	applied := Applied{Endpoint: b.Endpoint}

	for _, cluster := range b.Clusters {
		if err := c.Bind(ctx, b.Endpoint, cluster); err != nil {
			return applied, fmt.Errorf("bind cluster 0x%04X: %w", cluster, err)
		}
		applied.Clusters = append(applied.Clusters, cluster)
	}
	for _, r := range ReportingFor(p) {
		if err := c.ConfigureReporting(ctx, b.Endpoint, r); err != nil {
			return applied, fmt.Errorf("configure reporting 0x%04X/0x%04X: %w", r.Cluster, r.Attribute, err)
		}
		applied.Reporting = append(applied.Reporting, r)
	}

	sort.Slice(applied.Clusters, func(i, j int) bool { return applied.Clusters[i] < applied.Clusters[j] })
	return applied, nil
}
