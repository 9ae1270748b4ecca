package store

import (
	"sort"
	"time"
)

// Device is a configured light and its last known state.
type Device struct {
	IEEEAddress  string         `json:"ieee_address"`
	ShortAddress uint16         `json:"short_address"`
	Name         string         `json:"name"`
	Model        string         `json:"model,omitempty"`
	Endpoint     uint8          `json:"endpoint"`
	LastSeen     time.Time      `json:"last_seen"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Setup is the binding and reporting configuration applied to a device.
type Setup struct {
	IEEEAddress string      `json:"ieee_address"`
	Endpoint    uint8       `json:"endpoint"`
	Clusters    []uint16    `json:"clusters"`
	Reporting   []Reporting `json:"reporting"`
}

// Reporting is one configured attribute report.
type Reporting struct {
	Cluster   uint16 `json:"cluster"`
	Attribute uint16 `json:"attribute"`
	Min       uint16 `json:"min"`
	Max       uint16 `json:"max"`
	Change    uint16 `json:"change"`
}

// merge folds other into s. Clusters are a set; a reporting entry for an
// already known (cluster, attribute) replaces the old one.
func (s *Setup) merge(other *Setup) {
	s.Endpoint = other.Endpoint

	seen := make(map[uint16]bool, len(s.Clusters)+len(other.Clusters))
	var clusters []uint16
	for _, c := range append(s.Clusters, other.Clusters...) {
		if !seen[c] {
			seen[c] = true
			clusters = append(clusters, c)
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i] < clusters[j] })
	s.Clusters = clusters

	type key struct{ cluster, attr uint16 }
	byKey := make(map[key]Reporting)
	for _, r := range append(s.Reporting, other.Reporting...) {
		byKey[key{r.Cluster, r.Attribute}] = r
	}
	reporting := make([]Reporting, 0, len(byKey))
	for _, r := range byKey {
		reporting = append(reporting, r)
	}
	sort.Slice(reporting, func(i, j int) bool {
		if reporting[i].Cluster != reporting[j].Cluster {
			return reporting[i].Cluster < reporting[j].Cluster
		}
		return reporting[i].Attribute < reporting[j].Attribute
	})
	s.Reporting = reporting
}
