package effects

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConfigurator keeps bindings and reporting as sets, the way a
// device binding table behaves.
type recordingConfigurator struct {
	bindings    map[uint16]uint8
	reporting   map[[2]uint16]Reporting
	reportingEP map[[2]uint16]uint8
	bindCalls   int
	failBind    uint16
}

func newRecordingConfigurator() *recordingConfigurator {
	return &recordingConfigurator{
		bindings:    make(map[uint16]uint8),
		reporting:   make(map[[2]uint16]Reporting),
		reportingEP: make(map[[2]uint16]uint8),
	}
}

func (r *recordingConfigurator) Bind(_ context.Context, endpoint uint8, cluster uint16) error {
	r.bindCalls++
	if cluster == r.failBind {
		return errors.New("no ack")
	}
	r.bindings[cluster] = endpoint
	return nil
}

func (r *recordingConfigurator) ConfigureReporting(_ context.Context, endpoint uint8, rep Reporting) error {
	k := [2]uint16{rep.Cluster, rep.Attribute}
	r.reporting[k] = rep
	r.reportingEP[k] = endpoint
	return nil
}

func TestSetupBindsEndpointTen(t *testing.T) {
	rc := newRecordingConfigurator()
	applied, err := Setup(context.Background(), rc, Profile{}, 0)
	require.NoError(t, err)

	assert.Equal(t, uint8(10), applied.Endpoint)
	assert.Equal(t, []uint16{0x0006, 0x0008, 0x0300}, applied.Clusters)
	assert.Equal(t, map[uint16]uint8{0x0006: 10, 0x0008: 10, 0x0300: 10}, rc.bindings)
	assert.Len(t, rc.reporting, 2)
	assert.Contains(t, rc.reporting, [2]uint16{0x0006, 0x0000})
	assert.Contains(t, rc.reporting, [2]uint16{0x0008, 0x0000})
}

func TestSetupOnGivenEndpoint(t *testing.T) {
	rc := newRecordingConfigurator()
	applied, err := Setup(context.Background(), rc, Profile{}, 11)
	require.NoError(t, err)

	assert.Equal(t, uint8(11), applied.Endpoint)
	assert.Equal(t, map[uint16]uint8{0x0006: 11, 0x0008: 11, 0x0300: 11}, rc.bindings)
	require.Len(t, rc.reportingEP, 2)
	for _, ep := range rc.reportingEP {
		assert.Equal(t, uint8(11), ep)
	}
}

func TestSetupIdempotent(t *testing.T) {
	rc := newRecordingConfigurator()
	first, err := Setup(context.Background(), rc, Profile{ColorReporting: true}, 0)
	require.NoError(t, err)
	bindings := len(rc.bindings)
	reporting := len(rc.reporting)

	second, err := Setup(context.Background(), rc, Profile{ColorReporting: true}, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, rc.bindings, bindings)
	assert.Len(t, rc.reporting, reporting)
	assert.Len(t, rc.reporting, 4)
}

func TestSetupStopsOnError(t *testing.T) {
	rc := newRecordingConfigurator()
	rc.failBind = 0x0008

	applied, err := Setup(context.Background(), rc, Profile{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x0008")
	assert.Equal(t, []uint16{0x0006}, applied.Clusters)
	assert.Empty(t, rc.reporting)
	assert.Equal(t, 2, rc.bindCalls)
}

func TestReportingForDeduplicates(t *testing.T) {
	p := Profile{Reporting: []Reporting{
		{Cluster: 0x0008, Attribute: 0x0000, Type: 0x20, Min: 1, Max: 60, Change: 5},
		{Cluster: 0x0003, Attribute: 0x0000, Type: 0x21, Max: 600},
	}}
	entries := ReportingFor(p)
	require.Len(t, entries, 3)
	assert.Equal(t, uint16(5), entries[1].Change, "profile entry overrides the default")
	assert.Equal(t, uint16(0x0003), entries[2].Cluster)
}
