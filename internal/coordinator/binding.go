package coordinator

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"zigbee-ledfx/internal/adapter"
	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/store"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl"
)

// lightConfigurator performs setup steps for one light over the transport.
type lightConfigurator struct {
	coord *Coordinator
	light *adapter.Light
}

func (lc *lightConfigurator) Bind(ctx context.Context, endpoint uint8, cluster uint16) error {
	err := lc.coord.transport.Bind(ctx, transport.BindRequest{
		TargetShortAddr: lc.light.ShortAddr(),
		SrcIEEE:         lc.light.IEEE(),
		SrcEP:           endpoint,
		ClusterID:       cluster,
		DstIEEE:         lc.coord.config.IEEE,
		DstEP:           lc.coord.config.Endpoint,
	})
	if err != nil {
		return err
	}
	lc.coord.logger.Info("bound cluster", "name", lc.light.Name(), "ep", endpoint, "cluster", fmt.Sprintf("0x%04X", cluster))
	return nil
}

func (lc *lightConfigurator) ConfigureReporting(ctx context.Context, endpoint uint8, r effects.Reporting) error {
	var mfr uint16
	if slices.Contains(effects.AttrKeys(), zcl.AttrKey{Manufacturer: effects.ManufacturerCode, Cluster: r.Cluster, Attr: r.Attribute}) {
		mfr = effects.ManufacturerCode
	}
	var change []byte
	if size := zcl.TypeSize(r.Type); size > 0 {
		change = binary.LittleEndian.AppendUint64(nil, uint64(r.Change))[:size]
	}
	err := lc.coord.transport.ConfigureReporting(ctx, transport.ConfigureReportingRequest{
		DstAddr:          lc.light.ShortAddr(),
		DstEP:            endpoint,
		ClusterID:        r.Cluster,
		ManufacturerCode: mfr,
		Record: transport.ReportingRecord{
			AttrID:       r.Attribute,
			DataType:     r.Type,
			MinInterval:  r.Min,
			MaxInterval:  r.Max,
			ReportChange: change,
		},
	})
	if err != nil {
		return err
	}
	lc.coord.logger.Info("configured reporting", "name", lc.light.Name(),
		"ep", endpoint,
		"cluster", fmt.Sprintf("0x%04X", r.Cluster),
		"attr", fmt.Sprintf("0x%04X", r.Attribute))
	return nil
}

// Configure binds the named light to the hub and configures reporting, then
// records the result. Repeating it converges on the same record.
func (c *Coordinator) Configure(ctx context.Context, name string) (*store.Setup, error) {
	e, ok := c.lights.entry(name)
	if !ok {
		return nil, fmt.Errorf("light %q: %w", name, store.ErrNotFound)
	}
	lc := &lightConfigurator{coord: c, light: e.light}

	applied, err := effects.Setup(ctx, lc, e.light.Profile(), e.light.Endpoint())
	if err == nil {
		for _, cluster := range e.def.Bind {
			if err = lc.Bind(ctx, applied.Endpoint, cluster); err != nil {
				err = fmt.Errorf("bind cluster 0x%04X: %w", cluster, err)
				break
			}
			applied.Clusters = append(applied.Clusters, cluster)
		}
		sort.Slice(applied.Clusters, func(i, j int) bool { return applied.Clusters[i] < applied.Clusters[j] })
	}
	if err != nil {
		c.logger.Warn("configure failed", "name", name, "err", err)
		c.events.Emit(Event{Type: EventConfigureFailed, Data: map[string]any{"light": name, "error": err.Error()}})
		return nil, fmt.Errorf("configure %s: %w", name, err)
	}

	rec := &store.Setup{
		IEEEAddress: transport.FormatIEEE(e.light.IEEE()),
		Endpoint:    applied.Endpoint,
		Clusters:    applied.Clusters,
	}
	for _, r := range applied.Reporting {
		rec.Reporting = append(rec.Reporting, store.Reporting{
			Cluster: r.Cluster, Attribute: r.Attribute, Min: r.Min, Max: r.Max, Change: r.Change,
		})
	}
	saved, err := c.store.SaveSetup(rec)
	if err != nil {
		return nil, fmt.Errorf("save setup %s: %w", name, err)
	}

	c.logger.Info("light configured", "name", name, "clusters", len(saved.Clusters), "reporting", len(saved.Reporting))
	c.events.Emit(Event{Type: EventConfigured, Data: map[string]any{"light": name, "setup": saved}})
	return saved, nil
}
