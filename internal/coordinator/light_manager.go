package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"zigbee-ledfx/internal/adapter"
	"zigbee-ledfx/internal/store"
	"zigbee-ledfx/internal/transport"
)

// LightConfig describes one configured light.
type LightConfig struct {
	Name      string
	Model     string
	IEEE      [8]byte
	ShortAddr uint16
	Endpoint  uint8
}

type lightEntry struct {
	light *adapter.Light
	def   *DeviceDefinition
}

// LightManager tracks the configured lights and routes reports to them.
type LightManager struct {
	coord  *Coordinator
	logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]*lightEntry
	// In-memory short address -> light index for report routing.
	byAddr map[uint16]*lightEntry
}

// NewLightManager creates a new light manager.
func NewLightManager(coord *Coordinator) *LightManager {
	return &LightManager{
		coord:  coord,
		logger: coord.logger.With("component", "light_manager"),
		byName: make(map[string]*lightEntry),
		byAddr: make(map[uint16]*lightEntry),
	}
}

// Add creates a light for lc and restores its last known state.
func (lm *LightManager) Add(lc LightConfig) (*adapter.Light, error) {
	def := lm.coord.DeviceDB().Lookup(lc.Model)
	if def == nil {
		return nil, fmt.Errorf("light %q: unknown model %q", lc.Name, lc.Model)
	}

	lm.mu.Lock()
	if _, ok := lm.byName[lc.Name]; ok {
		lm.mu.Unlock()
		return nil, fmt.Errorf("light %q already exists", lc.Name)
	}
	if other, ok := lm.byAddr[lc.ShortAddr]; ok {
		lm.mu.Unlock()
		return nil, fmt.Errorf("light %q: short address 0x%04X used by %q", lc.Name, lc.ShortAddr, other.light.Name())
	}
	l := adapter.New(adapter.Config{
		Name:      lc.Name,
		IEEE:      lc.IEEE,
		ShortAddr: lc.ShortAddr,
		Endpoint:  lc.Endpoint,
		Profile:   def.Profile(),
		OnChange:  lm.handleChange,
	}, lm.coord.Transport(), lm.logger)
	entry := &lightEntry{light: l, def: def}
	lm.byName[lc.Name] = entry
	lm.byAddr[lc.ShortAddr] = entry
	lm.mu.Unlock()

	ieee := transport.FormatIEEE(lc.IEEE)
	dev, err := lm.coord.Store().GetDevice(ieee)
	switch {
	case err == nil:
		l.Restore(dev.Properties)
	case errors.Is(err, store.ErrNotFound):
	default:
		lm.logger.Error("load device", "err", err, "ieee", ieee)
	}
	if err := lm.coord.Store().SaveDevice(&store.Device{
		IEEEAddress:  ieee,
		ShortAddress: lc.ShortAddr,
		Name:         lc.Name,
		Model:        def.Model,
		Endpoint:     l.Endpoint(),
		LastSeen:     lastSeen(dev),
		Properties:   l.State(),
	}); err != nil {
		lm.logger.Error("save device", "err", err, "ieee", ieee)
	}

	lm.logger.Info("light added", "name", lc.Name, "model", def.Model,
		"short_addr", fmt.Sprintf("0x%04X", lc.ShortAddr), "ieee", ieee)
	lm.coord.Events().Emit(Event{Type: EventLightAdded, Data: map[string]any{
		"name":  lc.Name,
		"model": def.Model,
		"ieee":  ieee,
	}})
	return l, nil
}

func lastSeen(dev *store.Device) time.Time {
	if dev == nil {
		return time.Time{}
	}
	return dev.LastSeen
}

// Get returns the named light.
func (lm *LightManager) Get(name string) (*adapter.Light, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	e, ok := lm.byName[name]
	if !ok {
		return nil, false
	}
	return e.light, true
}

func (lm *LightManager) entry(name string) (*lightEntry, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	e, ok := lm.byName[name]
	return e, ok
}

// Definition returns the device definition of the named light.
func (lm *LightManager) Definition(name string) (*DeviceDefinition, bool) {
	e, ok := lm.entry(name)
	if !ok {
		return nil, false
	}
	return e.def, true
}

// List returns all lights sorted by name.
func (lm *LightManager) List() []*adapter.Light {
	lm.mu.RLock()
	lights := make([]*adapter.Light, 0, len(lm.byName))
	for _, e := range lm.byName {
		lights = append(lights, e.light)
	}
	lm.mu.RUnlock()
	sort.Slice(lights, func(i, j int) bool { return lights[i].Name() < lights[j].Name() })
	return lights
}

// HandleAttributeReport routes a transport report to the light that sent it.
func (lm *LightManager) HandleAttributeReport(evt transport.AttributeReportEvent) {
	lm.mu.RLock()
	e, ok := lm.byAddr[evt.SrcAddr]
	lm.mu.RUnlock()
	if !ok {
		lm.logger.Debug("report from unknown device", "short_addr", fmt.Sprintf("0x%04X", evt.SrcAddr))
		return
	}

	report, results := lm.coord.decodeRecords(evt)
	clusterName := fmt.Sprintf("0x%04X", evt.ClusterID)
	if cluster := lm.coord.Registry().Get(evt.ClusterID); cluster != nil {
		clusterName = cluster.Name
	}
	for _, r := range results {
		lm.logger.Debug("attribute report",
			"name", e.light.Name(),
			"cluster", clusterName,
			"attr", r.AttrName,
			"value", r.Value,
			"response", evt.Response,
		)
	}

	lm.coord.Events().Emit(Event{
		Type: EventAttributeReport,
		Data: map[string]any{
			"light":        e.light.Name(),
			"short_addr":   evt.SrcAddr,
			"endpoint":     evt.SrcEP,
			"cluster_id":   evt.ClusterID,
			"cluster_name": clusterName,
			"manufacturer": evt.ManufacturerCode,
			"attributes":   results,
		},
	})

	patch := e.light.HandleReport(report)
	if len(patch) == 0 {
		return
	}
	ieee := transport.FormatIEEE(e.light.IEEE())
	err := lm.coord.Store().UpdateDevice(ieee, func(dev *store.Device) error {
		dev.LastSeen = time.Now()
		return nil
	})
	if err != nil {
		lm.logger.Error("save device last_seen", "err", err, "ieee", ieee)
	}
}

// handleChange persists the merged state and publishes it.
func (lm *LightManager) handleChange(ch adapter.Change) {
	lm.mu.RLock()
	e, ok := lm.byName[ch.Light]
	lm.mu.RUnlock()
	if ok && ch.Source != adapter.SourceRestore {
		ieee := transport.FormatIEEE(e.light.IEEE())
		err := lm.coord.Store().UpdateDevice(ieee, func(dev *store.Device) error {
			dev.Properties = ch.State
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			lm.logger.Error("save state", "err", err, "ieee", ieee)
		}
	}

	lm.coord.Events().Emit(Event{Type: EventStateChanged, Data: ch})
}

