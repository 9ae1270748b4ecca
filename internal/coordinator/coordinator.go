package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"zigbee-ledfx/internal/adapter"
	"zigbee-ledfx/internal/store"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl"
)

// Config holds coordinator configuration.
type Config struct {
	// IEEE is the hub's own address, used as the bind destination.
	IEEE     [8]byte
	Endpoint uint8
}

// Coordinator owns the transport and the configured lights.
type Coordinator struct {
	transport transport.Transport
	store     store.Store
	registry  *zcl.Registry
	deviceDB  *DeviceDB
	events    *EventBus
	lights    *LightManager
	logger    *slog.Logger
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Coordinator and subscribes to the transport's reports.
func New(tr transport.Transport, st store.Store, registry *zcl.Registry, deviceDB *DeviceDB, events *EventBus, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.Endpoint == 0 {
		cfg.Endpoint = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		transport: tr,
		store:     st,
		registry:  registry,
		deviceDB:  deviceDB,
		events:    events,
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.lights = NewLightManager(c)
	tr.OnAttributeReport(c.lights.HandleAttributeReport)
	return c
}

// Context returns the coordinator's context, which is cancelled on Stop().
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Stop cancels the coordinator context.
func (c *Coordinator) Stop() {
	c.cancel()
}

// Info returns a summary for the API.
func (c *Coordinator) Info() map[string]any {
	return map[string]any{
		"coordinator_ieee": transport.FormatIEEE(c.config.IEEE),
		"endpoint":         c.config.Endpoint,
		"lights":           len(c.lights.List()),
		"models":           c.deviceDB.Models(),
	}
}

// LocalIEEE returns the coordinator's own IEEE address.
func (c *Coordinator) LocalIEEE() [8]byte {
	return c.config.IEEE
}

// Transport returns the underlying transport.
func (c *Coordinator) Transport() transport.Transport {
	return c.transport
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Registry returns the ZCL registry.
func (c *Coordinator) Registry() *zcl.Registry {
	return c.registry
}

// DeviceDB returns the device definitions database.
func (c *Coordinator) DeviceDB() *DeviceDB {
	return c.deviceDB
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Lights returns the light manager.
func (c *Coordinator) Lights() *LightManager {
	return c.lights
}

// Light returns the named light.
func (c *Coordinator) Light(name string) (*adapter.Light, error) {
	l, ok := c.lights.Get(name)
	if !ok {
		return nil, fmt.Errorf("light %q: %w", name, store.ErrNotFound)
	}
	return l, nil
}
