//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-ledfx/internal/adapter"
	"zigbee-ledfx/internal/coordinator"
	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/transport"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	// ClientID defaults to "zigbee-ledfx-" plus a random suffix.
	ClientID    string
}

// Bridge connects the lights to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	coord  *coordinator.Coordinator
	prefix string
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	subscribed map[string]bool // light name -> command topics subscribed
}

func newBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(coord.Context())
	return &Bridge{
		coord:      coord,
		prefix:     cfg.TopicPrefix,
		logger:     logger.With("component", "mqtt"),
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(map[string]bool),
	}
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(coord, cfg, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zigbee-ledfx-" + uniuri.NewLen(8)
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected", "client_id", clientID)
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect republishes everything after a (re)connect. Subscriptions do not
// survive a clean session, so they are renewed too.
func (b *Bridge) onConnect() {
	b.mu.Lock()
	clear(b.subscribed)
	b.mu.Unlock()

	b.publishBridgeState("online")
	b.removeStale()
	for _, l := range b.coord.Lights().List() {
		b.publishLight(l)
	}
}

// removeStale clears discovery and retained state of stored lights that are
// no longer configured.
func (b *Bridge) removeStale() {
	devices, err := b.coord.Store().ListDevices()
	if err != nil {
		b.logger.Error("list devices for discovery cleanup", "err", err)
		return
	}
	for _, dev := range devices {
		if _, ok := b.coord.Lights().Get(dev.Name); ok {
			continue
		}
		for _, msg := range buildRemoveDiscovery(lightInfo{Name: dev.Name, IEEE: dev.IEEEAddress}) {
			b.publish(msg.Topic, msg.Payload, true)
		}
		b.publish(b.prefix+"/"+topicName(dev.Name), nil, true)
		b.logger.Info("removed HA discovery", "name", dev.Name, "ieee", dev.IEEEAddress)
	}
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.EventLightAdded:
		data, ok := event.Data.(map[string]any)
		if !ok {
			return
		}
		name, _ := data["name"].(string)
		if l, ok := b.coord.Lights().Get(name); ok && b.client.IsConnected() {
			b.publishLight(l)
		}
	case coordinator.EventStateChanged:
		ch, ok := event.Data.(adapter.Change)
		if !ok {
			return
		}
		b.publishState(ch.Light, ch.State)
	}
}

func (b *Bridge) info(l *adapter.Light) lightInfo {
	li := lightInfo{
		Name:    l.Name(),
		IEEE:    transport.FormatIEEE(l.IEEE()),
		Profile: l.Profile(),
	}
	if def, ok := b.coord.Lights().Definition(l.Name()); ok {
		li.Manufacturer = def.Manufacturer
		li.Model = def.Model
		li.FriendlyName = def.FriendlyName
	}
	return li
}

// publishLight sends discovery and the current state, then subscribes to the
// light's command topics.
func (b *Bridge) publishLight(l *adapter.Light) {
	li := b.info(l)
	for _, msg := range buildDiscovery(li, b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery", "name", li.Name, "ieee", li.IEEE)

	if state := l.State(); len(state) > 0 {
		b.publishState(l.Name(), state)
	}

	b.mu.Lock()
	done := b.subscribed[l.Name()]
	b.subscribed[l.Name()] = true
	b.mu.Unlock()
	if !done {
		b.subscribeLight(l.Name())
	}
}

func (b *Bridge) subscribeLight(name string) {
	base := b.prefix + "/" + topicName(name)
	b.client.Subscribe(base+"/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(name, msg.Payload())
	})
	b.client.Subscribe(base+"/get", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleGet(name, msg.Payload())
	})
}

func (b *Bridge) publishState(name string, state map[string]any) {
	b.publish(b.prefix+"/"+topicName(name), mustJSON(state), true)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

// handleCommand applies a JSON command dictionary. State updates are
// published through the coordinator's events.
func (b *Bridge) handleCommand(name string, payload []byte) {
	light, err := b.coord.Light(name)
	if err != nil {
		b.logger.Warn("command for unknown light", "name", name)
		return
	}

	var cmd map[string]any
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid command JSON", "name", name, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	if _, err := light.Apply(ctx, cmd); err != nil {
		b.logger.Warn("command failed", "name", name, "err", err)
	}
}

// handleGet requests a refresh of the keys named in a JSON object. An empty
// payload refreshes every gettable control.
func (b *Bridge) handleGet(name string, payload []byte) {
	light, err := b.coord.Light(name)
	if err != nil {
		b.logger.Warn("get for unknown light", "name", name)
		return
	}

	var keys []string
	if len(payload) == 0 {
		keys = effects.Gettable(light.Capabilities())
	} else {
		var req map[string]any
		if err := json.Unmarshal(payload, &req); err != nil {
			b.logger.Warn("invalid get JSON", "name", name, "err", err)
			return
		}
		for k := range req {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	for _, k := range keys {
		if err := light.Get(ctx, k); err != nil {
			b.logger.Warn("get failed", "name", name, "key", k, "err", err)
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
