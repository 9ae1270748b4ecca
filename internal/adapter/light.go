// Package adapter binds the vendor codec to a transport. A Light owns the
// merged state of one strip controller and routes each command either to the
// effect encoder or to the standard lighting converter.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/lighting"
	"zigbee-ledfx/internal/metrics"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl"
)

// ErrUnknownKey is returned for keys neither converter handles.
var ErrUnknownKey = effects.ErrUnknownKey

// Change sources.
const (
	SourceCommand = "command"
	SourceReport  = "report"
	SourceRestore = "restore"
)

// Change describes one state update of a light.
type Change struct {
	Light  string        `json:"light"`
	Source string        `json:"source"`
	Patch  effects.Patch `json:"patch"`
	State  effects.Patch `json:"state"`
}

// Config describes one light.
type Config struct {
	Name      string
	IEEE      [8]byte
	ShortAddr uint16
	Endpoint  uint8
	Profile   effects.Profile
	// OnChange is called after every state merge, outside the state lock.
	OnChange func(Change)
}

// Light is one effect-capable strip controller.
type Light struct {
	cfg    Config
	caps   []effects.Capability
	tr     transport.Transport
	logger *slog.Logger

	mu      sync.Mutex
	state   effects.Patch
	pending map[string][]*Pending
}

// New creates a light reached through tr.
func New(cfg Config, tr transport.Transport, logger *slog.Logger) *Light {
	if cfg.Endpoint == 0 {
		cfg.Endpoint = effects.Endpoint
	}
	return &Light{
		cfg:     cfg,
		caps:    effects.Declare(cfg.Profile),
		tr:      tr,
		logger:  logger.With("light", cfg.Name),
		state:   effects.Patch{},
		pending: make(map[string][]*Pending),
	}
}

func (l *Light) Name() string { return l.cfg.Name }

func (l *Light) IEEE() [8]byte { return l.cfg.IEEE }

func (l *Light) ShortAddr() uint16 { return l.cfg.ShortAddr }

func (l *Light) Endpoint() uint8 { return l.cfg.Endpoint }

func (l *Light) Profile() effects.Profile { return l.cfg.Profile }

// Capabilities returns the declaration for the light's profile.
func (l *Light) Capabilities() []effects.Capability { return effects.Declare(l.cfg.Profile) }

// State returns a copy of the merged state.
func (l *Light) State() effects.Patch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Validate checks cmd against the light's capabilities.
func (l *Light) Validate(cmd effects.Command) error {
	return effects.Validate(l.caps, cmd.Key, cmd.Value)
}

// Set sends one command. Vendor keys never fail on their value; the
// returned error is either ErrUnknownKey, a lighting value error or a
// transport error.
func (l *Light) Set(ctx context.Context, cmd effects.Command) (*Pending, error) {
	var (
		accepted effects.Patch
		send     func() error
	)

	switch {
	case effects.Owns(cmd.Key):
		enc, _ := effects.Encode(cmd.Key, cmd.Value)
		if enc.Fallback {
			l.logger.Warn("value not understood, sending default", "key", cmd.Key, "value", cmd.Value, "sent", enc.Write.Value)
		} else if enc.Clamped {
			l.logger.Debug("speed clamped", "key", cmd.Key, "value", cmd.Value, "sent", enc.Write.Value)
		}
		raw, err := zcl.EncodeValue(enc.Write.Type, enc.Write.Value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", cmd.Key, err)
		}
		accepted = enc.Patch
		send = func() error {
			err := l.tr.WriteAttributes(ctx, transport.WriteAttributesRequest{
				DstAddr:          l.cfg.ShortAddr,
				DstEP:            l.cfg.Endpoint,
				ClusterID:        enc.Write.Cluster,
				ManufacturerCode: enc.Write.Manufacturer,
				Records:          []transport.WriteRecord{{AttrID: enc.Write.Attr, DataType: enc.Write.Type, Value: raw}},
			})
			if err == nil {
				metrics.ObserveEncoded(l.cfg.Name, enc)
			}
			return err
		}

	case lighting.Owns(cmd.Key):
		enc, err := lighting.Encode(cmd.Key, cmd.Value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", cmd.Key, err)
		}
		accepted = enc.Patch
		send = func() error {
			err := l.tr.SendCommand(ctx, transport.ClusterCommandRequest{
				DstAddr:   l.cfg.ShortAddr,
				DstEP:     l.cfg.Endpoint,
				ClusterID: enc.Command.Cluster,
				CommandID: enc.Command.Command,
				Payload:   enc.Command.Payload,
			})
			if err == nil {
				metrics.ObserveCommand(l.cfg.Name, cmd.Key)
			}
			return err
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, cmd.Key)
	}

	// Track before sending: the report may be delivered before the
	// transport call returns.
	p := newPending(cmd.Key, accepted)
	p.release = func() { l.drop(p) }
	l.track(p)

	if err := send(); err != nil {
		l.drop(p)
		return nil, fmt.Errorf("set %s: %w", cmd.Key, err)
	}
	context.AfterFunc(ctx, p.release)

	// A report that already confirmed p wins over the optimistic patch.
	l.mu.Lock()
	var state effects.Patch
	if !p.confirmed {
		state = l.mergeLocked(accepted)
	}
	l.mu.Unlock()
	if state != nil {
		l.notify(accepted, SourceCommand, state)
	}
	return p, nil
}

// Apply sends every command of a dictionary, in key order. All keys are
// attempted; failures are joined.
func (l *Light) Apply(ctx context.Context, cmds map[string]any) (map[string]*Pending, error) {
	keys := make([]string, 0, len(cmds))
	for k := range cmds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make(map[string]*Pending, len(keys))
	var errs []error
	for _, k := range keys {
		p, err := l.Set(ctx, effects.Command{Key: k, Value: cmds[k]})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[k] = p
	}
	return results, errors.Join(errs...)
}

// Get requests a refresh of key. The value arrives later as a report.
func (l *Light) Get(ctx context.Context, key string) error {
	r, err := effects.ReadFor(l.cfg.Profile, key)
	if err != nil {
		if !effects.Owns(key) && !lighting.Owns(key) {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		return err
	}
	err = l.tr.ReadAttributes(ctx, transport.ReadAttributesRequest{
		DstAddr:          l.cfg.ShortAddr,
		DstEP:            l.cfg.Endpoint,
		ClusterID:        r.Cluster,
		ManufacturerCode: r.Manufacturer,
		AttrIDs:          r.Attrs,
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return nil
}

// HandleReport decodes a report from this light and merges it. It returns
// the decoded patch, which is empty when nothing in the report concerned
// the light's controls.
func (l *Light) HandleReport(r effects.Report) effects.Patch {
	metrics.ObserveReport(l.cfg.Name, r)

	patch := effects.Decode(r)
	patch.Merge(lighting.Decode(r))
	if len(patch) == 0 {
		return patch
	}
	l.mu.Lock()
	done := l.confirmLocked(patch)
	state := l.mergeLocked(patch)
	l.mu.Unlock()

	for _, p := range done {
		p.finish(patch.Clone())
	}
	l.notify(patch, SourceReport, state)
	return patch
}

// Restore seeds the state from a persisted snapshot without touching the
// device.
func (l *Light) Restore(state map[string]any) {
	if len(state) == 0 {
		return
	}
	l.merge(effects.Patch(state).Clone(), SourceRestore)
}

func (l *Light) merge(patch effects.Patch, source string) {
	l.mu.Lock()
	state := l.mergeLocked(patch)
	l.mu.Unlock()
	l.notify(patch, source, state)
}

// mergeLocked merges patch into the state and returns a copy of the result.
// l.mu must be held.
func (l *Light) mergeLocked(patch effects.Patch) effects.Patch {
	l.state.Merge(patch)
	return l.state.Clone()
}

func (l *Light) notify(patch effects.Patch, source string, state effects.Patch) {
	if l.cfg.OnChange != nil && len(patch) > 0 {
		l.cfg.OnChange(Change{Light: l.cfg.Name, Source: source, Patch: patch.Clone(), State: state})
	}
}

// track registers p for confirmation. An older pending command on the same
// key is superseded.
func (l *Light) track(p *Pending) {
	l.mu.Lock()
	old := l.pending[p.Key]
	l.pending[p.Key] = []*Pending{p}
	l.mu.Unlock()

	for _, o := range old {
		o.finish(nil)
	}
}

func (l *Light) drop(p *Pending) {
	l.mu.Lock()
	l.pending[p.Key] = slices.DeleteFunc(l.pending[p.Key], func(q *Pending) bool { return q == p })
	if len(l.pending[p.Key]) == 0 {
		delete(l.pending, p.Key)
	}
	l.mu.Unlock()
	p.finish(nil)
}

// confirmLocked marks every pending command the patch confirms and returns
// them. l.mu must be held; the caller finishes them after unlocking.
func (l *Light) confirmLocked(patch effects.Patch) []*Pending {
	var done []*Pending
	for key, list := range l.pending {
		kept := list[:0]
		for _, p := range list {
			if p.matches(patch) {
				p.confirmed = true
				done = append(done, p)
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(l.pending, key)
		} else {
			l.pending[key] = kept
		}
	}
	return done
}
