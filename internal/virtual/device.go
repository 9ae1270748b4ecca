// Package virtual emulates a WS2812 strip controller in process. It speaks
// ZCL frames through the same codec a radio transport would use, keeps its
// attribute table and binding table, animates the strip, and reports
// attribute changes asynchronously.
package virtual

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"

	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl"
	"zigbee-ledfx/internal/zcl/clusters"
)

// DeviceConfig describes the emulated controller.
type DeviceConfig struct {
	IEEE             [8]byte
	ShortAddr        uint16
	Endpoint         uint8
	ManufacturerName string
	Model            string
	LEDs             int
}

type attrValue struct {
	typ      uint8
	value    any
	writable bool
}

// Device is an emulated strip controller.
type Device struct {
	cfg    DeviceConfig
	logger *slog.Logger

	mu        sync.Mutex
	attrs     map[zcl.AttrKey]*attrValue
	bindings  map[uint16]struct{}
	reporting map[zcl.AttrKey]transport.ReportingRecord
	effect    effects.Kind
	frame     uint32
	frames    uint64
	identify  time.Time
	strip     *Strip
	seq       uint8

	sink func(cluster uint16, frame []byte)
}

// NewDevice creates a controller with power-on defaults.
func NewDevice(cfg DeviceConfig, logger *slog.Logger) *Device {
	if cfg.Endpoint == 0 {
		cfg.Endpoint = effects.Endpoint
	}
	if cfg.LEDs <= 0 {
		cfg.LEDs = 60
	}
	d := &Device{
		cfg:       cfg,
		logger:    logger,
		attrs:     make(map[zcl.AttrKey]*attrValue),
		bindings:  make(map[uint16]struct{}),
		reporting: make(map[zcl.AttrKey]transport.ReportingRecord),
		strip:     NewStrip(cfg.LEDs, uint64(cfg.ShortAddr)),
	}

	std := func(cluster, attr uint16, typ uint8, v any, writable bool) {
		d.attrs[zcl.AttrKey{Cluster: cluster, Attr: attr}] = &attrValue{typ: typ, value: v, writable: writable}
	}
	std(clusters.IDBasic, clusters.AttrManufacturerName, zcl.TypeCharStr, cfg.ManufacturerName, false)
	std(clusters.IDBasic, clusters.AttrModelIdentifier, zcl.TypeCharStr, cfg.Model, false)
	std(clusters.IDIdentify, clusters.AttrIdentifyTime, zcl.TypeUint16, uint16(0), true)
	std(clusters.IDOnOff, clusters.AttrOnOff, zcl.TypeBool, false, false)
	std(clusters.IDLevelControl, clusters.AttrCurrentLevel, zcl.TypeUint8, uint8(254), false)
	std(clusters.IDColorControl, clusters.AttrCurrentX, zcl.TypeUint16, uint16(20493), false) // D65
	std(clusters.IDColorControl, clusters.AttrCurrentY, zcl.TypeUint16, uint16(21561), false)
	std(clusters.IDColorControl, clusters.AttrColorMode, zcl.TypeEnum8, uint8(1), false)

	for _, key := range effects.AttrKeys() {
		v := uint8(defaultSpeed)
		if key.Attr == effects.AttrEffect {
			v = uint8(effects.None)
		}
		d.attrs[key] = &attrValue{typ: effects.AttrType, value: v, writable: true}
	}
	return d
}

// IEEE returns the device's long address.
func (d *Device) IEEE() [8]byte { return d.cfg.IEEE }

// ShortAddr returns the device's network address.
func (d *Device) ShortAddr() uint16 { return d.cfg.ShortAddr }

// Endpoint returns the light endpoint.
func (d *Device) Endpoint() uint8 { return d.cfg.Endpoint }

func (d *Device) setSink(fn func(cluster uint16, frame []byte)) {
	d.mu.Lock()
	d.sink = fn
	d.mu.Unlock()
}

// Bind adds cluster to the binding table. Binding is a set: repeating a bind
// leaves the table unchanged.
func (d *Device) Bind(srcEP uint8, cluster uint16) error {
	if srcEP != d.cfg.Endpoint {
		return fmt.Errorf("bind: no endpoint %d on 0x%04X", srcEP, d.cfg.ShortAddr)
	}
	d.mu.Lock()
	d.bindings[cluster] = struct{}{}
	d.mu.Unlock()
	d.logger.Debug("bound", "cluster", fmt.Sprintf("0x%04X", cluster))
	return nil
}

// HandleFrame processes one ZCL frame addressed to cluster and returns the
// response frame. Attribute reports caused by the frame are pushed to the
// report sink after the device lock is released.
func (d *Device) HandleFrame(cluster uint16, frame []byte) ([]byte, error) {
	h, payload, err := transport.DecodeFrame(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	var (
		cmd     uint8
		resp    []byte
		changed []zcl.AttrKey
	)
	if h.ClusterSpecific() {
		var status uint8
		changed, status = d.handleCommand(cluster, h.Command, payload)
		cmd, resp = zcl.FoundationDefaultResponse, transport.EncodeDefaultResponse(h.Command, status)
	} else {
		cmd, resp, changed = d.handleFoundation(cluster, h, payload)
	}
	reports := d.collectReports(changed)
	sink := d.sink
	d.seq++
	out := transport.EncodeFrame(transport.Header{
		FrameControl: h.FrameControl&zcl.FrameManufacturer | zcl.FrameServerToClient | zcl.FrameDisableDefaultRsp,
		Manufacturer: h.Manufacturer,
		Seq:          h.Seq,
		Command:      cmd,
	}, resp)
	d.mu.Unlock()

	if sink != nil {
		for _, r := range reports {
			sink(r.cluster, r.frame)
		}
	}
	return out, nil
}

func (d *Device) handleFoundation(cluster uint16, h transport.Header, payload []byte) (uint8, []byte, []zcl.AttrKey) {
	mfr := uint16(0)
	if h.ManufacturerSpecific() {
		mfr = h.Manufacturer
	}

	switch h.Command {
	case zcl.FoundationReadAttributes:
		ids, err := transport.ParseReadAttributes(payload)
		if err != nil {
			return zcl.FoundationDefaultResponse, transport.EncodeDefaultResponse(h.Command, zcl.ZCLStatusFailure), nil
		}
		records := make([]transport.AttributeRecord, 0, len(ids))
		for _, id := range ids {
			records = append(records, d.readRecord(zcl.AttrKey{Manufacturer: mfr, Cluster: cluster, Attr: id}))
		}
		return zcl.FoundationReadAttributesResponse, transport.EncodeReadAttributesResponse(records), nil

	case zcl.FoundationWriteAttributes:
		records, err := transport.ParseWriteAttributes(payload)
		if err != nil {
			return zcl.FoundationDefaultResponse, transport.EncodeDefaultResponse(h.Command, zcl.ZCLStatusFailure), nil
		}
		var failed []transport.AttributeRecord
		var changed []zcl.AttrKey
		for _, r := range records {
			key := zcl.AttrKey{Manufacturer: mfr, Cluster: cluster, Attr: r.AttrID}
			if status := d.writeAttr(key, r); status != zcl.ZCLStatusSuccess {
				failed = append(failed, transport.AttributeRecord{AttrID: r.AttrID, Status: status})
				continue
			}
			changed = append(changed, key)
		}
		return zcl.FoundationWriteAttributesResp, transport.EncodeWriteAttributesResponse(failed), changed

	case zcl.FoundationConfigReporting:
		records, err := transport.ParseConfigureReporting(payload)
		if err != nil {
			return zcl.FoundationDefaultResponse, transport.EncodeDefaultResponse(h.Command, zcl.ZCLStatusFailure), nil
		}
		for _, r := range records {
			key := zcl.AttrKey{Manufacturer: mfr, Cluster: cluster, Attr: r.AttrID}
			if _, ok := d.attrs[key]; !ok {
				return zcl.FoundationConfigReportingResp, []byte{zcl.ZCLStatusUnsupportedAttr, 0x00, byte(r.AttrID), byte(r.AttrID >> 8)}, nil
			}
			d.reporting[key] = r
		}
		return zcl.FoundationConfigReportingResp, []byte{zcl.ZCLStatusSuccess}, nil
	}
	return zcl.FoundationDefaultResponse, transport.EncodeDefaultResponse(h.Command, zcl.ZCLStatusUnsupportedCmd), nil
}

func (d *Device) readRecord(key zcl.AttrKey) transport.AttributeRecord {
	rec := transport.AttributeRecord{AttrID: key.Attr}
	av, ok := d.attrs[key]
	if !ok {
		rec.Status = zcl.ZCLStatusUnsupportedAttr
		return rec
	}
	raw, err := zcl.EncodeValue(av.typ, av.value)
	if err != nil {
		rec.Status = zcl.ZCLStatusFailure
		return rec
	}
	rec.DataType = av.typ
	rec.Value = raw
	return rec
}

func (d *Device) writeAttr(key zcl.AttrKey, r transport.WriteRecord) uint8 {
	av, ok := d.attrs[key]
	if !ok {
		return zcl.ZCLStatusUnsupportedAttr
	}
	if !av.writable {
		return zcl.ZCLStatusReadOnly
	}
	if r.DataType != av.typ {
		return zcl.ZCLStatusInvalidDataType
	}
	v, _, err := zcl.DecodeValue(r.DataType, r.Value)
	if err != nil {
		return zcl.ZCLStatusInvalidValue
	}

	if key.Manufacturer == effects.ManufacturerCode && key.Attr == effects.AttrEffect {
		kind, ok := effects.KindFromCode(int64(v.(uint8)))
		if !ok {
			d.logger.Warn("invalid effect type", "code", v)
			return zcl.ZCLStatusInvalidValue
		}
		d.effect = kind
		d.frame = 0
		d.strip.resetStars()
		d.logger.Info("effect started", "effect", kind.String(), "speed", d.speed(kind))
	}
	if key.Cluster == clusters.IDIdentify && key.Attr == clusters.AttrIdentifyTime {
		d.identify = time.Now().Add(time.Duration(v.(uint16)) * time.Second)
	}
	av.value = v
	return zcl.ZCLStatusSuccess
}

func (d *Device) handleCommand(cluster uint16, cmd uint8, payload []byte) ([]zcl.AttrKey, uint8) {
	onOff := zcl.AttrKey{Cluster: clusters.IDOnOff, Attr: clusters.AttrOnOff}
	level := zcl.AttrKey{Cluster: clusters.IDLevelControl, Attr: clusters.AttrCurrentLevel}

	switch {
	case cluster == clusters.IDOnOff && cmd <= clusters.CmdToggle:
		on := cmd == clusters.CmdOn
		if cmd == clusters.CmdToggle {
			on = !d.attrs[onOff].value.(bool)
		}
		d.attrs[onOff].value = on
		return []zcl.AttrKey{onOff}, zcl.ZCLStatusSuccess

	case cluster == clusters.IDLevelControl && (cmd == clusters.CmdMoveToLevel || cmd == clusters.CmdMoveToLevelWithOnOff):
		if len(payload) < 1 {
			return nil, zcl.ZCLStatusInvalidValue
		}
		lvl := payload[0]
		if lvl == 0xFF {
			return nil, zcl.ZCLStatusInvalidValue
		}
		d.attrs[level].value = lvl
		changed := []zcl.AttrKey{level}
		if cmd == clusters.CmdMoveToLevelWithOnOff {
			d.attrs[onOff].value = lvl > 0
			changed = append(changed, onOff)
		}
		return changed, zcl.ZCLStatusSuccess

	case cluster == clusters.IDColorControl && cmd == clusters.CmdMoveToColor:
		if len(payload) < 4 {
			return nil, zcl.ZCLStatusInvalidValue
		}
		x := zcl.AttrKey{Cluster: clusters.IDColorControl, Attr: clusters.AttrCurrentX}
		y := zcl.AttrKey{Cluster: clusters.IDColorControl, Attr: clusters.AttrCurrentY}
		d.attrs[x].value = uint16(payload[0]) | uint16(payload[1])<<8
		d.attrs[y].value = uint16(payload[2]) | uint16(payload[3])<<8
		return []zcl.AttrKey{x, y}, zcl.ZCLStatusSuccess

	case cluster == clusters.IDIdentify && cmd == clusters.CmdIdentify:
		if len(payload) < 2 {
			return nil, zcl.ZCLStatusInvalidValue
		}
		secs := uint16(payload[0]) | uint16(payload[1])<<8
		key := zcl.AttrKey{Cluster: clusters.IDIdentify, Attr: clusters.AttrIdentifyTime}
		d.attrs[key].value = secs
		d.identify = time.Now().Add(time.Duration(secs) * time.Second)
		d.logger.Info("identify", "seconds", secs)
		return nil, zcl.ZCLStatusSuccess
	}
	return nil, zcl.ZCLStatusUnsupportedCmd
}

type pendingReport struct {
	cluster uint16
	frame   []byte
}

// collectReports builds report frames for changed attributes. Vendor
// attributes are reported whenever their cluster is bound; standard
// attributes also need a reporting configuration.
func (d *Device) collectReports(changed []zcl.AttrKey) []pendingReport {
	type group struct{ cluster, mfr uint16 }
	grouped := make(map[group][]transport.AttributeRecord)
	var order []group
	for _, key := range changed {
		if _, bound := d.bindings[key.Cluster]; !bound {
			continue
		}
		if _, configured := d.reporting[key]; key.Manufacturer == 0 && !configured {
			continue
		}
		rec := d.readRecord(key)
		if rec.Status != zcl.ZCLStatusSuccess {
			continue
		}
		g := group{key.Cluster, key.Manufacturer}
		if _, ok := grouped[g]; !ok {
			order = append(order, g)
		}
		grouped[g] = append(grouped[g], rec)
	}

	reports := make([]pendingReport, 0, len(order))
	for _, g := range order {
		d.seq++
		h := transport.Header{
			FrameControl: zcl.FrameServerToClient | zcl.FrameDisableDefaultRsp,
			Seq:          d.seq,
			Command:      zcl.FoundationReportAttributes,
		}
		if g.mfr != 0 {
			h.FrameControl |= zcl.FrameManufacturer
			h.Manufacturer = g.mfr
		}
		reports = append(reports, pendingReport{cluster: g.cluster, frame: transport.EncodeFrame(h, transport.EncodeReportAttributes(grouped[g]))})
	}
	return reports
}

func (d *Device) speed(kind effects.Kind) uint8 {
	attr, ok := effects.SpeedAttr(kind)
	if !ok {
		return defaultSpeed
	}
	av := d.attrs[zcl.AttrKey{Manufacturer: effects.ManufacturerCode, Cluster: effects.Cluster, Attr: attr}]
	return av.value.(uint8)
}

func (d *Device) baseColor() colorful.Color {
	x := float64(d.attrs[zcl.AttrKey{Cluster: clusters.IDColorControl, Attr: clusters.AttrCurrentX}].value.(uint16)) / 65535
	y := float64(d.attrs[zcl.AttrKey{Cluster: clusters.IDColorControl, Attr: clusters.AttrCurrentY}].value.(uint16)) / 65535
	if y == 0 {
		return colorful.Color{R: 1, G: 1, B: 1}
	}
	return colorful.Xyy(x, y, 1).Clamped()
}

// Tick advances the animation by one frame and returns the delay until the
// next frame is due.
func (d *Device) Tick(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Before(d.identify) {
		white := colorful.Color{}
		if d.frames%2 == 0 {
			white = colorful.Color{R: 1, G: 1, B: 1}
		}
		d.strip.fill(white)
		d.frames++
		return 250 * time.Millisecond
	}

	on := d.attrs[zcl.AttrKey{Cluster: clusters.IDOnOff, Attr: clusters.AttrOnOff}].value.(bool)
	if !on {
		d.frame = 0
		d.strip.fill(colorful.Color{})
		return idleFrameDelay
	}
	level := float64(d.attrs[zcl.AttrKey{Cluster: clusters.IDLevelControl, Attr: clusters.AttrCurrentLevel}].value.(uint8)) / 254

	d.strip.render(d.effect, d.frame, d.baseColor(), level)
	if d.effect == effects.None {
		d.frame = 0
		return idleFrameDelay
	}
	d.frame++
	d.frames++
	return FrameDelay(d.speed(d.effect))
}

// Run drives the animation clock until ctx is cancelled.
func (d *Device) Run(ctx context.Context) {
	timer := time.NewTimer(idleFrameDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			timer.Reset(d.Tick(now))
		}
	}
}

// Snapshot is a point-in-time view of the emulated device.
type Snapshot struct {
	On       bool             `json:"on"`
	Level    uint8            `json:"level"`
	Effect   string           `json:"effect"`
	Speeds   map[string]uint8 `json:"speeds"`
	Frame    uint32           `json:"frame"`
	Bindings []uint16         `json:"bindings"`
	Reported []string         `json:"reported"`
	Pixels   []string         `json:"pixels"`
}

// Snapshot returns the current device state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		On:     d.attrs[zcl.AttrKey{Cluster: clusters.IDOnOff, Attr: clusters.AttrOnOff}].value.(bool),
		Level:  d.attrs[zcl.AttrKey{Cluster: clusters.IDLevelControl, Attr: clusters.AttrCurrentLevel}].value.(uint8),
		Effect: d.effect.String(),
		Speeds: make(map[string]uint8),
		Frame:  d.frame,
		Pixels: d.strip.Hex(),
	}
	for _, k := range effects.Kinds() {
		if key, ok := effects.SpeedKey(k); ok {
			s.Speeds[key] = d.speed(k)
		}
	}
	for c := range d.bindings {
		s.Bindings = append(s.Bindings, c)
	}
	sort.Slice(s.Bindings, func(i, j int) bool { return s.Bindings[i] < s.Bindings[j] })
	for k := range d.reporting {
		s.Reported = append(s.Reported, k.String())
	}
	sort.Strings(s.Reported)
	return s
}
