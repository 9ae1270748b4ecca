package virtual

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl"
)

const reportQueueSize = 64

// Transport is an in-process transport.Transport that reaches Devices
// through encoded ZCL frames. Requests are answered synchronously; reports
// and read responses are delivered on a separate goroutine.
type Transport struct {
	logger  *slog.Logger
	latency time.Duration

	mu      sync.RWMutex
	devices map[uint16]*Device

	handlerMu sync.RWMutex
	onReport  []func(transport.AttributeReportEvent)

	zclSeq atomic.Uint32
	queue  chan transport.AttributeReportEvent

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Transport.
type Option func(*Transport)

// WithLatency delays every delivered report, emulating the radio round trip.
func WithLatency(d time.Duration) Option {
	return func(t *Transport) { t.latency = d }
}

// NewTransport creates a transport with no devices attached.
func NewTransport(logger *slog.Logger, opts ...Option) *Transport {
	t := &Transport{
		logger:  logger,
		devices: make(map[uint16]*Device),
		queue:   make(chan transport.AttributeReportEvent, reportQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.wg.Add(1)
	go t.deliverLoop()
	return t
}

// Attach makes d reachable at its short address.
func (t *Transport) Attach(d *Device) {
	t.mu.Lock()
	t.devices[d.ShortAddr()] = d
	t.mu.Unlock()
	d.setSink(func(cluster uint16, frame []byte) {
		t.ingest(d, cluster, frame)
	})
	t.logger.Info("virtual device attached", "short_addr", fmt.Sprintf("0x%04X", d.ShortAddr()),
		"ieee", transport.FormatIEEE(d.IEEE()))
}

// Device returns the device attached at addr.
func (t *Transport) Device(addr uint16) (*Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devices[addr]
	return d, ok
}

func (t *Transport) nextSeq() uint8 {
	return uint8(t.zclSeq.Add(1))
}

func (t *Transport) route(ctx context.Context, addr uint16, ep uint8) (*Device, error) {
	select {
	case <-t.done:
		return nil, transport.ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := t.Device(addr)
	if !ok {
		return nil, fmt.Errorf("no route to 0x%04X", addr)
	}
	if ep != d.Endpoint() {
		return nil, fmt.Errorf("0x%04X has no endpoint %d", addr, ep)
	}
	return d, nil
}

// exchange sends one frame and decodes the response header.
func (t *Transport) exchange(d *Device, cluster uint16, h transport.Header, payload []byte) (transport.Header, []byte, error) {
	resp, err := d.HandleFrame(cluster, transport.EncodeFrame(h, payload))
	if err != nil {
		return transport.Header{}, nil, err
	}
	rh, body, err := transport.DecodeFrame(resp)
	if err != nil {
		return transport.Header{}, nil, fmt.Errorf("decode response: %w", err)
	}
	if rh.Seq != h.Seq {
		return transport.Header{}, nil, fmt.Errorf("response seq %d, want %d", rh.Seq, h.Seq)
	}
	if rh.Command == zcl.FoundationDefaultResponse && !h.ClusterSpecific() {
		cmd, status, err := transport.ParseDefaultResponse(body)
		if err != nil {
			return transport.Header{}, nil, err
		}
		return transport.Header{}, nil, &transport.StatusError{Command: cmd, Status: status}
	}
	return rh, body, nil
}

func (t *Transport) ReadAttributes(ctx context.Context, req transport.ReadAttributesRequest) error {
	d, err := t.route(ctx, req.DstAddr, req.DstEP)
	if err != nil {
		return err
	}
	h := transport.NewHeader(zcl.FrameTypeGlobal, req.ManufacturerCode, t.nextSeq(), zcl.FoundationReadAttributes)
	rh, body, err := t.exchange(d, req.ClusterID, h, transport.EncodeReadAttributes(req.AttrIDs))
	if err != nil {
		return fmt.Errorf("read attributes 0x%04X: %w", req.ClusterID, err)
	}
	t.enqueue(transport.AttributeReportEvent{
		SrcAddr:          d.ShortAddr(),
		SrcEP:            d.Endpoint(),
		ClusterID:        req.ClusterID,
		ManufacturerCode: rh.Manufacturer,
		Records:          transport.ParseReadAttributesResponse(body),
		Response:         true,
	})
	return nil
}

func (t *Transport) WriteAttributes(ctx context.Context, req transport.WriteAttributesRequest) error {
	d, err := t.route(ctx, req.DstAddr, req.DstEP)
	if err != nil {
		return err
	}
	h := transport.NewHeader(zcl.FrameTypeGlobal, req.ManufacturerCode, t.nextSeq(), zcl.FoundationWriteAttributes)
	_, body, err := t.exchange(d, req.ClusterID, h, transport.EncodeWriteAttributes(req.Records))
	if err != nil {
		return fmt.Errorf("write attributes 0x%04X: %w", req.ClusterID, err)
	}
	failed, err := transport.ParseWriteAttributesResponse(body)
	if err != nil {
		return fmt.Errorf("write attributes 0x%04X: %w", req.ClusterID, err)
	}
	if len(failed) > 0 {
		return &transport.StatusError{Command: zcl.FoundationWriteAttributes, AttrID: failed[0].AttrID, Status: failed[0].Status}
	}
	return nil
}

func (t *Transport) SendCommand(ctx context.Context, req transport.ClusterCommandRequest) error {
	d, err := t.route(ctx, req.DstAddr, req.DstEP)
	if err != nil {
		return err
	}
	h := transport.NewHeader(zcl.FrameTypeCluster, 0, t.nextSeq(), req.CommandID)
	_, body, err := t.exchange(d, req.ClusterID, h, req.Payload)
	if err != nil {
		return fmt.Errorf("command 0x%04X/0x%02X: %w", req.ClusterID, req.CommandID, err)
	}
	cmd, status, err := transport.ParseDefaultResponse(body)
	if err != nil {
		return fmt.Errorf("command 0x%04X/0x%02X: %w", req.ClusterID, req.CommandID, err)
	}
	if status != zcl.ZCLStatusSuccess {
		return &transport.StatusError{Command: cmd, Status: status}
	}
	return nil
}

func (t *Transport) ConfigureReporting(ctx context.Context, req transport.ConfigureReportingRequest) error {
	d, err := t.route(ctx, req.DstAddr, req.DstEP)
	if err != nil {
		return err
	}
	h := transport.NewHeader(zcl.FrameTypeGlobal, req.ManufacturerCode, t.nextSeq(), zcl.FoundationConfigReporting)
	_, body, err := t.exchange(d, req.ClusterID, h, transport.EncodeConfigureReporting(req.Record))
	if err != nil {
		return fmt.Errorf("configure reporting 0x%04X: %w", req.ClusterID, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("configure reporting 0x%04X: empty response", req.ClusterID)
	}
	if body[0] != zcl.ZCLStatusSuccess {
		return &transport.StatusError{Command: zcl.FoundationConfigReporting, AttrID: req.Record.AttrID, Status: body[0]}
	}
	return nil
}

func (t *Transport) Bind(ctx context.Context, req transport.BindRequest) error {
	d, err := t.route(ctx, req.TargetShortAddr, req.SrcEP)
	if err != nil {
		return err
	}
	if req.SrcIEEE != d.IEEE() {
		return fmt.Errorf("bind: source %s is not 0x%04X", transport.FormatIEEE(req.SrcIEEE), req.TargetShortAddr)
	}
	return d.Bind(req.SrcEP, req.ClusterID)
}

// OnAttributeReport registers a report handler.
func (t *Transport) OnAttributeReport(handler func(transport.AttributeReportEvent)) {
	t.handlerMu.Lock()
	t.onReport = append(t.onReport, handler)
	t.handlerMu.Unlock()
}

// Close stops report delivery. Requests issued afterwards fail with
// transport.ErrClosed.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	t.wg.Wait()
	return nil
}

func (t *Transport) ingest(d *Device, cluster uint16, frame []byte) {
	h, body, err := transport.DecodeFrame(frame)
	if err != nil {
		t.logger.Warn("bad report frame", "err", err)
		return
	}
	records, err := transport.ParseReportAttributes(body)
	if err != nil {
		t.logger.Warn("bad report payload", "cluster", fmt.Sprintf("0x%04X", cluster), "err", err)
	}
	if len(records) == 0 {
		return
	}
	t.enqueue(transport.AttributeReportEvent{
		SrcAddr:          d.ShortAddr(),
		SrcEP:            d.Endpoint(),
		ClusterID:        cluster,
		ManufacturerCode: h.Manufacturer,
		Records:          records,
	})
}

// enqueue never blocks: handlers may issue requests that produce more
// reports, so a full queue drops the event.
func (t *Transport) enqueue(evt transport.AttributeReportEvent) {
	select {
	case t.queue <- evt:
	case <-t.done:
	default:
		t.logger.Warn("report queue full, dropping", "cluster", fmt.Sprintf("0x%04X", evt.ClusterID))
	}
}

func (t *Transport) deliverLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case evt := <-t.queue:
			if t.latency > 0 {
				select {
				case <-time.After(t.latency):
				case <-t.done:
					return
				}
			}
			t.handlerMu.RLock()
			handlers := t.onReport
			t.handlerMu.RUnlock()
			for _, h := range handlers {
				h(evt)
			}
		}
	}
}

var _ transport.Transport = (*Transport)(nil)
