package adapter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/transport"
	"zigbee-ledfx/internal/zcl/clusters"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingTransport records requests and never emits reports by itself.
type recordingTransport struct {
	mu       sync.Mutex
	writes   []transport.WriteAttributesRequest
	commands []transport.ClusterCommandRequest
	reads    []transport.ReadAttributesRequest
	err      error
}

func (r *recordingTransport) ReadAttributes(_ context.Context, req transport.ReadAttributesRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, req)
	return r.err
}

func (r *recordingTransport) WriteAttributes(_ context.Context, req transport.WriteAttributesRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.writes = append(r.writes, req)
	return nil
}

func (r *recordingTransport) SendCommand(_ context.Context, req transport.ClusterCommandRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.commands = append(r.commands, req)
	return nil
}

func (r *recordingTransport) ConfigureReporting(context.Context, transport.ConfigureReportingRequest) error {
	return nil
}

func (r *recordingTransport) Bind(context.Context, transport.BindRequest) error { return nil }

func (r *recordingTransport) OnAttributeReport(func(transport.AttributeReportEvent)) {}

func (r *recordingTransport) Close() error { return nil }

func newTestLight(t *testing.T, profile effects.Profile) (*Light, *recordingTransport, *[]Change) {
	t.Helper()
	tr := &recordingTransport{}
	var changes []Change
	l := New(Config{
		Name:      "strip",
		ShortAddr: 0x1A2B,
		Profile:   profile,
		OnChange:  func(c Change) { changes = append(changes, c) },
	}, tr, testLogger())
	return l, tr, &changes
}

var gettable = effects.Profile{Model: "WS2812_Light", EffectGettable: true, ColorReporting: true}

func effectReport(code uint8) effects.Report {
	return effects.Report{
		Cluster:      effects.Cluster,
		Manufacturer: effects.ManufacturerCode,
		Attrs:        map[uint16]any{effects.AttrEffect: code},
	}
}

func TestSetEffect(t *testing.T) {
	l, tr, changes := newTestLight(t, gettable)

	p, err := l.Set(context.Background(), effects.Command{Key: effects.KeyEffect, Value: "Rainbow"})
	require.NoError(t, err)
	require.Len(t, tr.writes, 1)

	w := tr.writes[0]
	assert.Equal(t, uint16(0x1A2B), w.DstAddr)
	assert.Equal(t, effects.Endpoint, w.DstEP)
	assert.Equal(t, effects.Cluster, w.ClusterID)
	assert.Equal(t, effects.ManufacturerCode, w.ManufacturerCode)
	assert.Equal(t, []transport.WriteRecord{{AttrID: effects.AttrEffect, DataType: effects.AttrType, Value: []byte{1}}}, w.Records)

	assert.Equal(t, effects.Patch{effects.KeyEffect: "Rainbow"}, p.Accepted)
	assert.Equal(t, "Rainbow", l.State()[effects.KeyEffect])
	require.Len(t, *changes, 1)
	assert.Equal(t, SourceCommand, (*changes)[0].Source)
}

func TestSetUnknownEffectEchoesRequest(t *testing.T) {
	l, tr, _ := newTestLight(t, gettable)

	p, err := l.Set(context.Background(), effects.Command{Key: effects.KeyEffect, Value: "disco"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, tr.writes[0].Records[0].Value)
	assert.Equal(t, "disco", p.Accepted[effects.KeyEffect])
}

func TestSetSpeedClamps(t *testing.T) {
	l, tr, _ := newTestLight(t, gettable)

	p, err := l.Set(context.Background(), effects.Command{Key: effects.KeySpeedTwinkle, Value: 300})
	require.NoError(t, err)
	assert.Equal(t, effects.AttrSpeedTwinkle, tr.writes[0].Records[0].AttrID)
	assert.Equal(t, []byte{255}, tr.writes[0].Records[0].Value)
	assert.Equal(t, 255, p.Accepted[effects.KeySpeedTwinkle])
}

func TestSetState(t *testing.T) {
	l, tr, _ := newTestLight(t, gettable)

	_, err := l.Set(context.Background(), effects.Command{Key: effects.KeyState, Value: "ON"})
	require.NoError(t, err)
	require.Len(t, tr.commands, 1)
	assert.Equal(t, clusters.IDOnOff, tr.commands[0].ClusterID)
	assert.Equal(t, clusters.CmdOn, tr.commands[0].CommandID)
	assert.Empty(t, tr.writes)
	assert.Equal(t, "ON", l.State()[effects.KeyState])
}

func TestSetUnknownKey(t *testing.T) {
	l, tr, changes := newTestLight(t, gettable)

	_, err := l.Set(context.Background(), effects.Command{Key: "warp", Value: 9})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.ErrorIs(t, err, effects.ErrUnknownKey)
	assert.Empty(t, tr.writes)
	assert.Empty(t, *changes)
}

func TestSetTransportError(t *testing.T) {
	l, tr, changes := newTestLight(t, gettable)
	boom := errors.New("no ack")
	tr.err = boom

	_, err := l.Set(context.Background(), effects.Command{Key: effects.KeyEffect, Value: "strobe"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, l.State())
	assert.Empty(t, *changes)
	assert.Empty(t, l.pending)
}

func TestConfirmedByReport(t *testing.T) {
	l, _, changes := newTestLight(t, gettable)

	p, err := l.Set(context.Background(), effects.Command{Key: effects.KeyEffect, Value: "rainbow"})
	require.NoError(t, err)

	// A report for another field does not confirm.
	l.HandleReport(effects.Report{Cluster: clusters.IDOnOff, Attrs: map[uint16]any{clusters.AttrOnOff: true}})
	select {
	case <-p.Confirmed():
		t.Fatal("confirmed by unrelated report")
	default:
	}

	patch := l.HandleReport(effectReport(1))
	assert.Equal(t, effects.Patch{effects.KeyEffect: "rainbow"}, patch)

	got, ok := <-p.Confirmed()
	require.True(t, ok)
	assert.Equal(t, "rainbow", got[effects.KeyEffect])
	_, ok = <-p.Confirmed()
	assert.False(t, ok, "channel must be closed after confirmation")

	assert.Equal(t, SourceReport, (*changes)[len(*changes)-1].Source)
	assert.Empty(t, l.pending)
}

func TestConfirmedClosedOnCancel(t *testing.T) {
	l, _, _ := newTestLight(t, gettable)
	ctx, cancel := context.WithCancel(context.Background())

	p, err := l.Set(ctx, effects.Command{Key: effects.KeySpeedRainbow, Value: 10})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-p.Confirmed():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation not closed after cancel")
	}
}

func TestConfirmedSupersededAndStopped(t *testing.T) {
	l, _, _ := newTestLight(t, gettable)
	ctx := context.Background()

	first, err := l.Set(ctx, effects.Command{Key: effects.KeyEffect, Value: "strobe"})
	require.NoError(t, err)
	second, err := l.Set(ctx, effects.Command{Key: effects.KeyEffect, Value: "twinkle"})
	require.NoError(t, err)

	_, ok := <-first.Confirmed()
	assert.False(t, ok, "superseded command must close without a value")

	second.Stop()
	_, ok = <-second.Confirmed()
	assert.False(t, ok)
	assert.Empty(t, l.pending)
}

// echoTransport answers every write with an effect report carrying code,
// delivered inline or from another goroutine.
type echoTransport struct {
	recordingTransport
	light *Light
	code  uint8
	async bool
	wg    sync.WaitGroup
}

func (e *echoTransport) WriteAttributes(ctx context.Context, req transport.WriteAttributesRequest) error {
	if err := e.recordingTransport.WriteAttributes(ctx, req); err != nil {
		return err
	}
	if !e.async {
		e.light.HandleReport(effectReport(e.code))
		return nil
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.light.HandleReport(effectReport(e.code))
	}()
	return nil
}

func TestReportBeforeSetReturnsKeepsReportedState(t *testing.T) {
	for _, async := range []bool{false, true} {
		tr := &echoTransport{code: 0, async: async}
		tr.light = New(Config{Name: "strip", ShortAddr: 0x1A2B, Profile: gettable}, tr, testLogger())

		for i := 0; i < 200; i++ {
			p, err := tr.light.Set(context.Background(), effects.Command{Key: effects.KeyEffect, Value: "glow"})
			require.NoError(t, err)
			tr.wg.Wait()

			select {
			case got, ok := <-p.Confirmed():
				require.True(t, ok, "async=%v iteration %d", async, i)
				assert.Equal(t, "none", got[effects.KeyEffect])
			case <-time.After(2 * time.Second):
				t.Fatalf("async=%v iteration %d: no confirmation", async, i)
			}
			require.Equal(t, "none", tr.light.State()[effects.KeyEffect],
				"async=%v iteration %d: optimistic patch overwrote the report", async, i)
		}
	}
}

func TestHandleReportMerges(t *testing.T) {
	l, _, _ := newTestLight(t, gettable)

	l.HandleReport(effectReport(3))
	l.HandleReport(effects.Report{Cluster: clusters.IDLevelControl, Attrs: map[uint16]any{clusters.AttrCurrentLevel: uint8(40)}})
	l.HandleReport(effects.Report{Cluster: clusters.IDColorControl, Attrs: map[uint16]any{clusters.AttrCurrentX: uint16(0)}})
	l.HandleReport(effects.Report{Cluster: clusters.IDColorControl, Attrs: map[uint16]any{clusters.AttrCurrentY: uint16(65535)}})

	state := l.State()
	assert.Equal(t, "twinkle", state[effects.KeyEffect])
	assert.Equal(t, 40, state[effects.KeyBrightness])
	assert.Equal(t, map[string]any{"x": 0.0, "y": 1.0}, state[effects.KeyColor])

	// Unknown codes read as none; other vendors are ignored.
	l.HandleReport(effectReport(42))
	assert.Equal(t, "none", l.State()[effects.KeyEffect])
	patch := l.HandleReport(effects.Report{Cluster: effects.Cluster, Manufacturer: 0x5678, Attrs: map[uint16]any{effects.AttrEffect: uint8(1)}})
	assert.Empty(t, patch)
	assert.Equal(t, "none", l.State()[effects.KeyEffect])
}

func TestGet(t *testing.T) {
	l, tr, _ := newTestLight(t, gettable)
	ctx := context.Background()

	require.NoError(t, l.Get(ctx, effects.KeyEffect))
	require.Len(t, tr.reads, 1)
	assert.Equal(t, effects.ManufacturerCode, tr.reads[0].ManufacturerCode)
	assert.Equal(t, []uint16{effects.AttrEffect}, tr.reads[0].AttrIDs)

	assert.ErrorIs(t, l.Get(ctx, effects.KeySpeedStrobe), effects.ErrNotGettable)
	assert.ErrorIs(t, l.Get(ctx, "warp"), ErrUnknownKey)

	setOnly, tr2, _ := newTestLight(t, effects.Profile{Model: "WS2812_ESP32H2"})
	assert.ErrorIs(t, setOnly.Get(ctx, effects.KeyEffect), effects.ErrNotGettable)
	assert.Empty(t, tr2.reads)
}

func TestApply(t *testing.T) {
	l, tr, _ := newTestLight(t, gettable)

	results, err := l.Apply(context.Background(), map[string]any{
		effects.KeyEffect:      "strobe",
		effects.KeySpeedStrobe: "80",
		effects.KeyState:       "dim",
		effects.KeyBrightness:  100,
	})
	require.Error(t, err)
	assert.Len(t, results, 3)
	assert.NotContains(t, results, effects.KeyState)
	assert.Len(t, tr.writes, 2)
	assert.Len(t, tr.commands, 1)
	assert.Equal(t, 80, l.State()[effects.KeySpeedStrobe])
}

func TestRestore(t *testing.T) {
	l, tr, changes := newTestLight(t, gettable)
	l.Restore(map[string]any{effects.KeyEffect: "rainbow", effects.KeyBrightness: float64(12)})
	assert.Equal(t, "rainbow", l.State()[effects.KeyEffect])
	assert.Empty(t, tr.writes)
	require.Len(t, *changes, 1)
	assert.Equal(t, SourceRestore, (*changes)[0].Source)
}
