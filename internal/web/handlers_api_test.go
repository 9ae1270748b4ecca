package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zigbee-ledfx/internal/coordinator"
	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/store"
	"zigbee-ledfx/internal/virtual"
	"zigbee-ledfx/internal/zcl"
	"zigbee-ledfx/internal/zcl/clusters"
)

var stripIEEE = [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

type testEnv struct {
	srv   *Server
	coord *coordinator.Coordinator
	dev   *virtual.Device
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestServer(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	logger := testLogger()

	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	registry := zcl.NewRegistry(logger)
	if err := clusters.RegisterStandard(registry); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(effects.Overlay()); err != nil {
		t.Fatal(err)
	}

	tr := virtual.NewTransport(logger)
	t.Cleanup(func() { tr.Close() })
	dev := virtual.NewDevice(virtual.DeviceConfig{IEEE: stripIEEE, ShortAddr: 0x1A2B, Model: "WS2812_Light", LEDs: 10}, logger)
	tr.Attach(dev)

	coord := coordinator.New(tr, db, registry, coordinator.NewDeviceDB(), coordinator.NewEventBus(logger), coordinator.Config{IEEE: [8]byte{0xAA}}, logger)
	t.Cleanup(coord.Stop)
	if _, err := coord.Lights().Add(coordinator.LightConfig{Name: "desk", Model: "WS2812_Light", IEEE: stripIEEE, ShortAddr: 0x1A2B}); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(coord, logger, opts...)
	t.Cleanup(srv.Stop)
	return &testEnv{srv: srv, coord: coord, dev: dev}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := setupTestServer(t, WithAPIKey("secret"))

	if w := env.do(t, "GET", "/api/lights", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", w.Code)
	}
	if w := env.do(t, "GET", "/api/lights", "", "X-API-Key", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}
	if w := env.do(t, "GET", "/api/lights", "", "X-API-Key", "secret"); w.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", w.Code)
	}
	// Metrics are outside /api/.
	if w := env.do(t, "GET", "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics: status = %d, want 200", w.Code)
	}
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t, WithAllowedOrigins([]string{"http://panel.local"}))

	tests := []struct {
		name   string
		method string
		origin string
		want   int
	}{
		{"preflight allowed", http.MethodOptions, "http://panel.local", http.StatusNoContent},
		{"preflight denied", http.MethodOptions, "http://evil.example", http.StatusForbidden},
		{"post denied", http.MethodPost, "http://evil.example", http.StatusForbidden},
		{"get any origin", http.MethodGet, "http://evil.example", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/state"
			body := ""
			if tt.method == http.MethodPost {
				target, body = "/api/set", `{"effect":"rainbow"}`
			}
			w := env.do(t, tt.method, target, body, "Origin", tt.origin)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestListLights(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/api/lights", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	lights := decode[[]LightView](t, w)
	if len(lights) != 1 {
		t.Fatalf("lights = %d, want 1", len(lights))
	}
	l := lights[0]
	if l.Name != "desk" || l.IEEEAddress != "0x0102030405060708" || l.Model != "WS2812_Light" || !l.Profile.EffectGettable {
		t.Errorf("light = %+v", l)
	}
}

func TestLightParameter(t *testing.T) {
	env := setupTestServer(t)

	if w := env.do(t, "GET", "/api/state?light=nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown light: status = %d, want 404", w.Code)
	}
	if w := env.do(t, "GET", "/api/state?light=desk", ""); w.Code != http.StatusOK {
		t.Errorf("named light: status = %d, want 200", w.Code)
	}

	if _, err := env.coord.Lights().Add(coordinator.LightConfig{Name: "shelf", Model: "WS2812_ESP32H2", ShortAddr: 0x2000}); err != nil {
		t.Fatal(err)
	}
	if w := env.do(t, "GET", "/api/state", ""); w.Code != http.StatusBadRequest {
		t.Errorf("ambiguous light: status = %d, want 400", w.Code)
	}
}

func TestSetDrivesDevice(t *testing.T) {
	env := setupTestServer(t)
	if w := env.do(t, "POST", "/api/configure", ""); w.Code != http.StatusOK {
		t.Fatalf("configure: status = %d", w.Code)
	}

	w := env.do(t, "POST", "/api/set?wait=2s", `{"effect":"strobe","speed_strobe":300}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("out of range speed: status = %d, want 400", w.Code)
	}

	w = env.do(t, "POST", "/api/set?wait=2s", `{"effect":"strobe","speed_strobe":200}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	resp := decode[setResponse](t, w)
	if resp.Accepted["effect"]["effect"] != "strobe" {
		t.Errorf("accepted = %v", resp.Accepted)
	}
	if resp.Confirmed["effect"]["effect"] != "strobe" {
		t.Errorf("confirmed = %v", resp.Confirmed)
	}

	snap := env.dev.Snapshot()
	if snap.Effect != "strobe" || snap.Speeds[effects.KeySpeedStrobe] != 200 {
		t.Errorf("device = %+v", snap)
	}
}

func TestSetRejects(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   string
	}{
		{"bad json", "/api/set", `{`, "invalid request body"},
		{"empty", "/api/set", `{}`, "no commands"},
		{"unknown key", "/api/set", `{"sparkle":1}`, "unknown key"},
		{"unknown effect", "/api/set", `{"effect":"disco"}`, "must be one of"},
		{"bad wait", "/api/set?wait=soon", `{"effect":"none"}`, "invalid wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", w.Body, tt.want)
			}
		})
	}
	if snap := env.dev.Snapshot(); snap.Effect != "none" {
		t.Errorf("device effect = %q, want none", snap.Effect)
	}
}

func TestGetRequestsRefresh(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/get/effect", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	light, _ := env.coord.Light("desk")
	waitFor(t, func() bool { return light.State()["effect"] == "none" })

	if w := env.do(t, "POST", "/api/get/speed_rainbow", ""); w.Code != http.StatusBadRequest {
		t.Errorf("set-only key: status = %d, want 400", w.Code)
	}
	if w := env.do(t, "POST", "/api/get/sparkle", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown key: status = %d, want 400", w.Code)
	}
}

func TestConfigureAndSetup(t *testing.T) {
	env := setupTestServer(t)

	if w := env.do(t, "GET", "/api/setup", ""); w.Code != http.StatusNotFound {
		t.Errorf("before configure: status = %d, want 404", w.Code)
	}

	w := env.do(t, "POST", "/api/configure", "")
	if w.Code != http.StatusOK {
		t.Fatalf("configure: status = %d, body %s", w.Code, w.Body)
	}
	rec := decode[store.Setup](t, w)
	if len(rec.Clusters) != 3 || len(rec.Reporting) != 4 {
		t.Errorf("setup = %+v", rec)
	}

	w = env.do(t, "GET", "/api/setup", "")
	if w.Code != http.StatusOK {
		t.Fatalf("setup: status = %d", w.Code)
	}
	if got := decode[store.Setup](t, w); got.IEEEAddress != "0x0102030405060708" {
		t.Errorf("setup ieee = %q", got.IEEEAddress)
	}
}

func TestCapabilities(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/api/capabilities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	caps := decode[[]effects.Capability](t, w)
	c, ok := effects.Find(caps, effects.KeyEffect)
	if !ok || !c.CanGet() || len(c.Values) != 4 {
		t.Errorf("effect capability = %+v", c)
	}
}

func TestInfoEndpoints(t *testing.T) {
	env := setupTestServer(t, WithVersion("1.2.3"))

	if got := decode[map[string]string](t, env.do(t, "GET", "/api/version", "")); got["version"] != "1.2.3" {
		t.Errorf("version = %v", got)
	}
	info := decode[map[string]any](t, env.do(t, "GET", "/api/info", ""))
	if info["lights"] != float64(1) {
		t.Errorf("info = %v", info)
	}
	clusters := decode[[]map[string]any](t, env.do(t, "GET", "/api/clusters", ""))
	if len(clusters) == 0 {
		t.Error("no clusters")
	}
}

func TestMetricsExposed(t *testing.T) {
	env := setupTestServer(t)

	if w := env.do(t, "POST", "/api/set", `{"effect":"twinkle"}`); w.Code != http.StatusOK {
		t.Fatalf("set: status = %d", w.Code)
	}
	w := env.do(t, "GET", "/metrics", "")
	if !strings.Contains(w.Body.String(), "ledfx_attribute_writes_total") {
		t.Error("metrics missing ledfx_attribute_writes_total")
	}
}
