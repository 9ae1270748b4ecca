// Package metrics holds the Prometheus collectors of the light adapter.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"zigbee-ledfx/internal/effects"
)

var (
	attributeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledfx_attribute_writes_total",
		Help: "Vendor attribute writes sent to lights",
	}, []string{"light", "attr"})

	commandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledfx_commands_sent_total",
		Help: "Cluster commands sent to lights",
	}, []string{"light", "key"})

	reportsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledfx_reports_received_total",
		Help: "Attribute reports and read responses received",
	}, []string{"light", "attr"})

	effectFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledfx_effect_fallbacks_total",
		Help: "Commands whose value could not be interpreted and were sent as a default",
	}, []string{"light", "key"})

	speedClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledfx_speed_clamps_total",
		Help: "Speed commands saturated into the device range",
	}, []string{"light", "key"})

	decodeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledfx_decode_fallbacks_total",
		Help: "Reported effect codes that did not map to a known effect",
	}, []string{"light"})

	activeEffect = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledfx_active_effect",
		Help: "Code of the effect last written or reported",
	}, []string{"light"})
)

// ObserveEncoded records one vendor write.
func ObserveEncoded(light string, enc effects.Encoded) {
	attributeWrites.WithLabelValues(light, fmt.Sprintf("0x%04X", enc.Write.Attr)).Inc()
	if enc.Fallback {
		effectFallbacks.WithLabelValues(light, enc.Key).Inc()
	}
	if enc.Clamped {
		speedClamps.WithLabelValues(light, enc.Key).Inc()
	}
	if enc.Key == effects.KeyEffect {
		activeEffect.WithLabelValues(light).Set(float64(enc.Kind))
	}
}

// ObserveCommand records one cluster command.
func ObserveCommand(light, key string) {
	commandsSent.WithLabelValues(light, key).Inc()
}

// ObserveReport records the attributes of one received report. An effect
// attribute carrying an unknown code counts as a decode fallback.
func ObserveReport(light string, r effects.Report) {
	for id, raw := range r.Attrs {
		reportsReceived.WithLabelValues(light, fmt.Sprintf("0x%04X", id)).Inc()
		if r.Cluster != effects.Cluster || id != effects.AttrEffect || r.Manufacturer != effects.ManufacturerCode {
			continue
		}
		kind, ok := effects.EffectFromRaw(raw)
		if !ok {
			decodeFallbacks.WithLabelValues(light).Inc()
		}
		activeEffect.WithLabelValues(light).Set(float64(kind))
	}
}
