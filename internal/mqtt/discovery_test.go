//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"testing"

	"zigbee-ledfx/internal/effects"
)

func testLight() lightInfo {
	return lightInfo{
		Name:         "Living Room",
		IEEE:         "00158D00012A3B4C",
		Manufacturer: "ESP32-Zigbee",
		Model:        "WS2812_Light",
		Profile:      effects.Profile{Model: "WS2812_Light", EffectGettable: true, ColorReporting: true},
	}
}

func decode(t *testing.T, msgs []discoveryMsg, topic string) haDiscovery {
	t.Helper()
	for _, m := range msgs {
		if m.Topic == topic {
			var payload haDiscovery
			if err := json.Unmarshal(m.Payload, &payload); err != nil {
				t.Fatalf("unmarshal %s: %v", topic, err)
			}
			return payload
		}
	}
	t.Fatalf("discovery %s not found", topic)
	return haDiscovery{}
}

func TestDiscoveryLight(t *testing.T) {
	msgs := buildDiscovery(testLight(), "ledfx")
	payload := decode(t, msgs, "homeassistant/light/ledfx_00158D00012A3B4C/light/config")

	if payload.Schema != "json" {
		t.Errorf("schema = %q", payload.Schema)
	}
	if payload.StateTopic != "ledfx/living_room" {
		t.Errorf("state_topic = %q", payload.StateTopic)
	}
	if payload.CommandTopic != "ledfx/living_room/set" {
		t.Errorf("command_topic = %q", payload.CommandTopic)
	}
	if payload.AvailabilityTopic != "ledfx/bridge/state" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}
	if !payload.Effect || len(payload.EffectList) != 4 || payload.EffectList[0] != "none" {
		t.Errorf("effect list = %v", payload.EffectList)
	}
	if payload.Device.Manufacturer != "ESP32-Zigbee" || payload.Name != "Living Room" {
		t.Errorf("device = %+v, name = %q", payload.Device, payload.Name)
	}
}

func TestDiscoveryEffectSelectAndSpeeds(t *testing.T) {
	msgs := buildDiscovery(testLight(), "ledfx")
	if len(msgs) != 5 {
		t.Fatalf("got %d discovery messages, want 5", len(msgs))
	}

	sel := decode(t, msgs, "homeassistant/select/ledfx_00158D00012A3B4C/effect/config")
	if sel.CommandTemplate != `{"effect": "{{ value }}"}` {
		t.Errorf("command_template = %q", sel.CommandTemplate)
	}
	if len(sel.Options) != 4 {
		t.Errorf("options = %v", sel.Options)
	}

	num := decode(t, msgs, "homeassistant/number/ledfx_00158D00012A3B4C/speed_strobe/config")
	if num.Min == nil || *num.Min != 1 || num.Max == nil || *num.Max != 255 {
		t.Errorf("range = %v..%v", num.Min, num.Max)
	}
	if num.Name != "Living Room Strobe Speed" {
		t.Errorf("name = %q", num.Name)
	}
	if num.ValueTemplate != "{{ value_json.speed_strobe }}" {
		t.Errorf("value_template = %q", num.ValueTemplate)
	}
}

func TestTopicName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Kitchen Light", "kitchen_light"},
		{"strip-2", "strip-2"},
		{"Bar/Shelf", "bar_shelf"},
	}
	for _, tt := range tests {
		if got := topicName(tt.in); got != tt.want {
			t.Errorf("topicName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayNameFallback(t *testing.T) {
	li := lightInfo{IEEE: "AABB"}
	if li.displayName() != "AABB" {
		t.Errorf("displayName = %q", li.displayName())
	}
	li.Name = "strip"
	if li.displayName() != "strip" {
		t.Errorf("displayName = %q", li.displayName())
	}
	li.FriendlyName = "Desk"
	if li.displayName() != "Desk" {
		t.Errorf("displayName = %q", li.displayName())
	}
}

func TestRemoveDiscovery(t *testing.T) {
	msgs := buildRemoveDiscovery(testLight())
	if len(msgs) != 5 {
		t.Fatalf("got %d removal messages", len(msgs))
	}
	for _, m := range msgs {
		if m.Payload != nil {
			t.Errorf("removal message should have nil payload, got %q for %s", m.Payload, m.Topic)
		}
	}
}
