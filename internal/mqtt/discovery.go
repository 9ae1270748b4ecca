//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"zigbee-ledfx/internal/effects"
)

const discoveryPrefix = "homeassistant"

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/ledfx_0102030405060708/light/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	CommandTemplate     string   `json:"command_template,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Brightness          bool     `json:"brightness,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Effect              bool     `json:"effect,omitempty"`
	EffectList          []string `json:"effect_list,omitempty"`
	Options             []string `json:"options,omitempty"`
	Min                 *int     `json:"min,omitempty"`
	Max                 *int     `json:"max,omitempty"`
	Mode                string   `json:"mode,omitempty"`
	Icon                string   `json:"icon,omitempty"`
	Device              haDevice `json:"device"`
}

// lightInfo is what discovery needs to know about one light.
type lightInfo struct {
	Name         string
	IEEE         string
	Manufacturer string
	Model        string
	FriendlyName string
	Profile      effects.Profile
}

func (li lightInfo) displayName() string {
	if li.FriendlyName != "" {
		return li.FriendlyName
	}
	if li.Name != "" {
		return li.Name
	}
	return li.IEEE
}

func (li lightInfo) nodeID() string {
	return "ledfx_" + li.IEEE
}

// topicName returns the topic segment for a light name, keeping only
// characters that are safe in MQTT topics.
func topicName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// buildDiscovery generates HA discovery messages for a light: the light
// itself with its effect list, an effect select and one number per speed.
func buildDiscovery(li lightInfo, prefix string) []discoveryMsg {
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + topicName(li.Name)
	cmdTopic := stateTopic + "/set"
	nodeID := li.nodeID()
	display := li.displayName()
	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: li.Manufacturer,
		Model:        li.Model,
		Name:         display,
	}

	msgs := []discoveryMsg{{
		Topic: fmt.Sprintf("%s/light/%s/light/config", discoveryPrefix, nodeID),
		Payload: mustJSON(haDiscovery{
			Name:                display,
			UniqueID:            nodeID + "_light",
			StateTopic:          stateTopic,
			CommandTopic:        cmdTopic,
			AvailabilityTopic:   avail,
			Schema:              "json",
			Brightness:          true,
			BrightnessScale:     254,
			SupportedColorModes: []string{"xy"},
			Effect:              true,
			EffectList:          effects.Names(),
			Device:              haDev,
		}),
	}, {
		Topic: fmt.Sprintf("%s/select/%s/%s/config", discoveryPrefix, nodeID, effects.KeyEffect),
		Payload: mustJSON(haDiscovery{
			Name:              display + " Effect",
			UniqueID:          nodeID + "_" + effects.KeyEffect,
			StateTopic:        stateTopic,
			CommandTopic:      cmdTopic,
			CommandTemplate:   `{"effect": "{{ value }}"}`,
			AvailabilityTopic: avail,
			ValueTemplate:     "{{ value_json.effect }}",
			Options:           effects.Names(),
			Icon:              "mdi:led-strip-variant",
			Device:            haDev,
		}),
	}}

	for _, c := range effects.Declare(li.Profile) {
		if c.Type != effects.TypeNumeric {
			continue
		}
		msgs = append(msgs, discoveryMsg{
			Topic: fmt.Sprintf("%s/number/%s/%s/config", discoveryPrefix, nodeID, c.Name),
			Payload: mustJSON(haDiscovery{
				Name:              display + " " + speedLabel(c.Name),
				UniqueID:          nodeID + "_" + c.Name,
				StateTopic:        stateTopic,
				CommandTopic:      cmdTopic,
				CommandTemplate:   fmt.Sprintf(`{"%s": {{ value }}}`, c.Name),
				AvailabilityTopic: avail,
				ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", c.Name),
				Min:               c.ValueMin,
				Max:               c.ValueMax,
				Mode:              "slider",
				Icon:              "mdi:speedometer",
				Device:            haDev,
			}),
		})
	}
	return msgs
}

// speedLabel turns "speed_rainbow" into "Rainbow Speed".
func speedLabel(key string) string {
	kind := strings.TrimPrefix(key, "speed_")
	if kind == "" {
		return key
	}
	return strings.ToUpper(kind[:1]) + kind[1:] + " Speed"
}

// buildRemoveDiscovery generates empty retained messages to remove a light from HA.
func buildRemoveDiscovery(li lightInfo) []discoveryMsg {
	nodeID := li.nodeID()

	components := []struct{ comp, obj string }{
		{"light", "light"},
		{"select", effects.KeyEffect},
		{"number", effects.KeySpeedRainbow},
		{"number", effects.KeySpeedStrobe},
		{"number", effects.KeySpeedTwinkle},
	}

	var msgs []discoveryMsg
	for _, c := range components {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, c.comp, nodeID, c.obj),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
