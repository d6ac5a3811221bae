package bridge

import (
	"strings"

	"github.com/vocbridge/voc2mqtt/core/vehicle"
)

// discoveryConfig is one Home Assistant MQTT-discovery entity descriptor.
// https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
type discoveryConfig struct {
	Name          string           `json:"name"`
	UniqueID      string           `json:"unique_id"`
	StateTopic    string           `json:"state_topic,omitempty"`
	CommandTopic  string           `json:"command_topic,omitempty"`
	ValueTemplate string           `json:"value_template,omitempty"`
	DeviceClass   string           `json:"device_class,omitempty"`
	Unit          string           `json:"unit_of_measurement,omitempty"`
	PayloadOn     string           `json:"payload_on,omitempty"`
	PayloadOff    string           `json:"payload_off,omitempty"`
	PayloadLock   string           `json:"payload_lock,omitempty"`
	PayloadUnlock string           `json:"payload_unlock,omitempty"`
	PayloadPress  string           `json:"payload_press,omitempty"`
	Device        *discoveryDevice `json:"device,omitempty"`
}

// discoveryDevice groups all of a vehicle's entities under one device.
type discoveryDevice struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
}

type discoveryEntity struct {
	component string
	objectID  string
	config    discoveryConfig
}

func (b *Bridge) device(r *vehicle.Refresher) *discoveryDevice {
	model := "Vehicle"
	if v, ok := r.Attributes()["vehicleType"].(string); ok && v != "" {
		model = v
	}
	name := model
	if v, ok := r.Attributes()["registrationNumber"].(string); ok && v != "" {
		name = name + " " + v
	}
	return &discoveryDevice{
		Manufacturer: "Volvo",
		Model:        model,
		Identifiers:  []string{r.ID()},
		Name:         name,
	}
}

// discoveryEntities builds the entity descriptors for one vehicle. The set
// depends on its capabilities.
func (b *Bridge) discoveryEntities(r *vehicle.Refresher) []discoveryEntity {
	id := r.ID()
	base := b.cfg.Namespace + "/" + id
	statusTopic := base + "/status"
	device := b.device(r)
	caps := r.Capabilities()

	entity := func(component, suffix string, cfg discoveryConfig) discoveryEntity {
		cfg.UniqueID = id + "_" + suffix
		cfg.Device = device
		return discoveryEntity{
			component: component,
			objectID:  id + "_" + suffix,
			config:    cfg,
		}
	}

	entities := []discoveryEntity{
		entity("sensor", "odometer", discoveryConfig{
			Name:          "Odometer",
			StateTopic:    statusTopic,
			ValueTemplate: "{{ value_json.odometer }}",
			DeviceClass:   "distance",
			Unit:          "m",
		}),
		entity("sensor", "fuel_amount", discoveryConfig{
			Name:          "Fuel amount",
			StateTopic:    statusTopic,
			ValueTemplate: "{{ value_json.fuelAmount }}",
			Unit:          "L",
		}),
		entity("binary_sensor", "engine_running", discoveryConfig{
			Name:          "Engine running",
			StateTopic:    statusTopic,
			ValueTemplate: "{{ value_json.engineRunning }}",
			DeviceClass:   "running",
			PayloadOn:     "True",
			PayloadOff:    "False",
		}),
		entity("lock", "door_lock", discoveryConfig{
			Name:          "Door lock",
			StateTopic:    statusTopic,
			CommandTopic:  base + "/lock",
			ValueTemplate: "{% if value_json.carLocked %}LOCKED{% else %}UNLOCKED{% endif %}",
			PayloadLock:   "LOCK",
			PayloadUnlock: "UNLOCK",
		}),
	}

	if caps.RemoteHeater || caps.Preclimatization {
		entities = append(entities, entity("switch", "heater", discoveryConfig{
			Name:          "Heater",
			StateTopic:    statusTopic,
			CommandTopic:  base + "/heater",
			ValueTemplate: "{% if value_json.heater.status != 'off' %}ON{% else %}OFF{% endif %}",
			PayloadOn:     "ON",
			PayloadOff:    "OFF",
		}))
	}
	if caps.EngineStart {
		entities = append(entities, entity("switch", "engine", discoveryConfig{
			Name:          "Engine",
			StateTopic:    statusTopic,
			CommandTopic:  base + "/engine",
			ValueTemplate: "{% if value_json.ERS.status != 'off' %}ON{% else %}OFF{% endif %}",
			PayloadOn:     "ON",
			PayloadOff:    "OFF",
		}))
	}
	if caps.Charging {
		entities = append(entities, entity("sensor", "battery", discoveryConfig{
			Name:          "Battery level",
			StateTopic:    statusTopic,
			ValueTemplate: "{{ value_json.hvBattery.hvBatteryLevel }}",
			DeviceClass:   "battery",
			Unit:          "%",
		}))
		entities = append(entities, entity("button", "start_charging", discoveryConfig{
			Name:         "Start charging",
			CommandTopic: base + "/startCharging",
			PayloadPress: "",
		}))
		for locID, loc := range r.ChargeLocations() {
			entities = append(entities, entity("sensor", "distance_"+locID, discoveryConfig{
				Name:          "Distance to " + loc.Name,
				StateTopic:    base + "/distances",
				ValueTemplate: distanceTemplate(locID),
				DeviceClass:   "distance",
				Unit:          "km",
			}))
		}
	}
	if caps.HonkAndBlink {
		entities = append(entities, entity("button", "honk_and_blink", discoveryConfig{
			Name:         "Honk and blink",
			CommandTopic: base + "/honkAndBlink",
			PayloadPress: "",
		}))
	}
	return entities
}

func distanceTemplate(locationID string) string {
	return strings.ReplaceAll(
		"{{ (value_json | selectattr('chargeLocation', 'eq', 'LOC') | first).distanceKm | round(1) }}",
		"LOC", locationID)
}
