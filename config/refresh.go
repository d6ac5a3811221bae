package config

import (
	"fmt"
	"time"

	"github.com/vocbridge/voc2mqtt/core/fleet"
)

// RefreshConfig defines the periodic refresh schedule in minutes.
type RefreshConfig struct {
	// CarStatusMinutes forces a status refresh from the vehicle itself.
	CarStatusMinutes int `json:"car_status_minutes"`
	// CloudStatusMinutes re-reads the cloud's cached status snapshot.
	CloudStatusMinutes int `json:"cloud_status_minutes"`
	// ChargeLocationsMinutes re-reads the saved charging spots.
	ChargeLocationsMinutes int `json:"charge_locations_minutes"`
	// PositionMinutes re-reads the vehicle position.
	PositionMinutes int `json:"position_minutes"`
	// FleetMinutes re-lists the vehicles on the account.
	FleetMinutes int `json:"fleet_minutes"`
}

// SetDefaults applies sane defaults: costly car-side refreshes are rare,
// cloud reads frequent.
func (c *RefreshConfig) SetDefaults() {
	if c.CarStatusMinutes == 0 {
		c.CarStatusMinutes = 90
	}
	if c.CloudStatusMinutes == 0 {
		c.CloudStatusMinutes = 10
	}
	if c.ChargeLocationsMinutes == 0 {
		c.ChargeLocationsMinutes = 60
	}
	if c.PositionMinutes == 0 {
		c.PositionMinutes = 15
	}
	if c.FleetMinutes == 0 {
		c.FleetMinutes = 24 * 60
	}
}

// Validate checks the intervals.
func (c RefreshConfig) Validate() error {
	for name, v := range map[string]int{
		"car_status_minutes":       c.CarStatusMinutes,
		"cloud_status_minutes":     c.CloudStatusMinutes,
		"charge_locations_minutes": c.ChargeLocationsMinutes,
		"position_minutes":         c.PositionMinutes,
		"fleet_minutes":            c.FleetMinutes,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// FleetConfig converts the schedule into coordinator intervals.
func (c RefreshConfig) FleetConfig() fleet.Config {
	return fleet.Config{
		CarStatus:       time.Duration(c.CarStatusMinutes) * time.Minute,
		CloudStatus:     time.Duration(c.CloudStatusMinutes) * time.Minute,
		ChargeLocations: time.Duration(c.ChargeLocationsMinutes) * time.Minute,
		Position:        time.Duration(c.PositionMinutes) * time.Minute,
		Fleet:           time.Duration(c.FleetMinutes) * time.Minute,
	}
}

// HAConfig defines the Home Assistant integration settings.
type HAConfig struct {
	// DiscoveryEnabled toggles MQTT discovery publication.
	DiscoveryEnabled bool `json:"discovery_enabled"`
	// DiscoveryPrefix is Home Assistant's discovery topic root.
	DiscoveryPrefix string `json:"discovery_prefix"`
	// StatusTopic signals a Home Assistant restart.
	StatusTopic string `json:"status_topic"`
}

// SetDefaults applies Home Assistant's conventional topics.
func (c *HAConfig) SetDefaults() {
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.StatusTopic == "" {
		c.StatusTopic = "homeassistant/status"
	}
}

// LoggingConfig defines log output settings.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %s", c.Level)
	}
}
