// Package model defines the cached state facets of a vehicle as exposed by
// the telematics cloud: attributes, status, position, charge locations and
// the distances derived from them.
package model

// Attributes is the raw attribute document returned by the cloud for one
// vehicle. It changes rarely and carries the capability flags.
type Attributes map[string]any

// Status is the raw telemetry snapshot returned by the cloud for one vehicle
// (doors, windows, tyres, battery, odometer, ...). It is published as-is.
type Status map[string]any

// Capabilities are the typed capability flags of a vehicle, computed
// wholesale from a freshly fetched attribute document. Until attributes have
// been fetched at least once every capability is false.
type Capabilities struct {
	Charging         bool
	Position         bool
	RemoteHeater     bool
	Preclimatization bool
	HonkAndBlink     bool
	EngineStart      bool
}

// CapabilitiesFrom derives the capability flags from an attribute document.
// There is no merging with previous values: a flag absent from the document
// is false.
func CapabilitiesFrom(attrs Attributes) Capabilities {
	return Capabilities{
		Charging:         boolAttr(attrs, "highVoltageBatterySupported"),
		Position:         boolAttr(attrs, "carLocatorSupported"),
		RemoteHeater:     boolAttr(attrs, "remoteHeaterSupported"),
		Preclimatization: boolAttr(attrs, "preclimatizationSupported"),
		HonkAndBlink:     boolAttr(attrs, "honkAndBlinkSupported"),
		EngineStart:      boolAttr(attrs, "engineStartSupported"),
	}
}

func boolAttr(attrs Attributes, key string) bool {
	v, ok := attrs[key].(bool)
	return ok && v
}

// Position is the latest known geocoordinate and heading of a vehicle.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Heading   float64 `json:"heading,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Valid reports whether the position carries a usable coordinate. The cloud
// reports 0/0 when no fix is known.
func (p Position) Valid() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Distance is the derived great-circle distance between the vehicle and one
// of its charge locations.
type Distance struct {
	ChargeLocationID string  `json:"chargeLocation"`
	DistanceKm       float64 `json:"distanceKm"`
}
