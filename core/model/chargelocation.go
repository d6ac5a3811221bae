package model

import (
	"fmt"
	"strings"
)

// GeoPosition is the geocoordinate and postal address of a charge location.
type GeoPosition struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	StreetAddress string  `json:"streetAddress,omitempty"`
	PostalCode    string  `json:"postalCode,omitempty"`
	City          string  `json:"city,omitempty"`
}

// ChargeLocation is a saved, cloud-known charging spot associated with the
// account. Raw keeps the untouched cloud payload for publication.
type ChargeLocation struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position GeoPosition    `json:"position"`
	Raw      map[string]any `json:"-"`
}

// LocationID extracts the stable location identifier from the location's
// resource URL: its last path segment.
func LocationID(resource string) string {
	resource = strings.TrimRight(resource, "/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

// LocationDisplayName derives a human-readable name for a charge location.
// Locations without an explicit name are named after their address.
func LocationDisplayName(name string, pos GeoPosition) string {
	if name == "" {
		return fmt.Sprintf("%s, %s %s", pos.StreetAddress, pos.PostalCode, pos.City)
	}
	return fmt.Sprintf("%s, %s", name, pos.StreetAddress)
}
