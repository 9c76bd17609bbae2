package model

// Core domain types shared across packages.

// GeoPoint is a WGS84 coordinate, latitude/longitude in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Device is the persisted state of one tracked vehicle. Devices are created
// on first telemetry report and mutated in place afterwards; this service
// never deletes them.
type Device struct {
	ID              string   `json:"gps_device_id"`
	Online          bool     `json:"online"`
	LastLocation    GeoPoint `json:"last_location"`
	AssociatedRoute string   `json:"associated_route,omitempty"`
	DistanceToRoute float64  `json:"distance_to_route"`
	Colorum         bool     `json:"is_colorum"`
}

// Route associates an authoritative route id with an optional stored GPX
// file. The file reference is overwritten in place, never versioned.
type Route struct {
	ID          string `json:"route_id"`
	GPXFilename string `json:"gpx_filename,omitempty"`
}

// DeviceReport is one record of the northbound device batch payload. The
// location comes over the wire as a [lat, lon] pair.
type DeviceReport struct {
	DeviceID        string     `json:"gps_device_id"`
	LastLocation    [2]float64 `json:"last_location"`
	AssociatedRoute string     `json:"associated_route"`
}

// Location returns the report position as a GeoPoint.
func (r DeviceReport) Location() GeoPoint {
	return GeoPoint{Lat: r.LastLocation[0], Lon: r.LastLocation[1]}
}

// RouteRef is one record of the northbound route list payload. The list is
// always the full authoritative set, not a delta.
type RouteRef struct {
	RouteID string `json:"route_id"`
}
