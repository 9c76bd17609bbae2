package northbound

import "encoding/json"

// Event channel and stream control signal names used on the northbound
// stream. Payload shapes match the local ingestion endpoints.
const (
	EventDeviceBatch = "list_of_gps_devices"
	EventRouteList   = "list_of_routes"

	SignalStartStream = "start_device_location_stream"
	SignalStopStream  = "stop_device_location_stream"
)

// Frame is one message on the northbound stream: a named event with an
// optional JSON payload. Control signals are frames with no payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler consumes the payload of one named event. Handlers run on the
// session's single reader goroutine, so they are never invoked
// concurrently with each other.
type Handler func(data json.RawMessage)
