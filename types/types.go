// Package types holds the DTOs carried on the bus between the node
// service, the telemetry sink, and host tooling.
package types

// ------------------------
// Node state (retained on node/state)
// ------------------------

type NodeState struct {
	Level  string `json:"level"`  // scheduler state, e.g. "job_armed"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// Link is the link state reported for the radio capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// RadioStatus is retained on radio/status.
type RadioStatus struct {
	Link  Link   `json:"link"`
	TSms  int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// Uplink lifecycle (non-retained events)
// ------------------------

// UplinkAttempt is published on node/uplink when a frame is handed to the
// radio. Frame carries the exact bytes submitted.
type UplinkAttempt struct {
	Percent float64 `json:"percent"`
	Frame   []byte  `json:"frame"`
	FPort   uint8   `json:"fport"`
	TSms    int64   `json:"ts_ms"`
}

// UplinkResult is published on node/uplink/result when the radio reports
// transmission completion.
type UplinkResult struct {
	Acked bool  `json:"acked"`
	TSms  int64 `json:"ts_ms"`
}

// Downlink is published on node/downlink. Data is surfaced verbatim; the
// node assigns it no semantics.
type Downlink struct {
	FPort uint8  `json:"fport"`
	Data  []byte `json:"data"`
	TSms  int64  `json:"ts_ms"`
}

// DropNotice is published on node/drop when a send attempt is shed.
type DropNotice struct {
	Reason string `json:"reason"` // "busy", "not_joined"
	TSms   int64  `json:"ts_ms"`
}

// RadioEventNote is published on node/radio for lifecycle events that carry
// no dedicated payload (join started/failed, unknown kinds).
type RadioEventNote struct {
	Kind string `json:"kind"`
	Info string `json:"info,omitempty"`
	TSms int64  `json:"ts_ms"`
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
