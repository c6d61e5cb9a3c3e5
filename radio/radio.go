// Package radio defines the narrow interface the node consumes from the
// LoRaWAN modem: commands in, a stream of lifecycle events out. The modem
// owns the MAC and PHY entirely (duty cycle, retry schedule, RX windows);
// the node only reacts to its events.
package radio

// Params are the behavioral parameters pushed to the modem at startup.
// They are fixed for the process lifetime.
type Params struct {
	DataRate       int // region data-rate index
	TxPower        int // dBm
	ClockTolerance int // acceptable RX-window clock drift, percent
}

// EventKind discriminates modem lifecycle events.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventJoinStarted
	EventJoinAccepted
	EventJoinFailed
	EventTxStarted
	EventTxDone
	EventLinkLost
)

func (k EventKind) String() string {
	switch k {
	case EventJoinStarted:
		return "join_started"
	case EventJoinAccepted:
		return "join_accepted"
	case EventJoinFailed:
		return "join_failed"
	case EventTxStarted:
		return "tx_started"
	case EventTxDone:
		return "tx_done"
	case EventLinkLost:
		return "link_lost"
	default:
		return "unknown"
	}
}

// Event is one modem lifecycle notification. Acked/Downlink/DownlinkPort
// are meaningful only for EventTxDone; Info carries freeform detail for
// telemetry (raw URC line, failure reason).
type Event struct {
	Kind         EventKind
	Acked        bool
	Downlink     []byte
	DownlinkPort uint8
	Info         string
}

// Modem is the capability interface consumed by the node service.
//
// Join and Transmit are asynchronous: they start the operation and report
// refusal synchronously; the outcome arrives as an Event. Busy reports
// whether a transmission is still pending inside the modem. Events must be
// drained by exactly one consumer; drivers drop events when the channel
// is full rather than block.
type Modem interface {
	Join() error
	Transmit(port uint8, payload []byte) error
	Busy() bool
	SetParams(Params) error
	Events() <-chan Event
}
