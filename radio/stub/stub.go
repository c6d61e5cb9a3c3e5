// Package stub provides an in-memory radio.Modem for tests and the
// host-side simulator. Timing and outcomes are scripted through the public
// fields; all delays are real (short) timers so loops behave as on
// hardware.
package stub

import (
	"sync"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/errcode"
	"github.com/glenmo/lorawan-water-tank-monitor/radio"
)

type Modem struct {
	// Script knobs; set before use.
	JoinDelay time.Duration // join attempt duration
	JoinFails int           // number of failed attempts before accept
	JoinRetry time.Duration // modem-internal retry after a failed attempt
	TxDelay   time.Duration // transmit airtime
	Ack       bool          // acknowledge uplinks
	Downlinks [][]byte      // queued downlinks, one consumed per uplink
	DLPort    uint8

	mu        sync.Mutex
	joined    bool
	busy      bool
	joinTries int
	joinCalls int
	params    radio.Params
	sent      [][]byte
	ports     []uint8
	events    chan radio.Event
}

func New() *Modem {
	return &Modem{
		JoinDelay: time.Millisecond,
		TxDelay:   time.Millisecond,
		DLPort:    1,
		events:    make(chan radio.Event, 16),
	}
}

var _ radio.Modem = (*Modem)(nil)

func (m *Modem) Events() <-chan radio.Event { return m.events }

func (m *Modem) SetParams(p radio.Params) error {
	m.mu.Lock()
	m.params = p
	m.mu.Unlock()
	return nil
}

// Params returns the last parameters pushed via SetParams.
func (m *Modem) Params() radio.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// Sent returns the payloads transmitted so far.
func (m *Modem) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentPorts returns the ports of transmitted payloads.
func (m *Modem) SentPorts() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint8(nil), m.ports...)
}

// JoinCalls returns how many times Join was invoked by the consumer,
// excluding modem-internal retries.
func (m *Modem) JoinCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinCalls
}

func (m *Modem) Join() error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return errcode.Busy
	}
	m.joinCalls++
	m.mu.Unlock()

	m.emit(radio.Event{Kind: radio.EventJoinStarted})
	m.attemptJoin()
	return nil
}

// attemptJoin runs one join attempt; failed attempts self-reschedule when
// JoinRetry is set, mirroring a modem that owns its retry schedule.
func (m *Modem) attemptJoin() {
	m.mu.Lock()
	m.joinTries++
	try := m.joinTries
	delay := m.JoinDelay
	fails := m.JoinFails
	retry := m.JoinRetry
	m.mu.Unlock()

	time.AfterFunc(delay, func() {
		m.mu.Lock()
		ok := try > fails
		m.joined = ok
		m.mu.Unlock()
		if ok {
			m.emit(radio.Event{Kind: radio.EventJoinAccepted})
			return
		}
		m.emit(radio.Event{Kind: radio.EventJoinFailed, Info: "rx timeout"})
		if retry > 0 {
			time.AfterFunc(retry, m.attemptJoin)
		}
	})
}

func (m *Modem) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

func (m *Modem) Transmit(port uint8, payload []byte) error {
	m.mu.Lock()
	if !m.joined {
		m.mu.Unlock()
		return errcode.NotJoined
	}
	if m.busy {
		m.mu.Unlock()
		return errcode.Busy
	}
	m.busy = true
	m.sent = append(m.sent, append([]byte(nil), payload...))
	m.ports = append(m.ports, port)
	var dl []byte
	if len(m.Downlinks) > 0 {
		dl = m.Downlinks[0]
		m.Downlinks = m.Downlinks[1:]
	}
	ack := m.Ack
	dlPort := m.DLPort
	delay := m.TxDelay
	m.mu.Unlock()

	m.emit(radio.Event{Kind: radio.EventTxStarted})
	time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
		m.emit(radio.Event{Kind: radio.EventTxDone, Acked: ack, Downlink: dl, DownlinkPort: dlPort})
	})
	return nil
}

// DropLink marks the session lost and emits link-lost, as a modem would
// after repeated link-check failures.
func (m *Modem) DropLink() {
	m.mu.Lock()
	m.joined = false
	m.mu.Unlock()
	m.emit(radio.Event{Kind: radio.EventLinkLost})
}

// Emit injects an arbitrary event, for exercising unknown-kind handling.
func (m *Modem) Emit(ev radio.Event) { m.emit(ev) }

func (m *Modem) emit(ev radio.Event) {
	select {
	case m.events <- ev:
	default:
	}
}
