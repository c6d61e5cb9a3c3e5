// Package atmodem drives a UART-attached LoRaWAN AT modem (RAK3172 /
// LoRa-E5 class) as a radio.Modem. The modem firmware owns association
// retries, duty-cycle limits, and RX windows; this driver issues commands
// and translates unsolicited "+EVT:" lines into typed lifecycle events.
package atmodem

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/errcode"
	"github.com/glenmo/lorawan-water-tank-monitor/radio"
)

// Port is the byte transport to the modem. Read may return (0, nil) when no
// data arrived within the transport's poll window; it must not block
// indefinitely. The host platform backs this with a serial port, the MCU
// platform with a UART.
type Port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
}

// Config provisions and times the driver. The EUI/key fields are hex
// strings pushed to the modem when non-empty; leave them empty for a
// pre-provisioned modem.
type Config struct {
	DevEUI  string
	JoinEUI string
	AppKey  string

	CmdTimeout time.Duration // per-command response timeout
	TxTimeout  time.Duration // accepted send to completion URC
}

const (
	defaultCmdTimeout = 2 * time.Second
	defaultTxTimeout  = 30 * time.Second
	maxLine           = 256
)

type Modem struct {
	port Port
	cfg  Config

	events chan radio.Event
	respQ  chan string

	cmdMu sync.Mutex // serializes command/response exchanges

	mu        sync.Mutex
	busy      bool
	pendingDL []byte
	pendingPt uint8
	txTimer   *time.Timer
	txSeq     uint64 // invalidates a stale completion timer

	closed chan struct{}
}

var _ radio.Modem = (*Modem)(nil)

// Open wraps a transport and starts the line reader.
func Open(port Port, cfg Config) *Modem {
	if cfg.CmdTimeout <= 0 {
		cfg.CmdTimeout = defaultCmdTimeout
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}
	m := &Modem{
		port:   port,
		cfg:    cfg,
		events: make(chan radio.Event, 16),
		respQ:  make(chan string, 16),
		closed: make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Close stops the reader. The Port is owned by the caller.
func (m *Modem) Close() { close(m.closed) }

func (m *Modem) Events() <-chan radio.Event { return m.events }

func (m *Modem) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// SetParams provisions the modem and fixes its behavioral parameters:
// ADR off, explicit data rate and TX power. Clock tolerance has no AT
// command on this modem class; the firmware manages RX-window margins.
func (m *Modem) SetParams(p radio.Params) error {
	if m.cfg.DevEUI != "" {
		if err := m.cmd("AT+DEVEUI=" + m.cfg.DevEUI); err != nil {
			return err
		}
	}
	if m.cfg.JoinEUI != "" {
		if err := m.cmd("AT+APPEUI=" + m.cfg.JoinEUI); err != nil {
			return err
		}
	}
	if m.cfg.AppKey != "" {
		if err := m.cmd("AT+APPKEY=" + m.cfg.AppKey); err != nil {
			return err
		}
	}
	if err := m.cmd("AT+ADR=0"); err != nil {
		return err
	}
	if err := m.cmd(fmt.Sprintf("AT+DR=%d", p.DataRate)); err != nil {
		return err
	}
	return m.cmd(fmt.Sprintf("AT+TXP=%d", p.TxPower))
}

// Join starts an OTAA join. The modem performs its own retry schedule
// (10 s interval, 8 attempts); the outcome arrives as a join event.
func (m *Modem) Join() error {
	if err := m.cmd("AT+JOIN=1:0:10:8"); err != nil {
		return err
	}
	m.emit(radio.Event{Kind: radio.EventJoinStarted})
	return nil
}

// Transmit submits one uplink frame. Completion (and any piggybacked
// downlink) arrives as an EventTxDone.
func (m *Modem) Transmit(port uint8, payload []byte) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return errcode.Busy
	}
	m.busy = true
	m.mu.Unlock()

	err := m.cmd(fmt.Sprintf("AT+SEND=%d:%s", port, hex.EncodeToString(payload)))
	if err != nil {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
		return err
	}

	// The modem owns completion timing, but a lost URC line must not wedge
	// the node: if no completion arrives, synthesize an unacked one.
	m.mu.Lock()
	if m.busy {
		m.txSeq++
		seq := m.txSeq
		m.txTimer = time.AfterFunc(m.cfg.TxTimeout, func() { m.txTimeout(seq) })
	}
	m.mu.Unlock()

	m.emit(radio.Event{Kind: radio.EventTxStarted})
	return nil
}

// txTimeout fires when an accepted send never reported completion. A seq
// mismatch means the real URC won the race; do nothing then.
func (m *Modem) txTimeout(seq uint64) {
	m.mu.Lock()
	if seq != m.txSeq || !m.busy {
		m.mu.Unlock()
		return
	}
	m.busy = false
	m.pendingDL = nil
	m.pendingPt = 0
	m.mu.Unlock()
	m.emit(radio.Event{Kind: radio.EventTxDone, Info: "tx_timeout"})
}

// cmd writes one AT command and waits for its terminal response line.
// Intermediate lines (echo, banners) are skipped.
func (m *Modem) cmd(s string) error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	// Discard stale responses from previous exchanges.
	for {
		select {
		case <-m.respQ:
			continue
		default:
		}
		break
	}

	if _, err := m.port.Write([]byte(s + "\r\n")); err != nil {
		return &errcode.E{C: errcode.PortClosed, Op: "atmodem.cmd", Err: err}
	}

	deadline := time.NewTimer(m.cfg.CmdTimeout)
	defer deadline.Stop()
	for {
		select {
		case line := <-m.respQ:
			switch {
			case line == "OK":
				return nil
			case strings.HasPrefix(line, "AT_BUSY"):
				return errcode.Busy
			case strings.HasPrefix(line, "AT_"), strings.HasPrefix(line, "ERROR"):
				return &errcode.E{C: errcode.InvalidParams, Op: "atmodem.cmd", Msg: line}
			default:
				// echo or unrelated chatter
			}
		case <-deadline.C:
			return errcode.Timeout
		case <-m.closed:
			return errcode.PortClosed
		}
	}
}

// readLoop accumulates bytes into CR-stripped, LF-terminated lines and
// routes them: "+EVT:" URCs become events, everything else feeds the
// command response queue.
func (m *Modem) readLoop() {
	buf := make([]byte, 64)
	var line []byte
	for {
		select {
		case <-m.closed:
			return
		default:
		}
		n, err := m.port.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			switch buf[i] {
			case '\n':
				if len(line) > 0 {
					m.handleLine(string(line))
					line = line[:0]
				}
			case '\r':
				// ignore
			default:
				if len(line) < maxLine {
					line = append(line, buf[i])
				}
			}
		}
	}
}

func (m *Modem) handleLine(line string) {
	if strings.HasPrefix(line, "+EVT:") {
		m.handleURC(line)
		return
	}
	select {
	case m.respQ <- line:
	default:
	}
}

func (m *Modem) handleURC(line string) {
	ev, ok := parseURC(line)
	if !ok {
		m.emit(radio.Event{Kind: radio.EventUnknown, Info: line})
		return
	}
	switch ev.Kind {
	case radio.EventTxDone:
		m.mu.Lock()
		m.busy = false
		m.txSeq++
		if m.txTimer != nil {
			m.txTimer.Stop()
			m.txTimer = nil
		}
		ev.Downlink = m.pendingDL
		ev.DownlinkPort = m.pendingPt
		m.pendingDL = nil
		m.pendingPt = 0
		m.mu.Unlock()
		m.emit(ev)
	case rxPending:
		m.mu.Lock()
		m.pendingDL = ev.Downlink
		m.pendingPt = ev.DownlinkPort
		m.mu.Unlock()
	default:
		m.emit(ev)
	}
}

func (m *Modem) emit(ev radio.Event) {
	select {
	case m.events <- ev:
	default:
	}
}
