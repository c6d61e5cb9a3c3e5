package atmodem

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/errcode"
	"github.com/glenmo/lorawan-water-tank-monitor/radio"
)

// fakePort scripts the modem side of the UART: commands written by the
// driver are answered via reply; tests inject URC lines asynchronously.
type fakePort struct {
	mu    sync.Mutex
	rx    []byte
	cmds  []string
	reply func(cmd string) string
}

func newFakePort(reply func(cmd string) string) *fakePort {
	if reply == nil {
		reply = func(string) string { return "OK" }
	}
	return &fakePort{reply: reply}
}

func (p *fakePort) Write(b []byte) (int, error) {
	cmd := strings.TrimRight(string(b), "\r\n")
	p.mu.Lock()
	p.cmds = append(p.cmds, cmd)
	p.mu.Unlock()
	if r := p.reply(cmd); r != "" {
		p.inject(r)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.rx) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *fakePort) inject(line string) {
	p.mu.Lock()
	p.rx = append(p.rx, []byte(line+"\r\n")...)
	p.mu.Unlock()
}

func (p *fakePort) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cmds...)
}

func waitEvent(t *testing.T, m *Modem, want radio.EventKind) radio.Event {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %v", want)
		}
	}
}

func TestParseURC(t *testing.T) {
	cases := []struct {
		line string
		kind radio.EventKind
		ok   bool
	}{
		{"+EVT:JOINED", radio.EventJoinAccepted, true},
		{"+EVT:JOIN_FAILED", radio.EventJoinFailed, true},
		{"+EVT:TX_DONE", radio.EventTxDone, true},
		{"+EVT:SEND_CONFIRMED_OK", radio.EventTxDone, true},
		{"+EVT:SEND_CONFIRMED_FAILED", radio.EventTxDone, true},
		{"+EVT:RX_1:-45:7:UNICAST:1:1234", rxPending, true},
		{"+EVT:RX_2:-101:-3:UNICAST:10:dead", rxPending, true},
		{"+EVT:SOMETHING_NEW", 0, false},
		{"+EVT:RX_1:oops", 0, false},
	}
	for _, c := range cases {
		ev, ok := parseURC(c.line)
		if ok != c.ok {
			t.Errorf("parseURC(%q) ok=%v, want %v", c.line, ok, c.ok)
			continue
		}
		if ok && ev.Kind != c.kind {
			t.Errorf("parseURC(%q) kind=%v, want %v", c.line, ev.Kind, c.kind)
		}
	}
	if ev, _ := parseURC("+EVT:SEND_CONFIRMED_OK"); !ev.Acked {
		t.Error("confirmed-ok not marked acked")
	}
	if ev, _ := parseURC("+EVT:RX_1:-45:7:UNICAST:1:1234"); !bytes.Equal(ev.Downlink, []byte{0x12, 0x34}) || ev.DownlinkPort != 1 {
		t.Errorf("downlink parse: % x port %d", ev.Downlink, ev.DownlinkPort)
	}
}

func TestJoinFlow(t *testing.T) {
	p := newFakePort(nil)
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond})
	defer m.Close()

	if err := m.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	waitEvent(t, m, radio.EventJoinStarted)

	p.inject("+EVT:JOINED")
	waitEvent(t, m, radio.EventJoinAccepted)

	cmds := p.commands()
	if len(cmds) != 1 || !strings.HasPrefix(cmds[0], "AT+JOIN=") {
		t.Fatalf("unexpected commands: %v", cmds)
	}
}

func TestSetParams(t *testing.T) {
	p := newFakePort(nil)
	m := Open(p, Config{DevEUI: "a84041d111896c86", JoinEUI: "0000000000000001", AppKey: "00112233445566778899aabbccddeeff", CmdTimeout: 200 * time.Millisecond})
	defer m.Close()

	if err := m.SetParams(radio.Params{DataRate: 3, TxPower: 14}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	want := []string{
		"AT+DEVEUI=a84041d111896c86",
		"AT+APPEUI=0000000000000001",
		"AT+APPKEY=00112233445566778899aabbccddeeff",
		"AT+ADR=0",
		"AT+DR=3",
		"AT+TXP=14",
	}
	got := p.commands()
	if len(got) != len(want) {
		t.Fatalf("commands: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTransmit_ConfirmedWithDownlink(t *testing.T) {
	p := newFakePort(nil)
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond})
	defer m.Close()

	if err := m.Transmit(2, []byte{0x1d, 0x7e}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if !m.Busy() {
		t.Fatal("modem should be busy after accepted transmit")
	}
	waitEvent(t, m, radio.EventTxStarted)

	p.inject("+EVT:RX_1:-45:7:UNICAST:1:abcd")
	p.inject("+EVT:SEND_CONFIRMED_OK")
	ev := waitEvent(t, m, radio.EventTxDone)
	if !ev.Acked {
		t.Error("expected acked completion")
	}
	if !bytes.Equal(ev.Downlink, []byte{0xab, 0xcd}) || ev.DownlinkPort != 1 {
		t.Errorf("downlink % x port %d", ev.Downlink, ev.DownlinkPort)
	}
	if m.Busy() {
		t.Error("busy flag not cleared on completion")
	}

	cmds := p.commands()
	if cmds[len(cmds)-1] != "AT+SEND=2:1d7e" {
		t.Errorf("send command: %v", cmds)
	}
}

func TestTransmit_WhileBusy(t *testing.T) {
	p := newFakePort(nil)
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond})
	defer m.Close()

	if err := m.Transmit(2, []byte{0x00, 0x00}); err != nil {
		t.Fatalf("first Transmit: %v", err)
	}
	if err := m.Transmit(2, []byte{0x00, 0x01}); err != errcode.Busy {
		t.Fatalf("second Transmit: expected busy, got %v", err)
	}
}

func TestTransmit_ModemRejects(t *testing.T) {
	p := newFakePort(func(cmd string) string {
		if strings.HasPrefix(cmd, "AT+SEND") {
			return "AT_BUSY_ERROR"
		}
		return "OK"
	})
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond})
	defer m.Close()

	if err := m.Transmit(2, []byte{0x00, 0x00}); err != errcode.Busy {
		t.Fatalf("expected busy, got %v", err)
	}
	if m.Busy() {
		t.Error("busy flag must roll back when the modem refuses the send")
	}
}

func TestTransmit_LostCompletionTimesOut(t *testing.T) {
	p := newFakePort(nil) // accepts AT+SEND but never emits a completion URC
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond, TxTimeout: 50 * time.Millisecond})
	defer m.Close()

	if err := m.Transmit(2, []byte{0x27, 0x10}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	ev := waitEvent(t, m, radio.EventTxDone)
	if ev.Acked || ev.Info != "tx_timeout" {
		t.Fatalf("synthesized completion: %+v", ev)
	}
	if m.Busy() {
		t.Fatal("busy flag must clear when completion never arrives")
	}
	// The next cycle must be able to transmit again.
	if err := m.Transmit(2, []byte{0x00, 0x00}); err != nil {
		t.Fatalf("Transmit after timeout: %v", err)
	}
}

func TestTransmit_TimelyCompletionSuppressesTimeout(t *testing.T) {
	p := newFakePort(nil)
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond, TxTimeout: 40 * time.Millisecond})
	defer m.Close()

	if err := m.Transmit(2, []byte{0x1d, 0x7e}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	p.inject("+EVT:SEND_CONFIRMED_OK")
	waitEvent(t, m, radio.EventTxDone)

	// Past the deadline, the cancelled timer must not synthesize a second
	// completion.
	time.Sleep(80 * time.Millisecond)
	select {
	case ev := <-m.Events():
		t.Fatalf("spurious event after completion: %+v", ev)
	default:
	}
}

func TestUnknownURC(t *testing.T) {
	p := newFakePort(nil)
	m := Open(p, Config{CmdTimeout: 200 * time.Millisecond})
	defer m.Close()

	p.inject("+EVT:SWITCH_FAILED")
	ev := waitEvent(t, m, radio.EventUnknown)
	if ev.Info != "+EVT:SWITCH_FAILED" {
		t.Errorf("info = %q", ev.Info)
	}
}

func TestCmdTimeout(t *testing.T) {
	p := newFakePort(func(string) string { return "" })
	m := Open(p, Config{CmdTimeout: 30 * time.Millisecond})
	defer m.Close()

	if err := m.Join(); err != errcode.Timeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}
