package atmodem

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/glenmo/lorawan-water-tank-monitor/radio"
)

// rxPending is a driver-internal kind: a downlink line arrived and is held
// until the matching transmission-complete URC. Never emitted to consumers.
const rxPending = radio.EventKind(0xff)

// parseURC maps one "+EVT:" line to an event. Unrecognized lines return
// ok=false and surface as EventUnknown.
//
// Recognized grammar (RAK3172-style):
//
//	+EVT:JOINED
//	+EVT:JOIN_FAILED
//	+EVT:TX_DONE
//	+EVT:SEND_CONFIRMED_OK
//	+EVT:SEND_CONFIRMED_FAILED
//	+EVT:RX_1:<rssi>:<snr>:UNICAST:<port>:<hexdata>   (also RX_2, RX_B, RX_C)
func parseURC(line string) (radio.Event, bool) {
	body := strings.TrimPrefix(line, "+EVT:")
	switch body {
	case "JOINED":
		return radio.Event{Kind: radio.EventJoinAccepted}, true
	case "JOIN_FAILED", "JOIN FAILED":
		return radio.Event{Kind: radio.EventJoinFailed, Info: line}, true
	case "TX_DONE":
		return radio.Event{Kind: radio.EventTxDone}, true
	case "SEND_CONFIRMED_OK":
		return radio.Event{Kind: radio.EventTxDone, Acked: true}, true
	case "SEND_CONFIRMED_FAILED":
		return radio.Event{Kind: radio.EventTxDone, Info: line}, true
	}

	if strings.HasPrefix(body, "RX_") {
		// port and hex payload are the last two fields
		fields := strings.Split(body, ":")
		if len(fields) < 3 {
			return radio.Event{}, false
		}
		port, err := strconv.ParseUint(fields[len(fields)-2], 10, 8)
		if err != nil {
			return radio.Event{}, false
		}
		data, err := hex.DecodeString(fields[len(fields)-1])
		if err != nil {
			return radio.Event{}, false
		}
		return radio.Event{Kind: rxPending, Downlink: data, DownlinkPort: uint8(port)}, true
	}

	return radio.Event{}, false
}
