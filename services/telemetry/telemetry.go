// Package telemetry is the node's diagnostic sink. It subscribes to the
// node and radio topics and renders each event as one human-readable line
// on an io.Writer (console UART on hardware, stdout on a host).
//
// The sink is strictly an observer: it shares nothing with the node
// service, and a slow or broken writer only loses lines, it never slows
// the uplink lifecycle.
package telemetry

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/bus"
	"github.com/glenmo/lorawan-water-tank-monitor/types"
)

type Service struct {
	conn *bus.Connection
	w    io.Writer
}

func New(conn *bus.Connection, w io.Writer) *Service {
	return &Service{conn: conn, w: w}
}

// Run consumes until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	nodeSub := s.conn.Subscribe(bus.T("node", bus.WildcardAll))
	defer s.conn.Unsubscribe(nodeSub)
	radioSub := s.conn.Subscribe(bus.T("radio", "status"))
	defer s.conn.Unsubscribe(radioSub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-nodeSub.Channel():
			s.line(msg)
		case msg := <-radioSub.Channel():
			s.line(msg)
		}
	}
}

func (s *Service) line(msg *bus.Message) {
	// Control requests share the node/# space but are operator inputs,
	// not progress; their outcomes arrive on the lifecycle topics.
	if len(msg.Topic) > 1 && msg.Topic[1] == "control" {
		return
	}

	var ts int64
	var text string

	switch p := msg.Payload.(type) {
	case types.NodeState:
		ts = p.TSms
		text = fmt.Sprintf("node state=%s assoc=%s", p.Level, p.Status)
	case types.UplinkAttempt:
		ts = p.TSms
		text = fmt.Sprintf("uplink port=%d frame=%s level=%.2f%%",
			p.FPort, hex.EncodeToString(p.Frame), p.Percent)
	case types.UplinkResult:
		ts = p.TSms
		text = fmt.Sprintf("uplink done acked=%t", p.Acked)
	case types.Downlink:
		ts = p.TSms
		text = fmt.Sprintf("downlink port=%d data=%s", p.FPort, hex.EncodeToString(p.Data))
	case types.DropNotice:
		ts = p.TSms
		text = fmt.Sprintf("drop reason=%s", p.Reason)
	case types.RadioStatus:
		ts = p.TSms
		text = fmt.Sprintf("radio link=%s", p.Link)
		if p.Error != "" {
			text += " error=" + p.Error
		}
	case types.RadioEventNote:
		ts = p.TSms
		text = fmt.Sprintf("radio event=%s", p.Kind)
		if p.Info != "" {
			text += " info=" + p.Info
		}
	default:
		text = fmt.Sprintf("%s %v", msg.Topic, msg.Payload)
	}

	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	stamp := time.UnixMilli(ts).Format("15:04:05.000")
	// Write errors are swallowed: losing a line must not ripple anywhere.
	fmt.Fprintf(s.w, "%s %s\n", stamp, text)
}
