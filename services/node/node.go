// Package node runs the tank node's uplink lifecycle: it owns the
// scheduler, drives the sensor and radio capabilities, and publishes all
// observable progress on the bus.
//
// The service is single-threaded: modem events, the armed send deadline,
// and operator controls are serviced by one select loop, so the scheduler
// state is never touched concurrently.
package node

import (
	"context"
	"time"

	"github.com/glenmo/lorawan-water-tank-monitor/bus"
	"github.com/glenmo/lorawan-water-tank-monitor/drivers/tanklevel"
	"github.com/glenmo/lorawan-water-tank-monitor/errcode"
	"github.com/glenmo/lorawan-water-tank-monitor/protocol"
	"github.com/glenmo/lorawan-water-tank-monitor/radio"
	"github.com/glenmo/lorawan-water-tank-monitor/types"
	"github.com/glenmo/lorawan-water-tank-monitor/x/timex"
)

var (
	topicState       = bus.T("node", "state")
	topicUplink      = bus.T("node", "uplink")
	topicResult      = bus.T("node", "uplink", "result")
	topicDownlink    = bus.T("node", "downlink")
	topicDrop        = bus.T("node", "drop")
	topicRadioEvent  = bus.T("node", "radio")
	topicRadioStatus = bus.T("radio", "status")
	topicSendNow     = bus.T("node", "control", "send_now")
)

// Config fixes the node's behavior for the process lifetime.
type Config struct {
	SendInterval time.Duration
	FPort        uint8
	Params       radio.Params
}

type Service struct {
	conn   *bus.Connection
	modem  radio.Modem
	reader *tanklevel.Reader
	cfg    Config

	sched    *Scheduler
	timer    *time.Timer
	deadline time.Time // zero when no job is armed
}

func New(conn *bus.Connection, modem radio.Modem, reader *tanklevel.Reader, cfg Config) *Service {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 10 * time.Minute
	}
	if cfg.FPort == 0 {
		cfg.FPort = protocol.FPort
	}
	return &Service{
		conn:   conn,
		modem:  modem,
		reader: reader,
		cfg:    cfg,
		sched:  NewScheduler(),
	}
}

func (s *Service) Run(ctx context.Context) {
	ctrlSub := s.conn.Subscribe(topicSendNow)
	defer s.conn.Unsubscribe(ctrlSub)

	if err := s.modem.SetParams(s.cfg.Params); err != nil {
		s.note("set_params_failed", err.Error())
	}

	// The first attempt doubles as the association trigger.
	s.exec(s.sched.SendAttempt())
	s.publishState()

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		timex.DrainTimer(s.timer)
	}

	for {
		if s.deadline.IsZero() {
			timex.ResetTimer(s.timer, time.Hour)
		} else {
			timex.ResetTimer(s.timer, time.Until(s.deadline))
		}

		select {
		case <-ctx.Done():
			s.conn.Publish(s.conn.NewMessage(topicState,
				types.NodeState{Level: "stopped", Status: "context_cancelled", TSms: timex.NowMs()}, true))
			return

		case ev := <-s.modem.Events():
			s.observe(ev)
			s.exec(s.sched.OnRadioEvent(ev))
			s.publishState()

		case msg := <-ctrlSub.Channel():
			s.exec(s.sched.SendAttempt())
			s.conn.Reply(msg, types.OKReply{OK: true}, false)
			s.publishState()

		case <-s.timer.C:
			if s.deadline.IsZero() || time.Now().Before(s.deadline) {
				continue
			}
			s.deadline = time.Time{}
			s.sched.DeadlinePassed()
			s.exec(s.sched.SendAttempt())
			s.publishState()
		}
	}
}

// exec runs the scheduler's side-effect commands. CmdAttemptSend recurses
// through the scheduler once, so depth is bounded.
func (s *Service) exec(cmds []Command) {
	for _, c := range cmds {
		switch c {
		case CmdRequestJoin:
			if err := s.modem.Join(); err != nil {
				s.note("join_request_failed", err.Error())
				s.exec(s.sched.OnJoinSubmitError())
			}

		case CmdSampleAndTransmit:
			s.sampleAndTransmit()

		case CmdArmJob:
			s.deadline = time.Now().Add(s.cfg.SendInterval)

		case CmdAttemptSend:
			s.exec(s.sched.SendAttempt())

		case CmdDropBusy:
			s.drop("busy")

		case CmdDropNotJoined:
			s.drop("not_joined")
		}
	}
}

func (s *Service) sampleAndTransmit() {
	pct := s.reader.Sample()
	frame := protocol.EncodeLevel(pct)
	s.conn.Publish(s.conn.NewMessage(topicUplink, types.UplinkAttempt{
		Percent: pct,
		Frame:   frame.Bytes(),
		FPort:   s.cfg.FPort,
		TSms:    timex.NowMs(),
	}, false))

	// The modem may still be transmitting (duty-cycle wait, late
	// completion); shed the attempt rather than queue behind it.
	if s.modem.Busy() {
		s.drop("busy")
		s.exec(s.sched.OnSubmitError())
		return
	}
	if err := s.modem.Transmit(s.cfg.FPort, frame.Bytes()); err != nil {
		s.drop(string(errcode.Of(err)))
		s.exec(s.sched.OnSubmitError())
	}
}

// observe publishes telemetry for a modem event before the scheduler
// reacts to it.
func (s *Service) observe(ev radio.Event) {
	now := timex.NowMs()
	switch ev.Kind {
	case radio.EventJoinAccepted:
		s.conn.Publish(s.conn.NewMessage(topicRadioStatus,
			types.RadioStatus{Link: types.LinkUp, TSms: now}, true))

	case radio.EventJoinFailed:
		s.conn.Publish(s.conn.NewMessage(topicRadioStatus,
			types.RadioStatus{Link: types.LinkDegraded, TSms: now, Error: string(errcode.JoinFailed)}, true))
		s.note(ev.Kind.String(), ev.Info)

	case radio.EventLinkLost:
		s.conn.Publish(s.conn.NewMessage(topicRadioStatus,
			types.RadioStatus{Link: types.LinkDown, TSms: now}, true))
		s.note(ev.Kind.String(), ev.Info)

	case radio.EventTxDone:
		s.conn.Publish(s.conn.NewMessage(topicResult,
			types.UplinkResult{Acked: ev.Acked, TSms: now}, false))
		if len(ev.Downlink) > 0 {
			// Verbatim surface only; the node assigns no meaning.
			s.conn.Publish(s.conn.NewMessage(topicDownlink, types.Downlink{
				FPort: ev.DownlinkPort,
				Data:  append([]byte(nil), ev.Downlink...),
				TSms:  now,
			}, false))
		}

	default:
		s.note(ev.Kind.String(), ev.Info)
	}
}

func (s *Service) publishState() {
	s.conn.Publish(s.conn.NewMessage(topicState, types.NodeState{
		Level:  s.sched.State().String(),
		Status: s.sched.Assoc().String(),
		TSms:   timex.NowMs(),
	}, true))
}

func (s *Service) drop(reason string) {
	s.conn.Publish(s.conn.NewMessage(topicDrop,
		types.DropNotice{Reason: reason, TSms: timex.NowMs()}, false))
}

func (s *Service) note(kind, info string) {
	s.conn.Publish(s.conn.NewMessage(topicRadioEvent,
		types.RadioEventNote{Kind: kind, Info: info, TSms: timex.NowMs()}, false))
}
