package node

import "github.com/glenmo/lorawan-water-tank-monitor/radio"

// State is the scheduler's transmission-lifecycle state.
type State uint8

const (
	// StateAssociationPending: a join has been requested (or is being
	// retried by the modem) and no session exists yet.
	StateAssociationPending State = iota
	// StateIdle: associated, no job armed.
	StateIdle
	// StateJobArmed: associated, a send deadline is armed.
	StateJobArmed
	// StateTransmissionInFlight: a frame was submitted and its completion
	// event has not arrived yet.
	StateTransmissionInFlight
)

func (s State) String() string {
	switch s {
	case StateAssociationPending:
		return "association_pending"
	case StateIdle:
		return "idle"
	case StateJobArmed:
		return "job_armed"
	case StateTransmissionInFlight:
		return "tx_in_flight"
	default:
		return "invalid"
	}
}

// AssocState tracks the network session independently of the job cycle.
type AssocState uint8

const (
	AssocUnassociated AssocState = iota
	AssocAssociating
	AssocAssociated
)

func (a AssocState) String() string {
	switch a {
	case AssocAssociating:
		return "associating"
	case AssocAssociated:
		return "associated"
	default:
		return "unassociated"
	}
}

// Command is a side effect the service loop must execute after a
// transition. The scheduler itself touches no hardware and no clock.
type Command uint8

const (
	// CmdRequestJoin: ask the modem to start association.
	CmdRequestJoin Command = iota
	// CmdSampleAndTransmit: sample the sensor, encode, submit the frame.
	CmdSampleAndTransmit
	// CmdArmJob: arm the single send deadline at now + interval.
	CmdArmJob
	// CmdAttemptSend: feed a send attempt back into the scheduler.
	CmdAttemptSend
	// CmdDropBusy: a send attempt was shed because a transmission is in
	// flight; emit a diagnostic, nothing else.
	CmdDropBusy
	// CmdDropNotJoined: a send attempt was shed because association is
	// still in progress; the modem's own retry schedule is trusted.
	CmdDropNotJoined
)

func (c Command) String() string {
	switch c {
	case CmdRequestJoin:
		return "request_join"
	case CmdSampleAndTransmit:
		return "sample_and_transmit"
	case CmdArmJob:
		return "arm_job"
	case CmdAttemptSend:
		return "attempt_send"
	case CmdDropBusy:
		return "drop_busy"
	case CmdDropNotJoined:
		return "drop_not_joined"
	default:
		return "invalid"
	}
}

// Scheduler is the pure transition core of the uplink lifecycle. Every
// input returns the commands to run; state changes happen only here, so
// the whole lifecycle is testable without hardware or timers.
//
// At most one send job exists at a time: the armed deadline lives in the
// service loop as a single value, and the scheduler only ever asks for it
// to be (re)armed via CmdArmJob.
type Scheduler struct {
	state State
	assoc AssocState
}

func NewScheduler() *Scheduler {
	return &Scheduler{state: StateAssociationPending, assoc: AssocUnassociated}
}

func (s *Scheduler) State() State      { return s.state }
func (s *Scheduler) Assoc() AssocState { return s.assoc }

// SendAttempt handles a send stimulus: the armed deadline firing, process
// start, or an operator send_now. The very first attempt doubles as the
// association trigger, so start-up is not a special case.
func (s *Scheduler) SendAttempt() []Command {
	if s.state == StateTransmissionInFlight {
		// Load shedding: a mid-transmission radio cannot take new work.
		// The attempt is dropped, never queued; the next tick retries.
		return []Command{CmdDropBusy}
	}
	switch s.assoc {
	case AssocAssociated:
		s.state = StateTransmissionInFlight
		return []Command{CmdSampleAndTransmit}
	case AssocAssociating:
		return []Command{CmdDropNotJoined}
	default:
		s.assoc = AssocAssociating
		s.state = StateAssociationPending
		return []Command{CmdRequestJoin}
	}
}

// OnRadioEvent reacts to one modem lifecycle event.
func (s *Scheduler) OnRadioEvent(ev radio.Event) []Command {
	switch ev.Kind {
	case radio.EventJoinStarted:
		if s.state != StateTransmissionInFlight {
			s.assoc = AssocAssociating
			s.state = StateAssociationPending
		}
		return nil

	case radio.EventJoinAccepted:
		s.assoc = AssocAssociated
		if s.state == StateAssociationPending {
			s.state = StateIdle
			// First sample goes out immediately rather than after a
			// full interval.
			return []Command{CmdAttemptSend}
		}
		return nil

	case radio.EventJoinFailed:
		// Stay put: retry scheduling belongs to the modem, which keeps
		// attempting and will emit join-accepted on success.
		return nil

	case radio.EventTxDone:
		if s.state != StateTransmissionInFlight {
			// Stale or duplicated completion; arming again here would
			// duplicate the job.
			return nil
		}
		s.state = StateJobArmed
		return []Command{CmdArmJob}

	case radio.EventLinkLost:
		s.assoc = AssocUnassociated
		if s.state != StateTransmissionInFlight {
			s.state = StateAssociationPending
		}
		// No proactive re-join: an armed deadline (if any) stays armed,
		// and its send attempt becomes the join trigger.
		return nil

	default:
		// tx_started, unknown kinds: observed, logged upstream, no-op.
		return nil
	}
}

// OnJoinSubmitError recovers from a join request the modem refused
// outright (dead port, command error): no join event will ever arrive, so
// the association claim is withdrawn and the next deadline retries.
func (s *Scheduler) OnJoinSubmitError() []Command {
	if s.assoc == AssocAssociating {
		s.assoc = AssocUnassociated
	}
	return []Command{CmdArmJob}
}

// OnSubmitError recovers from a frame the modem refused (busy, duty
// cycle): no completion event will arrive, so re-arm the cycle directly.
func (s *Scheduler) OnSubmitError() []Command {
	if s.state != StateTransmissionInFlight {
		return nil
	}
	s.state = StateJobArmed
	return []Command{CmdArmJob}
}

// DeadlinePassed marks the armed job as consumed just before the attempt
// runs, so state reflects that no deadline remains.
func (s *Scheduler) DeadlinePassed() {
	if s.state == StateJobArmed {
		s.state = StateIdle
	}
}
