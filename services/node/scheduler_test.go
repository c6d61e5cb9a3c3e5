package node

import (
	"testing"

	"github.com/glenmo/lorawan-water-tank-monitor/radio"
)

func cmdsEqual(got []Command, want ...Command) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func joined(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler()
	if got := s.SendAttempt(); !cmdsEqual(got, CmdRequestJoin) {
		t.Fatalf("initial attempt: %v", got)
	}
	s.OnRadioEvent(radio.Event{Kind: radio.EventJoinStarted})
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventJoinAccepted}); !cmdsEqual(got, CmdAttemptSend) {
		t.Fatalf("join accepted: %v", got)
	}
	if s.State() != StateIdle || s.Assoc() != AssocAssociated {
		t.Fatalf("after join: state=%v assoc=%v", s.State(), s.Assoc())
	}
	return s
}

func TestFirstAttemptTriggersJoin(t *testing.T) {
	s := NewScheduler()
	if got := s.SendAttempt(); !cmdsEqual(got, CmdRequestJoin) {
		t.Fatalf("commands: %v", got)
	}
	if s.State() != StateAssociationPending || s.Assoc() != AssocAssociating {
		t.Fatalf("state=%v assoc=%v", s.State(), s.Assoc())
	}
}

func TestAttemptWhileAssociating_Dropped(t *testing.T) {
	s := NewScheduler()
	s.SendAttempt()
	if got := s.SendAttempt(); !cmdsEqual(got, CmdDropNotJoined) {
		t.Fatalf("commands: %v", got)
	}
	if s.State() != StateAssociationPending {
		t.Fatalf("state = %v", s.State())
	}
}

func TestJoinFailure_StaysPending(t *testing.T) {
	s := NewScheduler()
	s.SendAttempt()
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventJoinFailed}); len(got) != 0 {
		t.Fatalf("commands: %v", got)
	}
	if s.State() != StateAssociationPending {
		t.Fatalf("state = %v, must remain association_pending", s.State())
	}
	// The modem keeps retrying on its own; a later accept still works.
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventJoinAccepted}); !cmdsEqual(got, CmdAttemptSend) {
		t.Fatalf("late accept: %v", got)
	}
}

func TestSendAttempt_TransitionsOnce(t *testing.T) {
	s := joined(t)

	if got := s.SendAttempt(); !cmdsEqual(got, CmdSampleAndTransmit) {
		t.Fatalf("first attempt: %v", got)
	}
	if s.State() != StateTransmissionInFlight {
		t.Fatalf("state = %v", s.State())
	}

	// Second attempt before completion is shed, state untouched.
	if got := s.SendAttempt(); !cmdsEqual(got, CmdDropBusy) {
		t.Fatalf("second attempt: %v", got)
	}
	if s.State() != StateTransmissionInFlight {
		t.Fatalf("state changed by dropped attempt: %v", s.State())
	}
}

func TestTxDone_ArmsExactlyOneJob(t *testing.T) {
	s := joined(t)
	s.SendAttempt()

	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventTxDone, Acked: true}); !cmdsEqual(got, CmdArmJob) {
		t.Fatalf("completion: %v", got)
	}
	if s.State() != StateJobArmed {
		t.Fatalf("state = %v", s.State())
	}

	// A duplicated completion in the same tick must not arm a second job.
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventTxDone}); len(got) != 0 {
		t.Fatalf("duplicate completion armed again: %v", got)
	}
}

func TestUnconfirmedCompletion_AlsoRearms(t *testing.T) {
	s := joined(t)
	s.SendAttempt()
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventTxDone, Acked: false}); !cmdsEqual(got, CmdArmJob) {
		t.Fatalf("unacked completion: %v", got)
	}
}

func TestDeadlinePassed_ThenFullCycle(t *testing.T) {
	s := joined(t)
	s.SendAttempt()
	s.OnRadioEvent(radio.Event{Kind: radio.EventTxDone})

	s.DeadlinePassed()
	if s.State() != StateIdle {
		t.Fatalf("state = %v", s.State())
	}
	if got := s.SendAttempt(); !cmdsEqual(got, CmdSampleAndTransmit) {
		t.Fatalf("periodic attempt: %v", got)
	}
}

func TestSubmitError_Rearms(t *testing.T) {
	s := joined(t)
	s.SendAttempt()
	if got := s.OnSubmitError(); !cmdsEqual(got, CmdArmJob) {
		t.Fatalf("submit error: %v", got)
	}
	if s.State() != StateJobArmed {
		t.Fatalf("state = %v", s.State())
	}
	// No-op outside an in-flight transmission.
	if got := s.OnSubmitError(); len(got) != 0 {
		t.Fatalf("spurious submit error acted: %v", got)
	}
}

func TestLinkLost_DeadlineBecomesJoinTrigger(t *testing.T) {
	s := joined(t)
	s.SendAttempt()
	s.OnRadioEvent(radio.Event{Kind: radio.EventTxDone})

	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventLinkLost}); len(got) != 0 {
		t.Fatalf("link lost issued commands: %v", got)
	}
	if s.Assoc() != AssocUnassociated || s.State() != StateAssociationPending {
		t.Fatalf("state=%v assoc=%v", s.State(), s.Assoc())
	}

	// The still-armed deadline fires: the attempt turns into a join.
	s.DeadlinePassed()
	if got := s.SendAttempt(); !cmdsEqual(got, CmdRequestJoin) {
		t.Fatalf("attempt after link loss: %v", got)
	}
}

func TestUnknownEvent_NoOp(t *testing.T) {
	s := joined(t)
	before := s.State()
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventUnknown, Info: "+EVT:NEW_THING"}); len(got) != 0 {
		t.Fatalf("unknown event issued commands: %v", got)
	}
	if s.State() != before {
		t.Fatalf("unknown event changed state to %v", s.State())
	}
}

func TestTxStarted_NoOp(t *testing.T) {
	s := joined(t)
	s.SendAttempt()
	if got := s.OnRadioEvent(radio.Event{Kind: radio.EventTxStarted}); len(got) != 0 {
		t.Fatalf("tx started issued commands: %v", got)
	}
	if s.State() != StateTransmissionInFlight {
		t.Fatalf("state = %v", s.State())
	}
}
