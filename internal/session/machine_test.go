package session

import (
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	forced := &StreamError{Condition: ConditionConflict, Text: "replaced by new connection"}
	lost := errors.Join(ErrTransientConnectionLoss, io.EOF)
	other := errors.New("tls: bad certificate")

	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		effects []Effect
	}{
		{
			name:  "connecting from disconnected",
			state: StateDisconnected,
			event: Connecting(),
			want:  StateConnecting,
		},
		{
			name:  "connected from connecting",
			state: StateConnecting,
			event: Connected(),
			want:  StateConnected,
		},
		{
			name:  "authenticated starts receiver then refreshes profile",
			state: StateConnected,
			event: Authenticated(false),
			want:  StateAuthenticated,
			effects: []Effect{
				{Kind: EffectStartReceiver},
				{Kind: EffectRefreshProfile},
			},
		},
		{
			name:  "resumed authentication only refreshes profile",
			state: StateAuthenticated,
			event: Authenticated(true),
			want:  StateAuthenticated,
			effects: []Effect{
				{Kind: EffectRefreshProfile},
			},
		},
		{
			name:    "graceful close while authenticated stops receiver only",
			state:   StateAuthenticated,
			event:   Closed(),
			want:    StateDisconnected,
			effects: []Effect{{Kind: EffectStopReceiver}},
		},
		{
			name:  "graceful close while connected has no effects",
			state: StateConnected,
			event: Closed(),
			want:  StateDisconnected,
		},
		{
			name:  "network failure while authenticated stops then schedules",
			state: StateAuthenticated,
			event: ClosedOnError(lost),
			want:  StateClosedOnError,
			effects: []Effect{
				{Kind: EffectStopReceiver},
				{
					Kind:    EffectScheduleReconnect,
					Request: ReconnectRequest{RequiresNetwork: true, RequiresPower: true},
					Failure: FailureNetwork,
					Cause:   lost,
				},
			},
		},
		{
			name:  "other failure schedules reconnect",
			state: StateConnected,
			event: ClosedOnError(other),
			want:  StateClosedOnError,
			effects: []Effect{
				{
					Kind:    EffectScheduleReconnect,
					Request: ReconnectRequest{RequiresNetwork: true, RequiresPower: true},
					Failure: FailureOther,
					Cause:   other,
				},
			},
		},
		{
			name:  "forced close while authenticated requires login",
			state: StateAuthenticated,
			event: ClosedOnError(forced),
			want:  StateClosedOnError,
			effects: []Effect{
				{Kind: EffectStopReceiver},
				{Kind: EffectRequireLogin, Failure: FailureForcedRemoteClose, Cause: forced},
				{Kind: EffectNotice, Title: forcedCloseTitle, Body: forcedCloseBody},
			},
		},
		{
			name:  "unknown event is ignored",
			state: StateConnected,
			event: Event{Kind: "bogus"},
			want:  StateConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Transition(tt.state, tt.event)
			assert.Equal(t, tt.want, got)
			if diff := cmp.Diff(tt.effects, effects, cmpopts.EquateErrors(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("effects mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransition_ClosedNeverSchedulesReconnect(t *testing.T) {
	for _, s := range AllStates() {
		_, effects := Transition(s, Closed())
		for _, e := range effects {
			assert.NotEqual(t, EffectScheduleReconnect, e.Kind, "state %s", s)
			assert.NotEqual(t, EffectRequireLogin, e.Kind, "state %s", s)
		}
	}
}

func TestTransition_StopPrecedesClassification(t *testing.T) {
	causes := []error{
		io.EOF,
		&StreamError{Condition: ConditionConflict},
		errors.New("boom"),
	}

	for _, cause := range causes {
		_, effects := Transition(StateAuthenticated, ClosedOnError(cause))
		if assert.GreaterOrEqual(t, len(effects), 2) {
			assert.Equal(t, EffectStopReceiver, effects[0].Kind)
		}
	}
}

func TestTransition_ExactlyOneFollowUp(t *testing.T) {
	count := func(effects []Effect, kind EffectKind) int {
		n := 0
		for _, e := range effects {
			if e.Kind == kind {
				n++
			}
		}
		return n
	}

	_, effects := Transition(StateAuthenticated, ClosedOnError(io.ErrUnexpectedEOF))
	assert.Equal(t, 1, count(effects, EffectScheduleReconnect))
	assert.Equal(t, 0, count(effects, EffectRequireLogin))

	_, effects = Transition(StateAuthenticated, ClosedOnError(ErrForcedRemoteClose))
	assert.Equal(t, 0, count(effects, EffectScheduleReconnect))
	assert.Equal(t, 1, count(effects, EffectRequireLogin))
}

// TestTransition_ReceiverInvariant replays random event sequences and checks
// that a receiver is held exactly when the state is authenticated.
func TestTransition_ReceiverInvariant(t *testing.T) {
	events := []Event{
		Connecting(),
		Connected(),
		Authenticated(false),
		Authenticated(true),
		Closed(),
		ClosedOnError(io.EOF),
		ClosedOnError(&StreamError{Condition: ConditionConflict}),
		ClosedOnError(errors.New("other")),
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for run := 0; run < 200; run++ {
		state := StateDisconnected
		live := false
		for step := 0; step < 50; step++ {
			e := events[rng.IntN(len(events))]
			var effects []Effect
			state, effects = Transition(state, e)
			for _, eff := range effects {
				switch eff.Kind {
				case EffectStartReceiver:
					assert.False(t, live, "receiver started twice")
					live = true
				case EffectStopReceiver:
					assert.True(t, live, "receiver stopped while not live")
					live = false
				}
			}
			if !assert.Equal(t, state == StateAuthenticated, live, "run %d step %d event %s", run, step, e.Kind) {
				return
			}
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{"nil", nil, FailureOther},
		{"stream conflict", &StreamError{Condition: ConditionConflict}, FailureForcedRemoteClose},
		{"wrapped stream error", errors.Join(errors.New("read"), &StreamError{Condition: ConditionPolicyViolation}), FailureForcedRemoteClose},
		{"forced sentinel", ErrForcedRemoteClose, FailureForcedRemoteClose},
		{"transient sentinel", ErrTransientConnectionLoss, FailureNetwork},
		{"eof", io.EOF, FailureNetwork},
		{"unexpected eof", io.ErrUnexpectedEOF, FailureNetwork},
		{"generic", errors.New("something else"), FailureOther},
		{"rejected", ErrAuthenticationRejected, FailureOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailure_Recoverable(t *testing.T) {
	assert.True(t, FailureNetwork.Recoverable())
	assert.True(t, FailureOther.Recoverable())
	assert.False(t, FailureForcedRemoteClose.Recoverable())
}

func TestStreamError(t *testing.T) {
	err := &StreamError{Condition: ConditionConflict, Text: "replaced"}
	assert.ErrorIs(t, err, ErrForcedRemoteClose)
	assert.Contains(t, err.Error(), "conflict")
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(StateDisconnected, StateConnecting))
	assert.True(t, IsValidTransition(StateConnected, StateAuthenticated))
	assert.True(t, IsValidTransition(StateAuthenticated, StateClosedOnError))
	assert.False(t, IsValidTransition(StateDisconnected, StateAuthenticated))
	assert.False(t, IsValidTransition(State("unknown"), StateConnecting))
}

func TestIsValidTransition_RepeatedCloses(t *testing.T) {
	closes := []Event{Closed(), ClosedOnError(io.EOF)}
	for _, from := range []State{StateDisconnected, StateClosedOnError} {
		for _, e := range closes {
			next, _ := Transition(from, e)
			assert.True(t, IsValidTransition(from, next), "%s on %s", e.Kind, from)
		}
	}
	assert.True(t, IsValidTransition(StateConnecting, StateConnecting))
}
