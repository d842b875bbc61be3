package session

const (
	forcedCloseTitle = "Signed out"
	forcedCloseBody  = "Your account was signed in on another device. Please sign in again."
)

// Transition computes the next state and the ordered effects for an event.
// It has no side effects. Leaving the authenticated state always emits
// EffectStopReceiver before any classification-driven effect.
func Transition(s State, e Event) (State, []Effect) {
	var next State
	switch e.Kind {
	case EventConnecting:
		next = StateConnecting
	case EventConnected:
		next = StateConnected
	case EventAuthenticated:
		if s == StateAuthenticated {
			return s, []Effect{{Kind: EffectRefreshProfile}}
		}
		return StateAuthenticated, []Effect{
			{Kind: EffectStartReceiver},
			{Kind: EffectRefreshProfile},
		}
	case EventClosed:
		next = StateDisconnected
	case EventClosedOnError:
		next = StateClosedOnError
	default:
		return s, nil
	}

	var effects []Effect
	if s == StateAuthenticated {
		effects = append(effects, Effect{Kind: EffectStopReceiver})
	}

	if e.Kind == EventClosedOnError {
		failure := Classify(e.Err)
		if failure.Recoverable() {
			effects = append(effects, Effect{
				Kind:    EffectScheduleReconnect,
				Request: DefaultReconnectRequest(),
				Failure: failure,
				Cause:   e.Err,
			})
		} else {
			effects = append(effects,
				Effect{Kind: EffectRequireLogin, Failure: failure, Cause: e.Err},
				Effect{Kind: EffectNotice, Title: forcedCloseTitle, Body: forcedCloseBody},
			)
		}
	}

	return next, effects
}
