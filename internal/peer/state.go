package peer

// State is the lifecycle state of a Link
type State string

const (
	StateIdle                     State = "IDLE"                       // Created, nothing negotiated
	StateOffering                 State = "OFFERING"                   // Building the local offer
	StateAwaitingRemoteDescriptor State = "AWAITING_REMOTE_DESCRIPTOR" // Offer sent, waiting for the answer
	StateNegotiating              State = "NEGOTIATING"                // Both descriptors applied, connecting
	StateOpen                     State = "OPEN"                       // Data channel open
	StateClosed                   State = "CLOSED"                     // Closed locally or by the remote
	StateErrored                  State = "ERRORED"                    // Negotiation or transport failure
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateErrored
}

// CanTransitionTo checks if a transition from the current state to target is valid
func (s State) CanTransitionTo(target State) bool {
	validTransitions := map[State][]State{
		StateIdle:                     {StateOffering, StateNegotiating, StateClosed, StateErrored},
		StateOffering:                 {StateAwaitingRemoteDescriptor, StateClosed, StateErrored},
		StateAwaitingRemoteDescriptor: {StateNegotiating, StateClosed, StateErrored},
		StateNegotiating:              {StateOpen, StateClosed, StateErrored},
		StateOpen:                     {StateClosed, StateErrored},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == target {
			return true
		}
	}
	return false
}
