package conversation

import "fmt"

// State is a conversation lifecycle state.
type State string

const (
	// StateNew is a conversation with no processed messages yet.
	StateNew State = "new"
	// StateActive is a conversation being handled by the assistant.
	StateActive State = "active"
	// StateResolved is a closed episode; a new inbound message
	// reopens it.
	StateResolved State = "resolved"
	// StatePendingHuman is a conversation parked for a human after
	// going idle.
	StatePendingHuman State = "pending_human"
	// StateEscalated is a conversation handed to a human agent;
	// terminal for the episode.
	StateEscalated State = "escalated"
)

// Terminal reports whether the state ends the current episode.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateEscalated
}

// transitions is the full set of legal edges. Terminal states reopen
// to active when a new inbound message arrives.
var transitions = map[State][]State{
	StateNew:          {StateActive},
	StateActive:       {StateResolved, StatePendingHuman, StateEscalated},
	StatePendingHuman: {StateActive, StateEscalated},
	StateResolved:     {StateActive},
	StateEscalated:    {StateActive},
}

// CanTransitionTo reports whether the edge s -> to is legal.
func (s State) CanTransitionTo(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted illegal state change.
// It indicates a logic defect, never a user-facing condition.
type InvalidTransitionError struct {
	ConversationID string
	From, To       State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s for conversation %s", e.From, e.To, e.ConversationID)
}

// TransitionTo moves the conversation to the given state after
// checking the edge is legal. A self transition is a no-op.
func (c *Conversation) TransitionTo(to State) error {
	if c.State == to {
		return nil
	}
	if !c.State.CanTransitionTo(to) {
		return &InvalidTransitionError{ConversationID: c.ID, From: c.State, To: to}
	}
	c.State = to
	return nil
}
