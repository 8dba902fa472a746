package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Policy decides which status changes are allowed.
type Policy string

const (
	// PolicyUnrestricted allows any status to move to any other status.
	PolicyUnrestricted Policy = "unrestricted"
	// PolicyForward only allows moves along the fulfilment sequence.
	PolicyForward Policy = "forward"
)

// ParsePolicy maps a config value to a Policy, defaulting to PolicyForward.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "", PolicyForward:
		return PolicyForward, nil
	case PolicyUnrestricted:
		return p, nil
	}
	return "", errors.Errorf("unknown transition policy %q", s)
}

// forwardTransitions lists the allowed targets per source status. Completed
// is the state a paid order is created in.
var forwardTransitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled, StatusCompleted, StatusFailed},
	StatusCompleted: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelivered},
}

// Allows reports whether an order may move from one status to another.
func (p Policy) Allows(from, to Status) bool {
	if from == to || p == PolicyUnrestricted {
		return true
	}
	for _, s := range forwardTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError indicates a status change rejected by the policy.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}
