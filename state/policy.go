package state

import (
	"fmt"
	"strings"
)

// FailurePolicy decides what a slot reads as when its sensor does not answer.
type FailurePolicy int

const (
	// HoldLast keeps the last known state.
	HoldLast FailurePolicy = iota
	// FailVacant reports the slot free.
	FailVacant
	// FailOccupied reports the slot taken so nobody is sent to it.
	FailOccupied
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hold":
		return HoldLast, nil
	case "vacant":
		return FailVacant, nil
	case "occupied":
		return FailOccupied, nil
	}
	return HoldLast, fmt.Errorf("unknown sensor failure policy %q", s)
}

func (p FailurePolicy) String() string {
	switch p {
	case FailVacant:
		return "vacant"
	case FailOccupied:
		return "occupied"
	default:
		return "hold"
	}
}

// Resolve returns the state to record for a failed poll.
func (p FailurePolicy) Resolve(previous bool) bool {
	switch p {
	case FailVacant:
		return false
	case FailOccupied:
		return true
	default:
		return previous
	}
}
