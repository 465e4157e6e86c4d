// Package opportunity holds the opportunity lifecycle: the status and
// decision enums, the rules that reconcile two independent decisions, and
// the response handler that applies one side's decision.
package opportunity

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusProposed  Status = "PROPOSED"
	StatusAccepted  Status = "ACCEPTED"
	StatusDeclined  Status = "DECLINED"
	StatusDiscarded Status = "DISCARDED"
)

// VisibleStatuses are the statuses surfaced to participants. Discarded
// records only exist to stop a pair from being judged twice.
var VisibleStatuses = []Status{StatusProposed, StatusAccepted, StatusDeclined}

// Terminal reports whether no response can move the status any further.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusDiscarded:
		return true
	case StatusProposed:
		return false
	}
	return false
}

func ParseStatus(v string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(v))); s {
	case StatusProposed, StatusAccepted, StatusDeclined, StatusDiscarded:
		return s, nil
	}
	return "", fmt.Errorf("unknown opportunity status %q", v)
}

// Decision is one side's answer. The zero value means the side has not
// responded yet.
type Decision string

const (
	DecisionUnset   Decision = ""
	DecisionAccept  Decision = "ACCEPT"
	DecisionDecline Decision = "DECLINE"
)

func ParseDecision(v string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(v))); d {
	case DecisionAccept, DecisionDecline:
		return d, nil
	}
	return DecisionUnset, fmt.Errorf("%w: %q", ErrInvalidDecision, v)
}

// Classify maps an evaluator verdict onto the status a new record is
// created with.
func Classify(shouldConnect bool, score, minScore float64) Status {
	if !shouldConnect || score < minScore {
		return StatusDiscarded
	}
	return StatusProposed
}

// Resolve recomputes the status from both sides' decisions. Terminal
// statuses are returned unchanged.
func Resolve(current Status, a, b Decision) Status {
	if current.Terminal() {
		return current
	}
	switch {
	case a == DecisionDecline || b == DecisionDecline:
		return StatusDeclined
	case a == DecisionAccept && b == DecisionAccept:
		return StatusAccepted
	}
	return current
}
