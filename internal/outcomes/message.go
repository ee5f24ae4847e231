// Package outcomes delivers "advance created" domain events to the decision
// engine. Producers push events onto a Redis list and a Worker pops them and
// links the created outcome to the experiment visits of the originating run.
package outcomes

import (
	"errors"
	"fmt"
	"strings"
)

const messageSeparator = "|"

// ErrInvalidMessage is returned when a queue payload cannot be decoded.
var ErrInvalidMessage = errors.New("invalid outcome message")

// Event is an advance created for the subject of a decision run.
type Event struct {
	RunID     string
	OutcomeID string
}

// EncodeMessage serializes an event as "runID|outcomeID".
func EncodeMessage(runID, outcomeID string) (string, error) {
	if runID == "" || outcomeID == "" {
		return "", fmt.Errorf("%w: run id and outcome id are required", ErrInvalidMessage)
	}
	if strings.Contains(runID, messageSeparator) {
		return "", fmt.Errorf("%w: run id must not contain %q", ErrInvalidMessage, messageSeparator)
	}
	return runID + messageSeparator + outcomeID, nil
}

// DecodeMessage parses a payload produced by EncodeMessage. The outcome id is
// everything after the first separator.
func DecodeMessage(msg string) (Event, error) {
	runID, outcomeID, ok := strings.Cut(msg, messageSeparator)
	if !ok || runID == "" || outcomeID == "" {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidMessage, msg)
	}
	return Event{RunID: runID, OutcomeID: outcomeID}, nil
}
