package callbacks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned for notifications that cannot be parsed.
var ErrMalformedEvent = errors.New("malformed notification")

// Outcome is the resource status announced by a notification.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event is one of PayoutNormal, PayoutRefund or PayinNormal.
type Event interface {
	Kind() string
	Resource() string
	Announced() Outcome
	event()
}

// PayoutNormal announces a change on a payout to a participant's bank account.
type PayoutNormal struct {
	ResourceID string
	Outcome    Outcome
}

// PayoutRefund announces a change on a refund of a payout.
type PayoutRefund struct {
	ResourceID string
	Outcome    Outcome
}

// PayinNormal announces a change on an inbound payment, such as a bank wire.
type PayinNormal struct {
	ResourceID string
	Outcome    Outcome
}

func (e PayoutNormal) Kind() string       { return "PAYOUT_NORMAL" }
func (e PayoutNormal) Resource() string   { return e.ResourceID }
func (e PayoutNormal) Announced() Outcome { return e.Outcome }
func (PayoutNormal) event()               {}

func (e PayoutRefund) Kind() string       { return "PAYOUT_REFUND" }
func (e PayoutRefund) Resource() string   { return e.ResourceID }
func (e PayoutRefund) Announced() Outcome { return e.Outcome }
func (PayoutRefund) event()               {}

func (e PayinNormal) Kind() string       { return "PAYIN_NORMAL" }
func (e PayinNormal) Resource() string   { return e.ResourceID }
func (e PayinNormal) Announced() Outcome { return e.Outcome }
func (PayinNormal) event()               {}

// ParseEvent reads an event type such as PAYOUT_NORMAL_FAILED.
func ParseEvent(eventType, resourceID string) (Event, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, fmt.Errorf("%w: missing resource id", ErrMalformedEvent)
	}
	idx := strings.LastIndexByte(eventType, '_')
	if idx <= 0 {
		return nil, fmt.Errorf("%w: event type %q", ErrMalformedEvent, eventType)
	}
	kind, status := strings.ToUpper(eventType[:idx]), Outcome(strings.ToLower(eventType[idx+1:]))
	switch status {
	case OutcomeCreated, OutcomeSucceeded, OutcomeFailed:
	default:
		return nil, fmt.Errorf("%w: event status %q", ErrMalformedEvent, status)
	}

	switch kind {
	case "PAYOUT_NORMAL":
		return PayoutNormal{ResourceID: resourceID, Outcome: status}, nil
	case "PAYOUT_REFUND":
		return PayoutRefund{ResourceID: resourceID, Outcome: status}, nil
	case "PAYIN_NORMAL":
		return PayinNormal{ResourceID: resourceID, Outcome: status}, nil
	}
	return nil, fmt.Errorf("%w: event type %q", ErrMalformedEvent, eventType)
}

// EventName rebuilds the wire name of an event, e.g. PAYIN_NORMAL_SUCCEEDED.
func EventName(e Event) string {
	return e.Kind() + "_" + strings.ToUpper(string(e.Announced()))
}
