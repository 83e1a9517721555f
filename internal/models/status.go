package models

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned when a status string is not one of the known
// lifecycle labels.
var ErrUnknownStatus = errors.New("unknown order status")

// Status is the order lifecycle state. The wire values are the Portuguese
// labels shown to customers; they are part of the durable contract and must
// not be renamed.
type Status string

const (
	StatusCreated   Status = "pedido feito"
	StatusConfirmed Status = "em separação"
	StatusShipped   Status = "enviado"
	StatusDelivered Status = "entregue"
)

// transitions maps each status to its only allowed successor. Delivered is
// terminal. The order lifecycle moves strictly forward, one step at a time.
var transitions = map[Status]Status{
	StatusCreated:   StatusConfirmed,
	StatusConfirmed: StatusShipped,
	StatusShipped:   StatusDelivered,
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusConfirmed, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// CanTransitionTo reports whether the move s -> next is in the allowed
// transition table. Backward moves and skipped states are never allowed.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s] == next
}

// ParseStatus validates a client-supplied status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// InvalidTransitionError is returned when an order status update is not in
// the allowed transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %q -> %q", e.From, e.To)
}
