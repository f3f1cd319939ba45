// Package ticket defines the ticket-type inventory model shared by the
// validation and admission paths.
package ticket

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Type is a purchasable category for an event with its own price and a
// finite capacity. Capacity and Sold are authoritative only as read from
// the store; the invariant 0 <= Sold <= Capacity is enforced by the store's
// compare-and-increment, never by client input.
type Type struct {
	ID       string
	EventID  string
	Name     string
	Price    decimal.Decimal
	Capacity int
	Sold     int
}

// Available returns the number of units still sellable in this snapshot.
func (t Type) Available() int {
	return t.Capacity - t.Sold
}

// Repository provides read access to ticket types.
type Repository interface {
	// GetByIDs returns the ticket types matching the given IDs. IDs with no
	// matching row are simply absent from the result; callers decide whether
	// that is an error.
	GetByIDs(ctx context.Context, ids []string) ([]Type, error)
}

// NotFoundError indicates a referenced ticket type does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticket type %s not found", e.ID)
}

// CapacityError indicates a line requested more units than remain for a
// ticket type, either at validation time (advisory snapshot) or at commit
// time (authoritative compare-and-increment).
type CapacityError struct {
	TicketTypeID string
	Name         string
	Requested    int
	Remaining    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough tickets available for %s: only %d remaining", e.Name, e.Remaining)
}
