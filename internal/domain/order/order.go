// Package order implements the order admission path: re-validating untrusted
// checkout lines against the authoritative ticket inventory, reserving
// capacity atomically, and persisting the resulting orders.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ticketbird/boxoffice/internal/domain/customer"
)

// PaymentStatus is derived from the checkout total, never requested by the
// client: a zero-total checkout is complete, anything else awaits payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Line is one untrusted (ticket type, quantity) pair from a client checkout.
// Any client-supplied display fields (names, prices) are dropped at the HTTP
// boundary and never reach this type.
type Line struct {
	EventID      string
	TicketTypeID string
	Quantity     int
	IsMember     bool
}

// ValidatedLine is a Line after server-side re-pricing and an advisory
// capacity check. Capacity and Sold record the inventory snapshot the check
// ran against; the authoritative check happens again inside the admission
// transaction.
type ValidatedLine struct {
	Line

	UnitPrice decimal.Decimal
	Total     decimal.Decimal // UnitPrice × Quantity, rounded to 2 places
	Capacity  int
	Sold      int
}

// Order is one persisted record per validated line. Orders are append-only:
// after the admission commit the only permitted mutation is attaching the
// redemption token.
type Order struct {
	ID            string
	EventID       string
	TicketTypeID  string
	Quantity      int
	TotalPrice    decimal.Decimal
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	PaymentStatus PaymentStatus
	OrderNumber   string
	IsMember      bool
	Token         string
	CreatedAt     time.Time
}

// Store is the inventory store the admission path commits through.
type Store interface {
	// Admit atomically reserves capacity and persists every order of one
	// checkout. For each order it performs a compare-and-increment on the
	// ticket type's sold counter; the whole batch commits or none of it
	// does. A capacity race lost to a concurrent admission surfaces as
	// *ticket.CapacityError with no state changed.
	Admit(ctx context.Context, orders []*Order) error

	// AttachToken writes the redemption token onto a persisted order.
	AttachToken(ctx context.Context, orderID, tok string) error
}

// ErrNoLines rejects a checkout that carries no order lines.
var ErrNoLines = fmt.Errorf("missing required fields")

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	TicketTypeID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for ticket type %s", e.TicketTypeID)
}

// CheckoutRequest is the sanitizer-facing input for one checkout.
type CheckoutRequest struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Lines         []Line
}

// Pass is the redemption handle for one committed order.
type Pass struct {
	OrderID     string
	OrderNumber string
	Token       string
}

// CheckoutResult is the outcome of a fully committed checkout.
type CheckoutResult struct {
	OrderNumber   string
	Total         decimal.Decimal
	PaymentStatus PaymentStatus
	Customer      customer.Customer
	Passes        []Pass
}
