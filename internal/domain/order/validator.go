package order

import (
	"github.com/shopspring/decimal"

	"github.com/ticketbird/boxoffice/internal/domain/ticket"
)

// memberDiscount is the fixed multiplier applied to the unit price when the
// buyer holds a membership.
var memberDiscount = decimal.RequireFromString("0.8")

// UniqueTicketTypeIDs returns the distinct ticket type IDs referenced by the
// lines, in first-seen order.
func UniqueTicketTypeIDs(lines []Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.TicketTypeID]; ok {
			continue
		}
		seen[l.TicketTypeID] = struct{}{}
		ids = append(ids, l.TicketTypeID)
	}
	return ids
}

// ValidateLines re-derives trusted pricing and checks availability for every
// line against the given inventory snapshot. It is pure: re-running it on the
// same lines and snapshot yields the same result.
//
// types must be the store's answer for exactly the lines' referenced IDs; a
// line whose ticket type is missing from the slice fails with
// *ticket.NotFoundError rather than being dropped. The capacity check here is
// advisory only — it uses the snapshot's sold counts and is re-performed
// authoritatively inside the admission transaction.
func ValidateLines(lines []Line, types []ticket.Type) ([]ValidatedLine, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, ErrNoLines
	}

	byID := make(map[string]ticket.Type, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	validated := make([]ValidatedLine, 0, len(lines))
	total := decimal.Zero

	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, decimal.Zero, &InvalidQuantityError{TicketTypeID: l.TicketTypeID}
		}

		t, ok := byID[l.TicketTypeID]
		if !ok {
			return nil, decimal.Zero, &ticket.NotFoundError{ID: l.TicketTypeID}
		}

		if available := t.Available(); l.Quantity > available {
			return nil, decimal.Zero, &ticket.CapacityError{
				TicketTypeID: t.ID,
				Name:         t.Name,
				Requested:    l.Quantity,
				Remaining:    available,
			}
		}

		// Client-supplied prices never reach this point; the unit price is
		// re-derived from the stored ticket type.
		unit := t.Price
		if l.IsMember {
			unit = unit.Mul(memberDiscount)
		}
		lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)

		validated = append(validated, ValidatedLine{
			Line:      l,
			UnitPrice: unit,
			Total:     lineTotal,
			Capacity:  t.Capacity,
			Sold:      t.Sold,
		})
		// Each line is rounded before summing; the grand total is the sum of
		// rounded line totals, not a single rounding at the end.
		total = total.Add(lineTotal)
	}

	return validated, total, nil
}
