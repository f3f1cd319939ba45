// Package memory provides an in-process inventory store with the same
// admission semantics as the PostgreSQL store: a mutex-guarded
// compare-and-increment with all-or-nothing checkout commits. It backs unit
// tests and the dev mode; it is not durable.
package memory

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/ticketbird/boxoffice/internal/domain/order"
	"github.com/ticketbird/boxoffice/internal/domain/ticket"
)

// Store holds ticket types and orders behind one mutex. The single lock is
// what makes Admit linearizable with respect to every other admission.
type Store struct {
	mu     sync.Mutex
	types  map[string]ticket.Type
	orders map[string]order.Order
}

var (
	_ ticket.Repository = (*Store)(nil)
	_ order.Store       = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		types:  make(map[string]ticket.Type),
		orders: make(map[string]order.Order),
	}
}

// SeedTicketType inserts or replaces a ticket type.
func (s *Store) SeedTicketType(t ticket.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t.ID] = t
}

// GetByIDs returns the ticket types that exist for the given IDs.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]ticket.Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ticket.Type, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.types[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Admit reserves capacity and persists every order of one checkout, or does
// nothing at all. The capacity check is staged first across all lines
// (including multiple lines on the same ticket type), then applied.
func (s *Store) Admit(_ context.Context, orders []*order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage: verify sold + pending + quantity fits for every line.
	pending := make(map[string]int, len(orders))
	for _, o := range orders {
		t, ok := s.types[o.TicketTypeID]
		if !ok {
			return &ticket.NotFoundError{ID: o.TicketTypeID}
		}
		if t.Sold+pending[t.ID]+o.Quantity > t.Capacity {
			return &ticket.CapacityError{
				TicketTypeID: t.ID,
				Name:         t.Name,
				Requested:    o.Quantity,
				Remaining:    t.Capacity - t.Sold - pending[t.ID],
			}
		}
		pending[t.ID] += o.Quantity
	}

	// Apply: increment counters and persist order copies.
	for id, qty := range pending {
		t := s.types[id]
		t.Sold += qty
		s.types[id] = t
	}
	for _, o := range orders {
		s.orders[o.ID] = *o
	}
	return nil
}

// AttachToken writes the redemption token onto a persisted order.
func (s *Store) AttachToken(_ context.Context, orderID, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return errors.Errorf("order %s not found", orderID)
	}
	o.Token = tok
	s.orders[orderID] = o
	return nil
}

// TicketType returns a snapshot of one ticket type, for assertions.
func (s *Store) TicketType(id string) (ticket.Type, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[id]
	return t, ok
}

// Orders returns a snapshot of all persisted orders, for assertions.
func (s *Store) Orders() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}
