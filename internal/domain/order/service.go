package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketbird/boxoffice/internal/domain/customer"
	"github.com/ticketbird/boxoffice/internal/domain/ticket"
	"github.com/ticketbird/boxoffice/internal/domain/token"
)

// Service runs the admission path for one checkout: sanitize, validate,
// re-price, atomically reserve capacity, persist orders, and issue redemption
// tokens.
type Service struct {
	tickets ticket.Repository
	store   Store
	retry   *tokenRetrier
	lg      *zap.Logger

	now func() time.Time
}

// NewService creates an order Service. Call RunTokenRetry to start the
// background compensation loop for failed token writes.
func NewService(tickets ticket.Repository, store Store, lg *zap.Logger) *Service {
	return &Service{
		tickets: tickets,
		store:   store,
		retry:   newTokenRetrier(store, lg),
		lg:      lg,
		now:     time.Now,
	}
}

// Checkout admits a candidate order. On success every line is committed; on
// any failure nothing is: the store commits all lines of a checkout in one
// transaction, so a capacity shortfall on a later line rolls back its
// siblings and the whole checkout is rejected.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	// Sanitize before any inventory read; no store access happens for a
	// malformed customer.
	cust, err := customer.Sanitize(req.CustomerName, req.CustomerEmail, req.CustomerPhone)
	if err != nil {
		return nil, err
	}

	if len(req.Lines) == 0 {
		return nil, ErrNoLines
	}

	ids := UniqueTicketTypeIDs(req.Lines)
	types, err := s.tickets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "fetch ticket types")
	}
	// The store answers only for rows that exist; a short result means some
	// referenced ticket type does not.
	if len(types) != len(ids) {
		return nil, missingTicketType(ids, types)
	}

	validated, total, err := ValidateLines(req.Lines, types)
	if err != nil {
		return nil, err
	}

	status := PaymentPending
	if total.IsZero() {
		status = PaymentCompleted
	}

	now := s.now()
	number := NewOrderNumber(now)

	orders := make([]*Order, len(validated))
	for i, v := range validated {
		orders[i] = &Order{
			ID:            uuid.New().String(),
			EventID:       v.EventID,
			TicketTypeID:  v.TicketTypeID,
			Quantity:      v.Quantity,
			TotalPrice:    v.Total,
			CustomerName:  cust.Name,
			CustomerEmail: cust.Email,
			CustomerPhone: cust.Phone,
			PaymentStatus: status,
			OrderNumber:   number,
			IsMember:      v.IsMember,
			CreatedAt:     now,
		}
	}

	if err := s.store.Admit(ctx, orders); err != nil {
		return nil, err
	}

	// The admission commit is authoritative from here on. A failed token
	// write must not fail the checkout: the token is still returned to the
	// caller, and the persisted copy is retried in the background.
	passes := make([]Pass, len(orders))
	for i, o := range orders {
		tok := token.Generate(o.ID, number, cust.Email, s.now())
		o.Token = tok
		passes[i] = Pass{OrderID: o.ID, OrderNumber: number, Token: tok}

		if err := s.store.AttachToken(ctx, o.ID, tok); err != nil {
			s.lg.Warn("token attach failed, queued for retry",
				zap.String("order_id", o.ID),
				zap.String("order_number", number),
				zap.Error(err),
			)
			s.retry.enqueue(o.ID, tok)
		}
	}

	return &CheckoutResult{
		OrderNumber:   number,
		Total:         total,
		PaymentStatus: status,
		Customer:      cust,
		Passes:        passes,
	}, nil
}

// RunTokenRetry runs the background loop that re-attempts failed token
// writes until ctx is cancelled. Start it once, next to the HTTP server.
func (s *Service) RunTokenRetry(ctx context.Context) {
	s.retry.run(ctx)
}

// missingTicketType names a ticket type absent from the fetched set.
func missingTicketType(ids []string, types []ticket.Type) error {
	found := make(map[string]struct{}, len(types))
	for _, t := range types {
		found[t.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return &ticket.NotFoundError{ID: id}
		}
	}
	// Unreachable when the store honors its contract.
	return &ticket.NotFoundError{ID: "unknown"}
}
