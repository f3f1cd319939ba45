package order_test

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/ticketbird/boxoffice/internal/domain/customer"
	"github.com/ticketbird/boxoffice/internal/domain/order"
	"github.com/ticketbird/boxoffice/internal/domain/ticket"
	"github.com/ticketbird/boxoffice/internal/domain/token"
	"github.com/ticketbird/boxoffice/internal/storage/memory"
)

// --- Mock implementations ---

type countingRepo struct {
	inner ticket.Repository
	calls int
}

func (r *countingRepo) GetByIDs(ctx context.Context, ids []string) ([]ticket.Type, error) {
	r.calls++
	if r.inner == nil {
		return nil, nil
	}
	return r.inner.GetByIDs(ctx, ids)
}

type flakyStore struct {
	order.Store
	attachErr error
	attached  map[string]string
}

func (s *flakyStore) AttachToken(ctx context.Context, orderID, tok string) error {
	if s.attachErr != nil {
		return s.attachErr
	}
	if s.attached == nil {
		s.attached = make(map[string]string)
	}
	s.attached[orderID] = tok
	return s.Store.AttachToken(ctx, orderID, tok)
}

// --- Helpers ---

func seededStore(t *testing.T, types ...ticket.Type) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, tt := range types {
		s.SeedTicketType(tt)
	}
	return s
}

func generalAdmission(capacity, sold int) ticket.Type {
	return ticket.Type{
		ID:       "tt1",
		EventID:  "ev1",
		Name:     "General Admission",
		Price:    decimal.RequireFromString("25.00"),
		Capacity: capacity,
		Sold:     sold,
	}
}

func validRequest(lines ...order.Line) order.CheckoutRequest {
	return order.CheckoutRequest{
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "Ada@Example.com",
		CustomerPhone: "+1 (555) 867-5309",
		Lines:         lines,
	}
}

func newService(t *testing.T, s *memory.Store) *order.Service {
	t.Helper()
	return order.NewService(s, s, zaptest.NewLogger(t))
}

// --- Tests ---

func TestCheckout_SanitizerRunsBeforeInventoryRead(t *testing.T) {
	repo := &countingRepo{}
	svc := order.NewService(repo, memory.New(), zaptest.NewLogger(t))

	req := validRequest(order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1})
	req.CustomerEmail = "not-an-email"

	_, err := svc.Checkout(context.Background(), req)

	var verr *customer.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "customer_email", verr.Field)
	assert.Zero(t, repo.calls, "no inventory read may happen for invalid input")
}

func TestCheckout_EmptyLines(t *testing.T) {
	repo := &countingRepo{}
	svc := order.NewService(repo, memory.New(), zaptest.NewLogger(t))

	_, err := svc.Checkout(context.Background(), validRequest())
	require.ErrorIs(t, err, order.ErrNoLines)
	assert.Zero(t, repo.calls)
}

func TestCheckout_TicketTypeNotFound(t *testing.T) {
	s := seededStore(t, generalAdmission(10, 0))
	svc := newService(t, s)

	_, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "ghost", Quantity: 1},
	))

	var nfErr *ticket.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "ghost", nfErr.ID)

	// No state mutated.
	tt, _ := s.TicketType("tt1")
	assert.Equal(t, 0, tt.Sold)
	assert.Empty(t, s.Orders())
}

func TestCheckout_LastUnit(t *testing.T) {
	s := seededStore(t, generalAdmission(10, 9))
	svc := newService(t, s)

	res, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1},
	))
	require.NoError(t, err)

	tt, _ := s.TicketType("tt1")
	assert.Equal(t, 10, tt.Sold)
	assert.True(t, decimal.RequireFromString("25.00").Equal(res.Total))
	assert.Equal(t, order.PaymentPending, res.PaymentStatus)
	require.Len(t, res.Passes, 1)
	assert.Equal(t, res.OrderNumber, res.Passes[0].OrderNumber)
}

func TestCheckout_TwoConcurrentForLastUnit(t *testing.T) {
	s := seededStore(t, generalAdmission(10, 9))
	svc := newService(t, s)

	results := make([]error, 2)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			_, err := svc.Checkout(context.Background(), validRequest(
				order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1},
			))
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var committed, rejected int
	for _, err := range results {
		if err == nil {
			committed++
			continue
		}
		var capErr *ticket.CapacityError
		require.ErrorAs(t, err, &capErr)
		rejected++
	}

	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)
	tt, _ := s.TicketType("tt1")
	assert.Equal(t, 10, tt.Sold)
}

func TestCheckout_TwoLineShortfallRejectsWhole(t *testing.T) {
	// Line 1 fits by itself; line 2 cannot. All-or-nothing: neither commits.
	s := seededStore(t,
		generalAdmission(10, 9),
		ticket.Type{
			ID: "tt2", EventID: "ev1", Name: "VIP",
			Price: decimal.RequireFromString("100.00"), Capacity: 5, Sold: 5,
		},
	)
	svc := newService(t, s)

	_, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1},
		order.Line{EventID: "ev1", TicketTypeID: "tt2", Quantity: 1},
	))

	var capErr *ticket.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "VIP", capErr.Name)

	tt1, _ := s.TicketType("tt1")
	assert.Equal(t, 9, tt1.Sold, "sibling line must not stay committed")
	assert.Empty(t, s.Orders())
}

func TestCheckout_ZeroTotalIsCompleted(t *testing.T) {
	s := seededStore(t, ticket.Type{
		ID: "tt1", EventID: "ev1", Name: "Free Entry",
		Price: decimal.Zero, Capacity: 100, Sold: 0,
	})
	svc := newService(t, s)

	res, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, res.PaymentStatus)
	assert.True(t, res.Total.IsZero())

	for _, o := range s.Orders() {
		assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
	}
}

func TestCheckout_OrdersCarrySanitizedCustomer(t *testing.T) {
	s := seededStore(t, generalAdmission(10, 0))
	svc := newService(t, s)

	res, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1, IsMember: true},
	))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", res.Customer.Email)

	orders := s.Orders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "Ada Lovelace", o.CustomerName)
	assert.Equal(t, "ada@example.com", o.CustomerEmail)
	assert.Equal(t, "+15558675309", o.CustomerPhone)
	assert.True(t, o.IsMember)
	assert.True(t, decimal.RequireFromString("20.00").Equal(o.TotalPrice))
	assert.Equal(t, res.OrderNumber, o.OrderNumber)
}

func TestCheckout_TokensAttachedAndDecodable(t *testing.T) {
	s := seededStore(t, generalAdmission(10, 0))
	svc := newService(t, s)

	res, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, res.Passes, 1)

	p, err := token.Decode(res.Passes[0].Token)
	require.NoError(t, err)
	assert.Equal(t, res.Passes[0].OrderID, p.OrderID)
	assert.Equal(t, res.OrderNumber, p.OrderNumber)
	assert.Equal(t, "ada@example.com", p.Email)

	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, res.Passes[0].Token, orders[0].Token)
}

func TestCheckout_TokenAttachFailureIsNonFatal(t *testing.T) {
	s := seededStore(t, generalAdmission(10, 0))
	st := &flakyStore{Store: s, attachErr: errors.New("write timeout")}
	svc := order.NewService(s, st, zaptest.NewLogger(t))

	res, err := svc.Checkout(context.Background(), validRequest(
		order.Line{EventID: "ev1", TicketTypeID: "tt1", Quantity: 1},
	))
	require.NoError(t, err, "order commit is authoritative regardless of token write")

	// Caller still receives a usable token.
	require.Len(t, res.Passes, 1)
	assert.NotEmpty(t, res.Passes[0].Token)

	// Capacity stays reserved.
	tt, _ := s.TicketType("tt1")
	assert.Equal(t, 1, tt.Sold)
}
