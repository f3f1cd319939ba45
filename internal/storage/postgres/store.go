package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketbird/boxoffice/internal/domain/order"
	"github.com/ticketbird/boxoffice/internal/domain/ticket"
)

const (
	getTicketTypesSQL = `SELECT id, event_id, name, price, capacity, sold
		FROM ticket_types WHERE id = ANY($1)`

	// The conditional update is the authoritative compare-and-increment:
	// zero rows affected means a concurrent admission consumed the remaining
	// units. The row lock it takes serializes all admissions against the
	// same ticket type until the transaction ends.
	reserveCapacitySQL = `UPDATE ticket_types
		SET sold = sold + $2
		WHERE id = $1 AND sold + $2 <= capacity`

	remainingSQL = `SELECT name, capacity - sold FROM ticket_types WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (
			id, event_id, ticket_type_id, quantity, total_price,
			customer_name, customer_email, customer_phone,
			payment_status, order_number, is_member, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	attachTokenSQL = `UPDATE orders SET redemption_token = $2 WHERE id = $1`
)

var (
	_ ticket.Repository = (*Store)(nil)
	_ order.Store       = (*Store)(nil)
)

// Store implements ticket reads and the atomic admission commit on a pgx
// pool. An optional known-ID filter rejects nonexistent ticket type IDs
// before they reach the database.
type Store struct {
	pool   *pgxpool.Pool
	filter *idFilter
}

// NewStore returns a Store using the given pool. The ID filter starts cold
// and passes everything through until StartIDFilterRefresh builds it.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, filter: newIDFilter()}
}

// GetByIDs returns the ticket types matching the given IDs. IDs the known-ID
// filter has confirmed absent are dropped without a database round trip; a
// fresh filter miss still reaches the database once, and the verdict is fed
// back so a type created after the last rebuild resolves immediately from
// then on.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]ticket.Type, error) {
	pass, unconfirmed := s.filter.prune(ids)
	lookup := append(pass, unconfirmed...)
	if len(lookup) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, getTicketTypesSQL, lookup)
	if err != nil {
		return nil, errors.Wrap(err, "query ticket types")
	}

	types, err := pgx.CollectRows(rows, scanTicketType)
	if err != nil {
		return nil, errors.Wrap(err, "scan ticket types")
	}

	if len(unconfirmed) > 0 {
		s.settleFilterMisses(unconfirmed, types)
	}
	return types, nil
}

// settleFilterMisses reports the database's answer for filter misses back to
// the known-ID filter.
func (s *Store) settleFilterMisses(unconfirmed []string, types []ticket.Type) {
	present := make(map[string]struct{}, len(types))
	for _, t := range types {
		present[t.ID] = struct{}{}
	}

	var found, absent []string
	for _, id := range unconfirmed {
		if _, ok := present[id]; ok {
			found = append(found, id)
		} else {
			absent = append(absent, id)
		}
	}
	s.filter.confirm(found, absent)
}

func scanTicketType(row pgx.CollectableRow) (ticket.Type, error) {
	var t ticket.Type
	err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.Price, &t.Capacity, &t.Sold)
	return t, err
}

// Admit reserves capacity and persists every order of one checkout in a
// single transaction. A capacity shortfall on any line rolls back the whole
// checkout; partial commit is never observable.
func (s *Store) Admit(ctx context.Context, orders []*order.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin admission")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, o := range orders {
		tag, err := tx.Exec(ctx, reserveCapacitySQL, o.TicketTypeID, o.Quantity)
		if err != nil {
			return errors.Wrapf(err, "reserve %d units of %s", o.Quantity, o.TicketTypeID)
		}
		if tag.RowsAffected() == 0 {
			return s.reserveFailure(ctx, tx, o)
		}
	}

	for _, o := range orders {
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.EventID, o.TicketTypeID, o.Quantity, o.TotalPrice,
			o.CustomerName, o.CustomerEmail, o.CustomerPhone,
			string(o.PaymentStatus), o.OrderNumber, o.IsMember, o.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order %s", o.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit admission")
	}
	return nil
}

// reserveFailure distinguishes a lost capacity race from a vanished ticket
// type. The remaining count read here includes units reserved by earlier
// lines of the same checkout, which is what the caller will see rolled back.
func (s *Store) reserveFailure(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	var (
		name      string
		remaining int
	)
	err := tx.QueryRow(ctx, remainingSQL, o.TicketTypeID).Scan(&name, &remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ticket.NotFoundError{ID: o.TicketTypeID}
		}
		return errors.Wrapf(err, "read remaining for %s", o.TicketTypeID)
	}

	return &ticket.CapacityError{
		TicketTypeID: o.TicketTypeID,
		Name:         name,
		Requested:    o.Quantity,
		Remaining:    remaining,
	}
}

// AttachToken writes the redemption token onto a persisted order.
func (s *Store) AttachToken(ctx context.Context, orderID, tok string) error {
	tag, err := s.pool.Exec(ctx, attachTokenSQL, orderID, tok)
	if err != nil {
		return errors.Wrapf(err, "attach token to order %s", orderID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("order %s not found", orderID)
	}
	return nil
}
