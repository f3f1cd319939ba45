package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ticketbird/boxoffice/internal/domain/customer"
	"github.com/ticketbird/boxoffice/internal/domain/order"
	"github.com/ticketbird/boxoffice/internal/domain/ticket"
)

// decodeBufSize is the jx read buffer for request bodies.
const decodeBufSize = 4096

// CreateOrder handles POST /api/orders: one checkout in, one confirmation or
// error out.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, err := decodeCheckout(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		status, msg := mapCheckoutError(err)
		if status == http.StatusInternalServerError {
			// Storage detail stays in the logs; the body gets a generic
			// message only.
			zctx.From(r.Context()).Error("checkout failed", zap.Error(err))
		}
		respondError(w, status, msg)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("order.number", res.OrderNumber),
		attribute.Int("order.passes", len(res.Passes)),
	)

	respondConfirmation(w, res)
}

// decodeCheckout parses the request body into a typed checkout request.
// Client-supplied display fields (event names, prices) are advisory only and
// are skipped here so they can never reach a computation.
func decodeCheckout(r *http.Request) (order.CheckoutRequest, error) {
	var req order.CheckoutRequest

	d := jx.Decode(r.Body, decodeBufSize)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_name":
			req.CustomerName, err = d.Str()
		case "customer_email":
			req.CustomerEmail, err = d.Str()
		case "customer_phone":
			req.CustomerPhone, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return order.CheckoutRequest{}, errors.Wrap(err, "decode checkout")
	}
	return req, nil
}

func decodeLine(d *jx.Decoder) (order.Line, error) {
	var line order.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "event_id":
			line.EventID, err = d.Str()
		case "ticket_type_id":
			line.TicketTypeID, err = d.Str()
		case "quantity":
			line.Quantity, err = d.Int()
		case "is_member":
			line.IsMember, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return line, err
}

// mapCheckoutError converts domain errors to an HTTP status and a safe,
// human-readable message. Anything unrecognized is a storage-layer failure.
func mapCheckoutError(err error) (int, string) {
	var (
		vErr  *customer.ValidationError
		iqErr *order.InvalidQuantityError
		nfErr *ticket.NotFoundError
		cErr  *ticket.CapacityError
	)
	switch {
	case errors.Is(err, order.ErrNoLines):
		return http.StatusBadRequest, "Missing required fields"
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.As(err, &iqErr):
		return http.StatusBadRequest, iqErr.Error()
	case errors.As(err, &nfErr):
		return http.StatusBadRequest, nfErr.Error()
	case errors.As(err, &cErr):
		return http.StatusBadRequest, cErr.Error()
	default:
		return http.StatusInternalServerError, "Failed to create order"
	}
}
