// Package handler is the HTTP boundary of the order admission service: it
// parses the untrusted request into a strictly typed checkout, delegates to
// the order service, and maps the result or error onto the wire contract.
package handler

import (
	"context"
	"net/http"

	"github.com/ticketbird/boxoffice/internal/domain/order"
)

// OrderPlacer is the slice of the order service the handler needs.
type OrderPlacer interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error)
}

// Handler serves the order-creation endpoint.
type Handler struct {
	orders OrderPlacer
}

// New constructs a Handler.
func New(orders OrderPlacer) *Handler {
	return &Handler{orders: orders}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/orders", h.CreateOrder)
}
