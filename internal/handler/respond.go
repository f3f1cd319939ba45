package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/ticketbird/boxoffice/internal/domain/order"
)

// respondConfirmation writes the success payload for a committed checkout.
// Pure shaping: every value comes from the checkout result.
func respondConfirmation(w http.ResponseWriter, res *order.CheckoutResult) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(res.OrderNumber) })
		e.Field("totalPrice", func(e *jx.Encoder) {
			e.Num(jx.Num(res.Total.StringFixed(2)))
		})
		e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(res.PaymentStatus)) })
		e.Field("qrCodes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range res.Passes {
					e.Obj(func(e *jx.Encoder) {
						e.Field("orderId", func(e *jx.Encoder) { e.Str(p.OrderID) })
						e.Field("orderNumber", func(e *jx.Encoder) { e.Str(p.OrderNumber) })
						e.Field("qrCode", func(e *jx.Encoder) { e.Str(p.Token) })
					})
				}
			})
		})
	})

	writeJSON(w, http.StatusOK, e.Bytes())
}

// respondError writes the error payload: {"error": msg}.
func respondError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
