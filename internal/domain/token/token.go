// Package token produces redemption tokens for committed orders.
//
// A token binds the order ID, order number, customer email, and a generation
// timestamp into a JSON payload encoded as URL-safe base64. The encoding is
// reversible and unsigned: anyone holding a token can read it, and anyone who
// knows the field layout can forge one. That matches the contract the
// redemption side currently expects; switch to an HMAC-signed payload if
// redemption integrity ever matters.
package token

import (
	"encoding/base64"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Payload is the decoded content of a redemption token.
type Payload struct {
	OrderID     string
	OrderNumber string
	Email       string
	IssuedAt    time.Time
}

// Generate encodes a redemption token for one committed order. The order ID
// and millisecond timestamp together make collisions negligible at any
// realistic load.
func Generate(orderID, orderNumber, email string, now time.Time) string {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("d", func(e *jx.Encoder) { e.Str(orderID) })
		e.Field("o", func(e *jx.Encoder) { e.Str(orderNumber) })
		e.Field("e", func(e *jx.Encoder) { e.Str(email) })
		e.Field("t", func(e *jx.Encoder) { e.Int64(now.UnixMilli()) })
	})
	return base64.RawURLEncoding.EncodeToString(e.Bytes())
}

// Decode parses a token back into its payload. Used by the redemption side
// and by tests; order creation never decodes.
func Decode(tok string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return Payload{}, errors.Wrap(err, "decode base64")
	}

	var (
		p      Payload
		millis int64
	)
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "d":
			p.OrderID, err = d.Str()
		case "o":
			p.OrderNumber, err = d.Str()
		case "e":
			p.Email, err = d.Str()
		case "t":
			millis, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return Payload{}, errors.Wrap(err, "decode payload")
	}

	p.IssuedAt = time.UnixMilli(millis).UTC()
	return p, nil
}
