package order

import (
	"crypto/rand"
	"fmt"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber generates a checkout-scoped order number of the form
// ORD-<YYYYMMDD>-<8 random base36 chars>. Every line of one checkout shares
// the number; uniqueness across checkouts comes from the random suffix. The
// date segment is the UTC date, independent of the server zone.
func NewOrderNumber(now time.Time) string {
	var buf [8]byte
	// rand.Read never fails on supported platforms; it panics internally
	// if the kernel source is broken, which is the right behavior here.
	_, _ = rand.Read(buf[:])

	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}

	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
