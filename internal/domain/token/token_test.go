package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoundTrip(t *testing.T) {
	issued := time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)

	tok := Generate("ord-1", "ORD-20260314-A1B2C3D4", "ada@example.com", issued)

	p, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", p.OrderID)
	assert.Equal(t, "ORD-20260314-A1B2C3D4", p.OrderNumber)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, issued.Truncate(time.Millisecond), p.IssuedAt)
}

func TestGenerateUniquePerOrder(t *testing.T) {
	now := time.Now()

	// Two lines of the same checkout share order number and email; the
	// order ID alone must keep their tokens distinct.
	a := Generate("ord-1", "ORD-20260314-A1B2C3D4", "ada@example.com", now)
	b := Generate("ord-2", "ORD-20260314-A1B2C3D4", "ada@example.com", now)
	assert.NotEqual(t, a, b)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("!!!not-base64!!!")
	require.Error(t, err)

	_, err = Decode("bm90LWpzb24")
	require.Error(t, err)
}
