package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastToUser(t *testing.T) {
	h := NewHub()
	a1, a2 := NewClient(1, "CUSTOMER"), NewClient(1, "CUSTOMER")
	b := NewClient(2, "CUSTOMER")
	for _, c := range []*Client{a1, a2, b} {
		h.Register(c)
	}
	assert.Equal(t, 3, h.ClientCount())

	n, err := h.BroadcastToUser(1, map[string]string{"type": "payment.completed"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, b.Send, 0)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(<-a1.Send, &msg))
	assert.Equal(t, "payment.completed", msg["type"])

	n, err = h.BroadcastToUser(99, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_CloseUnregisters(t *testing.T) {
	h := NewHub()
	c := NewClient(1, "CUSTOMER")
	h.Register(c)
	c.Close()
	c.Close()

	assert.Zero(t, h.ClientCount())
	n, err := h.BroadcastToUser(1, "late")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, c.trySend([]byte("x")))
}

func TestHub_DropsForSlowClient(t *testing.T) {
	h := NewHub()
	c := NewClient(1, "CUSTOMER")
	h.Register(c)
	for i := 0; i < cap(c.Send); i++ {
		require.True(t, c.trySend([]byte("fill")))
	}
	n, err := h.BroadcastToUser(1, "overflow")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_MarshalError(t *testing.T) {
	_, err := NewHub().BroadcastToUser(1, make(chan int))
	assert.Error(t, err)
}
