package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_Broadcast(t *testing.T) {
	h := NewHub[int]("numbers")
	a := h.Subscribe(1)
	b := h.Subscribe(1)

	assert.Equal(t, 0, h.Broadcast(1), "no subscriber should drop the first value")
	assert.Equal(t, 1, <-a.Stream)
	assert.Equal(t, 1, <-b.Stream)
	assert.Equal(t, "numbers", a.Topic)

	// a is drained, b is not
	h.Broadcast(2)
	<-a.Stream
	assert.Equal(t, 1, h.Broadcast(3), "full subscriber should drop without blocking")
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub[string]("events")
	sub := h.Subscribe(0)

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.Stream
	assert.False(t, ok, "stream should be closed")
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Broadcast("x"))
}

func TestSplitChannel(t *testing.T) {
	assert.Equal(t, []string{"order_book", "0"}, SplitChannel("order_book:0"))
	assert.Equal(t, []string{"order_book", "12"}, SplitChannel("order_book/12"))
	assert.Equal(t, []string{"account_market", "7", "1"}, SplitChannel("account_market/7/1"))
}
