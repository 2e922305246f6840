package mbox_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/message"
)

func TestChainFIFOOrdering(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(message.NewImmutable(i)))
	}
	for i := 0; i < 5; i++ {
		r, err := c.Receive()
		require.NoError(t, err)
		assert.Equal(t, i, r.Payload())
	}
}

func TestChainThrowOnOverflow(t *testing.T) {
	c := mbox.NewChain(0, 1, mbox.Throw, mbox.Preallocated)
	require.NoError(t, c.Send(message.NewImmutable(1)))
	err := c.Send(message.NewImmutable(2))
	assert.ErrorIs(t, err, mbox.ErrChainFull)
}

func TestChainDropOldestOnOverflow(t *testing.T) {
	c := mbox.NewChain(0, 2, mbox.DropOldest, mbox.Preallocated)
	require.NoError(t, c.Send(message.NewImmutable(1)))
	require.NoError(t, c.Send(message.NewImmutable(2)))
	require.NoError(t, c.Send(message.NewImmutable(3)))

	r, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Payload(), "oldest entry (1) should have been evicted")
}

func TestChainDropNewestOnOverflow(t *testing.T) {
	c := mbox.NewChain(0, 1, mbox.DropNewest, mbox.Preallocated)
	require.NoError(t, c.Send(message.NewImmutable(1)))
	require.NoError(t, c.Send(message.NewImmutable(2)))

	r, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Payload())
	assert.Equal(t, 0, c.Len())
}

func TestChainReceiveEmptyTimeout(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	_, err := c.Receive(mbox.EmptyTimeout(10 * time.Millisecond))
	assert.ErrorIs(t, err, mbox.ErrChainEmptyTimeout)
}

func TestChainCloseDropContentFailsPendingReceive(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	require.NoError(t, c.Send(message.NewImmutable(1)))
	c.CloseDropContent()

	_, err := c.Receive()
	assert.ErrorIs(t, err, mbox.ErrChainClosed)
}

func TestChainCloseRetainContentDrainsThenCloses(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	require.NoError(t, c.Send(message.NewImmutable(1)))
	c.CloseRetainContent()

	r, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Payload())

	_, err = c.Receive()
	assert.ErrorIs(t, err, mbox.ErrChainClosed)
}

func TestChainCloseRetainContentFailsPendingSend(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	c.CloseRetainContent()
	err := c.Send(message.NewImmutable(1))
	assert.ErrorIs(t, err, mbox.ErrChainClosed)
}

func TestChainDrainHandlesUpToN(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(message.NewImmutable(i)))
	}
	var seen []int
	handled, err := c.Drain(func(r message.Ref) {
		seen = append(seen, r.Payload().(int))
	}, mbox.HandleN(3))
	require.NoError(t, err)
	assert.Equal(t, 3, handled)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestSelectReceivesFromReadyChain(t *testing.T) {
	c1 := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	c2 := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	require.NoError(t, c2.Send(message.NewImmutable("hello")))

	var got any
	idx, err := mbox.Select(time.Second,
		[]mbox.ReceiveCase{
			{Chain: c1, Handler: func(r message.Ref) { got = r.Payload() }},
			{Chain: c2, Handler: func(r message.Ref) { got = r.Payload() }},
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "hello", got)
}

func TestSelectSendCase(t *testing.T) {
	c := mbox.NewChain(0, 1, mbox.Throw, mbox.Preallocated)
	sent := false
	idx, err := mbox.Select(time.Second, nil, []mbox.SendCase{
		{Chain: c, Payload: message.NewImmutable(7), OnSent: func() { sent = true }},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.True(t, sent)
	assert.Equal(t, 1, c.Len())
}

func TestSelectTimesOutWhenNothingReady(t *testing.T) {
	c := mbox.NewChain(0, 0, mbox.Throw, mbox.Dynamic)
	_, err := mbox.Select(20*time.Millisecond, []mbox.ReceiveCase{
		{Chain: c, Handler: func(message.Ref) {}},
	}, nil)
	assert.ErrorIs(t, err, mbox.ErrChainEmptyTimeout)
}
