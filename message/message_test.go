package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobjgo/actorcore/message"
)

type ping struct{ n int }

func TestNewImmutableRoundTrip(t *testing.T) {
	r := message.NewImmutable(ping{n: 7})
	require.True(t, r.IsValid())
	assert.Equal(t, message.Immutable, r.Mutability())
	assert.Equal(t, ping{n: 7}, r.Payload())
}

func TestNewMutableRoundTrip(t *testing.T) {
	p := &ping{n: 1}
	r := message.NewMutable(p)
	assert.Equal(t, message.Mutable, r.Mutability())
	got := r.Payload().(*ping)
	got.n = 2
	assert.Equal(t, 2, p.n)
}

func TestAcquireReleaseDoesNotPanic(t *testing.T) {
	r := message.NewImmutable(ping{n: 1})
	other := r.Acquire()
	other.Release()
	r.Release()
}

func TestWrapUnwrap(t *testing.T) {
	inner := message.NewImmutable(ping{n: 3})
	outer := message.Wrap(inner)
	assert.Equal(t, inner.Payload(), outer.Payload())

	back := message.Unwrap(outer)
	require.True(t, back.IsValid())
	assert.Equal(t, inner.Payload(), back.Payload())

	assert.False(t, message.Unwrap(inner).IsValid())
}

func TestZeroRefIsInert(t *testing.T) {
	var r message.Ref
	assert.False(t, r.IsValid())
	assert.Nil(t, r.Payload())
	assert.Equal(t, message.Immutable, r.Mutability())
	r.Release()
}
