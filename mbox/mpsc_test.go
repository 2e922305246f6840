package mbox_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobjgo/actorcore/mbox"
	"github.com/sobjgo/actorcore/message"
)

func TestMPSCAcceptsMutableEnvelopes(t *testing.T) {
	box := mbox.NewMPSC(2, nil)
	p := &ping{}
	var received *ping
	require.NoError(t, box.Subscribe(reflect.TypeOf(p), nil, nil, func(payload any) error {
		received = payload.(*ping)
		return nil
	}))

	require.NoError(t, box.Deliver(message.NewMutable(p), nil))
	assert.Same(t, p, received)
}

func TestMPSCRejectsFilters(t *testing.T) {
	box := mbox.NewMPSC(2, nil)
	err := box.Subscribe(reflect.TypeOf(ping{}), nil, func(any) bool { return true }, func(any) error { return nil })
	assert.ErrorIs(t, err, mbox.ErrFilterOnMPSC)
}

func TestMPSCOnlyOneSubscriberReceives(t *testing.T) {
	box := mbox.NewMPSC(2, nil)
	calls := 0
	require.NoError(t, box.Subscribe(reflect.TypeOf(ping{}), nil, nil, func(any) error {
		calls++
		return nil
	}))
	require.NoError(t, box.Deliver(message.NewImmutable(ping{}), nil))
	assert.Equal(t, 1, calls)
}
