package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewInMemoryStore(time.Minute)
	ctx := context.Background()

	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got, "no session yet")

	require.NoError(t, s.Put(ctx, Session{BuyerID: 7, Token: "NAT-AAAAAAAA", CreatedAt: time.Now()}))

	got, err = s.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "NAT-AAAAAAAA", got.Token)

	require.NoError(t, s.Delete(ctx, 7))
	got, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreReArmReplacesSession(t *testing.T) {
	s := NewInMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Session{BuyerID: 7, Token: "NAT-AAAAAAAA", CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, Session{BuyerID: 7, Token: "NAT-BBBBBBBB", CreatedAt: time.Now()}))

	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "NAT-BBBBBBBB", got.Token)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Now()
	s := NewInMemoryStore(15*time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Session{BuyerID: 7, Token: "NAT-AAAAAAAA", CreatedAt: now}))

	now = now.Add(14 * time.Minute)
	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.NotNil(t, got, "still live before TTL")

	now = now.Add(2 * time.Minute)
	got, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got, "expired after TTL")
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Now()
	s := NewInMemoryStore(time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Session{BuyerID: 1, Token: "NAT-AAAAAAAA", CreatedAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, s.Put(ctx, Session{BuyerID: 2, Token: "NAT-BBBBBBBB", CreatedAt: now}))

	assert.Equal(t, 1, s.Sweep())

	got, err := s.Get(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, got, "live session survives sweep")
}
