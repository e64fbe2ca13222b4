// Package session tracks the per-buyer conversation state between
// /verify and reference submission. A session carries the token it was
// opened with so the second step never has to re-derive the record from
// a buyer-identity lookup.
package session

import (
	"context"
	"time"
)

// Session is one open verification conversation.
type Session struct {
	BuyerID   int64     `json:"buyer_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds at most one session per buyer. Implementations expire
// sessions after the configured TTL; Get never returns an expired one.
type Store interface {
	// Put opens or re-arms the buyer's session, replacing any prior one.
	Put(ctx context.Context, s Session) error

	// Get returns the buyer's live session, or nil when there is none.
	Get(ctx context.Context, buyer int64) (*Session, error)

	// Delete closes the buyer's session. Deleting a missing session is
	// not an error.
	Delete(ctx context.Context, buyer int64) error
}
