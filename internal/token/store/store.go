package store

import (
	"context"

	"trivigil/internal/token/models"
	dErrors "trivigil/pkg/domainerrors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across in-memory
	// and PostgreSQL implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

	// ErrDuplicateToken signals a uniqueness-constraint violation on create.
	// The issuer retries generation when it sees this.
	ErrDuplicateToken = dErrors.New(dErrors.CodeConflict, "token already exists")

	// ErrIdentityBound signals that a token is already bound to a different
	// buyer identity. Binding is first-presentation-wins.
	ErrIdentityBound = dErrors.New(dErrors.CodeConflict, "token bound to another buyer")
)

// Store is the durable mapping from token to verification record.
type Store interface {
	// Create inserts a fresh record. Returns ErrDuplicateToken when the
	// token already exists.
	Create(ctx context.Context, record *models.VerificationRecord) error

	// FindByToken returns the record for a token, or ErrNotFound.
	FindByToken(ctx context.Context, token string) (*models.VerificationRecord, error)

	// FindByBuyer returns the most recently created record bound to the
	// buyer identity, or ErrNotFound.
	FindByBuyer(ctx context.Context, buyer int64) (*models.VerificationRecord, error)

	// BindBuyer binds a buyer identity to a token. The bind succeeds when
	// the record is unbound or already bound to the same identity;
	// a different existing binding yields ErrIdentityBound.
	BindBuyer(ctx context.Context, token string, buyer int64) error

	// Update merges the non-nil fields of upd into the record and returns
	// the updated record, or ErrNotFound.
	Update(ctx context.Context, token string, upd models.RecordUpdate) (*models.VerificationRecord, error)

	// List returns up to limit records ordered by creation time, oldest
	// first. limit <= 0 means no cap.
	List(ctx context.Context, limit int) ([]*models.VerificationRecord, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)

	// Buyers returns the distinct buyer identities bound to any record.
	Buyers(ctx context.Context) ([]int64, error)

	// Health reports whether the backing storage is reachable.
	Health(ctx context.Context) error
}
