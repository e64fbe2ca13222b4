package issuer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trivigil/internal/token/models"
	"trivigil/internal/token/store"
	dErrors "trivigil/pkg/domainerrors"
)

// Tokens are PRODUCT-XXXXXXXX with an uppercase alphanumeric suffix.
// 8 characters over 36 symbols is roughly a 2^41 space, so collisions
// are rare; the store's uniqueness constraint catches the rest.
const (
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength   = 8
	maxAttempts    = 5
)

// Issuer mints purchase tokens and inserts their unverified records.
type Issuer struct {
	store          store.Store
	logger         *slog.Logger
	downloadLink   string
	defaultProduct string
	clock          func() time.Time
}

type Option func(*Issuer)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

func New(st store.Store, logger *slog.Logger, downloadLink, defaultProduct string, opts ...Option) (*Issuer, error) {
	if st == nil {
		return nil, fmt.Errorf("token store is required")
	}
	iss := &Issuer{
		store:          st,
		logger:         logger,
		downloadLink:   downloadLink,
		defaultProduct: defaultProduct,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue generates a token for the product and persists its record.
// An empty product falls back to the configured default. Uniqueness
// violations are retried with a fresh suffix.
func (i *Issuer) Issue(ctx context.Context, product string) (string, error) {
	if product == "" {
		product = i.defaultProduct
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := generateToken(product)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
		}

		record := &models.VerificationRecord{
			Token:        token,
			Product:      product,
			Verified:     false,
			CreatedAt:    i.clock().UTC(),
			DownloadLink: i.downloadLink,
		}
		err = i.store.Create(ctx, record)
		if err == nil {
			return token, nil
		}
		if errors.Is(err, store.ErrDuplicateToken) {
			i.logger.WarnContext(ctx, "token collision, retrying",
				"product", product,
				"attempt", attempt+1,
			)
			continue
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist token record")
	}
	return "", dErrors.New(dErrors.CodeInternal, "token generation exhausted retries")
}

func generateToken(product string) (string, error) {
	buf := make([]byte, suffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for idx, b := range buf {
		buf[idx] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s-%s", product, buf), nil
}
