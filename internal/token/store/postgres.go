package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"trivigil/internal/token/models"
)

// pq unique_violation
const uniqueViolation = "23505"

// PostgresStore persists verification records in PostgreSQL. It is pure
// I/O; workflow rules live in the verify service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tokens table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tokens (
			token                 TEXT PRIMARY KEY,
			product               TEXT NOT NULL,
			verified              BOOLEAN NOT NULL DEFAULT FALSE,
			created_at            TIMESTAMPTZ NOT NULL,
			buyer_identity        BIGINT,
			transaction_reference TEXT,
			admin_reference       TEXT,
			download_link         TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure tokens schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, record *models.VerificationRecord) error {
	query := `
		INSERT INTO tokens (token, product, verified, created_at, buyer_identity, transaction_reference, admin_reference, download_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.Token,
		record.Product,
		record.Verified,
		record.CreatedAt,
		nullInt64(record.BuyerIdentity),
		nullString(record.TransactionReference),
		nullString(record.AdminReference),
		record.DownloadLink,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateToken
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.VerificationRecord, error) {
	query := selectColumns + ` WHERE token = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find by token: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByBuyer(ctx context.Context, buyer int64) (*models.VerificationRecord, error) {
	query := selectColumns + ` WHERE buyer_identity = $1 ORDER BY created_at DESC LIMIT 1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, buyer))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find by buyer: %w", err)
	}
	return record, nil
}

// BindBuyer is a conditional update so two buyers racing on the same
// token cannot overwrite each other; the condition is evaluated by
// postgres under its row lock.
func (s *PostgresStore) BindBuyer(ctx context.Context, token string, buyer int64) error {
	query := `
		UPDATE tokens SET buyer_identity = $2
		WHERE token = $1 AND (buyer_identity IS NULL OR buyer_identity = $2)
	`
	result, err := s.db.ExecContext(ctx, query, token, buyer)
	if err != nil {
		return fmt.Errorf("bind buyer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind buyer rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}
	// No row updated: either the token is missing or bound elsewhere.
	if _, err := s.FindByToken(ctx, token); err != nil {
		return err
	}
	return ErrIdentityBound
}

func (s *PostgresStore) Update(ctx context.Context, token string, upd models.RecordUpdate) (*models.VerificationRecord, error) {
	query := `
		UPDATE tokens SET
			transaction_reference = COALESCE($2, transaction_reference),
			admin_reference       = COALESCE($3, admin_reference),
			verified              = COALESCE($4, verified)
		WHERE token = $1
		RETURNING token, product, verified, created_at, buyer_identity, transaction_reference, admin_reference, download_link
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, token,
		nullStringPtr(upd.TransactionReference),
		nullStringPtr(upd.AdminReference),
		nullBool(upd.Verified),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*models.VerificationRecord, error) {
	query := selectColumns + ` ORDER BY created_at ASC, token ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.VerificationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Buyers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT buyer_identity FROM tokens
		WHERE buyer_identity IS NOT NULL ORDER BY buyer_identity
	`)
	if err != nil {
		return nil, fmt.Errorf("list buyers: %w", err)
	}
	defer rows.Close()

	var buyers []int64
	for rows.Next() {
		var buyer int64
		if err := rows.Scan(&buyer); err != nil {
			return nil, fmt.Errorf("scan buyer: %w", err)
		}
		buyers = append(buyers, buyer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buyers: %w", err)
	}
	return buyers, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectColumns = `
	SELECT token, product, verified, created_at, buyer_identity, transaction_reference, admin_reference, download_link
	FROM tokens`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.VerificationRecord, error) {
	var (
		record   models.VerificationRecord
		buyer    sql.NullInt64
		txRef    sql.NullString
		adminRef sql.NullString
	)
	err := row.Scan(
		&record.Token,
		&record.Product,
		&record.Verified,
		&record.CreatedAt,
		&buyer,
		&txRef,
		&adminRef,
		&record.DownloadLink,
	)
	if err != nil {
		return nil, err
	}
	if buyer.Valid {
		record.BuyerIdentity = &buyer.Int64
	}
	record.TransactionReference = txRef.String
	record.AdminReference = adminRef.String
	return &record, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
