package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"lokumail/internal/types"
)

// SuppressionRepository provides PostgreSQL-backed access to the
// email_suppressions table. All lookups and writes normalize the address
// first, so "User@Example.com " and "user@example.com" are the same entry.
type SuppressionRepository struct {
	db DBTX
}

// NewSuppressionRepository creates a suppression repository backed by the
// given database handle.
func NewSuppressionRepository(db DBTX) *SuppressionRepository {
	return &SuppressionRepository{db: db}
}

// IsSuppressed reports whether the normalized address is on the suppression list.
func (r *SuppressionRepository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_suppressions WHERE email = $1)`,
		types.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check suppression", err)
	}
	return exists, nil
}

// Upsert adds an address to the suppression list. The first writer wins:
// re-suppressing an already suppressed address keeps the original entry and
// reports inserted=false.
func (r *SuppressionRepository) Upsert(ctx context.Context, s *types.EmailSuppression) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO email_suppressions (email, reason, source, meta, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (email) DO NOTHING`,
		types.NormalizeEmail(s.Email), string(s.Reason), nilIfEmpty(s.Source), s.Meta)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert suppression", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns the suppression entry for an address, or (nil, nil) if the
// address is not suppressed.
func (r *SuppressionRepository) Get(ctx context.Context, email string) (*types.EmailSuppression, error) {
	var (
		s      types.EmailSuppression
		reason string
		source *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT email, reason, source, meta, created_at
		FROM email_suppressions WHERE email = $1`,
		types.NormalizeEmail(email)).
		Scan(&s.Email, &reason, &source, &s.Meta, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get suppression", err)
	}
	s.Reason = types.SuppressionReason(reason)
	s.Source = valueOrEmpty(source)
	return &s, nil
}
