package repository

import (
	"context"
	"strings"
	"time"

	"lazla/internal/domain"

	"gorm.io/gorm"
)

// AccountRepository reads and writes one account table. Customers and staff
// share the row shape, so the same code serves both.
type AccountRepository struct {
	db    *gorm.DB
	table string
}

func NewAccountRepository(db *gorm.DB, table string) *AccountRepository {
	return &AccountRepository{db: db, table: table}
}

func NewCustomerRepository(db *gorm.DB) *AccountRepository {
	return NewAccountRepository(db, domain.TableCustomers)
}

func NewStaffRepository(db *gorm.DB) *AccountRepository {
	return NewAccountRepository(db, domain.TableStaff)
}

func (r *AccountRepository) q(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	a.Email = normalize(a.Email)
	a.Username = normalize(a.Username)
	return translate(r.q(ctx).Create(a).Error)
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var a domain.Account
	if err := r.q(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var a domain.Account
	if err := r.q(ctx).Where("email = ?", normalize(email)).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *AccountRepository) ExistsVerifiedEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ? AND email_verified = ?", normalize(email), true)
}

func (r *AccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", normalize(email))
}

func (r *AccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", normalize(username))
}

func (r *AccountRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int64
	if err := r.q(ctx).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveRefreshHash overwrites the stored hash. nil clears it.
func (r *AccountRepository) SaveRefreshHash(ctx context.Context, id int64, hash *string) error {
	return r.update(ctx, id, map[string]any{"refresh_token_hash": hash})
}

func (r *AccountRepository) ClearRefreshHash(ctx context.Context, id int64) error {
	return r.SaveRefreshHash(ctx, id, nil)
}

// RotateRefreshHash swaps expected for next in one conditional UPDATE.
// It returns false when the stored hash no longer equals expected.
func (r *AccountRepository) RotateRefreshHash(ctx context.Context, id int64, expected, next string) (bool, error) {
	res := r.q(ctx).
		Where("id = ? AND refresh_token_hash = ?", id, expected).
		Updates(map[string]any{
			"refresh_token_hash": next,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdatePassword stores a new password hash and drops the refresh hash in
// the same statement.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, hashed string) error {
	return r.update(ctx, id, map[string]any{
		"hashed_password":    hashed,
		"refresh_token_hash": nil,
	})
}

func (r *AccountRepository) SetOTP(ctx context.Context, id int64, hash string, expiresAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"otp_hash":       hash,
		"otp_expires_at": expiresAt.UTC(),
	})
}

func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]any{
		"email_verified": true,
		"otp_hash":       nil,
		"otp_expires_at": nil,
	})
}

// ClearStaleOTPs drops challenges that expired before cutoff on accounts
// that never verified.
func (r *AccountRepository) ClearStaleOTPs(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.q(ctx).
		Where("email_verified = ? AND otp_expires_at IS NOT NULL AND otp_expires_at < ?", false, cutoff.UTC()).
		Updates(map[string]any{
			"otp_hash":       nil,
			"otp_expires_at": nil,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *AccountRepository) update(ctx context.Context, id int64, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.q(ctx).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
