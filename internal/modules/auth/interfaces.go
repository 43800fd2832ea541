package auth

import (
	"context"
	"time"

	"lazla/internal/domain"
	"lazla/internal/pkg/jwt"
	"lazla/internal/pkg/otp"
)

// AccountStore is the subset of repository.AccountRepository the service uses.
type AccountStore interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsVerifiedEmail(ctx context.Context, email string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SaveRefreshHash(ctx context.Context, id int64, hash *string) error
	RotateRefreshHash(ctx context.Context, id int64, expected, next string) (bool, error)
	ClearRefreshHash(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hashed string) error
	SetOTP(ctx context.Context, id int64, hash string, expiresAt time.Time) error
	MarkEmailVerified(ctx context.Context, id int64) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hashed string) bool
}

type TokenIssuer interface {
	SignAccess(sub jwt.Subject) (string, error)
	SignRefresh(sub jwt.Subject) (string, error)
	VerifyRefresh(token string) (*jwt.Claims, error)
	RefreshTTL() time.Duration
}

type OTPIssuer interface {
	Issue() (*otp.Challenge, error)
	Hash(code string) string
	IsExpired(expiresAt time.Time) bool
	TTL() time.Duration
}

type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
