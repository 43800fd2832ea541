package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lazla/internal/domain"
	"lazla/internal/pkg/jwt"
	"lazla/internal/pkg/otp"
	"lazla/internal/pkg/password"
	"lazla/internal/repository"
)

// Deps are the collaborators shared by the customer and staff services.
type Deps struct {
	Hasher             PasswordHasher
	Tokens             TokenIssuer
	OTP                OTPIssuer
	Mailer             Mailer
	RefreshTokenPepper string
	Loggerf            func(format string, args ...interface{})
}

// Service runs the credential and session lifecycle for one principal type.
// Signup and OTP operations are only routed for customers, RegisterStaff
// only for staff.
type Service struct {
	accounts      AccountStore
	principal     jwt.PrincipalType
	hasher        PasswordHasher
	tokens        TokenIssuer
	otps          OTPIssuer
	mailer        Mailer
	refreshPepper string
	loggerf       func(format string, args ...interface{})

	dummyOnce sync.Once
	dummyHash string
}

// AuthResult is returned by every call that issues a token pair.
type AuthResult struct {
	Account      *domain.Account
	AccessToken  string
	RefreshToken string
}

// LogoutResult reports what logout did. DecodeErr is set when the presented
// token could not be decoded; that is not a failure of the call.
type LogoutResult struct {
	AccountID int64
	Cleared   bool
	DecodeErr error
}

func NewCustomerService(accounts AccountStore, deps Deps) *Service {
	return newService(accounts, jwt.PrincipalCustomer, deps)
}

func NewStaffService(accounts AccountStore, deps Deps) *Service {
	return newService(accounts, jwt.PrincipalStaff, deps)
}

func newService(accounts AccountStore, principal jwt.PrincipalType, deps Deps) *Service {
	return &Service{
		accounts:      accounts,
		principal:     principal,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		otps:          deps.OTP,
		mailer:        deps.Mailer,
		refreshPepper: deps.RefreshTokenPepper,
		loggerf:       deps.Loggerf,
	}
}

func (s *Service) RefreshTTLSeconds() int { return int(s.tokens.RefreshTTL().Seconds()) }

// Signup registers a customer. The verification email goes out before the
// row is written, so a failed send leaves nothing behind.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	username := normalize(req.Username)
	email := normalize(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return nil, ErrValidation
	}

	verified, err := s.accounts.ExistsVerifiedEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if verified {
		return nil, ErrEmailVerified
	}
	taken, err := s.accounts.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	taken, err = s.accounts.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	hashed, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	challenge, err := s.otps.Issue()
	if err != nil {
		return nil, err
	}
	if err := s.sendOTP(ctx, email, challenge.Code); err != nil {
		return nil, err
	}

	expiresAt := challenge.ExpiresAt.UTC()
	account := &domain.Account{
		Username:       username,
		Email:          email,
		HashedPassword: hashed,
		OTPHash:        &challenge.Hash,
		OTPExpiresAt:   &expiresAt,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.logf("level=info msg=\"account created\" principal=%s account_id=%d", s.principal, account.ID)

	return s.issue(ctx, account)
}

// Login does not require a verified email.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	account, err := s.accounts.GetByEmail(ctx, normalize(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a bcrypt compare so unknown emails cost the same.
			s.hasher.Verify(req.Password, s.dummy())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(req.Password, account.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, account)
}

// VerifyOTP compares the code before looking at expiry. An expired code
// leaves the challenge in place so the customer can ask for a resend.
func (s *Service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) error {
	account, err := s.accounts.GetByEmail(ctx, normalize(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}
	if account.OTPExpiresAt == nil || account.OTPHash == nil {
		return ErrOTPNotFound
	}

	presented := s.otps.Hash(req.OTP)
	if !otp.Equal(presented, *account.OTPHash) {
		return ErrInvalidOTP
	}
	if s.otps.IsExpired(*account.OTPExpiresAt) {
		return ErrOTPExpired
	}
	return s.accounts.MarkEmailVerified(ctx, account.ID)
}

// ResendOTP replaces any pending challenge. Unknown and already verified
// emails succeed without sending anything.
func (s *Service) ResendOTP(ctx context.Context, req ResendOTPRequest) error {
	email := normalize(req.Email)
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logf("level=info msg=\"otp resend for unknown email\"")
			return nil
		}
		return err
	}
	if account.EmailVerified {
		return nil
	}

	challenge, err := s.otps.Issue()
	if err != nil {
		return err
	}
	if err := s.sendOTP(ctx, account.Email, challenge.Code); err != nil {
		return err
	}
	return s.accounts.SetOTP(ctx, account.ID, challenge.Hash, challenge.ExpiresAt)
}

// Refresh exchanges a refresh token for a new pair. The stored hash is
// swapped with a conditional update, so of two requests presenting the same
// token only one can win.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil || claims.Type != s.principal {
		return nil, ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if account.RefreshTokenHash == nil {
		return nil, ErrUnauthorized
	}
	presented := s.hashRefresh(refreshToken)
	if !otp.Equal(presented, *account.RefreshTokenHash) {
		s.logf("level=warn msg=\"refresh token mismatch\" principal=%s account_id=%d", s.principal, account.ID)
		return nil, ErrUnauthorized
	}

	access, refresh, err := s.signPair(account)
	if err != nil {
		return nil, err
	}
	rotated, err := s.accounts.RotateRefreshHash(ctx, account.ID, presented, s.hashRefresh(refresh))
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, ErrUnauthorized
	}
	return &AuthResult{Account: account, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout clears the stored refresh hash of whoever the token names. A token
// that does not decode is reported in the result, not as an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) (LogoutResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return LogoutResult{DecodeErr: err}, nil
	}
	if claims.Type != s.principal {
		return LogoutResult{DecodeErr: jwt.ErrInvalidToken}, nil
	}

	if err := s.accounts.ClearRefreshHash(ctx, claims.AccountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LogoutResult{AccountID: claims.AccountID}, nil
		}
		return LogoutResult{AccountID: claims.AccountID}, err
	}
	return LogoutResult{AccountID: claims.AccountID, Cleared: true}, nil
}

// ChangePassword also drops the stored refresh hash, which signs the
// account out everywhere.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, req ChangePasswordRequest) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if !s.hasher.Verify(req.OldPassword, account.HashedPassword) {
		return ErrInvalidOldPassword
	}
	hashed, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hashed); err != nil {
		return err
	}
	s.logf("level=info msg=\"password changed\" principal=%s account_id=%d", s.principal, account.ID)
	return nil
}

func (s *Service) Me(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// RegisterStaff creates an admin or driver account. Staff emails count as
// verified since an admin vouches for them.
func (s *Service) RegisterStaff(ctx context.Context, req RegisterStaffRequest) (*domain.Account, error) {
	role := domain.StaffRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	username := normalize(req.Username)
	email := normalize(req.Email)
	if username == "" || email == "" {
		return nil, ErrValidation
	}

	taken, err := s.accounts.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	taken, err = s.accounts.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	hashed, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		Username:       username,
		Email:          email,
		HashedPassword: hashed,
		EmailVerified:  true,
		Role:           string(role),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.logf("level=info msg=\"staff registered\" account_id=%d role=%s", account.ID, role)
	return account, nil
}

func (s *Service) issue(ctx context.Context, account *domain.Account) (*AuthResult, error) {
	access, refresh, err := s.signPair(account)
	if err != nil {
		return nil, err
	}
	hash := s.hashRefresh(refresh)
	if err := s.accounts.SaveRefreshHash(ctx, account.ID, &hash); err != nil {
		return nil, err
	}
	return &AuthResult{Account: account, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) signPair(account *domain.Account) (string, string, error) {
	sub := jwt.Subject{AccountID: account.ID, Type: s.principal, Role: account.Role}
	access, err := s.tokens.SignAccess(sub)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.tokens.SignRefresh(sub)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return access, refresh, nil
}

func (s *Service) hashPassword(plain string) (string, error) {
	hashed, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidInput) {
			return "", ErrValidation
		}
		return "", err
	}
	return hashed, nil
}

func (s *Service) hashRefresh(token string) string {
	sum := sha256.Sum256([]byte(token + s.refreshPepper))
	return hex.EncodeToString(sum[:])
}

func (s *Service) sendOTP(ctx context.Context, email, code string) error {
	subject, body := otpEmail(code, s.otps.TTL().Minutes())
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		s.logf("level=error msg=\"otp email failed\" err=%v", err)
		return fmt.Errorf("%w: send verification email: %v", ErrDependencyFailure, err)
	}
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.loggerf != nil {
		s.loggerf(format, args...)
	}
}

func otpEmail(code string, ttlMinutes float64) (string, string) {
	subject := "Your verification code"
	body := fmt.Sprintf(
		"<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %.0f minutes.</p>",
		code, ttlMinutes,
	)
	return subject, body
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
