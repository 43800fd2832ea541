package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"lazla/internal/database"
	"lazla/internal/domain"
	"lazla/internal/pkg/jwt"
	"lazla/internal/pkg/otp"
	"lazla/internal/pkg/password"
	"lazla/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

// stubOTP issues a fixed code and lets tests move the clock.
type stubOTP struct {
	code string
	now  time.Time
	mgr  *otp.Manager
}

func newStubOTP(code string) *stubOTP {
	return &stubOTP{code: code, now: time.Now().UTC(), mgr: otp.NewManager("otp-pepper", len(code), 15*time.Minute)}
}

func (s *stubOTP) Issue() (*otp.Challenge, error) {
	return &otp.Challenge{Code: s.code, Hash: s.mgr.Hash(s.code), ExpiresAt: s.now.Add(s.mgr.TTL())}, nil
}
func (s *stubOTP) Hash(code string) string            { return s.mgr.Hash(code) }
func (s *stubOTP) IsExpired(expiresAt time.Time) bool { return s.now.After(expiresAt) }
func (s *stubOTP) TTL() time.Duration                 { return s.mgr.TTL() }

type testEnv struct {
	db        *gorm.DB
	customers *repository.AccountRepository
	staff     *repository.AccountRepository
	tokens    *jwt.Service
	mailer    *mockMailer
	otp       *stubOTP
	svc       *Service
	staffSvc  *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:auth_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Connect(dsn, database.Options{Silent: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	env := &testEnv{
		db:        db,
		customers: repository.NewCustomerRepository(db),
		staff:     repository.NewStaffRepository(db),
		tokens: jwt.New(jwt.Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		}),
		mailer: new(mockMailer),
		otp:    newStubOTP("123456"),
	}
	deps := Deps{
		Hasher:             password.NewHasher(4),
		Tokens:             env.tokens,
		OTP:                env.otp,
		Mailer:             env.mailer,
		RefreshTokenPepper: "refresh-pepper",
	}
	env.svc = NewCustomerService(env.customers, deps)
	env.staffSvc = NewStaffService(env.staff, deps)
	return env
}

func (e *testEnv) signup(t *testing.T, username, email, pw string) *AuthResult {
	t.Helper()
	e.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	res, err := e.svc.Signup(context.Background(), SignupRequest{Username: username, Email: email, Password: pw})
	require.NoError(t, err)
	return res
}

func TestService_Signup_NormalizesAndSendsOTP(t *testing.T) {
	env := newTestEnv(t)
	var sentBody string
	env.mailer.On("Send", mock.Anything, "a@x.com", "Your verification code", mock.Anything).
		Run(func(args mock.Arguments) { sentBody = args.String(3) }).
		Return(nil).Once()

	res, err := env.svc.Signup(context.Background(), SignupRequest{Username: "alice", Email: "A@x.com", Password: "p1"})
	require.NoError(t, err)
	env.mailer.AssertExpectations(t)

	assert.Equal(t, "a@x.com", res.Account.Email)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Regexp(t, regexp.MustCompile(`<strong>123456</strong>`), sentBody)

	stored, err := env.customers.GetByID(context.Background(), res.Account.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)
	require.NotNil(t, stored.OTPHash)
	assert.NotEqual(t, "123456", *stored.OTPHash)
	require.NotNil(t, stored.RefreshTokenHash)
	assert.NotEqual(t, res.RefreshToken, *stored.RefreshTokenHash)
	assert.NotEqual(t, "p1", stored.HashedPassword)
}

func TestService_Signup_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "A@x.com", "p1")

	_, err := env.svc.Signup(ctx, SignupRequest{Username: "other", Email: "a@X.COM", Password: "p2"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = env.svc.Signup(ctx, SignupRequest{Username: "ALICE", Email: "b@x.com", Password: "p2"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	require.NoError(t, env.customers.MarkEmailVerified(ctx, first.Account.ID))
	_, err = env.svc.Signup(ctx, SignupRequest{Username: "alice", Email: "a@x.com", Password: "p2"})
	assert.ErrorIs(t, err, ErrEmailVerified, "verified email is checked first")

	env.mailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestService_Signup_MailFailurePersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	_, err := env.svc.Signup(context.Background(), SignupRequest{Username: "alice", Email: "a@x.com", Password: "p1"})
	assert.ErrorIs(t, err, ErrDependencyFailure)

	exists, err := env.customers.EmailExists(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_Signup_RejectsOversizedPassword(t *testing.T) {
	env := newTestEnv(t)
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'x'
	}

	_, err := env.svc.Signup(context.Background(), SignupRequest{Username: "alice", Email: "a@x.com", Password: string(long)})
	assert.ErrorIs(t, err, ErrValidation)
	env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "alice", "a@x.com", "p1")

	res, err := env.svc.Login(ctx, LoginRequest{Email: "A@X.com", Password: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Account.Username)

	_, err = env.svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, LoginRequest{Email: "nobody@x.com", Password: "p1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Refresh_IsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	rotated, err := env.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, rotated.RefreshToken)

	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestService_Refresh_ConcurrentOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	first := env.signup(t, "alice", "a@x.com", "p1")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Refresh(context.Background(), first.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrUnauthorized)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestService_Refresh_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	_, err := env.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Refresh(ctx, first.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "access token must not refresh")

	_, err = env.staffSvc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "customer token must not refresh a staff session")
}

func TestService_Logout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	res, err := env.svc.Logout(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, first.Account.ID, res.AccountID)

	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err = env.svc.Logout(ctx, "garbage")
	require.NoError(t, err)
	assert.Error(t, res.DecodeErr)
	assert.False(t, res.Cleared)
}

func TestService_ChangePassword_InvalidatesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	err := env.svc.ChangePassword(ctx, first.Account.ID, ChangePasswordRequest{OldPassword: "nope", NewPassword: "p2"})
	assert.ErrorIs(t, err, ErrInvalidOldPassword)

	require.NoError(t, env.svc.ChangePassword(ctx, first.Account.ID, ChangePasswordRequest{OldPassword: "p1", NewPassword: "p2"}))

	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "p1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, LoginRequest{Email: "a@x.com", Password: "p2"})
	assert.NoError(t, err)
}

func TestService_VerifyOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	err := env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "000000"})
	assert.ErrorIs(t, err, ErrInvalidOTP)
	acc, _ := env.customers.GetByID(ctx, first.Account.ID)
	assert.False(t, acc.EmailVerified)
	assert.NotNil(t, acc.OTPHash, "a wrong code changes nothing")

	require.NoError(t, env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "A@x.com", OTP: "123456"}))
	acc, _ = env.customers.GetByID(ctx, first.Account.ID)
	assert.True(t, acc.EmailVerified)
	assert.Nil(t, acc.OTPHash)
	assert.Nil(t, acc.OTPExpiresAt)

	err = env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "123456"})
	assert.ErrorIs(t, err, ErrOTPNotFound)

	err = env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "ghost@x.com", OTP: "123456"})
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestService_VerifyOTP_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	env.otp.now = env.otp.now.Add(16 * time.Minute)

	err := env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "123456"})
	assert.ErrorIs(t, err, ErrOTPExpired)

	acc, _ := env.customers.GetByID(ctx, first.Account.ID)
	assert.False(t, acc.EmailVerified)
	assert.NotNil(t, acc.OTPHash, "expired challenge stays for resend")

	err = env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "999999"})
	assert.ErrorIs(t, err, ErrInvalidOTP, "comparison happens before the expiry check")
}

func TestService_ResendOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "alice", "a@x.com", "p1")

	env.otp.code = "654321"
	env.mailer.On("Send", mock.Anything, "a@x.com", mock.Anything, mock.Anything).Return(nil).Once()
	require.NoError(t, env.svc.ResendOTP(ctx, ResendOTPRequest{Email: "a@x.com"}))

	assert.ErrorIs(t, env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "123456"}), ErrInvalidOTP)
	require.NoError(t, env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "654321"}))

	require.NoError(t, env.svc.ResendOTP(ctx, ResendOTPRequest{Email: "a@x.com"}), "verified accounts are a no-op")
	require.NoError(t, env.svc.ResendOTP(ctx, ResendOTPRequest{Email: "ghost@x.com"}))
	env.mailer.AssertNumberOfCalls(t, "Send", 2)

	acc, _ := env.customers.GetByID(ctx, first.Account.ID)
	assert.True(t, acc.EmailVerified)
}

func TestService_ResendOTP_MailFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "alice", "a@x.com", "p1")

	env.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down")).Once()
	env.otp.code = "654321"
	assert.ErrorIs(t, env.svc.ResendOTP(ctx, ResendOTPRequest{Email: "a@x.com"}), ErrDependencyFailure)

	require.NoError(t, env.svc.VerifyOTP(ctx, VerifyOTPRequest{Email: "a@x.com", OTP: "123456"}), "old challenge survives a failed resend")
}

func TestService_Me(t *testing.T) {
	env := newTestEnv(t)
	first := env.signup(t, "alice", "a@x.com", "p1")

	acc, err := env.svc.Me(context.Background(), first.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Public().Username)

	_, err = env.svc.Me(context.Background(), 999)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestService_RegisterStaffAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, err := env.staffSvc.RegisterStaff(ctx, RegisterStaffRequest{Username: "Dan", Email: "dan@x.com", Password: "driverpass", Role: "driver"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StaffRoleDriver), acc.Role)

	_, err = env.staffSvc.RegisterStaff(ctx, RegisterStaffRequest{Username: "dan", Email: "d2@x.com", Password: "driverpass", Role: "driver"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = env.staffSvc.RegisterStaff(ctx, RegisterStaffRequest{Username: "eve", Email: "eve@x.com", Password: "driverpass", Role: "root"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	res, err := env.staffSvc.Login(ctx, LoginRequest{Email: "dan@x.com", Password: "driverpass"})
	require.NoError(t, err)

	claims, err := env.tokens.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, jwt.PrincipalStaff, claims.Type)
	assert.Equal(t, "driver", claims.Role)

	_, err = env.svc.Login(ctx, LoginRequest{Email: "dan@x.com", Password: "driverpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "staff cannot log in as a customer")
}
