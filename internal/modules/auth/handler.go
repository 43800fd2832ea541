package auth

import (
	"errors"
	"net/http"

	"lazla/internal/middleware"
	"lazla/internal/pkg/response"
	"lazla/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

const refreshCookieName = "refreshToken"

type CookieConfig struct {
	Secure bool
}

// Handler serves the auth routes of one principal type.
type Handler struct {
	service     *Service
	cookie      CookieConfig
	refreshPath string
	loggerf     func(format string, args ...interface{})
}

func NewHandler(service *Service, cookie CookieConfig, loggerf func(format string, args ...interface{})) *Handler {
	return &Handler{service: service, cookie: cookie, loggerf: loggerf}
}

// RegisterCustomerRoutes mounts the customer routes on g. auth guards the
// bearer routes; limit (optional) guards signup and the OTP routes.
func (h *Handler) RegisterCustomerRoutes(g *gin.RouterGroup, auth gin.HandlerFunc, limit gin.HandlerFunc) {
	h.refreshPath = g.BasePath() + "/refresh"

	g.POST("/signup", withOptional(limit, h.Signup)...)
	g.POST("/verify-otp", withOptional(limit, h.VerifyOTP)...)
	g.POST("/resend-otp", withOptional(limit, h.ResendOTP)...)
	h.registerSessionRoutes(g, auth)
}

// RegisterStaffRoutes mounts the staff routes on g. admin is applied after
// auth on the register route.
func (h *Handler) RegisterStaffRoutes(g *gin.RouterGroup, auth gin.HandlerFunc, admin gin.HandlerFunc) {
	h.refreshPath = g.BasePath() + "/refresh"
	h.registerSessionRoutes(g, auth)
	g.POST("/register", auth, admin, h.RegisterStaff)
}

func (h *Handler) registerSessionRoutes(g *gin.RouterGroup, auth gin.HandlerFunc) {
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/change-password", auth, h.ChangePassword)
	g.GET("/me", auth, h.Me)
}

func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.service.Signup(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusCreated, gin.H{
		"user":        res.Account.Public(),
		"accessToken": res.AccessToken,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"user":        res.Account.Public(),
		"accessToken": res.AccessToken,
	})
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bind(c, &req) {
		return
	}

	if err := h.service.VerifyOTP(c.Request.Context(), req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

func (h *Handler) ResendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if !bind(c, &req) {
		return
	}

	if err := h.service.ResendOTP(c.Request.Context(), req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the account is pending verification, a new code has been sent"})
}

func (h *Handler) Refresh(c *gin.Context) {
	res, err := h.service.Refresh(c.Request.Context(), presentedRefreshToken(c))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			h.clearRefreshCookie(c)
		}
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": res.AccessToken})
}

// Logout always answers 200.
func (h *Handler) Logout(c *gin.Context) {
	res, err := h.service.Logout(c.Request.Context(), presentedRefreshToken(c))
	switch {
	case err != nil:
		h.logf("level=error msg=\"logout failed\" account_id=%d err=%v", res.AccountID, err)
	case res.DecodeErr != nil:
		h.logf("level=info msg=\"logout with undecodable token\"")
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !bind(c, &req) {
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), middleware.AccountID(c), req); err != nil {
		h.fail(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (h *Handler) Me(c *gin.Context) {
	account, err := h.service.Me(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": account.Public()})
}

func (h *Handler) RegisterStaff(c *gin.Context) {
	var req RegisterStaffRequest
	if !bind(c, &req) {
		return
	}

	account, err := h.service.RegisterStaff(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": account.Public()})
}

// fail maps service errors onto status codes. Anything unknown is logged
// and answered with a bare 500.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		response.BadRequest(c, "invalid request")
	case errors.Is(err, ErrInvalidRole):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrEmailVerified), errors.Is(err, ErrEmailTaken):
		response.Error(c, http.StatusConflict, "EMAIL_EXISTS", "email already registered")
	case errors.Is(err, ErrUsernameTaken):
		response.Error(c, http.StatusConflict, "USERNAME_EXISTS", "username already taken")
	case errors.Is(err, ErrConflict):
		response.Error(c, http.StatusConflict, "CONFLICT", "account already exists")
	case errors.Is(err, ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	case errors.Is(err, ErrInvalidOldPassword):
		response.Error(c, http.StatusUnauthorized, "INVALID_OLD_PASSWORD", "old password is incorrect")
	case errors.Is(err, ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session")
	case errors.Is(err, ErrAccountNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "account not found")
	case errors.Is(err, ErrOTPNotFound):
		response.Error(c, http.StatusNotFound, "OTP_NOT_FOUND", "no verification code on record")
	case errors.Is(err, ErrInvalidOTP):
		response.Flag(c, http.StatusBadRequest, "INVALID_OTP", "invalid verification code", "invalid")
	case errors.Is(err, ErrOTPExpired):
		response.Flag(c, http.StatusBadRequest, "OTP_EXPIRED", "verification code expired", "expired")
	case errors.Is(err, ErrDependencyFailure):
		h.logf("level=error msg=\"dependency failure\" path=%s err=%v", c.FullPath(), err)
		response.Error(c, http.StatusInternalServerError, "DEPENDENCY_FAILURE", "could not send verification email")
	default:
		_ = c.Error(err)
		response.Internal(c)
	}
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, token, h.service.RefreshTTLSeconds(), h.refreshPath, "", h.cookie.Secure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, h.refreshPath, "", h.cookie.Secure, true)
}

func (h *Handler) logf(format string, args ...interface{}) {
	if h.loggerf != nil {
		h.loggerf(format, args...)
	}
}

// presentedRefreshToken reads the cookie, then the JSON body.
func presentedRefreshToken(c *gin.Context) string {
	if v, err := c.Cookie(refreshCookieName); err == nil && v != "" {
		return v
	}
	var body RefreshRequest
	_ = c.ShouldBindJSON(&body)
	return body.RefreshToken
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, "invalid request body")
		return false
	}
	if n, ok := req.(normalizer); ok {
		n.normalize()
	}
	if fields := validator.Validate(req); fields != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", fields)
		return false
	}
	return true
}

func withOptional(mw gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{mw, h}
}
