package controller

import (
	"errors"
	"strings"
	"time"

	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	apperrors "github.com/dukkanhq/dukkan-backend/internal/errors"
	"github.com/dukkanhq/dukkan-backend/internal/middleware"
	"github.com/dukkanhq/dukkan-backend/pkg/redis"
	"github.com/dukkanhq/dukkan-backend/pkg/util"
)

type AuthController struct {
	authService service.AuthService
	cartService service.CartService
	jwtSecret   string
}

func NewAuthController(authService service.AuthService, cartService service.CartService, jwtSecret string) *AuthController {
	return &AuthController{
		authService: authService,
		cartService: cartService,
		jwtSecret:   jwtSecret,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Register creates a new account
// POST /api/v1/auth/register
func (ctrl *AuthController) Register(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid registration request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	user, tokens, err := ctrl.authService.Register(req.Email, req.Password, req.Name, req.Phone)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyExists) {
			apperrors.Conflict(c, apperrors.AuthEmailAlreadyExists, "An account with this email already exists")
			return
		}
		log.Error("Registration failed", err, map[string]interface{}{
			"email": req.Email,
		})
		apperrors.InternalError(c, "Registration failed")
		return
	}

	ctrl.mergeGuestCartIfPresent(c, user.ID)

	c.JSON(http.StatusCreated, gin.H{
		"user":   user,
		"tokens": tokens,
	})
}

// Login authenticates a user and merges any guest cart carried on the request
// POST /api/v1/auth/login
func (ctrl *AuthController) Login(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	user, tokens, err := ctrl.authService.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			apperrors.RespondWithError(c, http.StatusUnauthorized,
				apperrors.AuthInvalidCredentials, "Invalid email or password")
			return
		}
		log.Error("Login failed", err, map[string]interface{}{
			"email": req.Email,
		})
		apperrors.InternalError(c, "Login failed")
		return
	}

	ctrl.mergeGuestCartIfPresent(c, user.ID)

	c.JSON(http.StatusOK, gin.H{
		"user":   user,
		"tokens": tokens,
	})
}

// mergeGuestCartIfPresent folds the guest cart into the user's cart when the
// login request carries a guest session token. A merge failure never fails
// the login; the guest cart simply survives for a later attempt.
func (ctrl *AuthController) mergeGuestCartIfPresent(c *gin.Context, userID uint) {
	log := middleware.GetLoggerFromContext(c)

	guestToken, ok := middleware.GetGuestToken(c)
	if !ok {
		return
	}

	if _, err := ctrl.cartService.MergeGuestCart(userID, guestToken); err != nil {
		log.Error("Guest cart merge on login failed", err, map[string]interface{}{
			"user_id": userID,
		})
	}
}

// Refresh exchanges a refresh token for a new pair
// POST /api/v1/auth/refresh
func (ctrl *AuthController) Refresh(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	tokens, err := ctrl.authService.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn("Token refresh rejected", map[string]interface{}{
			"error": err.Error(),
		})
		if errors.Is(err, util.ErrExpiredToken) {
			apperrors.RespondWithError(c, http.StatusUnauthorized,
				apperrors.AuthTokenExpired, "Refresh token has expired")
			return
		}
		apperrors.RespondWithError(c, http.StatusUnauthorized,
			apperrors.AuthTokenInvalid, "Invalid refresh token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens": tokens,
	})
}

// Logout revokes the presented access token until its natural expiry
// POST /api/v1/auth/logout
func (ctrl *AuthController) Logout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		apperrors.Unauthorized(c, "")
		return
	}
	token := parts[1]

	claims, err := util.ValidateToken(token, ctrl.jwtSecret)
	if err != nil {
		// Already invalid; nothing to revoke.
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		return
	}

	if redis.GetClient() != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl > 0 {
			if err := redis.BlacklistToken(c.Request.Context(), token, ttl); err != nil {
				log.Error("Failed to blacklist token on logout", err, map[string]interface{}{
					"user_id": claims.UserID,
				})
				apperrors.InternalError(c, "Logout failed")
				return
			}
		}
	}

	log.Info("User logged out", map[string]interface{}{
		"user_id": claims.UserID,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// GetProfile returns the authenticated user
// GET /api/v1/auth/me
func (ctrl *AuthController) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	user, err := ctrl.authService.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			apperrors.NotFound(c, apperrors.ResourceNotFound, "User not found")
			return
		}
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}

// UpdateProfile updates the authenticated user's details
// PUT /api/v1/auth/me
func (ctrl *AuthController) UpdateProfile(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	user, err := ctrl.authService.UpdateProfile(userID, req.Name, req.Phone)
	if err != nil {
		log.Error("Profile update failed", err, map[string]interface{}{
			"user_id": userID,
		})
		apperrors.InternalError(c, "Failed to update profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}
