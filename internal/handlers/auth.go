package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/piishield/backend/internal/config"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// LoginAttempt tracks failed login attempts
type LoginAttempt struct {
	Count     int
	LastTry   time.Time
	BlockedAt *time.Time
}

const (
	maxLoginAttempts = 5
	loginBlockPeriod = 15 * time.Minute
)

var (
	loginAttempts = make(map[string]*LoginAttempt)
	attemptsMutex sync.RWMutex
)

// isIPBlocked checks if IP has too many failed attempts
func isIPBlocked(ip string) (bool, int) {
	attemptsMutex.RLock()
	attempt, exists := loginAttempts[ip]
	attemptsMutex.RUnlock()

	if !exists {
		return false, 0
	}

	// Check if blocked
	if attempt.BlockedAt != nil {
		if time.Since(*attempt.BlockedAt) < loginBlockPeriod {
			remaining := int(loginBlockPeriod.Minutes() - time.Since(*attempt.BlockedAt).Minutes())
			return true, remaining
		}
		// Block expired, reset
		attemptsMutex.Lock()
		delete(loginAttempts, ip)
		attemptsMutex.Unlock()
		return false, 0
	}

	// Attempts expire after the block period of inactivity
	if time.Since(attempt.LastTry) > loginBlockPeriod {
		attemptsMutex.Lock()
		delete(loginAttempts, ip)
		attemptsMutex.Unlock()
		return false, 0
	}

	return attempt.Count >= maxLoginAttempts, 0
}

// recordFailedAttempt records a failed login attempt
func recordFailedAttempt(ip string) int {
	attemptsMutex.Lock()
	defer attemptsMutex.Unlock()

	if _, exists := loginAttempts[ip]; !exists {
		loginAttempts[ip] = &LoginAttempt{Count: 0}
	}

	loginAttempts[ip].Count++
	loginAttempts[ip].LastTry = time.Now()

	if loginAttempts[ip].Count >= maxLoginAttempts {
		now := time.Now()
		loginAttempts[ip].BlockedAt = &now
	}

	return maxLoginAttempts - loginAttempts[ip].Count
}

// clearFailedAttempts clears failed attempts on successful login
func clearFailedAttempts(ip string) {
	attemptsMutex.Lock()
	defer attemptsMutex.Unlock()
	delete(loginAttempts, ip)
}

type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// RegisterRequest represents register request body
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_code"`
}

// UserInfo represents user info in responses
type UserInfo struct {
	ID               uint            `json:"id"`
	Username         string          `json:"username"`
	Email            string          `json:"email"`
	FullName         string          `json:"full_name"`
	Role             models.UserRole `json:"role"`
	StorageUsed      int64           `json:"storage_used"`
	StorageLimit     int64           `json:"storage_limit"`
	TwoFactorEnabled bool            `json:"two_factor_enabled"`
}

func userInfoOf(user *models.User) *UserInfo {
	return &UserInfo{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		FullName:         user.FullName,
		Role:             user.Role,
		StorageUsed:      user.StorageUsed,
		StorageLimit:     user.StorageLimit,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}
}

// Register creates a new user account and returns a bearer token
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	if req.Username == "" || len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Username required and password must be at least 8 characters",
		})
	}

	var existing models.User
	if err := database.DB.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "Username already taken"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to hash password"})
	}

	user := models.User{
		Username:     req.Username,
		Password:     string(hashed),
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         models.UserRoleMember,
		IsActive:     true,
		StorageLimit: int64(h.cfg.DefaultStorageLimitMB) * 1024 * 1024,
	}
	if err := database.DB.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to create user"})
	}

	token, err := middleware.GenerateToken(&user, h.cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to generate token"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"token":   token,
		"user":    userInfoOf(&user),
	})
}

// Login authenticates a user and returns a bearer token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	ip := c.IP()
	if blocked, remaining := isIPBlocked(ip); blocked {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"success": false,
			"message": "Too many failed attempts, try again later",
			"retry_after_minutes": remaining,
		})
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	var user models.User
	if err := database.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		recordFailedAttempt(ip)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		recordFailedAttempt(ip)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid credentials"})
	}

	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Account is disabled"})
	}

	if user.TwoFactorEnabled {
		if req.TwoFACode == "" {
			return c.JSON(fiber.Map{"success": false, "requires_2fa": true, "message": "2FA code required"})
		}
		if !totp.Validate(req.TwoFACode, user.TwoFactorSecret) {
			recordFailedAttempt(ip)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Invalid 2FA code"})
		}
	}

	clearFailedAttempts(ip)

	now := time.Now()
	database.DB.Model(&user).Update("last_login", now)

	token, err := middleware.GenerateToken(&user, h.cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to generate token"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"user":    userInfoOf(&user),
	})
}

// Logout revokes the current token
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	expiry, _ := c.Locals("tokenExpiry").(time.Time)

	if token != "" {
		if err := database.BlacklistToken(token, time.Until(expiry)); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to revoke token"})
		}
	}

	return c.JSON(fiber.Map{"success": true, "message": "Logged out"})
}

// Me returns the current user's profile
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}
	return c.JSON(fiber.Map{"success": true, "user": userInfoOf(user)})
}
