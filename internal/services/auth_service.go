package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/ffgcu/backend/internal/config"
	"github.com/ffgcu/backend/internal/mailer"
	"github.com/ffgcu/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	mailer    mailer.Mailer
	deposits  *config.DepositConfig
	validator *validator.Validate
	now       func() time.Time
}

// SignupRequest represents the member signup payload
// @Description Signup request structure
type SignupRequest struct {
	FullName          string `json:"fullName" validate:"required,min=2" example:"Jane Member"`
	Email             string `json:"email" validate:"required,email" example:"jane@example.com"`
	Password          string `json:"password" validate:"required,min=6" example:"password123"`
	DOB               string `json:"dob" validate:"required" example:"1985-04-12"`
	Address           string `json:"address" validate:"required" example:"12 Main St"`
	SSNLast4          string `json:"ssnLast4" validate:"required,len=4,numeric" example:"6789"`
	GrantAmount       string `json:"grantAmount" validate:"required" example:"500.00"`
	ApplicationNumber string `json:"applicationNumber" validate:"required" example:"APP-2231"`
	CaptchaID         string `json:"captchaId" validate:"required"`
	CaptchaAnswer     string `json:"captchaAnswer" validate:"required"`
}

// LoginRequest represents the login payload
// @Description Login request structure
type LoginRequest struct {
	Email         string `json:"email" validate:"required,email" example:"jane@example.com"`
	Password      string `json:"password" validate:"required,min=6" example:"password123"`
	CaptchaID     string `json:"captchaId" validate:"required"`
	CaptchaAnswer string `json:"captchaAnswer" validate:"required"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token   string          `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Account *models.Account `json:"account"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, m mailer.Mailer) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		mailer:    m,
		deposits:  config.LoadDepositConfig(),
		validator: validator.New(),
		now:       time.Now,
	}
}

func (s *AuthService) sendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	SendErrorResponse(w, message, statusCode, validationErr)
}

// GetCaptcha issues an arithmetic CAPTCHA challenge
// @Summary Get a CAPTCHA challenge
// @Description Returns a single-use arithmetic challenge for signup/login
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Challenge issued"
// @Router /auth/captcha [get]
func (s *AuthService) GetCaptcha(w http.ResponseWriter, r *http.Request) {
	a := rand.Intn(9) + 1
	b := rand.Intn(9) + 1
	captchaID := uuid.NewString()

	if s.redis != nil {
		key := fmt.Sprintf("captcha:%s", captchaID)
		if err := s.redis.Set(r.Context(), key, a+b, 5*time.Minute).Err(); err != nil {
			log.Printf("[AUTH] Failed to store CAPTCHA: %v", err)
			s.sendErrorResponse(w, "Failed to generate CAPTCHA", http.StatusInternalServerError, nil)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"captchaId": captchaID,
		"question":  fmt.Sprintf("%d + %d", a, b),
	})
}

// verifyCaptcha checks and consumes a CAPTCHA answer. Challenges are
// single-use: the key is deleted whether the answer matched or not.
func (s *AuthService) verifyCaptcha(ctx context.Context, captchaID, answer string) bool {
	if s.redis == nil {
		return true
	}

	key := fmt.Sprintf("captcha:%s", captchaID)
	stored, err := s.redis.Get(ctx, key).Result()
	s.redis.Del(ctx, key)
	if err != nil {
		return false
	}
	return stored == strings.TrimSpace(answer)
}

// Signup handles member registration
// @Summary Register a new member
// @Description Create a member account and its scheduled grant deposit
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup request"
// @Success 200 {object} AuthResponse "Signup successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/signup [post]
func (s *AuthService) Signup(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Signup attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SignupRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Signup failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Signup validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if !s.verifyCaptcha(r.Context(), req.CaptchaID, req.CaptchaAnswer) {
		log.Printf("[AUTH] Signup failed - incorrect CAPTCHA for %s", req.Email)
		s.sendErrorResponse(w, "Incorrect CAPTCHA", http.StatusBadRequest, nil)
		return
	}

	grantAmount, err := decimal.NewFromString(req.GrantAmount)
	if err != nil || grantAmount.IsNegative() {
		s.sendErrorResponse(w, "Invalid grant amount", http.StatusBadRequest, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	now := s.now().UTC()
	acct := models.Account{
		FullName:          req.FullName,
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		DOB:               req.DOB,
		Address:           req.Address,
		SSNLast4:          req.SSNLast4,
		GrantAmount:       grantAmount,
		AccountLast4:      generateAccountLast4(),
		ApplicationNumber: req.ApplicationNumber,
		DepositStatus:     models.DepositScheduled,
		PendingAt:         now.Add(s.deposits.PendingDelay),
		AvailableAt:       now.Add(s.deposits.AvailableDelay),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Account and ledger entry are created in one transaction so a member
	// never exists without its deposit row.
	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", acct.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
		INSERT INTO accounts (full_name, email, password_hash, dob, address, ssn_last4,
			grant_amount, account_last4, application_number, deposit_status,
			pending_at, available_at, notified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13, $13)
		RETURNING id`,
		acct.FullName, acct.Email, hashedPassword, acct.DOB, acct.Address, acct.SSNLast4,
		acct.GrantAmount, acct.AccountLast4, acct.ApplicationNumber, string(acct.DepositStatus),
		acct.PendingAt, acct.AvailableAt, now).Scan(&acct.ID)
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", acct.Email, err)
		s.sendErrorResponse(w, "Email already registered", http.StatusConflict, nil)
		return
	}

	_, err = tx.Exec(`
		INSERT INTO ledger_entries (account_id, amount, status, created_at)
		VALUES ($1, $2, 'PENDING', $3)`,
		acct.ID, acct.GrantAmount, now)
	if err != nil {
		log.Printf("[AUTH] Ledger entry creation failed for account %d: %v", acct.ID, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", acct.Email, err)
		s.sendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Member created successfully - ID: %d, Email: %s", acct.ID, acct.Email)

	token, err := generateJWT(acct.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for account %d: %v", acct.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: &acct})
}

// Login handles member authentication
// @Summary Login member
// @Description Authenticate member with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		s.sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if !s.verifyCaptcha(r.Context(), req.CaptchaID, req.CaptchaAnswer) {
		log.Printf("[AUTH] Login failed - incorrect CAPTCHA")
		s.sendErrorResponse(w, "Incorrect CAPTCHA", http.StatusBadRequest, nil)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var acct models.Account
	var status string
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, full_name, email, password_hash, grant_amount, account_last4,
		       application_number, deposit_status, pending_at, available_at, created_at
		FROM accounts WHERE email = $1`, email).Scan(
		&acct.ID, &acct.FullName, &acct.Email, &hashedPassword, &acct.GrantAmount,
		&acct.AccountLast4, &acct.ApplicationNumber, &status, &acct.PendingAt,
		&acct.AvailableAt, &acct.CreatedAt)
	if err != nil {
		log.Printf("[AUTH] Member not found for email: %s", email)
		s.sendErrorResponse(w, "Invalid email or password", http.StatusUnauthorized, nil)
		return
	}
	acct.DepositStatus = models.DepositStatus(status)

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for member: %s", email)
		s.sendErrorResponse(w, "Invalid email or password", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(acct.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for account %d: %v", acct.ID, err)
		s.sendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for account %d", acct.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: &acct})
}

// Logout handles member logout
// @Summary Logout member
// @Description Revoke the presented token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(r.Context(), key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// ForgotPassword starts a password reset
// @Summary Request password reset
// @Description Email a single-use reset token to the member
// @Tags auth
// @Accept json
// @Produce json
// @Param request body map[string]string true "Forgot password request"
// @Success 200 {object} map[string]string "Reset requested"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Router /auth/forgot-password [post]
func (s *AuthService) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var accountID int
	var fullName string
	err := s.db.QueryRow("SELECT id, full_name FROM accounts WHERE email = $1", email).
		Scan(&accountID, &fullName)
	if err != nil {
		// Do not reveal whether the email exists
		log.Printf("[AUTH] Password reset requested for unknown email")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "If the email exists, a reset link has been sent"})
		return
	}

	resetToken := uuid.NewString()
	if s.redis != nil {
		key := fmt.Sprintf("pwreset:%s", resetToken)
		if err := s.redis.Set(r.Context(), key, accountID, 15*time.Minute).Err(); err != nil {
			log.Printf("[AUTH] Failed to store reset token: %v", err)
			s.sendErrorResponse(w, "Failed to start password reset", http.StatusInternalServerError, nil)
			return
		}
	}

	if s.mailer != nil {
		body := fmt.Sprintf("Hi %s,\n\nUse this code to reset your password: %s\n\nThe code expires in 15 minutes.", fullName, resetToken)
		if err := s.mailer.Send(r.Context(), email, "Password reset", body); err != nil {
			log.Printf("[AUTH] Reset email failed for account %d: %v", accountID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "If the email exists, a reset link has been sent"})
}

// ResetPassword completes a password reset
// @Summary Reset password
// @Description Set a new password using a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body map[string]string true "Reset password request"
// @Success 200 {object} map[string]string "Password updated"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid or expired token"
// @Router /auth/reset-password [post]
func (s *AuthService) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=6"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		s.sendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if s.redis == nil {
		s.sendErrorResponse(w, "Password reset unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	key := fmt.Sprintf("pwreset:%s", req.Token)
	accountID, err := s.redis.Get(r.Context(), key).Int()
	if err != nil {
		log.Printf("[AUTH] Invalid or expired reset token")
		s.sendErrorResponse(w, "Invalid or expired reset token", http.StatusUnauthorized, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed during reset: %v", err)
		s.sendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if _, err := s.db.Exec("UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2",
		hashedPassword, accountID); err != nil {
		log.Printf("[AUTH] Password update failed for account %d: %v", accountID, err)
		s.sendErrorResponse(w, "Failed to update password", http.StatusInternalServerError, nil)
		return
	}

	s.redis.Del(r.Context(), key)

	log.Printf("[AUTH] Password reset completed for account %d", accountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Password updated"})
}

func generateJWT(accountID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": accountID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}

func generateAccountLast4() string {
	const digits = "0123456789"
	b := make([]byte, 4)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}
