package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/username/stocktracker/backend/src/config"
	"github.com/username/stocktracker/backend/src/database"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/model"
	"github.com/username/stocktracker/backend/src/security"
	"github.com/username/stocktracker/backend/src/services"
	"github.com/username/stocktracker/backend/src/utils"
)

type UserHandler struct {
	authService  *security.AuthService
	emailService services.EmailService
}

func NewUserHandler(authService *security.AuthService, emailService services.EmailService) *UserHandler {
	return &UserHandler{
		authService:  authService,
		emailService: emailService,
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	credentials.Username = strings.TrimSpace(credentials.Username)
	credentials.Email = strings.TrimSpace(credentials.Email)
	if credentials.Username == "" || len(credentials.Password) < 8 {
		utils.WriteError(w, http.StatusBadRequest, "Username is required and password must be at least 8 characters")
		return
	}
	if _, err := mail.ParseAddress(credentials.Email); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	verificationToken, err := generateRandomToken()
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to generate verification token")
		return
	}

	user := &model.User{
		Username:     credentials.Username,
		Email:        credentials.Email,
		Password:     hashedPassword,
		AuthProvider: "local",
		EmailVerificationToken: sql.NullString{
			String: verificationToken,
			Valid:  true,
		},
		EmailVerificationTokenExpiresAt: sql.NullTime{
			Time:  time.Now().Add(config.Cfg.VerificationTokenExpiry),
			Valid: true,
		},
	}

	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			utils.WriteError(w, http.StatusConflict, "Username already exists")
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			utils.WriteError(w, http.StatusConflict, "Email already registered")
			return
		}
		logger.L.Error("Failed to create user", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	if err := h.emailService.SendVerificationEmail(user.Email, user.Username, verificationToken); err != nil {
		// Account exists either way; the user can ask for a re-send.
		logger.L.Error("Failed to send verification email", "userID", user.ID, "error", err)
	}

	utils.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	}, "User registered successfully. Please check your email to verify your account.")
}

func (h *UserHandler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.WriteError(w, http.StatusBadRequest, "Verification token is required")
		return
	}

	user, err := model.GetUserByVerificationToken(database.DB, token)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	if user.EmailVerificationTokenExpiresAt.Valid && user.EmailVerificationTokenExpiresAt.Time.Before(time.Now()) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}

	if err := model.MarkEmailVerified(database.DB, user.ID); err != nil {
		logger.L.Error("Failed to mark email verified", "userID", user.ID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to verify email")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, nil, "Email verified successfully")
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := model.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		logger.L.Warn("Login: user lookup failed", "username", credentials.Username, "error", err)
		utils.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Warn("Login: password check failed", "username", credentials.Username)
		utils.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	accessToken, refreshToken, err := h.issueSession(user.ID, r)
	if err != nil {
		logger.L.Error("Login: failed to issue session", "userID", user.ID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user": map[string]interface{}{
			"id":              user.ID,
			"username":        user.Username,
			"email":           user.Email,
			"isEmailVerified": user.IsEmailVerified,
		},
	}, "")
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refreshToken"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if requestBody.RefreshToken == "" {
		utils.WriteError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	session, err := model.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh: session lookup failed", "error", err)
		utils.WriteError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	// Rotate: old session goes away, a fresh pair is issued.
	if err := model.DeleteSessionByRefreshToken(database.DB, requestBody.RefreshToken); err != nil {
		logger.L.Warn("Refresh: failed to delete rotated session", "error", err)
	}

	accessToken, refreshToken, err := h.issueSession(session.UserID, r)
	if err != nil {
		logger.L.Error("Refresh: failed to issue session", "userID", session.UserID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	}, "")
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == "" {
		utils.WriteError(w, http.StatusUnauthorized, "Authorization header required")
		return
	}

	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Warn("Logout: failed to delete session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) issueSession(userID int64, r *http.Request) (string, string, error) {
	accessToken, err := h.authService.GenerateToken(strconv.FormatInt(userID, 10))
	if err != nil {
		return "", "", fmt.Errorf("generating access token: %w", err)
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}

	session := &model.Session{
		UserID:       userID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		return "", "", fmt.Errorf("creating session: %w", err)
	}
	return accessToken, refreshToken, nil
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
