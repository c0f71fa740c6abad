package httpapi

import (
	"errors"
	"net/http"

	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/auth"
	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/models"
	"github.com/safar/fishmart/internal/store"
	"github.com/safar/fishmart/internal/validation"
	"go.uber.org/zap"
)

type registerRequest struct {
	FullName        string `json:"full_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,phone"`
	Password        string `json:"password" validate:"required,min=8,password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=buyer seller"`
}

func (registerRequest) ValidationMessages() map[string]string {
	return map[string]string{
		"required":                 "All fields are required",
		"password.min":             "Password must be at least 8 characters long",
		"confirm_password.eqfield": "Passwords do not match",
		"role.oneof":               "Role must be either buyer or seller",
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (loginRequest) ValidationMessages() map[string]string {
	return map[string]string{"required": "Email and password are required"}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (refreshRequest) ValidationMessages() map[string]string {
	return map[string]string{"required": "Refresh token is required"}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, "Invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		s.respondError(w, r, err, "Invalid request body")
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleBuyer
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, r, err, "Internal server error")
		return
	}

	user, err := s.store.CreateUser(ctx, store.NewUser{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		s.respondError(w, r, err, "Internal server error")
		return
	}

	// Login upserts the session row, so a missed insert here heals itself.
	if err := s.store.InitSession(ctx, user.ID); err != nil {
		s.log.Warn("init session", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	respondJSON(w, http.StatusCreated, envelope{"message": "User registered successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, "Invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		s.respondError(w, r, err, "Invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			err = database.ErrInvalidCredentials
		}
		s.respondError(w, r, err, "Server error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.respondError(w, r, database.ErrInvalidCredentials, "Server error")
		return
	}

	pair, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.respondError(w, r, err, "Server error")
		return
	}
	if err := s.store.SaveRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		s.respondError(w, r, err, "Server error")
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"message":      "Login successful",
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// handleRefresh rotates the token pair. The presented refresh token must be
// the one stored for the user, so a logged-out or rotated token is refused.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, "Invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		s.respondError(w, r, err, "Invalid request body")
		return
	}

	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		s.respondError(w, r, err, "Server error")
		return
	}

	stored, err := s.store.SessionToken(ctx, claims.UserID)
	if err != nil {
		s.respondError(w, r, err, "Server error")
		return
	}
	if stored == "" || stored != req.RefreshToken {
		s.respondError(w, r, auth.ErrSessionExpired, "Server error")
		return
	}

	pair, err := s.tokens.Issue(claims.UserID, claims.Role)
	if err != nil {
		s.respondError(w, r, err, "Server error")
		return
	}
	if err := s.store.SaveRefreshToken(ctx, claims.UserID, pair.RefreshToken); err != nil {
		s.respondError(w, r, err, "Server error")
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"message":      "Token refreshed successfully",
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	if err := s.store.ClearSession(r.Context(), id.UserID); err != nil {
		s.respondError(w, r, err, "Error logging out")
		return
	}

	respondJSON(w, http.StatusOK, envelope{"message": "Logged out successfully"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		s.respondError(w, r, apperr.New(apperr.Unauthorized, "Unauthorized"), "Unauthorized")
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"message": "User details fetched successfully",
		"user":    id,
	})
}
