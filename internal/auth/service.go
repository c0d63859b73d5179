// Package auth registers users, issues JWTs and resolves the caller identity
// for the HTTP layer.
package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"propdesk/internal/apperr"
	"propdesk/internal/audit"
	"propdesk/internal/models"
	"propdesk/internal/repository"
)

const minPasswordLen = 8

type Service struct {
	Repo   repository.Repository
	JWT    JWT
	Events audit.Sink
	Logger *zap.Logger

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type Session struct {
	User      models.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	missing := map[string]string{}
	if email == "" {
		missing["email"] = "required"
	}
	if in.Password == "" {
		missing["password"] = "required"
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("MISSING_FIELDS", "email and password are required", missing)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Validation("INVALID_EMAIL", "invalid email format", map[string]string{"email": "invalid"})
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Validation("WEAK_PASSWORD", "password must be at least 8 characters", map[string]string{"password": "too short"})
	}

	existing, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal("lookup user", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("EMAIL_EXISTS", "email already registered")
	}

	cost := s.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         models.RoleUser,
	}
	if err := s.Repo.InsertUser(ctx, user); err != nil {
		return nil, apperr.Internal("insert user", err)
	}
	audit.Emit(s.Events, s.Logger, audit.Event{Action: audit.ActionUserRegistered, UserID: user.ID})
	return s.issue(*user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("MISSING_FIELDS", "email and password are required", nil)
	}
	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal("lookup user", err)
	}
	if user == nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	audit.Emit(s.Events, s.Logger, audit.Event{Action: audit.ActionUserLogin, UserID: user.ID})
	return s.issue(*user)
}

// Me returns the stored profile of the caller.
func (s *Service) Me(ctx context.Context, actor Identity) (*models.User, error) {
	user, err := s.Repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, apperr.Internal("lookup user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("USER_NOT_FOUND", "user not found")
	}
	return user, nil
}

func (s *Service) issue(user models.User) (*Session, error) {
	tok, exp, err := s.JWT.Sign(Claims{ID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, apperr.Internal("sign token", err)
	}
	return &Session{User: user, Token: tok, ExpiresAt: exp}, nil
}
