package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"guideboard/internal/common"
	"guideboard/internal/common/security"
	"guideboard/internal/dbx"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPasswordLen = 8

type AuthService struct {
	db           *sql.DB
	repos        repository.Manager
	isAdminEmail func(email string) bool
	logger       *zap.Logger
}

func NewAuthService(db *sql.DB, repos repository.Manager, isAdminEmail func(string) bool, logger *zap.Logger) *AuthService {
	return &AuthService{db: db, repos: repos, isAdminEmail: isAdminEmail, logger: logger.Named("auth")}
}

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Profile *model.Profile `json:"profile"`
	Token   string         `json:"token"`
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", common.ErrBadRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("email is not a valid address: %w", common.ErrValidation)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, common.ErrValidation)
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &model.User{ID: uuid.NewString(), Email: email, HashedPassword: hashedPassword}

	var profile *model.Profile
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).Create(ctx, user); err != nil {
			return err
		}
		p, err := s.ensureProfile(ctx, tx, user, req.DisplayName)
		profile = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("role", profile.Role))
	return s.respond(profile)
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, common.ErrBadRequest
	}

	user, err := s.repos.Users(s.db).FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.ErrUnauthorized
	}

	profile, err := s.ensureProfile(ctx, s.db, user, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return s.respond(profile)
}

// ensureProfile creates the profile on first authentication. An existing
// profile, and the role stored on it, are returned untouched.
func (s *AuthService) ensureProfile(ctx context.Context, db dbx.DBTX, user *model.User, displayName string) (*model.Profile, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name, _, _ = strings.Cut(user.Email, "@")
	}
	role := model.RoleGuide
	if s.isAdminEmail != nil && s.isAdminEmail(user.Email) {
		role = model.RoleAdmin
	}
	return s.repos.Profiles(db).Ensure(ctx, &model.Profile{ID: user.ID, DisplayName: name, Role: role})
}

func (s *AuthService) respond(profile *model.Profile) (*AuthResponse, error) {
	token, err := security.GenerateToken(profile.ID, profile.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResponse{Profile: profile, Token: token}, nil
}
