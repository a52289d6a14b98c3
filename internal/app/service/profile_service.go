package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"guideboard/internal/common"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"
	"guideboard/internal/domain/repository"
)

const maxDisplayNameLen = 80

type ProfileService struct {
	profiles repository.ProfileRepository
}

func NewProfileService(profiles repository.ProfileRepository) *ProfileService {
	return &ProfileService{profiles: profiles}
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

type ProfilePage struct {
	Profiles []model.Profile `json:"profiles"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// Principal resolves the trusted role of userID. A user without a profile
// cannot act.
func (s *ProfileService) Principal(ctx context.Context, userID string) (policy.Principal, error) {
	role, err := s.profiles.FindRole(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return policy.Principal{}, fmt.Errorf("no profile for user: %w", common.ErrUnauthorized)
		}
		return policy.Principal{}, common.Errorf("failed to load principal: %w", err)
	}
	return policy.Principal{ID: userID, Role: role}, nil
}

func (s *ProfileService) Me(ctx context.Context, p policy.Principal) (*model.Profile, error) {
	return s.Get(ctx, p, p.ID)
}

func (s *ProfileService) Get(ctx context.Context, p policy.Principal, profileID string) (*model.Profile, error) {
	if err := policy.AuthorizeProfile(p, policy.ReadProfile, profileID); err != nil {
		return nil, err
	}
	return s.profiles.FindByID(ctx, profileID)
}

func (s *ProfileService) UpdateMe(ctx context.Context, p policy.Principal, req UpdateProfileRequest) (*model.Profile, error) {
	if err := policy.AuthorizeProfile(p, policy.UpdateProfile, p.ID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("display_name is required: %w", common.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return nil, fmt.Errorf("display_name is longer than %d characters: %w", maxDisplayNameLen, common.ErrValidation)
	}
	return s.profiles.UpdateDisplayName(ctx, p.ID, name)
}

func (s *ProfileService) List(ctx context.Context, p policy.Principal, page, pageSize int) (*ProfilePage, error) {
	if err := policy.AuthorizeProfile(p, policy.ListProfiles, ""); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	profiles, total, err := s.profiles.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, common.Errorf("failed to list profiles: %w", err)
	}
	return &ProfilePage{Profiles: profiles, Total: total, Page: page, PageSize: pageSize}, nil
}
