package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/Dosada05/erg-leaderboard/storage"
	"github.com/google/uuid"
)

const (
	MaxDisplayNameLength = 50
	MaxAvatarSize        = 5 << 20
)

type ProfileService interface {
	GetProfile(ctx context.Context, memberID uuid.UUID) (*Profile, error)
	UpdateProfile(ctx context.Context, memberID uuid.UUID, input UpdateProfileInput) (*Profile, error)
	UploadAvatar(ctx context.Context, memberID uuid.UUID, file io.Reader, contentType string, size int64) (*Profile, error)
}

type Profile struct {
	DisplayName       string  `json:"display_name"`
	ShowOnLeaderboard bool    `json:"show_on_leaderboard"`
	DiscordName       string  `json:"discord_name"`
	AvatarURL         *string `json:"avatar_url"`
	Gender            *string `json:"gender,omitempty"`
	HasConcept2Linked bool    `json:"has_concept2_linked"`
}

type UpdateProfileInput struct {
	DisplayName       *string `json:"display_name"`
	ShowOnLeaderboard *bool   `json:"show_on_leaderboard"`
}

type profileService struct {
	memberRepo repositories.MemberRepository
	uploader   storage.FileUploader
	logger     *slog.Logger
}

// NewProfileService accepts a nil uploader; avatar uploads then fail with
// ErrUploaderUnavailable.
func NewProfileService(memberRepo repositories.MemberRepository, uploader storage.FileUploader, logger *slog.Logger) ProfileService {
	return &profileService{
		memberRepo: memberRepo,
		uploader:   uploader,
		logger:     logger,
	}
}

func (s *profileService) GetProfile(ctx context.Context, memberID uuid.UUID) (*Profile, error) {
	member, err := s.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.toProfile(member), nil
}

func (s *profileService) UpdateProfile(ctx context.Context, memberID uuid.UUID, input UpdateProfileInput) (*Profile, error) {
	if input.DisplayName == nil && input.ShowOnLeaderboard == nil {
		return nil, newValidationError("body", "at least one of display_name, show_on_leaderboard is required")
	}

	var displayName string
	if input.DisplayName != nil {
		displayName = strings.TrimSpace(*input.DisplayName)
		n := utf8.RuneCountInString(displayName)
		if n == 0 {
			return nil, newValidationError("display_name", "must not be empty")
		}
		if n > MaxDisplayNameLength {
			return nil, newValidationError("display_name", "must be at most %d characters", MaxDisplayNameLength)
		}
	}

	member, err := s.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if input.DisplayName != nil {
		member.DisplayName = &displayName
	}
	if input.ShowOnLeaderboard != nil {
		member.ShowOnLeaderboard = *input.ShowOnLeaderboard
	}

	if err := s.memberRepo.Update(ctx, member); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.toProfile(member), nil
}

func (s *profileService) UploadAvatar(ctx context.Context, memberID uuid.UUID, file io.Reader, contentType string, size int64) (*Profile, error) {
	if s.uploader == nil {
		return nil, ErrUploaderUnavailable
	}
	if size > MaxAvatarSize {
		return nil, newValidationError("avatar", "must be at most %d MB", MaxAvatarSize>>20)
	}
	ext, err := GetExtensionFromContentType(contentType)
	if err != nil {
		return nil, newValidationError("avatar", "%v", err)
	}

	member, err := s.getMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("avatars/%s/%s%s", memberID, uuid.NewString(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}

	previous := member.AvatarKey
	member.AvatarKey = &key
	if err := s.memberRepo.Update(ctx, member); err != nil {
		if delErr := s.uploader.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to remove orphaned avatar", slog.String("key", key), slog.Any("error", delErr))
		}
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to save avatar key: %w", err)
	}

	if previous != nil && *previous != "" && *previous != key {
		if err := s.uploader.Delete(ctx, *previous); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete previous avatar", slog.String("key", *previous), slog.Any("error", err))
		}
	}
	return s.toProfile(member), nil
}

func (s *profileService) getMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %s: %w", memberID, err)
	}
	return member, nil
}

func (s *profileService) toProfile(member *models.Member) *Profile {
	return &Profile{
		DisplayName:       member.Name(),
		ShowOnLeaderboard: member.ShowOnLeaderboard,
		DiscordName:       member.DiscordName,
		AvatarURL:         memberAvatarURL(member, s.uploader),
		Gender:            member.Gender,
		HasConcept2Linked: member.HasConcept2Linked,
	}
}
