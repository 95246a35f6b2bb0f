package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/google/uuid"
)

// Concept2OAuth is satisfied by *concept2.OAuthClient.
type Concept2OAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*concept2.Token, error)
}

// ProfileFetcher is satisfied by *concept2.Client.
type ProfileFetcher interface {
	GetMe(ctx context.Context, accessToken string) (*models.Concept2Profile, error)
}

type LinkService interface {
	AuthorizeURL(state string) string
	CompleteLink(ctx context.Context, memberID uuid.UUID, code string) error
	// Unlink removes the member's Concept2 credential. Unlinking an unlinked
	// member is not an error.
	Unlink(ctx context.Context, memberID uuid.UUID) error
}

type linkService struct {
	oauth      Concept2OAuth
	profiles   ProfileFetcher
	credRepo   repositories.CredentialRepository
	memberRepo repositories.MemberRepository
	logger     *slog.Logger
	now        func() time.Time
}

func NewLinkService(
	oauth Concept2OAuth,
	profiles ProfileFetcher,
	credRepo repositories.CredentialRepository,
	memberRepo repositories.MemberRepository,
	logger *slog.Logger,
) LinkService {
	return &linkService{
		oauth:      oauth,
		profiles:   profiles,
		credRepo:   credRepo,
		memberRepo: memberRepo,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *linkService) AuthorizeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

func (s *linkService) CompleteLink(ctx context.Context, memberID uuid.UUID, code string) error {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("concept2 code exchange: %w", err)
	}

	profile, err := s.profiles.GetMe(ctx, token.AccessToken)
	if err != nil {
		return fmt.Errorf("concept2 profile lookup: %w", err)
	}

	cred := &models.ExternalCredential{
		MemberID:       memberID,
		Provider:       models.ProviderConcept2,
		ExternalUserID: profile.UserID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresAt:      s.now().Unix() + token.ExpiresIn,
		Scope:          token.Scope,
	}
	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		if errors.Is(err, repositories.ErrCredentialMember) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to store concept2 credential: %w", err)
	}

	// Backfill gender once; a value the member already has is kept.
	if gender := strings.TrimSpace(derefString(profile.Gender)); gender != "" {
		if err := s.memberRepo.SetGenderIfEmpty(ctx, memberID, gender); err != nil {
			s.logger.WarnContext(ctx, "Failed to backfill gender from Concept2",
				slog.String("member_id", memberID.String()),
				slog.Any("error", err))
		}
	}

	s.logger.InfoContext(ctx, "Concept2 account linked",
		slog.String("member_id", memberID.String()),
		slog.String("concept2_user_id", profile.UserID))
	return nil
}

func (s *linkService) Unlink(ctx context.Context, memberID uuid.UUID) error {
	err := s.credRepo.Delete(ctx, memberID, models.ProviderConcept2)
	if err != nil && !errors.Is(err, repositories.ErrCredentialNotFound) {
		return fmt.Errorf("failed to unlink concept2: %w", err)
	}
	s.logger.InfoContext(ctx, "Concept2 account unlinked", slog.String("member_id", memberID.String()))
	return nil
}
