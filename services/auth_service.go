package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/erg-leaderboard/discord"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/Dosada05/erg-leaderboard/storage"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const DefaultSessionTTL = 30 * 24 * time.Hour

// DiscordOAuth is satisfied by *discord.Client.
type DiscordOAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*discord.Token, error)
	GetUser(ctx context.Context, accessToken string) (*discord.User, error)
	IsMemberOfGuild(ctx context.Context, accessToken, guildID string) (bool, error)
}

type AuthService interface {
	DiscordLoginURL(state string) string
	// CompleteDiscordLogin signs a Discord user in and returns a session JWT.
	// Users outside the club guild get ErrNotInGuild.
	CompleteDiscordLogin(ctx context.Context, code string) (*models.Member, string, error)
	CurrentUser(ctx context.Context, memberID uuid.UUID) (*models.CurrentUser, error)
}

type AuthConfig struct {
	GuildID         string
	JWTSecret       string
	SessionTTL      time.Duration
	AdminDiscordIDs []string
}

type authService struct {
	discord    DiscordOAuth
	memberRepo repositories.MemberRepository
	uploader   storage.FileUploader
	logger     *slog.Logger
	cfg        AuthConfig
	admins     map[string]struct{}
	now        func() time.Time
}

func NewAuthService(discordClient DiscordOAuth, memberRepo repositories.MemberRepository, uploader storage.FileUploader, logger *slog.Logger, cfg AuthConfig) AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	admins := make(map[string]struct{}, len(cfg.AdminDiscordIDs))
	for _, id := range cfg.AdminDiscordIDs {
		admins[id] = struct{}{}
	}
	return &authService{
		discord:    discordClient,
		memberRepo: memberRepo,
		uploader:   uploader,
		logger:     logger,
		cfg:        cfg,
		admins:     admins,
		now:        time.Now,
	}
}

func (s *authService) DiscordLoginURL(state string) string {
	return s.discord.AuthCodeURL(state)
}

func (s *authService) CompleteDiscordLogin(ctx context.Context, code string) (*models.Member, string, error) {
	token, err := s.discord.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("%w: discord code exchange: %w", ErrAuthenticationFailed, err)
	}

	user, err := s.discord.GetUser(ctx, token.AccessToken)
	if err != nil {
		return nil, "", fmt.Errorf("%w: discord user lookup: %w", ErrAuthenticationFailed, err)
	}

	inGuild, err := s.discord.IsMemberOfGuild(ctx, token.AccessToken, s.cfg.GuildID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: discord guild lookup: %w", ErrAuthenticationFailed, err)
	}
	if !inGuild {
		s.logger.InfoContext(ctx, "Rejected sign-in from outside the club server", slog.String("discord_id", user.ID))
		return nil, "", ErrNotInGuild
	}

	username := user.Username
	if username == "" {
		username = "Unknown"
	}
	member := &models.Member{
		DiscordID:     user.ID,
		DiscordName:   username,
		DiscordAvatar: user.Avatar,
		DisplayName:   &username,
	}
	if err := s.memberRepo.UpsertFromDiscord(ctx, member); err != nil {
		return nil, "", fmt.Errorf("failed to save member: %w", err)
	}
	populateMemberAvatarURL(member, s.uploader)

	tokenString, err := s.issueSessionToken(member)
	if err != nil {
		return nil, "", err
	}
	s.logger.InfoContext(ctx, "Member signed in", slog.String("member_id", member.ID.String()))
	return member, tokenString, nil
}

func (s *authService) issueSessionToken(member *models.Member) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":    member.ID.String(),
		"discord_id": member.DiscordID,
		"name":       member.Name(),
		"role":       string(s.roleFor(member.DiscordID)),
		"exp":        now.Add(s.cfg.SessionTTL).Unix(),
		"iat":        now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (s *authService) roleFor(discordID string) models.MemberRole {
	if _, ok := s.admins[discordID]; ok {
		return models.RoleAdmin
	}
	return models.RoleMember
}

func (s *authService) CurrentUser(ctx context.Context, memberID uuid.UUID) (*models.CurrentUser, error) {
	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %s: %w", memberID, err)
	}
	return &models.CurrentUser{
		ID:                      member.ID,
		DiscordID:               member.DiscordID,
		DisplayName:             member.Name(),
		AvatarURL:               memberAvatarURL(member, s.uploader),
		Role:                    s.roleFor(member.DiscordID),
		HasLinkedFitnessAccount: member.HasConcept2Linked,
	}, nil
}
