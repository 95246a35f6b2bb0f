package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/Dosada05/erg-leaderboard/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// refreshBufferSeconds refreshes tokens this close to expiry to absorb
	// clock skew and in-flight latency.
	refreshBufferSeconds = 300
	refreshTimeout       = 15 * time.Second
)

// TokenRefresher performs the provider's refresh grant.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*concept2.Token, error)
}

// TokenService hands out Concept2 access tokens that are valid for at least
// the refresh buffer.
//
// GetValidAccessToken fails with ErrNotLinked when the member has no
// credential, with ErrCredentialUnreadable when the stored row cannot be
// decrypted and with a *TokenRefreshError when the provider rejects the
// refresh; all of these mean "skip this member". Token store failures are
// returned as *SystemicError.
type TokenService interface {
	GetValidAccessToken(ctx context.Context, memberID uuid.UUID) (string, error)
}

type tokenService struct {
	credRepo  repositories.CredentialRepository
	refresher TokenRefresher
	logger    *slog.Logger
	now       func() time.Time
	inflight  singleflight.Group
}

func NewTokenService(credRepo repositories.CredentialRepository, refresher TokenRefresher, logger *slog.Logger) TokenService {
	return &tokenService{
		credRepo:  credRepo,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *tokenService) GetValidAccessToken(ctx context.Context, memberID uuid.UUID) (string, error) {
	cred, err := s.loadCredential(ctx, memberID)
	if err != nil {
		return "", err
	}
	if !s.needsRefresh(cred) {
		return cred.AccessToken, nil
	}

	// Concept2 rotates refresh tokens, so two concurrent grants for one member
	// would leave one of them holding a dead token. Collapse them.
	ch := s.inflight.DoChan(memberID.String(), func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx), memberID)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *tokenService) needsRefresh(cred *models.ExternalCredential) bool {
	return cred.ExpiresAt-s.now().Unix() < refreshBufferSeconds
}

func (s *tokenService) loadCredential(ctx context.Context, memberID uuid.UUID) (*models.ExternalCredential, error) {
	cred, err := s.credRepo.Get(ctx, memberID, models.ProviderConcept2)
	if err != nil {
		if errors.Is(err, repositories.ErrCredentialNotFound) {
			return nil, ErrNotLinked
		}
		// One row sealed under a rotated key is that member's problem, not
		// the store's. The row stays so relinking can overwrite it.
		if errors.Is(err, utils.ErrTokenCiphertext) {
			return nil, fmt.Errorf("%w: %v", ErrCredentialUnreadable, err)
		}
		return nil, &SystemicError{Op: "load credential", Err: err}
	}
	return cred, nil
}

func (s *tokenService) refresh(ctx context.Context, memberID uuid.UUID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	// Re-read: a flight that finished just before this one started may
	// already have stored a fresh token.
	cred, err := s.loadCredential(ctx, memberID)
	if err != nil {
		return "", err
	}
	if !s.needsRefresh(cred) {
		return cred.AccessToken, nil
	}

	token, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		s.logger.WarnContext(ctx, "Concept2 token refresh failed",
			slog.String("member_id", memberID.String()),
			slog.Any("error", err))
		return "", &TokenRefreshError{MemberID: memberID, Err: err}
	}

	cred.AccessToken = token.AccessToken
	cred.RefreshToken = token.RefreshToken
	cred.ExpiresAt = s.now().Unix() + token.ExpiresIn
	if token.Scope != "" {
		cred.Scope = token.Scope
	}
	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		return "", &SystemicError{Op: "persist refreshed credential", Err: err}
	}

	s.logger.InfoContext(ctx, "Concept2 token refreshed",
		slog.String("member_id", memberID.String()),
		slog.Int64("expires_at", cred.ExpiresAt))
	return cred.AccessToken, nil
}
