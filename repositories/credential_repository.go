package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrCredentialNotFound = errors.New("external credential not found")
	ErrCredentialMember   = errors.New("credential refers to an unknown member")
)

// CredentialRepository is the token store for external OAuth credentials.
type CredentialRepository interface {
	Get(ctx context.Context, memberID uuid.UUID, provider string) (*models.ExternalCredential, error)
	Upsert(ctx context.Context, cred *models.ExternalCredential) error
	Delete(ctx context.Context, memberID uuid.UUID, provider string) error
}

type postgresCredentialRepository struct {
	db     *sql.DB
	cipher *utils.TokenCipher
}

func NewPostgresCredentialRepository(db *sql.DB, cipher *utils.TokenCipher) CredentialRepository {
	return &postgresCredentialRepository{db: db, cipher: cipher}
}

func (r *postgresCredentialRepository) Get(ctx context.Context, memberID uuid.UUID, provider string) (*models.ExternalCredential, error) {
	query := `
		SELECT member_id, provider, external_user_id, access_token, refresh_token,
			expires_at, scope, created_at, updated_at
		FROM external_credentials
		WHERE member_id = $1 AND provider = $2`

	var cred models.ExternalCredential
	var sealedAccess, sealedRefresh string
	err := r.db.QueryRowContext(ctx, query, memberID, provider).Scan(
		&cred.MemberID,
		&cred.Provider,
		&cred.ExternalUserID,
		&sealedAccess,
		&sealedRefresh,
		&cred.ExpiresAt,
		&cred.Scope,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}

	// Decryption errors wrap utils.ErrTokenCiphertext so callers can tell a
	// bad row from a bad connection.
	if cred.AccessToken, err = r.cipher.Open(sealedAccess); err != nil {
		return nil, fmt.Errorf("access token for member %s: %w", memberID, err)
	}
	if cred.RefreshToken, err = r.cipher.Open(sealedRefresh); err != nil {
		return nil, fmt.Errorf("refresh token for member %s: %w", memberID, err)
	}
	return &cred, nil
}

// Upsert keeps one row per (member, provider); a refresh overwrites it in place.
func (r *postgresCredentialRepository) Upsert(ctx context.Context, cred *models.ExternalCredential) error {
	sealedAccess, err := r.cipher.Seal(cred.AccessToken)
	if err != nil {
		return err
	}
	sealedRefresh, err := r.cipher.Seal(cred.RefreshToken)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO external_credentials
			(member_id, provider, external_user_id, access_token, refresh_token, expires_at, scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (member_id, provider) DO UPDATE SET
			external_user_id = EXCLUDED.external_user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		cred.MemberID,
		cred.Provider,
		cred.ExternalUserID,
		sealedAccess,
		sealedRefresh,
		cred.ExpiresAt,
		cred.Scope,
	).Scan(&cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrCredentialMember
		}
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (r *postgresCredentialRepository) Delete(ctx context.Context, memberID uuid.UUID, provider string) error {
	query := `DELETE FROM external_credentials WHERE member_id = $1 AND provider = $2`
	result, err := r.db.ExecContext(ctx, query, memberID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rowsAffected, checkErr := checkRowsAffected(result)
	if checkErr != nil {
		return checkErr
	}
	if rowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
