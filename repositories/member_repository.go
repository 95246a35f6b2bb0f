package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrMemberNotFound        = errors.New("member not found")
	ErrMemberDiscordConflict = errors.New("discord account is already bound to another member")
)

type MemberRepository interface {
	UpsertFromDiscord(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	SetGenderIfEmpty(ctx context.Context, id uuid.UUID, gender string) error
	// ListVisibleWithExternalLink returns members with show_on_leaderboard set
	// that hold a credential for provider, in a stable order.
	ListVisibleWithExternalLink(ctx context.Context, provider string) ([]models.Member, error)
}

type postgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) MemberRepository {
	return &postgresMemberRepository{db: db}
}

const memberColumns = `
	m.id, m.discord_id, m.discord_name, m.discord_avatar, m.display_name,
	m.avatar_key, m.gender, m.show_on_leaderboard, m.created_at, m.updated_at`

// UpsertFromDiscord creates the member on first sign-in. On later sign-ins only
// the Discord-owned fields are refreshed; display_name is set only if empty.
func (r *postgresMemberRepository) UpsertFromDiscord(ctx context.Context, member *models.Member) error {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	query := `
		INSERT INTO members AS m (id, discord_id, discord_name, discord_avatar, display_name, show_on_leaderboard)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (discord_id) DO UPDATE SET
			discord_name = EXCLUDED.discord_name,
			discord_avatar = EXCLUDED.discord_avatar,
			display_name = COALESCE(m.display_name, EXCLUDED.display_name),
			updated_at = NOW()
		RETURNING ` + memberColumns

	row := r.db.QueryRowContext(ctx, query,
		member.ID,
		member.DiscordID,
		member.DiscordName,
		nullString(member.DiscordAvatar),
		nullString(member.DisplayName),
	)
	if err := scanMember(row, member); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrMemberDiscordConflict
		}
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (r *postgresMemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	query := `
		SELECT ` + memberColumns + `,
			EXISTS (
				SELECT 1 FROM external_credentials c
				WHERE c.member_id = m.id AND c.provider = $2
			)
		FROM members m
		WHERE m.id = $1`

	var member models.Member
	var discordAvatar, displayName, avatarKey, gender sql.NullString
	err := r.db.QueryRowContext(ctx, query, id, models.ProviderConcept2).Scan(
		&member.ID,
		&member.DiscordID,
		&member.DiscordName,
		&discordAvatar,
		&displayName,
		&avatarKey,
		&gender,
		&member.ShowOnLeaderboard,
		&member.CreatedAt,
		&member.UpdatedAt,
		&member.HasConcept2Linked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	member.DiscordAvatar = stringPtr(discordAvatar)
	member.DisplayName = stringPtr(displayName)
	member.AvatarKey = stringPtr(avatarKey)
	member.Gender = stringPtr(gender)
	return &member, nil
}

func (r *postgresMemberRepository) Update(ctx context.Context, member *models.Member) error {
	query := `
		UPDATE members SET
			display_name = $1,
			show_on_leaderboard = $2,
			avatar_key = $3,
			gender = $4,
			updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		nullString(member.DisplayName),
		member.ShowOnLeaderboard,
		nullString(member.AvatarKey),
		nullString(member.Gender),
		member.ID,
	).Scan(&member.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to update member: %w", err)
	}
	return nil
}

func (r *postgresMemberRepository) SetGenderIfEmpty(ctx context.Context, id uuid.UUID, gender string) error {
	query := `
		UPDATE members SET gender = $1, updated_at = NOW()
		WHERE id = $2 AND (gender IS NULL OR gender = '')`

	result, err := r.db.ExecContext(ctx, query, gender, id)
	if err != nil {
		return fmt.Errorf("failed to backfill gender: %w", err)
	}
	// Zero rows is normal here: gender was already set.
	if _, err := checkRowsAffected(result); err != nil {
		return err
	}
	return nil
}

func (r *postgresMemberRepository) ListVisibleWithExternalLink(ctx context.Context, provider string) ([]models.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		JOIN external_credentials c ON c.member_id = m.id AND c.provider = $1
		WHERE m.show_on_leaderboard
		ORDER BY m.created_at ASC, m.id ASC`
	// The fixed order is what breaks ties between equal totals downstream.

	rows, err := r.db.QueryContext(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard members: %w", err)
	}
	defer rows.Close()

	members := make([]models.Member, 0)
	for rows.Next() {
		var member models.Member
		if err := scanMember(rows, &member); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard member: %w", err)
		}
		member.HasConcept2Linked = true
		members = append(members, member)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner, member *models.Member) error {
	var discordAvatar, displayName, avatarKey, gender sql.NullString
	err := row.Scan(
		&member.ID,
		&member.DiscordID,
		&member.DiscordName,
		&discordAvatar,
		&displayName,
		&avatarKey,
		&gender,
		&member.ShowOnLeaderboard,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return err
	}
	member.DiscordAvatar = stringPtr(discordAvatar)
	member.DisplayName = stringPtr(displayName)
	member.AvatarKey = stringPtr(avatarKey)
	member.Gender = stringPtr(gender)
	return nil
}
