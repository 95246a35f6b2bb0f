package models

import (
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

type Member struct {
	ID                uuid.UUID `json:"id"`
	DiscordID         string    `json:"discord_id"`
	DiscordName       string    `json:"discord_name"`
	DiscordAvatar     *string   `json:"-"`                      // Discord avatar hash
	DisplayName       *string   `json:"display_name,omitempty"` // overrides DiscordName when set
	AvatarKey         *string   `json:"-"`                      // uploaded avatar object key
	AvatarURL         *string   `json:"avatar_url,omitempty"`
	Gender            *string   `json:"gender,omitempty"`
	ShowOnLeaderboard bool      `json:"show_on_leaderboard"`
	HasConcept2Linked bool      `json:"has_concept2_linked"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Name returns the name shown on the leaderboard.
func (m *Member) Name() string {
	if m.DisplayName != nil && *m.DisplayName != "" {
		return *m.DisplayName
	}
	if m.DiscordName != "" {
		return m.DiscordName
	}
	return "Unknown"
}

// CurrentUser is the signed-in member as seen by the frontend.
type CurrentUser struct {
	ID                      uuid.UUID  `json:"id"`
	DiscordID               string     `json:"discord_id"`
	DisplayName             string     `json:"display_name"`
	AvatarURL               *string    `json:"avatar_url,omitempty"`
	Role                    MemberRole `json:"role"`
	HasLinkedFitnessAccount bool       `json:"has_linked_fitness_account"`
}
