package models

import (
	"time"

	"github.com/google/uuid"
)

type Period string

const (
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodYear   Period = "year"
	PeriodCustom Period = "custom"
)

type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	MemberID      uuid.UUID `json:"member_id"`
	DiscordID     string    `json:"discord_id"`
	Name          string    `json:"name"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	Gender        *string   `json:"gender,omitempty"`
	TotalMeters   float64   `json:"total_meters"`
	WorkoutCount  int       `json:"workout_count"`
	TotalHours    float64   `json:"total_hours"`
	TotalCalories float64   `json:"total_calories"`
	LastWorkout   *string   `json:"last_workout,omitempty"`
}

type SkipReason string

const (
	SkipNoToken              SkipReason = "no_token"
	SkipTokenRefreshFailed   SkipReason = "token_refresh_failed"
	SkipFetchFailed          SkipReason = "fetch_failed"
	SkipTimeout              SkipReason = "timeout"
	SkipCredentialUnreadable SkipReason = "credential_unreadable"
)

type SkippedMember struct {
	MemberID uuid.UUID  `json:"member_id"`
	Name     string     `json:"name"`
	Reason   SkipReason `json:"reason"`
}

// Leaderboard is what the cache stores and the API renders.
type Leaderboard struct {
	Period      Period             `json:"period"`
	Range       DateRange          `json:"range"`
	Entries     []LeaderboardEntry `json:"leaderboard"`
	Skipped     []SkippedMember    `json:"-"`
	GeneratedAt time.Time          `json:"generated_at"`
}

type LeaderboardStats struct {
	TotalMeters   float64 `json:"total_meters"`
	TotalWorkouts int     `json:"total_workouts"`
	TotalHours    float64 `json:"total_hours"`
	ActiveMembers int     `json:"active_members"`
	TopPerformer  *string `json:"top_performer,omitempty"`
}
