package services

import (
	"fmt"
	"strings"

	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/storage"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"

	discordCDNBaseURL = "https://cdn.discordapp.com"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NormalizeGender maps the Logbook's free-form gender ("M", "female", ...)
// onto male, female or unknown.
func NormalizeGender(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", "male":
		return GenderMale
	case "f", "female":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// memberAvatarURL prefers an uploaded avatar, then the Discord CDN avatar.
func memberAvatarURL(member *models.Member, uploader storage.FileUploader) *string {
	if member.AvatarKey != nil && *member.AvatarKey != "" && uploader != nil {
		if url := uploader.GetPublicURL(*member.AvatarKey); url != "" {
			return &url
		}
	}
	if member.DiscordAvatar != nil && *member.DiscordAvatar != "" && member.DiscordID != "" {
		url := fmt.Sprintf("%s/avatars/%s/%s.png", discordCDNBaseURL, member.DiscordID, *member.DiscordAvatar)
		return &url
	}
	return nil
}

func populateMemberAvatarURL(member *models.Member, uploader storage.FileUploader) {
	if member != nil {
		member.AvatarURL = memberAvatarURL(member, uploader)
	}
}

// GetExtensionFromContentType returns the file extension for an accepted
// avatar image type.
func GetExtensionFromContentType(contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported image content type: '%s'", contentType)
	}
}
