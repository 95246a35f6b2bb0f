package models

import "time"

// WorkoutResult is one session reported by the Concept2 Logbook.
// Results are never persisted; they live for one aggregation call.
type WorkoutResult struct {
	ID            string   `json:"id"`
	UserID        string   `json:"user_id"`
	Date          string   `json:"date"`     // provider-local, "2006-01-02 15:04:05"
	Distance      float64  `json:"distance"` // meters
	Type          string   `json:"type"`
	Time          float64  `json:"time,omitempty"` // tenths of a second
	CaloriesTotal *float64 `json:"calories_total,omitempty"`
	WorkoutType   string   `json:"workout_type,omitempty"`
	Source        string   `json:"source,omitempty"`
	WeightClass   string   `json:"weight_class,omitempty"`
	Verified      *bool    `json:"verified,omitempty"`
}

var resultDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsedDate parses Date with the layouts the Logbook is known to use.
func (r WorkoutResult) ParsedDate() (time.Time, bool) {
	for _, layout := range resultDateLayouts {
		if t, err := time.Parse(layout, r.Date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Concept2Profile is the subset of /users/me the service relies on.
type Concept2Profile struct {
	UserID    string  `json:"user_id"`
	Username  string  `json:"username"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Gender    *string `json:"gender,omitempty"`
}

// DateRange is an inclusive [From, To] window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
