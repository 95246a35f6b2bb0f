package concept2

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/erg-leaderboard/models"
)

// Token is the OAuth token endpoint response.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type ResultsPage struct {
	Results    []models.WorkoutResult
	Pagination Pagination
}

// flexibleID accepts the Logbook's ids as either JSON strings or numbers.
type flexibleID struct {
	value string
	set   bool
}

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.value, f.set = s, s != ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number id, got %s", string(b))
	}
	f.value, f.set = n.String(), true
	return nil
}

type rawResult struct {
	ID            flexibleID `json:"id"`
	UserID        flexibleID `json:"user_id"`
	Date          *string    `json:"date"`
	Distance      *float64   `json:"distance"`
	Type          *string    `json:"type"`
	Time          *float64   `json:"time"`
	CaloriesTotal *float64   `json:"calories_total"`
	WorkoutType   *string    `json:"workout_type"`
	Source        *string    `json:"source"`
	WeightClass   *string    `json:"weight_class"`
	Verified      *bool      `json:"verified"`
}

type rawPagination struct {
	Total       *int `json:"total"`
	Count       *int `json:"count"`
	PerPage     *int `json:"per_page"`
	CurrentPage *int `json:"current_page"`
	TotalPages  *int `json:"total_pages"`
}

type rawResultsPage struct {
	Data *[]rawResult `json:"data"`
	Meta *struct {
		Pagination *rawPagination `json:"pagination"`
	} `json:"meta"`
}

type rawProfile struct {
	UserID    flexibleID `json:"user_id"`
	ID        flexibleID `json:"id"`
	Username  *string    `json:"username"`
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	Email     *string    `json:"email"`
	Gender    *string    `json:"gender"`
}

type rawToken struct {
	AccessToken  *string `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresIn    *int64  `json:"expires_in"`
	TokenType    *string `json:"token_type"`
	Scope        *string `json:"scope"`
}

func decodeStrict(payload string, body []byte, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &SchemaError{Payload: payload, Field: typeErr.Field, Err: err}
		}
		return &SchemaError{Payload: payload, Err: err}
	}
	return nil
}

func parseResultsPage(body []byte) (*ResultsPage, error) {
	var raw rawResultsPage
	if err := decodeStrict("results", body, &raw); err != nil {
		return nil, err
	}
	if raw.Data == nil {
		return nil, &SchemaError{Payload: "results", Field: "data"}
	}
	if raw.Meta == nil || raw.Meta.Pagination == nil {
		return nil, &SchemaError{Payload: "results", Field: "meta.pagination"}
	}

	p := raw.Meta.Pagination
	required := []struct {
		name  string
		value *int
	}{
		{"meta.pagination.total", p.Total},
		{"meta.pagination.count", p.Count},
		{"meta.pagination.per_page", p.PerPage},
		{"meta.pagination.current_page", p.CurrentPage},
		{"meta.pagination.total_pages", p.TotalPages},
	}
	for _, f := range required {
		if f.value == nil {
			return nil, &SchemaError{Payload: "results", Field: f.name}
		}
	}

	page := &ResultsPage{
		Results: make([]models.WorkoutResult, 0, len(*raw.Data)),
		Pagination: Pagination{
			Total:       *p.Total,
			Count:       *p.Count,
			PerPage:     *p.PerPage,
			CurrentPage: *p.CurrentPage,
			TotalPages:  *p.TotalPages,
		},
	}
	for i, r := range *raw.Data {
		result, err := r.toModel()
		if err != nil {
			var schemaErr *SchemaError
			if errors.As(err, &schemaErr) {
				schemaErr.Field = fmt.Sprintf("data[%d].%s", i, schemaErr.Field)
			}
			return nil, err
		}
		page.Results = append(page.Results, result)
	}
	return page, nil
}

func (r rawResult) toModel() (models.WorkoutResult, error) {
	switch {
	case !r.ID.set:
		return models.WorkoutResult{}, &SchemaError{Payload: "results", Field: "id"}
	case !r.UserID.set:
		return models.WorkoutResult{}, &SchemaError{Payload: "results", Field: "user_id"}
	case r.Date == nil:
		return models.WorkoutResult{}, &SchemaError{Payload: "results", Field: "date"}
	case r.Distance == nil:
		return models.WorkoutResult{}, &SchemaError{Payload: "results", Field: "distance"}
	case r.Type == nil:
		return models.WorkoutResult{}, &SchemaError{Payload: "results", Field: "type"}
	}
	if *r.Distance < 0 {
		return models.WorkoutResult{}, &SchemaError{Payload: "results", Field: "distance", Err: errors.New("must not be negative")}
	}

	result := models.WorkoutResult{
		ID:            r.ID.value,
		UserID:        r.UserID.value,
		Date:          *r.Date,
		Distance:      *r.Distance,
		Type:          *r.Type,
		CaloriesTotal: r.CaloriesTotal,
		Verified:      r.Verified,
	}
	if r.Time != nil {
		result.Time = *r.Time
	}
	if r.WorkoutType != nil {
		result.WorkoutType = *r.WorkoutType
	}
	if r.Source != nil {
		result.Source = *r.Source
	}
	if r.WeightClass != nil {
		result.WeightClass = *r.WeightClass
	}
	return result, nil
}

// parseProfile accepts /users/me either bare or wrapped in {"data": ...}.
func parseProfile(body []byte) (*models.Concept2Profile, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := decodeStrict("profile", body, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Data) > 0 && !bytes.Equal(bytes.TrimSpace(envelope.Data), []byte("null")) {
		body = envelope.Data
	}

	var raw rawProfile
	if err := decodeStrict("profile", body, &raw); err != nil {
		return nil, err
	}

	userID := raw.UserID
	if !userID.set {
		userID = raw.ID
	}
	if !userID.set {
		return nil, &SchemaError{Payload: "profile", Field: "user_id"}
	}

	profile := &models.Concept2Profile{
		UserID:    userID.value,
		FirstName: raw.FirstName,
		LastName:  raw.LastName,
		Email:     raw.Email,
		Gender:    raw.Gender,
	}
	if raw.Username != nil {
		profile.Username = *raw.Username
	}
	return profile, nil
}

func parseToken(body []byte) (*Token, error) {
	var raw rawToken
	if err := decodeStrict("token", body, &raw); err != nil {
		return nil, err
	}
	switch {
	case raw.AccessToken == nil:
		return nil, &SchemaError{Payload: "token", Field: "access_token"}
	case raw.RefreshToken == nil:
		return nil, &SchemaError{Payload: "token", Field: "refresh_token"}
	case raw.ExpiresIn == nil:
		return nil, &SchemaError{Payload: "token", Field: "expires_in"}
	case raw.TokenType == nil:
		return nil, &SchemaError{Payload: "token", Field: "token_type"}
	}

	token := &Token{
		AccessToken:  *raw.AccessToken,
		RefreshToken: *raw.RefreshToken,
		ExpiresIn:    *raw.ExpiresIn,
		TokenType:    *raw.TokenType,
	}
	if raw.Scope != nil {
		token.Scope = *raw.Scope
	}
	return token, nil
}
