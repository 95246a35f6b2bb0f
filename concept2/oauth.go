package concept2

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/access_token"

	Scope = "user:read,results:read"
)

type OAuthConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client
}

type OAuthClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
}

func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OAuthClient{
		baseURL:      baseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		httpClient:   httpClient,
	}
}

func (o *OAuthClient) AuthCodeURL(state string) string {
	params := url.Values{
		"client_id":     {o.clientID},
		"redirect_uri":  {o.redirectURI},
		"response_type": {"code"},
		"scope":         {Scope},
		"state":         {state},
	}
	return o.baseURL + authorizePath + "?" + params.Encode()
}

func (o *OAuthClient) Exchange(ctx context.Context, code string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"redirect_uri":  {o.redirectURI},
	}
	return o.postToken(ctx, form)
}

// Refresh trades a refresh token for a new token pair. The Logbook rotates
// refresh tokens, so the returned RefreshToken must replace the old one.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"scope":         {Scope},
	}
	return o.postToken(ctx, form)
}

func (o *OAuthClient) postToken(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp, tokenPath)
	if err != nil {
		return nil, err
	}
	return parseToken(body)
}
