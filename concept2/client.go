package concept2

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/erg-leaderboard/models"
)

const (
	DefaultBaseURL   = "https://log.concept2.com"
	DefaultPageDelay = 100 * time.Millisecond

	maxErrorBodyBytes = 4096
	dateLayout        = "2006-01-02"
)

type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	// PageDelay is slept between consecutive page requests, never before the
	// first page or after the last one.
	PageDelay time.Duration
}

// Client is a thin wrapper over the Logbook REST API. The access token is
// passed per call so one Client serves every member.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageDelay  time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		pageDelay:  cfg.PageDelay,
	}
}

type ResultsQuery struct {
	From *time.Time
	To   *time.Time
	Type string
	Page int
}

func (c *Client) GetMe(ctx context.Context, accessToken string) (*models.Concept2Profile, error) {
	body, err := c.get(ctx, accessToken, "/api/users/me", nil)
	if err != nil {
		return nil, err
	}
	return parseProfile(body)
}

func (c *Client) GetResults(ctx context.Context, accessToken string, q ResultsQuery) (*ResultsPage, error) {
	params := url.Values{}
	// The API filters on calendar dates; the time of day is dropped.
	if q.From != nil {
		params.Set("from", q.From.Format(dateLayout))
	}
	if q.To != nil {
		params.Set("to", q.To.Format(dateLayout))
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}

	body, err := c.get(ctx, accessToken, "/api/users/me/results", params)
	if err != nil {
		return nil, err
	}
	return parseResultsPage(body)
}

// FetchAllResults walks every page of results inside dr and returns them in
// page order. Any failed page fails the whole call; nothing is retried here.
func (c *Client) FetchAllResults(ctx context.Context, accessToken string, dr models.DateRange) ([]models.WorkoutResult, error) {
	from, to := dr.From, dr.To
	results := make([]models.WorkoutResult, 0)

	for page, totalPages := 1, 1; page <= totalPages; page++ {
		if page > 1 && c.pageDelay > 0 {
			if err := sleepContext(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}

		resp, err := c.GetResults(ctx, accessToken, ResultsQuery{From: &from, To: &to, Page: page})
		if err != nil {
			return nil, fmt.Errorf("results page %d: %w", page, err)
		}
		results = append(results, resp.Results...)
		totalPages = resp.Pagination.TotalPages
	}

	return results, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	return readResponse(resp, path)
}

func readResponse(resp *http.Response, endpoint string) ([]byte, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	return body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
