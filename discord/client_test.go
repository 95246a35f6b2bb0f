package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestIsMemberOfGuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me/guilds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer user-token" {
			t.Errorf("missing bearer token")
		}
		fmt.Fprint(w, `[{"id": "111", "name": "Other"}, {"id": "222", "name": "Rowing Club"}]`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	tests := []struct {
		guild string
		want  bool
	}{
		{"222", true},
		{"333", false},
	}
	for _, tt := range tests {
		got, err := c.IsMemberOfGuild(context.Background(), "user-token", tt.guild)
		if err != nil {
			t.Fatalf("IsMemberOfGuild: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsMemberOfGuild(%s) = %v, want %v", tt.guild, got, tt.want)
		}
	}
}

func TestGetUserErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "401: Unauthorized"}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).GetUser(context.Background(), "bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestExchangeSendsAuthorizationCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "abc" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		fmt.Fprint(w, `{"access_token": "at", "token_type": "Bearer", "expires_in": 604800, "scope": "identify guilds"}`)
	}))
	defer srv.Close()

	tok, err := NewClient(Config{BaseURL: srv.URL, ClientID: "cid"}).Exchange(context.Background(), "abc")
	if err != nil || tok.AccessToken != "at" {
		t.Fatalf("Exchange = %+v, %v", tok, err)
	}
}

func TestAuthCodeURLRequestsGuildScope(t *testing.T) {
	raw := NewClient(Config{ClientID: "cid", RedirectURI: "https://app/cb"}).AuthCodeURL("s1")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "discord.com" || u.Query().Get("scope") != "identify guilds" || u.Query().Get("state") != "s1" {
		t.Fatalf("unexpected authorize URL %s", raw)
	}
}

func TestWebhookSend(t *testing.T) {
	var got WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	msg := WebhookMessage{Embeds: []Embed{{Title: "hello", Color: 0x5865F2, Footer: &EmbedFooter{Text: "bye"}}}}
	if err := NewWebhookClient(srv.URL, nil).Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Title != "hello" || got.Embeds[0].Color != 0x5865F2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message": "Invalid Form Body"}`)
	}))
	defer srv.Close()

	err := NewWebhookClient(srv.URL, nil).Send(context.Background(), WebhookMessage{Content: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Body != `{"message": "Invalid Form Body"}` {
		t.Fatalf("expected APIError with body, got %v", err)
	}
}
