package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/google/uuid"
)

type fakeConcept2OAuth struct {
	token *concept2.Token
	err   error
}

func (f *fakeConcept2OAuth) AuthCodeURL(state string) string { return "https://log.example/authorize?state=" + state }

func (f *fakeConcept2OAuth) Exchange(ctx context.Context, code string) (*concept2.Token, error) {
	return f.token, f.err
}

type fakeProfiles struct {
	profile *models.Concept2Profile
	err     error
}

func (f *fakeProfiles) GetMe(ctx context.Context, accessToken string) (*models.Concept2Profile, error) {
	return f.profile, f.err
}

var linkNow = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestLinkService(oauth Concept2OAuth, profiles ProfileFetcher, creds *fakeCredentialRepo, members *fakeMemberRepo) *linkService {
	svc := NewLinkService(oauth, profiles, creds, members, discardLogger()).(*linkService)
	svc.now = fixedClock(linkNow)
	return svc
}

func TestCompleteLinkStoresCredentialAndBackfillsGender(t *testing.T) {
	m := linkedMember("alice", "")
	members := newFakeMemberRepo(m)
	creds := newFakeCredentialRepo()
	oauth := &fakeConcept2OAuth{token: &concept2.Token{AccessToken: "a", RefreshToken: "r", ExpiresIn: 604800, Scope: concept2.Scope}}
	profiles := &fakeProfiles{profile: &models.Concept2Profile{UserID: "987", Gender: strPtr("F")}}

	if err := newTestLinkService(oauth, profiles, creds, members).CompleteLink(context.Background(), m.ID, "code"); err != nil {
		t.Fatalf("CompleteLink: %v", err)
	}

	cred, ok := creds.stored(m.ID)
	if !ok {
		t.Fatal("credential not stored")
	}
	if cred.ExternalUserID != "987" || cred.AccessToken != "a" || cred.RefreshToken != "r" || cred.Provider != models.ProviderConcept2 {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.ExpiresAt != linkNow.Unix()+604800 {
		t.Fatalf("ExpiresAt = %d", cred.ExpiresAt)
	}

	stored, _ := members.GetByID(context.Background(), m.ID)
	if stored.Gender == nil || *stored.Gender != "F" {
		t.Fatalf("gender not backfilled: %v", stored.Gender)
	}
}

func TestCompleteLinkKeepsExistingGender(t *testing.T) {
	m := linkedMember("bob", "male")
	members := newFakeMemberRepo(m)
	oauth := &fakeConcept2OAuth{token: &concept2.Token{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60}}
	profiles := &fakeProfiles{profile: &models.Concept2Profile{UserID: "1", Gender: strPtr("F")}}

	if err := newTestLinkService(oauth, profiles, newFakeCredentialRepo(), members).CompleteLink(context.Background(), m.ID, "code"); err != nil {
		t.Fatalf("CompleteLink: %v", err)
	}
	stored, _ := members.GetByID(context.Background(), m.ID)
	if *stored.Gender != "male" {
		t.Fatalf("gender overwritten: %s", *stored.Gender)
	}
}

func TestCompleteLinkExchangeFailureStoresNothing(t *testing.T) {
	creds := newFakeCredentialRepo()
	oauth := &fakeConcept2OAuth{err: &concept2.APIError{StatusCode: 400, Body: "bad code"}}

	err := newTestLinkService(oauth, &fakeProfiles{}, creds, newFakeMemberRepo()).CompleteLink(context.Background(), uuid.New(), "bad")
	var apiErr *concept2.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if creds.upserts != 0 {
		t.Fatal("credential stored after failed exchange")
	}
}

func TestUnlinkIsIdempotent(t *testing.T) {
	creds := newFakeCredentialRepo()
	id := seedCredential(creds, 3600)
	svc := newTestLinkService(&fakeConcept2OAuth{}, &fakeProfiles{}, creds, newFakeMemberRepo())

	for i := 0; i < 2; i++ {
		if err := svc.Unlink(context.Background(), id); err != nil {
			t.Fatalf("Unlink #%d: %v", i+1, err)
		}
	}
	if _, ok := creds.stored(id); ok {
		t.Fatal("credential still present after unlink")
	}
}
