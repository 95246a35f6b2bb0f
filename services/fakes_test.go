package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/erg-leaderboard/concept2"
	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/Dosada05/erg-leaderboard/repositories"
	"github.com/Dosada05/erg-leaderboard/storage"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeCredentialRepo struct {
	mu      sync.Mutex
	creds   map[uuid.UUID]models.ExternalCredential
	getErr  error
	getErrs map[uuid.UUID]error
	putErr  error
	gets    int
	upserts int
	deletes int
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[uuid.UUID]models.ExternalCredential)}
}

func (f *fakeCredentialRepo) Get(ctx context.Context, memberID uuid.UUID, provider string) (*models.ExternalCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if err, ok := f.getErrs[memberID]; ok {
		return nil, err
	}
	cred, ok := f.creds[memberID]
	if !ok {
		return nil, repositories.ErrCredentialNotFound
	}
	return &cred, nil
}

func (f *fakeCredentialRepo) Upsert(ctx context.Context, cred *models.ExternalCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.putErr != nil {
		return f.putErr
	}
	f.creds[cred.MemberID] = *cred
	return nil
}

func (f *fakeCredentialRepo) Delete(ctx context.Context, memberID uuid.UUID, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if _, ok := f.creds[memberID]; !ok {
		return repositories.ErrCredentialNotFound
	}
	delete(f.creds, memberID)
	return nil
}

func (f *fakeCredentialRepo) stored(memberID uuid.UUID) (models.ExternalCredential, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[memberID]
	return cred, ok
}

type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	token   *concept2.Token
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*concept2.Token, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMemberDirectory struct {
	members []models.Member
	err     error
}

func (f *fakeMemberDirectory) ListVisibleWithExternalLink(ctx context.Context, provider string) ([]models.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Member, 0, len(f.members))
	for _, m := range f.members {
		if m.ShowOnLeaderboard && m.HasConcept2Linked {
			out = append(out, m)
		}
	}
	return out, nil
}

// stubTokens maps member ids to a token or an error.
type stubTokens struct {
	tokens map[uuid.UUID]string
	errs   map[uuid.UUID]error
	block  map[uuid.UUID]bool
}

func (s *stubTokens) GetValidAccessToken(ctx context.Context, memberID uuid.UUID) (string, error) {
	if s.block[memberID] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err, ok := s.errs[memberID]; ok {
		return "", err
	}
	if tok, ok := s.tokens[memberID]; ok {
		return tok, nil
	}
	return "", ErrNotLinked
}

type stubResults struct {
	mu      sync.Mutex
	byToken map[string][]models.WorkoutResult
	errs    map[string]error
	calls   int
}

func (s *stubResults) FetchAllResults(ctx context.Context, accessToken string, dr models.DateRange) ([]models.WorkoutResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err, ok := s.errs[accessToken]; ok {
		return nil, err
	}
	return s.byToken[accessToken], nil
}

type countingBuilder struct {
	mu    sync.Mutex
	calls int
	lb    models.Leaderboard
	err   error
}

func (b *countingBuilder) BuildLeaderboard(ctx context.Context, period models.Period, dr models.DateRange) (models.Leaderboard, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.err != nil {
		return models.Leaderboard{}, b.err
	}
	lb := b.lb
	lb.Period = period
	lb.Range = dr
	return lb, nil
}

func (b *countingBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func strPtr(s string) *string { return &s }

func linkedMember(name, gender string) models.Member {
	m := models.Member{
		ID:                uuid.New(),
		DiscordID:         "d-" + name,
		DiscordName:       name,
		ShowOnLeaderboard: true,
		HasConcept2Linked: true,
	}
	if gender != "" {
		m.Gender = strPtr(gender)
	}
	return m
}

type fakeMemberRepo struct {
	mu        sync.Mutex
	members   map[uuid.UUID]*models.Member
	upsertErr error
	updateErr error
}

func newFakeMemberRepo(members ...models.Member) *fakeMemberRepo {
	r := &fakeMemberRepo{members: make(map[uuid.UUID]*models.Member)}
	for i := range members {
		m := members[i]
		r.members[m.ID] = &m
	}
	return r
}

func (r *fakeMemberRepo) UpsertFromDiscord(ctx context.Context, member *models.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	for _, existing := range r.members {
		if existing.DiscordID == member.DiscordID {
			existing.DiscordName = member.DiscordName
			existing.DiscordAvatar = member.DiscordAvatar
			if existing.DisplayName == nil {
				existing.DisplayName = member.DisplayName
			}
			*member = *existing
			return nil
		}
	}
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	member.ShowOnLeaderboard = true
	m := *member
	r.members[m.ID] = &m
	return nil
}

func (r *fakeMemberRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, repositories.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMemberRepo) Update(ctx context.Context, member *models.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.members[member.ID]; !ok {
		return repositories.ErrMemberNotFound
	}
	m := *member
	r.members[m.ID] = &m
	return nil
}

func (r *fakeMemberRepo) SetGenderIfEmpty(ctx context.Context, id uuid.UUID, gender string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if ok && (m.Gender == nil || *m.Gender == "") {
		m.Gender = &gender
	}
	return nil
}

func (r *fakeMemberRepo) ListVisibleWithExternalLink(ctx context.Context, provider string) ([]models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Member, 0)
	for _, m := range r.members {
		if m.ShowOnLeaderboard && m.HasConcept2Linked {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeUploader struct {
	mu        sync.Mutex
	uploads   map[string]string
	deleted   []string
	uploadErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string]string)}
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	u.uploads[key] = contentType
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://media.example/" + key
}
