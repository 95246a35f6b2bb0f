package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjectStore struct {
	put     *s3.PutObjectInput
	body    string
	deleted string
	err     error
}

func (f *fakeObjectStore) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.put = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`)}, nil
}

func (f *fakeObjectStore) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = *params.Key
	return &s3.DeleteObjectOutput{}, nil
}

func newTestUploader(t *testing.T, base string, store objectStore) *cloudflareR2Uploader {
	t.Helper()
	baseURL, err := parsePublicBaseURL(base)
	if err != nil {
		t.Fatalf("parsePublicBaseURL: %v", err)
	}
	return &cloudflareR2Uploader{
		s3Client:      store,
		bucketName:    "avatars-bucket",
		publicBaseURL: baseURL,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGetPublicURL(t *testing.T) {
	tests := []struct {
		base, key, want string
	}{
		{"https://media.example", "avatars/1/a.png", "https://media.example/avatars/1/a.png"},
		{"https://media.example/", "/avatars/1/a.png", "https://media.example/avatars/1/a.png"},
		{"https://cdn.example/club", "avatars/1/a.png", "https://cdn.example/club/avatars/1/a.png"},
		{"https://media.example", "", ""},
	}
	for _, tt := range tests {
		u := newTestUploader(t, tt.base, &fakeObjectStore{})
		if got := u.GetPublicURL(tt.key); got != tt.want {
			t.Errorf("GetPublicURL(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
		}
	}
}

func TestUploadAndDelete(t *testing.T) {
	store := &fakeObjectStore{}
	u := newTestUploader(t, "https://media.example", store)

	res, err := u.Upload(context.Background(), "avatars/1/a.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if *store.put.Bucket != "avatars-bucket" || *store.put.ContentType != "image/png" || store.body != "png-bytes" {
		t.Fatalf("unexpected put %+v", store.put)
	}
	if res.ETag != "abc123" || res.Location != "https://media.example/avatars/1/a.png" {
		t.Fatalf("unexpected result %+v", res)
	}

	if err := u.Delete(context.Background(), "avatars/1/a.png"); err != nil || store.deleted != "avatars/1/a.png" {
		t.Fatalf("Delete: %v (deleted %q)", err, store.deleted)
	}

	store.err = errors.New("access denied")
	if _, err := u.Upload(context.Background(), "k", "image/png", strings.NewReader("x")); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNewCloudflareR2UploaderValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewCloudflareR2Uploader(context.Background(), CloudflareR2UploaderConfig{AccountID: "a"}, logger); err == nil {
		t.Fatal("expected error for incomplete config")
	}
	if _, err := parsePublicBaseURL("not a url"); err == nil {
		t.Fatal("expected error for base URL without scheme")
	}
}
