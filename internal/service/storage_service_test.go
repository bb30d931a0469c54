package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	bucket  string
	object  string
	expiry  time.Duration
	ensured []string
	err     error
}

func (s *fakeObjectStore) PresignedUploadURL(_ context.Context, bucket, object string, expiry time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.bucket, s.object, s.expiry = bucket, object, expiry
	return "https://minio.local/" + bucket + "/" + object + "?sig=abc", nil
}

func (s *fakeObjectStore) PresignedDownloadURL(_ context.Context, bucket, object string, _ time.Duration) (string, error) {
	return "https://minio.local/" + bucket + "/" + object, nil
}

func (s *fakeObjectStore) EnsureBucket(_ context.Context, bucket string) error {
	s.ensured = append(s.ensured, bucket)
	return nil
}

func TestGenerateUploadURL(t *testing.T) {
	ctx := context.Background()
	store := &fakeObjectStore{}
	svc := NewStorageService(store, "incident-media")

	require.NoError(t, svc.Initialize(ctx))
	assert.Equal(t, []string{"incident-media"}, store.ensured)

	out, err := svc.GenerateUploadURL(ctx, "../../etc/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, store.expiry)
	assert.True(t, strings.HasPrefix(out.ObjectKey, "incidents/"))
	assert.True(t, strings.HasSuffix(out.ObjectKey, "-photo.jpg"))
	assert.Equal(t, out.ObjectKey, store.object)
	assert.Equal(t, "s3://incident-media/"+out.ObjectKey, out.MediaURI)

	_, err = svc.GenerateUploadURL(ctx, "  ")
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)

	store.err = errors.New("minio down")
	_, err = svc.GenerateUploadURL(ctx, "photo.jpg")
	assert.Error(t, err)
}

func TestGenerateDownloadURL(t *testing.T) {
	ctx := context.Background()
	svc := NewStorageService(&fakeObjectStore{}, "incident-media")

	out, err := svc.GenerateDownloadURL(ctx, "s3://incident-media/incidents/abc-photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/incident-media/incidents/abc-photo.jpg", out.URL)

	for _, uri := range []string{
		"s3://other-bucket/incidents/abc-photo.jpg",
		"s3://incident-media/private/secret.pdf",
		"s3://incident-media/incidents/../private/secret.pdf",
		"https://example.com/photo.jpg",
	} {
		_, err := svc.GenerateDownloadURL(ctx, uri)
		var ve *apperr.ValidationError
		assert.ErrorAs(t, err, &ve, uri)
	}
}
