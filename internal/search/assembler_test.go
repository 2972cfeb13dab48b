package search

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kura/internal/models"
)

type signer struct {
	err  error
	keys []string
	ttl  time.Duration
}

func (s *signer) Put(context.Context, string, io.Reader, string) (string, error) {
	return "", errors.New("read only")
}

func (s *signer) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not stored")
}

func (s *signer) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.keys = append(s.keys, key)
	s.ttl = ttl
	if s.err != nil {
		return "", s.err
	}
	return "https://signed.example/" + key + "?sig=1", nil
}

func TestAssembler_ResolveURL(t *testing.T) {
	ctx := context.Background()
	stored := models.Ptr("https://storage.googleapis.com/kura/thumbnails/abc.jpg")

	s := &signer{}
	a := NewAssembler(s, 0, nil)
	got := a.ResolveURL(ctx, stored)
	require.NotNil(t, got)
	assert.Equal(t, "https://signed.example/thumbnails/abc.jpg?sig=1", *got)
	assert.Equal(t, time.Hour, s.ttl)

	failing := NewAssembler(&signer{err: errors.New("no credentials")}, time.Minute, nil)
	assert.Equal(t, stored, failing.ResolveURL(ctx, stored))

	external := models.Ptr("https://cdn.example.com/preview/abc.png")
	assert.Equal(t, external, a.ResolveURL(ctx, external))
	assert.Nil(t, a.ResolveURL(ctx, nil))

	assert.Equal(t, stored, NewAssembler(nil, 0, nil).ResolveURL(ctx, stored))
}

func TestAssembler_Assemble(t *testing.T) {
	a := &models.Asset{
		ID:           "id-1",
		Filename:     "summer-flyer.png",
		ThumbnailURL: models.Ptr("/storage/thumbnails/id-1.jpg"),
		AssetType:    models.Ptr(models.AssetTypeTemplate),
		Width:        models.Ptr(1080),
		Height:       models.Ptr(1920),
	}
	results := NewAssembler(&signer{err: errors.New("down")}, 0, nil).Assemble(
		context.Background(),
		[]*FusedResult{{Asset: a, Score: 0.42}},
		"flyer", true,
	)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "id-1", r.ID)
	assert.Equal(t, "/storage/thumbnails/id-1.jpg", *r.ThumbnailURL)
	assert.Equal(t, 0.42, r.Score)
	assert.Equal(t, 1080, *r.Width)
	require.NotNil(t, r.Reasoning)
	assert.Equal(t, "Filename contains: flyer; Classified as reusable template", *r.Reasoning)
}
