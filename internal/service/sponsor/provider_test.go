package sponsor

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/skipSegments", r.URL.Path)
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("videoID"))
		w.Write([]byte(`[
			{"category":"sponsor","segment":[20,30]},
			{"category":"outro","segment":[100.5,112.25]}
		]`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, srv.Client(), slog.Default())
	segments, err := p.GetSegments(context.Background(), "dQw4w9WgXcQ", AllCategories)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "sponsor", segments[0].Category)
	assert.Equal(t, float64(20), segments[0].Start)
	assert.Equal(t, float64(30), segments[0].End)
	assert.Equal(t, "outro", segments[1].Category)
}

func TestGetSegmentsUnknownVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, srv.Client(), slog.Default())
	segments, err := p.GetSegments(context.Background(), "unknown", AllCategories)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestGetSegmentsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, srv.Client(), slog.Default())
	_, err := p.GetSegments(context.Background(), "any", AllCategories)
	require.Error(t, err)
}
