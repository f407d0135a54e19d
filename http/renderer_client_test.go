package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silberengel/epaperpub/common"
)

func TestConvertPostsJSONAndReturnsBody(t *testing.T) {
	var gotPath string
	var gotBody RendererRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("epub-bytes"))
	}))
	defer srv.Close()

	client := NewRendererClient(srv.URL)
	out, err := client.Convert("epub", RendererRequest{Content: "hello", Title: "T", Author: "A"})
	require.NoError(t, err)
	assert.Equal(t, "/convert/epub", gotPath)
	assert.Equal(t, "hello", gotBody.Content)
	assert.Equal(t, []byte("epub-bytes"), out)
}

func TestConvertSurfacesRendererUnavailableOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRendererClient(srv.URL)
	_, err := client.Convert("epub", RendererRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRendererUnavailable)
}

func TestConvertSurfacesRendererUnavailableOnEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewRendererClient(srv.URL)
	_, err := client.Convert("epub", RendererRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRendererUnavailable)
}
