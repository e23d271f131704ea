package ytvideodata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	c := New()
	c.httpClient = srv.Client()
	c.oembedURL = srv.URL + "/oembed"
	c.pageURL = srv.URL + "/page/"
	c.thumbnailURL = srv.URL + "/vi/%s/hq.jpg"
	return c
}

func TestGetWithEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oembed", r.URL.Path)
		assert.Equal(t, "https://www.youtube.com/watch?v=abc", r.URL.Query().Get("url"))
		w.Write([]byte(`{"title":"Song","author_name":"Band","thumbnail_url":"https://img/abc.jpg"}`))
	}))
	defer srv.Close()

	data, err := newTestClient(srv).Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, &VideoData{Title: "Song", AuthorName: "Band", ThumbnailURL: "https://img/abc.jpg"}, data)
}

func TestGetFallsBackToPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oembed":
			w.WriteHeader(http.StatusUnauthorized)
		case "/page/xyz":
			w.Write([]byte(`<html><head><title>Private Song</title></head>` +
				`<body><span><link itemprop="name" content="Some Channel"></span></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	data, err := newTestClient(srv).Get(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "Private Song", data.Title)
	assert.Equal(t, "Some Channel", data.AuthorName)
	assert.Equal(t, srv.URL+"/vi/xyz/hq.jpg", data.ThumbnailURL)
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}
