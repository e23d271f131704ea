// Package ytvideodata looks up title, channel and thumbnail for a YouTube video id.
package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotEmbeddable = errors.New("video is not embeddable")
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type Client struct {
	httpClient   *http.Client
	oembedURL    string
	pageURL      string
	thumbnailURL string
}

func New() *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		oembedURL:    "https://www.youtube.com/oembed",
		pageURL:      "https://youtu.be/",
		thumbnailURL: "https://i.ytimg.com/vi/%s/hqdefault.jpg",
	}
}

// Get tries the oEmbed endpoint first and falls back to scraping the watch page
// for videos that forbid embedding.
func (c *Client) Get(ctx context.Context, videoID string) (*VideoData, error) {
	videoData, err := c.getWithEmbed(ctx, videoID)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
