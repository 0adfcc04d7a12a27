// Package videosvc looks videos up on YouTube through the Data API v3.
package videosvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/video"
)

const (
	pageSize   = 50
	maxRetries = 3
)

type (
	thumbnail struct {
		URL string `json:"url"`
	}

	snippet struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		ChannelID   string               `json:"channelId"`
		PublishedAt string               `json:"publishedAt"`
		Thumbnails  map[string]thumbnail `json:"thumbnails"`
	}

	videoItem struct {
		ID             string  `json:"id"`
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	}

	searchItem struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet snippet `json:"snippet"`
	}

	videosResponse struct {
		Items []videoItem `json:"items"`
	}

	searchResponse struct {
		Items         []searchItem `json:"items"`
		NextPageToken string       `json:"nextPageToken"`
	}
)

// YouTubeClient is a rate-limited YouTube Data API client; failed calls are retried with exponential backoff.
type YouTubeClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     core.Logger
	newBackOff func() backoff.BackOff
}

var _ video.Provider = (*YouTubeClient)(nil) // interface compliance check

// NewYouTubeClient returns nil when no API key is configured, which disables imports.
func NewYouTubeClient(conf *core.Config, httpClient *http.Client, logger core.Logger) video.Provider {
	if conf.Video.APIKey == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rpm := conf.Video.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &YouTubeClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(conf.Video.BaseURL, "/"),
		apiKey:     conf.Video.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60), 1),
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

// Lookup returns the metadata of a video; an unknown id yields video.ErrNotFound.
func (c *YouTubeClient) Lookup(ctx context.Context, externalID string) (video.Metadata, error) {
	items, err := c.videos(ctx, externalID)
	if err != nil {
		return video.Metadata{}, err
	}
	if len(items) == 0 {
		return video.Metadata{}, video.ErrNotFound
	}
	return items[0].metadata(), nil
}

// ListChannel returns a page of the channel's videos, newest first, with their durations.
func (c *YouTubeClient) ListChannel(ctx context.Context, channelID, pageToken string) (video.Page, error) {
	params := url.Values{
		"part":       {"snippet"},
		"channelId":  {channelID},
		"type":       {"video"},
		"order":      {"date"},
		"maxResults": {strconv.Itoa(pageSize)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	var res searchResponse
	if err := c.get(ctx, "/search", params, &res); err != nil {
		return video.Page{}, err
	}

	ids := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	details := make(map[string]videoItem, len(ids))
	if len(ids) > 0 {
		items, err := c.videos(ctx, ids...)
		if err != nil {
			return video.Page{}, err
		}
		for _, item := range items {
			details[item.ID] = item
		}
	}

	page := video.Page{Items: make([]video.Metadata, 0, len(res.Items)), NextPageToken: res.NextPageToken}
	for _, item := range res.Items {
		if full, ok := details[item.ID.VideoID]; ok {
			page.Items = append(page.Items, full.metadata())
			continue
		}
		// search results lack the duration
		page.Items = append(page.Items, videoItem{ID: item.ID.VideoID, Snippet: item.Snippet}.metadata())
	}
	return page, nil
}

func (c *YouTubeClient) videos(ctx context.Context, ids ...string) ([]videoItem, error) {
	var res videosResponse
	params := url.Values{
		"part": {"snippet,contentDetails"},
		"id":   {strings.Join(ids, ",")},
	}
	if err := c.get(ctx, "/videos", params, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// get performs a rate-limited GET and decodes the JSON response into dst.
func (c *YouTubeClient) get(ctx context.Context, path string, params url.Values, dst interface{}) error {
	params.Set("key", c.apiKey)
	u := c.baseURL + path + "?" + params.Encode()

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(errors.Wrap(err, "rate limit wait"))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "creating request"))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrapf(err, "GET %s", path)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "reading response body")
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("youtube %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return backoff.Permanent(errors.Wrap(err, "decoding response"))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.Warn("youtube request retry", err, map[string]interface{}{"path": path, "wait": wait.String()})
		}
	}
	return backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
}

func (item videoItem) metadata() video.Metadata {
	meta := video.Metadata{
		ExternalID:      item.ID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		ChannelID:       item.Snippet.ChannelID,
		ThumbnailURL:    bestThumbnail(item.Snippet.Thumbnails),
		DurationSeconds: parseDuration(item.ContentDetails.Duration),
	}
	if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		t = t.UTC()
		meta.PublishedAt = &t
	}
	return meta
}

func bestThumbnail(thumbs map[string]thumbnail) string {
	for _, size := range []string{"maxres", "standard", "high", "medium", "default"} {
		if th, ok := thumbs[size]; ok && th.URL != "" {
			return th.URL
		}
	}
	return ""
}

var durationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration converts an ISO 8601 duration (PT1H2M3S) to seconds; invalid input yields 0.
func parseDuration(s string) int {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var total int
	for i, unit := range []int{24 * 3600, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * unit
	}
	return total
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
