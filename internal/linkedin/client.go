package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadscope/leadscope/config"
)

// Sentinel errors for upstream status branching. The HTTP layer maps these
// to 429 and 502 responses.
var (
	ErrRateLimited  = errors.New("linkedin api rate limited")
	ErrUnauthorized = errors.New("linkedin api key rejected")
)

// Comment is one commenter on a tracked post, as returned by the upstream
// scraping service.
type Comment struct {
	AuthorName       string `json:"author_name"`
	AuthorHeadline   string `json:"author_headline"`
	AuthorProfileURL string `json:"author_profile_url"`
	Text             string `json:"text"`
	Reactions        int    `json:"reactions"`
}

// Post is one cached post from a commenter's recent activity.
type Post struct {
	Text     string `json:"text"`
	Likes    int    `json:"likes"`
	Comments int    `json:"comments"`
	Reposts  int    `json:"reposts"`
}

// Profile is a commenter's scraped profile.
type Profile struct {
	Name        string `json:"name"`
	Headline    string `json:"headline"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	ProfileURL  string `json:"profile_url"`
	Followers   int    `json:"followers"`
	Connections int    `json:"connections"`
	RecentPosts []Post `json:"recent_posts"`
}

// Client is a thin wrapper over the RapidAPI LinkedIn scraping service. It
// does request signing and status branching only; no retries.
type Client struct {
	HTTPClient  *http.Client
	APIKey      string
	Host        string
	BaseURL     string
	MaxComments int
}

func NewClient(cfg config.LinkedInConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" && cfg.Host != "" {
		base = "https://" + cfg.Host
	}
	return &Client{
		HTTPClient:  &http.Client{Timeout: timeout},
		APIKey:      cfg.APIKey,
		Host:        cfg.Host,
		BaseURL:     base,
		MaxComments: cfg.MaxComments,
	}
}

// PostComments fetches the commenters of a post.
func (c *Client) PostComments(ctx context.Context, postURL string) ([]Comment, error) {
	if strings.TrimSpace(postURL) == "" {
		return nil, fmt.Errorf("post url required")
	}
	q := url.Values{"post_url": {postURL}}
	if c.MaxComments > 0 {
		q.Set("limit", fmt.Sprint(c.MaxComments))
	}
	var payload struct {
		Comments []Comment `json:"comments"`
	}
	if err := c.get(ctx, "/post/comments", q, &payload); err != nil {
		return nil, err
	}
	return payload.Comments, nil
}

// Profile fetches a commenter's profile with cached recent posts.
func (c *Client) Profile(ctx context.Context, profileURL string) (Profile, error) {
	if strings.TrimSpace(profileURL) == "" {
		return Profile{}, fmt.Errorf("profile url required")
	}
	q := url.Values{"profile_url": {profileURL}}
	var p Profile
	if err := c.get(ctx, "/profile", q, &p); err != nil {
		return Profile{}, err
	}
	if p.ProfileURL == "" {
		p.ProfileURL = profileURL
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-rapidapi-key", c.APIKey)
	req.Header.Set("x-rapidapi-host", c.Host)
	req.Header.Set("x-request-id", uuid.NewString())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("linkedin api request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("linkedin api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("linkedin api decode: %w", err)
	}
	return nil
}
