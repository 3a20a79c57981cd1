package sources

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ForumSource pulls hot thread titles from a public crypto forum feed.
type ForumSource struct {
	url  string
	max  int
	http *resty.Client
}

type forumResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string  `json:"title"`
				Subreddit string  `json:"subreddit"`
				Score     float64 `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewForumSource builds the forum feed client.
func NewForumSource(cfg Config) *ForumSource {
	return &ForumSource{
		url: cfg.ForumURL,
		max: cfg.MaxPerFeed,
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("accept", "application/json").
			SetHeader("user-agent", "tradesentinel/1.0"),
	}
}

func (s *ForumSource) Name() string { return "forum" }

func (s *ForumSource) Fetch(ctx context.Context) ([]Headline, error) {
	var decoded forumResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&decoded).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch forum: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("forum feed HTTP %d", resp.StatusCode())
	}

	out := make([]Headline, 0, s.max)
	for _, child := range decoded.Data.Children {
		if len(out) >= s.max {
			break
		}
		out = append(out, Headline{
			Source: "forum/" + child.Data.Subreddit,
			Title:  child.Data.Title,
		})
	}
	return out, nil
}
