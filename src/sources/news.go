package sources

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// NewsSource pulls recent headlines from a crypto news aggregator.
type NewsSource struct {
	url  string
	max  int
	http *resty.Client
}

type newsResponse struct {
	Data []struct {
		Title  string `json:"title"`
		Source string `json:"source"`
		Body   string `json:"body"`
	} `json:"Data"`
}

// NewNewsSource builds the news feed client.
func NewNewsSource(cfg Config) *NewsSource {
	return &NewsSource{
		url: cfg.NewsURL,
		max: cfg.MaxPerFeed,
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("accept", "application/json"),
	}
}

func (s *NewsSource) Name() string { return "news" }

func (s *NewsSource) Fetch(ctx context.Context) ([]Headline, error) {
	var decoded newsResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&decoded).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("news feed HTTP %d", resp.StatusCode())
	}

	out := make([]Headline, 0, s.max)
	for _, item := range decoded.Data {
		if len(out) >= s.max {
			break
		}
		out = append(out, Headline{
			Source: "news/" + item.Source,
			Title:  item.Title,
		})
	}
	return out, nil
}
