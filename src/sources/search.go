package sources

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// SearchSource runs a fixed market-news web search query.
type SearchSource struct {
	url   string
	query string
	max   int
	http  *resty.Client
}

type searchResponse struct {
	AbstractText  string `json:"AbstractText"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// NewSearchSource builds the web-search client.
func NewSearchSource(cfg Config) *SearchSource {
	return &SearchSource{
		url:   cfg.SearchURL,
		query: "cryptocurrency market news today",
		max:   cfg.MaxPerFeed,
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("accept", "application/json"),
	}
}

func (s *SearchSource) Name() string { return "search" }

func (s *SearchSource) Fetch(ctx context.Context) ([]Headline, error) {
	var decoded searchResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      s.query,
			"format": "json",
		}).
		SetResult(&decoded).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch search: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("search HTTP %d", resp.StatusCode())
	}

	out := make([]Headline, 0, s.max)
	if decoded.AbstractText != "" {
		out = append(out, Headline{Source: "search", Title: decoded.AbstractText})
	}
	for _, topic := range decoded.RelatedTopics {
		if len(out) >= s.max {
			break
		}
		if topic.Text == "" {
			continue
		}
		out = append(out, Headline{Source: "search", Title: topic.Text})
	}
	return out, nil
}
