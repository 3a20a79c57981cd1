// Package sources fetches external market sentiment: news headlines,
// forum chatter and web search results. Every fetch is individually
// fault-tolerant; a failed source yields an empty slice, never an
// aborted pipeline.
package sources

import (
	"context"
	"sync"

	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/utils"
)

// Headline is one sanitizable piece of externally-sourced text.
type Headline struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Source is a single sentiment feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Headline, error)
}

// FetchAll queries every source in parallel and merges the results.
// Failures degrade to empty results and are logged once per distinct
// message.
func FetchAll(ctx context.Context, srcs []Source) []Headline {
	var (
		mu  sync.Mutex
		out []Headline
		wg  sync.WaitGroup
	)

	for _, src := range srcs {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			headlines, err := src.Fetch(ctx)
			if err != nil {
				msg := src.Name() + ": " + err.Error()
				if utils.LogOnce(msg) {
					logger.WithField("source", src.Name()).WithError(err).Warn("Sentiment source failed, continuing without it")
				}
				return
			}

			mu.Lock()
			out = append(out, headlines...)
			mu.Unlock()
		}(src)
	}

	wg.Wait()
	return out
}
