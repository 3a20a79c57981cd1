package sources

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	NewsURL   string `envconfig:"SOURCES_NEWS_URL" default:"https://min-api.cryptocompare.com/data/v2/news/?lang=EN"`
	ForumURL  string `envconfig:"SOURCES_FORUM_URL" default:"https://www.reddit.com/r/CryptoCurrency/hot.json?limit=15"`
	SearchURL string `envconfig:"SOURCES_SEARCH_URL" default:"https://api.duckduckgo.com/"`

	Timeout    time.Duration `envconfig:"SOURCES_TIMEOUT" default:"10s"`
	MaxPerFeed int           `envconfig:"SOURCES_MAX_PER_FEED" default:"10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
