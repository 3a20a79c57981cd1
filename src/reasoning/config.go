package reasoning

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL   string        `envconfig:"REASONING_BASE_URL" default:"https://api.anthropic.com"`
	APIKey    string        `envconfig:"REASONING_API_KEY"`
	Model     string        `envconfig:"REASONING_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens int           `envconfig:"REASONING_MAX_TOKENS" default:"2048"`
	Timeout   time.Duration `envconfig:"REASONING_TIMEOUT" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
