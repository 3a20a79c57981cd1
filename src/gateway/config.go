package gateway

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// APIKey/APISecret override the stored encrypted credentials when
	// set; convenient for local runs.
	APIKey    string `envconfig:"EXCHANGE_API_KEY"`
	APISecret string `envconfig:"EXCHANGE_API_SECRET"`

	// EndpointOverride redirects all REST calls, used by tests to point
	// the client at a fake exchange.
	EndpointOverride string `envconfig:"EXCHANGE_ENDPOINT_OVERRIDE"`

	// StreamURLOverride redirects the websocket ticker stream.
	StreamURLOverride string `envconfig:"EXCHANGE_STREAM_OVERRIDE"`

	HTTPTimeout time.Duration `envconfig:"EXCHANGE_HTTP_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
