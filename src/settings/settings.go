package settings

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Trading is the typed configuration surface the loops consume. It is
// loaded once per tick so operator changes take effect on the next
// interval without a restart.
type Trading struct {
	Enabled     bool `envconfig:"TRADING_ENABLED" default:"false"`
	AutoConfirm bool `envconfig:"TRADING_AUTO_CONFIRM" default:"false"`

	Exchange string `envconfig:"EXCHANGE_ID" default:"binance"`
	Sandbox  bool   `envconfig:"SANDBOX_MODE" default:"true"`

	MaxTradeUSD       float64 `envconfig:"MAX_TRADE_USD" default:"100"`
	MaxTradesPerDay   int     `envconfig:"MAX_TRADES_PER_DAY" default:"5"`
	DailyLossLimitUSD float64 `envconfig:"DAILY_LOSS_LIMIT_USD" default:"200"`

	DefaultStopLossPct   float64 `envconfig:"DEFAULT_STOP_LOSS_PCT" default:"5"`
	DefaultTakeProfitPct float64 `envconfig:"DEFAULT_TAKE_PROFIT_PCT" default:"10"`
	TrailingStopPct      float64 `envconfig:"TRAILING_STOP_PCT" default:"0"`

	TrackedCoins []string `envconfig:"TRACKED_COINS" default:"BTC/USDT,ETH/USDT,SOL/USDT"`

	GuardianInterval time.Duration `envconfig:"GUARDIAN_INTERVAL" default:"60s"`
	SentinelInterval time.Duration `envconfig:"SENTINEL_INTERVAL" default:"15m"`

	CEOEnabled           bool `envconfig:"CEO_ENABLED" default:"true"`
	CEOHour              int  `envconfig:"CEO_HOUR" default:"7"`
	CEOEscalationEnabled bool `envconfig:"CEO_ESCALATION_ENABLED" default:"true"`
}

// Load reads the trading settings from the environment.
func Load() (*Trading, error) {
	var t Trading
	if err := envconfig.Process("", &t); err != nil {
		return nil, fmt.Errorf("error processing trading settings: %w", err)
	}
	return &t, nil
}
