package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/model"
	"tradesentinel/src/repository"
	"tradesentinel/src/security"
)

const sandboxEndpoint = "https://testnet.binance.vision"

var (
	// ErrSandboxVerification means sandbox mode was requested but could
	// not be activated and verified. The gateway never falls back to a
	// live-trading client in that situation.
	ErrSandboxVerification = errors.New("sandbox mode requested but could not be verified")

	ErrNoCredentials = errors.New("no exchange credentials configured")
)

// Order statuses normalized from the exchange library.
const (
	OrderStatusOpen            = "open"
	OrderStatusFilled          = "filled"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusCanceled        = "canceled"
	OrderStatusRejected        = "rejected"
	OrderStatusFailed          = "failed"
)

// Ticker is the gateway's view of a market ticker.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`
}

// Balance is one currency balance.
type Balance struct {
	Currency string  `json:"currency"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
}

// OrderResult is the normalized outcome of an order create/fetch.
type OrderResult struct {
	ExchangeOrderID string  `json:"exchange_order_id"`
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	Status          string  `json:"status"`
	Amount          float64 `json:"amount"`
	FilledAmount    float64 `json:"filled_amount"`
	AvgPrice        float64 `json:"avg_price"`
}

// Filled reports whether the full amount was executed.
func (o *OrderResult) Filled() bool {
	return o.Status == OrderStatusFilled
}

// Dead reports whether the order reached a state in which it will never
// fill.
func (o *OrderResult) Dead() bool {
	switch o.Status {
	case OrderStatusCanceled, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// clientBuilder constructs the underlying exchange client; injectable so
// sandbox-failure tests can build against a fake.
type clientBuilder func(apiKey, apiSecret, endpoint string, httpTimeout time.Duration) goex.API

func defaultBuilder(apiKey, apiSecret, endpoint string, httpTimeout time.Duration) goex.API {
	return binance.NewWithConfig(&goex.APIConfig{
		HttpClient:   &http.Client{Timeout: httpTimeout},
		Endpoint:     endpoint,
		ApiKey:       apiKey,
		ApiSecretKey: apiSecret,
	})
}

// Service is the single point of contact with the market. It caches one
// authenticated client keyed by (exchange id, credential fingerprint,
// sandbox flag) and rebuilds it whenever any of those change.
type Service struct {
	cfg      Config
	creds    *repository.CredentialRepository
	exchange string
	sandbox  bool
	build    clientBuilder

	mu        sync.Mutex
	cached    goex.API
	cachedKey string

	stream *tickerStream
}

// NewService creates a gateway for one exchange. Sandbox clients are
// verified at build time; see client().
func NewService(exchange string, sandbox bool, creds *repository.CredentialRepository) *Service {
	return &Service{
		cfg:      GetConfig(),
		creds:    creds,
		exchange: exchange,
		sandbox:  sandbox,
		build:    defaultBuilder,
	}
}

// WithBuilder overrides the exchange client constructor. Useful for tests.
func (s *Service) WithBuilder(b clientBuilder) *Service {
	s.build = b
	return s
}

// Sandbox reports whether this gateway trades against the test network.
func (s *Service) Sandbox() bool {
	return s.sandbox
}

func (s *Service) credentials(ctx context.Context) (string, string, error) {
	if s.cfg.APIKey != "" && s.cfg.APISecret != "" {
		return s.cfg.APIKey, s.cfg.APISecret, nil
	}
	if s.creds == nil {
		return "", "", ErrNoCredentials
	}

	stored, err := s.creds.GetByExchange(ctx, s.exchange)
	if err != nil {
		return "", "", fmt.Errorf("load credentials: %w", err)
	}
	if stored == nil || stored.APIKeyHash == "" || stored.APISecretHash == "" {
		return "", "", ErrNoCredentials
	}

	apiKey, err := security.DecryptString(stored.APIKeyHash)
	if err != nil {
		return "", "", fmt.Errorf("decrypt API key: %w", err)
	}
	apiSecret, err := security.DecryptString(stored.APISecretHash)
	if err != nil {
		return "", "", fmt.Errorf("decrypt API secret: %w", err)
	}
	return apiKey, apiSecret, nil
}

func fingerprint(apiKey, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + ":" + apiSecret))
	return hex.EncodeToString(sum[:8])
}

func (s *Service) endpoint() string {
	if s.cfg.EndpointOverride != "" {
		return s.cfg.EndpointOverride
	}
	if s.sandbox {
		return sandboxEndpoint
	}
	return binance.GLOBAL_API_BASE_URL
}

// client returns the cached authenticated client, building and (for
// sandbox mode) verifying it first when credentials or exchange id
// changed. A sandbox client whose activation check fails is never
// cached and never returned.
func (s *Service) client(ctx context.Context) (goex.API, error) {
	apiKey, apiSecret, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|%s|%t", s.exchange, fingerprint(apiKey, apiSecret), s.sandbox)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.cachedKey == key {
		return s.cached, nil
	}

	api := s.build(apiKey, apiSecret, s.endpoint(), s.cfg.HTTPTimeout)

	if s.sandbox {
		if err := verifySandbox(api); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSandboxVerification, err)
		}
		logger.WithField("exchange", s.exchange).Info("Sandbox mode verified active")
	}

	s.cached = api
	s.cachedKey = key

	logger.WithFields(map[string]interface{}{
		"exchange": s.exchange,
		"sandbox":  s.sandbox,
	}).Info("Exchange client built")

	return api, nil
}

// verifySandbox proves the client really talks to the test network: the
// sandbox endpoint must answer a live ticker request. Any failure makes
// gateway construction fail hard.
func verifySandbox(api goex.API) error {
	ticker, err := api.GetTicker(goex.BTC_USDT)
	if err != nil {
		return fmt.Errorf("sandbox endpoint did not answer: %w", err)
	}
	if ticker == nil || ticker.Last <= 0 {
		return errors.New("sandbox endpoint returned no market data")
	}
	return nil
}

func toPair(symbol string) goex.CurrencyPair {
	return goex.NewCurrencyPair2(strings.ReplaceAll(symbol, "/", "_"))
}

// Ticker fetches the current ticker for one symbol.
func (s *Service) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	t, err := api.GetTicker(toPair(symbol))
	if err != nil {
		return nil, fmt.Errorf("fetch ticker %s: %w", symbol, err)
	}
	return &Ticker{
		Symbol: symbol,
		Last:   t.Last,
		Bid:    t.Buy,
		Ask:    t.Sell,
		High:   t.High,
		Low:    t.Low,
		Volume: t.Vol,
	}, nil
}

// Tickers batch-fetches tickers for several symbols, tolerating partial
// failures: a symbol that errors is looked up in the stream cache and
// otherwise skipped. The returned map holds best-effort per-symbol
// results.
func (s *Service) Tickers(ctx context.Context, symbols []string) (map[string]*Ticker, error) {
	out := make(map[string]*Ticker, len(symbols))
	var firstErr error

	for _, symbol := range symbols {
		t, err := s.Ticker(ctx, symbol)
		if err != nil {
			if last, ok := s.LastStreamPrice(symbol); ok {
				out[symbol] = &Ticker{Symbol: symbol, Last: last}
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			logger.WithField("symbol", symbol).WithError(err).Warn("Ticker fetch failed, skipping symbol")
			continue
		}
		out[symbol] = t
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Klines fetches OHLCV candles for a symbol, oldest first.
func (s *Service) Klines(ctx context.Context, symbol string, period goex.KlinePeriod, size int) ([]model.Candle, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	klines, err := api.GetKlineRecords(toPair(symbol), period, size)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, model.Candle{
			Datetime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     k.Open,
			High:     k.High,
			Low:      k.Low,
			Close:    k.Close,
			Volume:   k.Vol,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Datetime.Before(candles[j].Datetime) })
	return candles, nil
}

// Balances fetches all non-zero account balances.
func (s *Service) Balances(ctx context.Context) ([]Balance, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	account, err := api.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	balances := make([]Balance, 0, len(account.SubAccounts))
	for currency, sub := range account.SubAccounts {
		if sub.Amount == 0 && sub.ForzenAmount == 0 {
			continue
		}
		balances = append(balances, Balance{
			Currency: currency.Symbol,
			Free:     sub.Amount,
			Locked:   sub.ForzenAmount,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Currency < balances[j].Currency })
	return balances, nil
}

// MarketBuy places a market buy order for amount units of the base
// currency.
func (s *Service) MarketBuy(ctx context.Context, symbol string, amount float64) (*OrderResult, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	order, err := api.MarketBuy(formatAmount(amount), "0", toPair(symbol))
	if err != nil {
		return nil, fmt.Errorf("market buy %s: %w", symbol, err)
	}
	return normalizeOrder(symbol, model.TradeSideBuy, order), nil
}

// MarketSell places a market sell order for amount units of the base
// currency.
func (s *Service) MarketSell(ctx context.Context, symbol string, amount float64) (*OrderResult, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	order, err := api.MarketSell(formatAmount(amount), "0", toPair(symbol))
	if err != nil {
		return nil, fmt.Errorf("market sell %s: %w", symbol, err)
	}
	return normalizeOrder(symbol, model.TradeSideSell, order), nil
}

// FetchOrder refreshes the state of a previously placed order.
func (s *Service) FetchOrder(ctx context.Context, symbol, orderID string) (*OrderResult, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	order, err := api.GetOneOrder(orderID, toPair(symbol))
	if err != nil {
		return nil, fmt.Errorf("fetch order %s/%s: %w", symbol, orderID, err)
	}
	return normalizeOrder(symbol, "", order), nil
}

// CancelOrder cancels an open order.
func (s *Service) CancelOrder(ctx context.Context, symbol, orderID string) error {
	api, err := s.client(ctx)
	if err != nil {
		return err
	}

	ok, err := api.CancelOrder(orderID, toPair(symbol))
	if err != nil {
		return fmt.Errorf("cancel order %s/%s: %w", symbol, orderID, err)
	}
	if !ok {
		return fmt.Errorf("cancel order %s/%s: exchange refused", symbol, orderID)
	}
	return nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func normalizeOrder(symbol, side string, order *goex.Order) *OrderResult {
	status := OrderStatusOpen
	switch order.Status {
	case goex.ORDER_FINISH:
		status = OrderStatusFilled
	case goex.ORDER_PART_FINISH:
		status = OrderStatusPartiallyFilled
	case goex.ORDER_CANCEL, goex.ORDER_CANCEL_ING:
		status = OrderStatusCanceled
	case goex.ORDER_REJECT:
		status = OrderStatusRejected
	case goex.ORDER_FAIL:
		status = OrderStatusFailed
	}

	id := order.OrderID2
	if id == "" && order.OrderID != 0 {
		id = strconv.Itoa(order.OrderID)
	}

	avg := order.AvgPrice
	if avg == 0 {
		avg = order.Price
	}

	return &OrderResult{
		ExchangeOrderID: id,
		Symbol:          symbol,
		Side:            side,
		Status:          status,
		Amount:          order.Amount,
		FilledAmount:    order.DealAmount,
		AvgPrice:        avg,
	}
}
