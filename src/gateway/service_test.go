package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nntaoli-project/goex"
)

// fakeAPI satisfies goex.API with injectable behavior for the handful
// of calls the gateway makes.
type fakeAPI struct {
	tickerFn     func(pair goex.CurrencyPair) (*goex.Ticker, error)
	marketSellFn func(amount, price string, pair goex.CurrencyPair) (*goex.Order, error)
	klineFn      func(pair goex.CurrencyPair, period goex.KlinePeriod, size int) ([]goex.Kline, error)
}

func (f *fakeAPI) GetTicker(pair goex.CurrencyPair) (*goex.Ticker, error) {
	if f.tickerFn != nil {
		return f.tickerFn(pair)
	}
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) MarketSell(amount, price string, pair goex.CurrencyPair) (*goex.Order, error) {
	if f.marketSellFn != nil {
		return f.marketSellFn(amount, price, pair)
	}
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetKlineRecords(pair goex.CurrencyPair, period goex.KlinePeriod, size int, opt ...goex.OptionalParameter) ([]goex.Kline, error) {
	if f.klineFn != nil {
		return f.klineFn(pair, period, size)
	}
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) LimitBuy(amount, price string, pair goex.CurrencyPair, opt ...goex.LimitOrderOptionalParameter) (*goex.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) LimitSell(amount, price string, pair goex.CurrencyPair, opt ...goex.LimitOrderOptionalParameter) (*goex.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) MarketBuy(amount, price string, pair goex.CurrencyPair) (*goex.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) CancelOrder(orderId string, pair goex.CurrencyPair) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *fakeAPI) GetOneOrder(orderId string, pair goex.CurrencyPair) (*goex.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetUnfinishOrders(pair goex.CurrencyPair) ([]goex.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetOrderHistorys(pair goex.CurrencyPair, opt ...goex.OptionalParameter) ([]goex.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetAccount() (*goex.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetDepth(size int, pair goex.CurrencyPair) (*goex.Depth, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetTrades(pair goex.CurrencyPair, since int64) ([]goex.Trade, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetExchangeName() string { return "fake" }

func newTestService(t *testing.T, sandbox bool, api goex.API) *Service {
	t.Helper()
	t.Setenv("EXCHANGE_API_KEY", "key")
	t.Setenv("EXCHANGE_API_SECRET", "secret")

	svc := NewService("binance", sandbox, nil)
	svc.WithBuilder(func(apiKey, apiSecret, endpoint string, timeout time.Duration) goex.API {
		return api
	})
	return svc
}

// Sandbox mode that cannot be verified fails hard. The gateway never
// hands out an unverified client, and never caches the failed one.
func TestSandboxVerificationFailureIsFatal(t *testing.T) {
	calls := 0
	api := &fakeAPI{
		tickerFn: func(pair goex.CurrencyPair) (*goex.Ticker, error) {
			calls++
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(t, true, api)

	_, err := svc.Ticker(context.Background(), "BTC/USDT")
	if !errors.Is(err, ErrSandboxVerification) {
		t.Fatalf("expected ErrSandboxVerification, got %v", err)
	}

	// A second call must verify again rather than serve a cached,
	// unverified client.
	_, err = svc.Ticker(context.Background(), "BTC/USDT")
	if !errors.Is(err, ErrSandboxVerification) {
		t.Fatalf("expected ErrSandboxVerification on retry, got %v", err)
	}
	if calls < 2 {
		t.Fatalf("verification ran %d times, want one per attempt", calls)
	}
}

func TestSandboxVerificationRejectsEmptyMarketData(t *testing.T) {
	api := &fakeAPI{
		tickerFn: func(pair goex.CurrencyPair) (*goex.Ticker, error) {
			return &goex.Ticker{Last: 0}, nil
		},
	}
	svc := newTestService(t, true, api)

	_, err := svc.Ticker(context.Background(), "BTC/USDT")
	if !errors.Is(err, ErrSandboxVerification) {
		t.Fatalf("expected ErrSandboxVerification for zero ticker, got %v", err)
	}
}

func TestVerifiedSandboxClientServesRequests(t *testing.T) {
	api := &fakeAPI{
		tickerFn: func(pair goex.CurrencyPair) (*goex.Ticker, error) {
			return &goex.Ticker{Last: 65000, Buy: 64990, Sell: 65010, High: 66000, Low: 63000, Vol: 1200}, nil
		},
	}
	svc := newTestService(t, true, api)

	ticker, err := svc.Ticker(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticker.Last != 65000 || ticker.Bid != 64990 || ticker.Ask != 65010 {
		t.Fatalf("ticker = %+v", ticker)
	}
	if ticker.Symbol != "BTC/USDT" {
		t.Fatalf("symbol = %s", ticker.Symbol)
	}
}

func TestNoCredentials(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "")
	t.Setenv("EXCHANGE_API_SECRET", "")

	svc := NewService("binance", false, nil)
	_, err := svc.Ticker(context.Background(), "BTC/USDT")
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestKlinesSortedOldestFirst(t *testing.T) {
	api := &fakeAPI{
		klineFn: func(pair goex.CurrencyPair, period goex.KlinePeriod, size int) ([]goex.Kline, error) {
			return []goex.Kline{
				{Timestamp: 300, Open: 3, High: 4, Low: 2, Close: 3.5, Vol: 30},
				{Timestamp: 100, Open: 1, High: 2, Low: 0.5, Close: 1.5, Vol: 10},
				{Timestamp: 200, Open: 2, High: 3, Low: 1.5, Close: 2.5, Vol: 20},
			}, nil
		},
	}
	svc := newTestService(t, false, api)

	candles, err := svc.Klines(context.Background(), "ETH/USDT", goex.KLINE_PERIOD_1H, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("got %d candles", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Datetime.Before(candles[i-1].Datetime) {
			t.Fatalf("candles not sorted oldest first: %+v", candles)
		}
	}
	if candles[0].Close != 1.5 || candles[2].Close != 3.5 {
		t.Fatalf("unexpected candle order: %+v", candles)
	}
}

func TestMarketSellNormalizesOrder(t *testing.T) {
	api := &fakeAPI{
		marketSellFn: func(amount, price string, pair goex.CurrencyPair) (*goex.Order, error) {
			return &goex.Order{
				OrderID2:   "abc-123",
				Status:     goex.ORDER_FINISH,
				Amount:     0.1,
				DealAmount: 0.1,
				AvgPrice:   47500,
			}, nil
		},
	}
	svc := newTestService(t, false, api)

	order, err := svc.MarketSell(context.Background(), "BTC/USDT", 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.Filled() {
		t.Fatalf("order not filled: %+v", order)
	}
	if order.ExchangeOrderID != "abc-123" || order.AvgPrice != 47500 {
		t.Fatalf("order = %+v", order)
	}
	if order.Dead() {
		t.Fatal("filled order reported dead")
	}
}

func TestNormalizeOrderStatuses(t *testing.T) {
	tests := []struct {
		in       goex.TradeStatus
		want     string
		wantDead bool
	}{
		{goex.ORDER_FINISH, OrderStatusFilled, false},
		{goex.ORDER_PART_FINISH, OrderStatusPartiallyFilled, false},
		{goex.ORDER_CANCEL, OrderStatusCanceled, true},
		{goex.ORDER_CANCEL_ING, OrderStatusCanceled, true},
		{goex.ORDER_REJECT, OrderStatusRejected, true},
		{goex.ORDER_FAIL, OrderStatusFailed, true},
		{goex.ORDER_UNFINISH, OrderStatusOpen, false},
	}

	for _, tt := range tests {
		order := normalizeOrder("BTC/USDT", "sell", &goex.Order{Status: tt.in, OrderID: 9})
		if order.Status != tt.want {
			t.Fatalf("status %v normalized to %s, want %s", tt.in, order.Status, tt.want)
		}
		if order.Dead() != tt.wantDead {
			t.Fatalf("status %s dead = %t, want %t", order.Status, order.Dead(), tt.wantDead)
		}
		if order.ExchangeOrderID != "9" {
			t.Fatalf("numeric order id not mapped: %+v", order)
		}
	}
}

// A ticker failure falls back to the stream cache instead of dropping
// the symbol.
func TestTickersFallsBackToStreamCache(t *testing.T) {
	api := &fakeAPI{
		tickerFn: func(pair goex.CurrencyPair) (*goex.Ticker, error) {
			return nil, errors.New("exchange down")
		},
	}
	svc := newTestService(t, false, api)
	svc.stream = newTickerStream(liveStreamURL, []string{"BTC/USDT"})
	svc.stream.setPrice("BTC/USDT", 64000)

	tickers, err := svc.Tickers(context.Background(), []string{"BTC/USDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := tickers["BTC/USDT"]
	if !ok || got.Last != 64000 {
		t.Fatalf("stream fallback not used: %+v", tickers)
	}
}
