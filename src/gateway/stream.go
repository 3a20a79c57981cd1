package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	liveStreamURL    = "wss://stream.binance.com:9443/stream"
	sandboxStreamURL = "wss://stream.testnet.binance.vision/stream"

	// streamPriceTTL bounds how stale a cached stream price may be
	// before the guardian stops trusting it as a ticker fallback.
	streamPriceTTL = 2 * time.Minute
)

type streamPrice struct {
	price float64
	at    time.Time
}

// tickerStream maintains a best-effort last-price cache fed by the
// exchange's miniTicker websocket. It reconnects with backoff and never
// surfaces an error to the gateway: a dead stream only means the
// fallback cache goes stale.
type tickerStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	prices map[string]streamPrice
	now    func() time.Time
}

type miniTickerEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

func newTickerStream(url string, symbols []string) *tickerStream {
	return &tickerStream{
		url:     url,
		symbols: symbols,
		prices:  make(map[string]streamPrice),
		now:     time.Now,
	}
}

// StartStream begins feeding the last-price cache for the given symbols.
// It returns immediately; the stream runs until ctx is canceled.
func (s *Service) StartStream(ctx context.Context, symbols []string) {
	url := s.cfg.StreamURLOverride
	if url == "" {
		if s.sandbox {
			url = sandboxStreamURL
		} else {
			url = liveStreamURL
		}
	}

	s.mu.Lock()
	s.stream = newTickerStream(url, symbols)
	s.mu.Unlock()

	go s.stream.run(ctx)
}

// LastStreamPrice returns the most recent streamed price for a symbol,
// if one is fresh enough to act on.
func (s *Service) LastStreamPrice(symbol string) (float64, bool) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return 0, false
	}
	return stream.last(symbol)
}

func (t *tickerStream) setPrice(symbol string, price float64) {
	t.mu.Lock()
	t.prices[normalizeStreamSymbol(symbol)] = streamPrice{price: price, at: t.now()}
	t.mu.Unlock()
}

func (t *tickerStream) last(symbol string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.prices[normalizeStreamSymbol(symbol)]
	if !ok || t.now().Sub(entry.at) > streamPriceTTL {
		return 0, false
	}
	return entry.price, true
}

// normalizeStreamSymbol maps "BTC/USDT" and the stream's "BTCUSDT" onto
// one cache key.
func normalizeStreamSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func (t *tickerStream) streamQuery() string {
	names := make([]string, 0, len(t.symbols))
	for _, symbol := range t.symbols {
		names = append(names, strings.ToLower(normalizeStreamSymbol(symbol))+"@miniTicker")
	}
	return t.url + "?streams=" + strings.Join(names, "/")
}

func (t *tickerStream) run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := t.consume(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("Ticker stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (t *tickerStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.streamQuery(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env miniTickerEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(env.Data.Close, 64)
		if err != nil || price <= 0 {
			continue
		}

		t.setPrice(env.Data.Symbol, price)
	}
}
