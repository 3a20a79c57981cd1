// Package sentinel runs the slow analysis loop: gather market context,
// ask the reasoning service for a decision, execute it under the
// trading-safety gate and record the whole cycle in the audit log.
package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nntaoli-project/goex"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/gateway"
	"tradesentinel/src/ledger"
	"tradesentinel/src/model"
	"tradesentinel/src/notify"
	"tradesentinel/src/reasoning"
	"tradesentinel/src/repository"
	"tradesentinel/src/risk"
	"tradesentinel/src/settings"
	"tradesentinel/src/sources"
	"tradesentinel/src/ta"
	"tradesentinel/src/utils"
)

const (
	klineLookback    = 120
	recentTradeLimit = 10
	priorRunLimit    = 3
)

// Escalator lets the sentinel trigger an out-of-schedule strategic
// review without importing the overlay that implements it.
type Escalator interface {
	CheckEscalation(ctx context.Context)
}

// Service is the sentinel analysis loop.
type Service struct {
	gateway    *gateway.Service
	ledger     *ledger.Service
	risk       *risk.Manager
	reasoner   *reasoning.Client
	notifier   *notify.Notifier
	runs       *repository.SentinelRunRepository
	directives *repository.DirectiveRepository
	feeds      []sources.Source
	escalator  Escalator

	inProgress atomic.Bool
	now        func() time.Time
}

// New creates a sentinel. escalator may be nil.
func New(
	gw *gateway.Service,
	led *ledger.Service,
	riskMgr *risk.Manager,
	reasoner *reasoning.Client,
	notifier *notify.Notifier,
	runs *repository.SentinelRunRepository,
	directives *repository.DirectiveRepository,
	feeds []sources.Source,
	escalator Escalator,
) *Service {
	return &Service{
		gateway:    gw,
		ledger:     led,
		risk:       riskMgr,
		reasoner:   reasoner,
		notifier:   notifier,
		runs:       runs,
		directives: directives,
		feeds:      feeds,
		escalator:  escalator,
		now:        time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start runs the loop until ctx is canceled. Analysis cycles never
// overlap; a cycle still running when the timer fires again wins and
// the new cycle is skipped.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval).Info("Sentinel loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sentinel loop stopped")
			return
		case <-ticker.C:
			if !s.inProgress.CompareAndSwap(false, true) {
				logger.Warn("Sentinel cycle still in progress, skipping")
				continue
			}
			if err := s.Run(ctx); err != nil {
				logger.WithError(err).Error("Sentinel cycle failed")
			}
			s.inProgress.Store(false)
		}
	}
}

// Run executes one full analysis cycle.
func (s *Service) Run(ctx context.Context) error {
	started := s.now()
	run := &model.SentinelRun{RunID: uuid.NewString()}
	log := logger.WithField("run_id", run.RunID)

	cfg, err := settings.Load()
	if err != nil {
		return fmt.Errorf("load trading settings: %w", err)
	}

	// The strategic review check runs on every cycle, even the ones
	// that abort before producing a decision.
	defer s.maybeEscalate(ctx, cfg)

	pc, gatherErr := s.gather(ctx, cfg)
	if pc != nil {
		run.IndicatorSnapshot = marshalJSON(pc.snapshots)
		run.PortfolioSnapshot = marshalJSON(pc.positions)
	}
	if gatherErr != nil {
		// Degraded context: do not let the reasoning service decide on
		// partial data, record the aborted cycle instead.
		run.Error = gatherErr.Error()
		run.DurationMs = time.Since(started).Milliseconds()
		if err := s.runs.Create(ctx, run); err != nil {
			log.WithError(err).Error("Failed to record aborted sentinel run")
		}
		return fmt.Errorf("gather context: %w", gatherErr)
	}

	prompt := buildPrompt(cfg, pc)

	raw, err := s.reasoner.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		run.Error = err.Error()
		run.DurationMs = time.Since(started).Milliseconds()
		if createErr := s.runs.Create(ctx, run); createErr != nil {
			log.WithError(createErr).Error("Failed to record failed sentinel run")
		}
		return fmt.Errorf("reasoning call: %w", err)
	}

	decision := ParseDecision(raw)
	if decision == nil {
		// Prose-only output. The cycle stays auditable through Summary;
		// Actions stays null and nothing trades.
		log.Warn("Reasoning output had no parseable decision, recording run without actions")
		run.Summary = strings.TrimSpace(truncate(raw, 4000))
		run.DurationMs = time.Since(started).Milliseconds()
		return s.runs.Create(ctx, run)
	}

	run.Sentiment = decision.Sentiment
	run.Summary = decision.Summary
	run.Signals = marshalJSON(collectSignals(pc.snapshots))

	// The run row is inserted before execution so trades can reference
	// its id, then finalized afterwards.
	if err := s.runs.Create(ctx, run); err != nil {
		log.WithError(err).Error("Failed to record sentinel run")
	}

	results := s.execute(ctx, cfg, pc, run, decision)
	actionsJSON := marshalJSON(results)
	run.Actions = &actionsJSON
	run.DurationMs = time.Since(started).Milliseconds()

	if err := s.runs.Save(ctx, run); err != nil {
		log.WithError(err).Error("Failed to finalize sentinel run")
	}

	s.notifyRun(ctx, decision, results)

	log.WithFields(map[string]interface{}{
		"sentiment":   decision.Sentiment,
		"actions":     len(decision.Actions),
		"duration_ms": run.DurationMs,
	}).Info("Sentinel cycle finished")
	return nil
}

func (s *Service) maybeEscalate(ctx context.Context, cfg *settings.Trading) {
	if cfg.CEOEscalationEnabled && s.escalator != nil {
		s.escalator.CheckEscalation(ctx)
	}
}

// gather collects market snapshots, the portfolio view and headlines in
// parallel. Headlines are optional; missing indicators or a missing
// portfolio make the context degraded and abort the cycle.
func (s *Service) gather(ctx context.Context, cfg *settings.Trading) (*promptContext, error) {
	pc := &promptContext{now: s.now()}

	var wg sync.WaitGroup
	var marketErr, portfolioErr error

	wg.Add(3)

	go func() {
		defer wg.Done()
		for _, symbol := range cfg.TrackedCoins {
			candles, err := s.gateway.Klines(ctx, symbol, goex.KLINE_PERIOD_1H, klineLookback)
			if err != nil {
				logger.WithField("symbol", symbol).WithError(err).Warn("Kline fetch failed")
				continue
			}
			snapshot, err := ta.ComputeSnapshot(symbol, candles)
			if err != nil {
				logger.WithField("symbol", symbol).WithError(err).Warn("Indicator computation failed")
				continue
			}
			pc.snapshots = append(pc.snapshots, *snapshot)
		}
		if len(pc.snapshots) == 0 {
			marketErr = fmt.Errorf("no indicator snapshot could be computed for any of %d tracked coins", len(cfg.TrackedCoins))
		}
	}()

	go func() {
		defer wg.Done()
		state, err := s.risk.Read(ctx)
		if err != nil {
			portfolioErr = fmt.Errorf("read daily risk state: %w", err)
			return
		}
		pc.state = state
		pc.gate = risk.EvaluateGate(state, cfg)

		tickers, err := s.gateway.Tickers(ctx, cfg.TrackedCoins)
		if err != nil {
			tickers = map[string]*gateway.Ticker{}
		}
		positions, err := s.ledger.OpenPositionSummaries(ctx, tickers)
		if err != nil {
			portfolioErr = fmt.Errorf("load open positions: %w", err)
			return
		}
		pc.positions = positions

		// Balances, history and stats enrich the prompt but never abort
		// the cycle. Failures are warned once per distinct error so a
		// flaky endpoint does not flood the log every interval.
		if balances, err := s.gateway.Balances(ctx); err == nil {
			pc.balances = balances
		} else {
			warnOnce("balances", err)
		}
		if stats, err := s.ledger.DailyTradeStats(ctx); err == nil {
			pc.stats = stats
		} else {
			warnOnce("daily trade stats", err)
		}
		if trades, err := s.ledger.RecentTrades(ctx, recentTradeLimit); err == nil {
			pc.trades = trades
		} else {
			warnOnce("recent trades", err)
		}
		if runs, err := s.runs.FindLatest(ctx, priorRunLimit); err == nil {
			pc.priorRuns = runs
		} else {
			warnOnce("prior runs", err)
		}

		directive, err := s.directives.GetCurrent(ctx)
		if err != nil {
			warnOnce("current directive", err)
		} else if directive != nil {
			pc.directive = directive
		}
	}()

	go func() {
		defer wg.Done()
		pc.headlines = sources.Sanitize(sources.FetchAll(ctx, s.feeds))
	}()

	wg.Wait()

	if marketErr != nil {
		return pc, marketErr
	}
	if portfolioErr != nil {
		return pc, portfolioErr
	}
	return pc, nil
}

// actionResult is the audit-log record of one attempted action.
type actionResult struct {
	Action   Action `json:"action"`
	Executed bool   `json:"executed"`
	Detail   string `json:"detail,omitempty"`
}

// execute runs the decision's actions. Every trade re-checks the safety
// gate against fresh daily state so an earlier action in the same batch
// can exhaust the limit for a later one.
func (s *Service) execute(ctx context.Context, cfg *settings.Trading, pc *promptContext, run *model.SentinelRun, decision *Decision) []actionResult {
	results := make([]actionResult, 0, len(decision.Actions))

	for _, action := range decision.Actions {
		result := actionResult{Action: action}

		switch action.Type {
		case ActionHold, "":
			result.Detail = "hold"
		case ActionBuy, ActionSell:
			result.Executed, result.Detail = s.executeTrade(ctx, cfg, pc, run, action)
		case ActionSetStopLoss, ActionSetTakeProfit:
			result.Executed, result.Detail = s.executeLevelUpdate(ctx, action)
		default:
			result.Detail = fmt.Sprintf("unknown action type %q", action.Type)
			logger.WithField("type", action.Type).Warn("Skipping unknown sentinel action")
		}

		results = append(results, result)
	}
	return results
}

func (s *Service) executeTrade(ctx context.Context, cfg *settings.Trading, pc *promptContext, run *model.SentinelRun, action Action) (bool, string) {
	log := logger.WithFields(map[string]interface{}{
		"run_id": run.RunID,
		"type":   action.Type,
		"symbol": action.Symbol,
	})

	if !trackedSymbol(cfg, action.Symbol) {
		log.Warn("Action targets an untracked symbol, skipping")
		return false, "symbol not tracked"
	}

	state, err := s.risk.Read(ctx)
	if err != nil {
		log.WithError(err).Error("Cannot read daily state, trade skipped")
		return false, "daily state unavailable"
	}
	gate := risk.EvaluateGate(state, cfg)
	if !gate.Allowed {
		log.WithField("gate", gate.Stage).Info("Safety gate blocked trade")
		return false, gate.Reason
	}

	price := snapshotPrice(pc, action.Symbol)
	if price <= 0 {
		return false, "no reference price"
	}

	if action.Type == ActionBuy {
		return s.executeBuy(ctx, cfg, run, action, price)
	}
	return s.executeSell(ctx, run, action)
}

func (s *Service) executeBuy(ctx context.Context, cfg *settings.Trading, run *model.SentinelRun, action Action, price float64) (bool, string) {
	log := logger.WithFields(map[string]interface{}{"run_id": run.RunID, "symbol": action.Symbol})

	amountUSD := action.AmountUSD
	if amountUSD <= 0 || amountUSD > cfg.MaxTradeUSD {
		amountUSD = cfg.MaxTradeUSD
	}
	amount := amountUSD / price

	order, err := s.gateway.MarketBuy(ctx, action.Symbol, amount)
	if err != nil {
		log.WithError(err).Error("Buy order failed")
		return false, fmt.Sprintf("order failed: %v", err)
	}
	if order.Dead() {
		log.WithField("status", order.Status).Error("Buy order did not execute")
		return false, fmt.Sprintf("order %s", order.Status)
	}

	fillPrice := order.AvgPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	filled := order.FilledAmount
	if filled <= 0 {
		filled = amount
	}

	trade := &model.Trade{
		Symbol:          action.Symbol,
		Side:            model.TradeSideBuy,
		OrderType:       "market",
		Amount:          filled,
		Price:           fillPrice,
		Cost:            fillPrice * filled,
		ExchangeOrderID: order.ExchangeOrderID,
		Source:          model.TradeSourceSentinel,
		Reasoning:       action.Reason,
		SentinelRunID:   &run.ID,
		Sandbox:         s.gateway.Sandbox(),
	}
	if err := s.ledger.LogTrade(ctx, trade); err != nil {
		log.WithError(err).Error("Failed to log buy trade")
	}

	_, err = s.ledger.OpenPosition(ctx, ledger.OpenParams{
		Symbol:       action.Symbol,
		Side:         model.PositionSideLong,
		EntryPrice:   fillPrice,
		Amount:       filled,
		StopLoss:     action.StopLoss,
		TakeProfit:   action.TakeProfit,
		EntryTradeID: &trade.ID,
	}, cfg)
	if err != nil {
		log.WithError(err).Error("Trade executed but position could not be opened")
		return true, fmt.Sprintf("filled, position error: %v", err)
	}

	if _, err := s.risk.Apply(ctx, func(state *model.DailyState) {
		state.TradesToday++
	}); err != nil {
		log.WithError(err).Error("Failed to update daily state after buy")
	}

	return true, fmt.Sprintf("bought %.8f at %.2f", filled, fillPrice)
}

func (s *Service) executeSell(ctx context.Context, run *model.SentinelRun, action Action) (bool, string) {
	log := logger.WithFields(map[string]interface{}{"run_id": run.RunID, "symbol": action.Symbol})

	position, err := s.openPosition(ctx, action.Symbol)
	if err != nil {
		return false, fmt.Sprintf("position lookup failed: %v", err)
	}
	if position == nil {
		log.Info("Sell requested but no open position, skipping")
		return false, "no open position"
	}

	order, err := s.gateway.MarketSell(ctx, action.Symbol, position.Amount)
	if err != nil {
		log.WithError(err).Error("Sell order failed")
		return false, fmt.Sprintf("order failed: %v", err)
	}
	if order.Dead() {
		log.WithField("status", order.Status).Error("Sell order did not execute")
		return false, fmt.Sprintf("order %s", order.Status)
	}

	fillPrice := order.AvgPrice
	if fillPrice <= 0 {
		fillPrice = position.EntryPrice
	}

	trade := &model.Trade{
		Symbol:          action.Symbol,
		Side:            model.TradeSideSell,
		OrderType:       "market",
		Amount:          position.Amount,
		Price:           fillPrice,
		Cost:            fillPrice * position.Amount,
		ExchangeOrderID: order.ExchangeOrderID,
		Source:          model.TradeSourceSentinel,
		Reasoning:       action.Reason,
		SentinelRunID:   &run.ID,
		PositionID:      &position.ID,
		Sandbox:         s.gateway.Sandbox(),
	}
	if err := s.ledger.LogTrade(ctx, trade); err != nil {
		log.WithError(err).Error("Failed to log sell trade")
	}

	closed, err := s.ledger.ClosePosition(ctx, position.ID, fillPrice, model.PositionStatusClosed, &trade.ID)
	if err != nil {
		log.WithError(err).Error("Trade executed but position could not be closed")
		return true, fmt.Sprintf("filled, close error: %v", err)
	}

	pnl := 0.0
	if closed.RealizedPnl != nil {
		pnl = *closed.RealizedPnl
	}
	if _, err := s.risk.Apply(ctx, func(state *model.DailyState) {
		state.TradesToday++
		state.PnlToday = state.PnlToday.Add(decimal.NewFromFloat(pnl))
	}); err != nil {
		log.WithError(err).Error("Failed to update daily state after sell")
	}

	return true, fmt.Sprintf("sold at %.2f, realized %.2f USD", fillPrice, pnl)
}

func (s *Service) executeLevelUpdate(ctx context.Context, action Action) (bool, string) {
	position, err := s.openPosition(ctx, action.Symbol)
	if err != nil {
		return false, fmt.Sprintf("position lookup failed: %v", err)
	}
	if position == nil {
		return false, "no open position"
	}

	levels := ledger.Levels{}
	switch action.Type {
	case ActionSetStopLoss:
		if action.StopLoss == nil {
			return false, "no stop_loss value"
		}
		levels.StopLoss = action.StopLoss
	case ActionSetTakeProfit:
		if action.TakeProfit == nil {
			return false, "no take_profit value"
		}
		levels.TakeProfit = action.TakeProfit
	}

	if _, err := s.ledger.UpdateLevels(ctx, position.ID, levels); err != nil {
		return false, fmt.Sprintf("update failed: %v", err)
	}
	return true, "levels updated"
}

func (s *Service) openPosition(ctx context.Context, symbol string) (*model.Position, error) {
	positions, err := s.ledger.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// notifyRun sends the single per-cycle notification.
func (s *Service) notifyRun(ctx context.Context, decision *Decision, results []actionResult) {
	if !s.notifier.Enabled() {
		return
	}

	executed := 0
	var lines []string
	for _, r := range results {
		if r.Executed {
			executed++
			lines = append(lines, fmt.Sprintf("• %s %s: %s", r.Action.Type, r.Action.Symbol, r.Detail))
		}
	}
	if executed == 0 && decision.Sentiment == "" {
		return
	}

	text := fmt.Sprintf("📡 Sentinel: %s. %s", decision.Sentiment, decision.Summary)
	if executed > 0 {
		text += "\n" + strings.Join(lines, "\n")
	}
	s.notifier.Notify(ctx, text)
}

func trackedSymbol(cfg *settings.Trading, symbol string) bool {
	for _, tracked := range cfg.TrackedCoins {
		if tracked == symbol {
			return true
		}
	}
	return false
}

func snapshotPrice(pc *promptContext, symbol string) float64 {
	for _, s := range pc.snapshots {
		if s.Symbol == symbol {
			return s.Price
		}
	}
	return 0
}

func collectSignals(snapshots []ta.Snapshot) map[string][]string {
	out := make(map[string][]string, len(snapshots))
	for _, s := range snapshots {
		if len(s.Signals) > 0 {
			out[s.Symbol] = s.Signals
		}
	}
	return out
}

func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func warnOnce(what string, err error) {
	if utils.LogOnce("sentinel " + what + ": " + err.Error()) {
		logger.WithError(err).Warnf("Optional context fetch failed (%s), continuing without it", what)
	}
}

// truncate cuts text to at most max runes, never splitting a rune.
func truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}
