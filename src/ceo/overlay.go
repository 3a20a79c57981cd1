// Package ceo implements the strategic overlay: a once-per-day (or
// escalation-triggered) reasoning pass that replaces the standing
// directive the sentinel trades under.
package ceo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/gateway"
	"tradesentinel/src/ledger"
	"tradesentinel/src/model"
	"tradesentinel/src/notify"
	"tradesentinel/src/reasoning"
	"tradesentinel/src/repository"
	"tradesentinel/src/risk"
	"tradesentinel/src/settings"
	"tradesentinel/src/utils"
)

const (
	directiveValidity = 24 * time.Hour

	// escalationDebounce caps how often escalations can force an
	// out-of-schedule strategic review.
	escalationDebounce = 4 * time.Hour

	// zoneBreakoutPct is how far outside its directive zone a price must
	// move before the overlay treats the regime as invalidated.
	zoneBreakoutPct = 10.0

	lossEscalationFraction = 0.5
)

// Overlay is the CEO strategic layer.
type Overlay struct {
	gateway    *gateway.Service
	ledger     *ledger.Service
	risk       *risk.Manager
	reasoner   *reasoning.Client
	notifier   *notify.Notifier
	directives *repository.DirectiveRepository
	runs       *repository.SentinelRunRepository
	engine     *repository.EngineStateRepository

	inProgress atomic.Bool
	now        func() time.Time
}

// New creates the overlay.
func New(
	gw *gateway.Service,
	led *ledger.Service,
	riskMgr *risk.Manager,
	reasoner *reasoning.Client,
	notifier *notify.Notifier,
	directives *repository.DirectiveRepository,
	runs *repository.SentinelRunRepository,
	engine *repository.EngineStateRepository,
) *Overlay {
	return &Overlay{
		gateway:    gw,
		ledger:     led,
		risk:       riskMgr,
		reasoner:   reasoner,
		notifier:   notifier,
		directives: directives,
		runs:       runs,
		engine:     engine,
		now:        time.Now,
	}
}

// WithClock overrides the time source for tests.
func (o *Overlay) WithClock(now func() time.Time) *Overlay {
	o.now = now
	return o
}

// Start checks the daily schedule until ctx is canceled. The hourly
// granularity is enough: MaybeRun carries its own once-per-day guard.
func (o *Overlay) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	logger.Info("CEO overlay schedule started")

	if err := o.MaybeRun(ctx); err != nil {
		logger.WithError(err).Error("Scheduled CEO run failed")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("CEO overlay schedule stopped")
			return
		case <-ticker.C:
			if err := o.MaybeRun(ctx); err != nil {
				logger.WithError(err).Error("Scheduled CEO run failed")
			}
		}
	}
}

// MaybeRun executes the daily strategic review if it is due: overlay
// enabled, scheduled hour reached and not yet run today. The guard
// persists across restarts.
func (o *Overlay) MaybeRun(ctx context.Context) error {
	cfg, err := settings.Load()
	if err != nil {
		return fmt.Errorf("load trading settings: %w", err)
	}
	if !cfg.CEOEnabled {
		return nil
	}

	now := o.now()
	if now.Hour() < cfg.CEOHour {
		return nil
	}

	state, err := o.engine.Get(ctx)
	if err != nil {
		return fmt.Errorf("load engine state: %w", err)
	}
	today := utils.DateString(now)
	if state.LastCEORunDate == today {
		return nil
	}

	if err := o.Run(ctx, "scheduled daily review"); err != nil {
		return err
	}

	state.LastCEORunDate = today
	return o.engine.Save(ctx, state)
}

// Run performs one strategic review and replaces the current directive.
// A failed review keeps the previous directive in place.
func (o *Overlay) Run(ctx context.Context, reason string) error {
	if !o.inProgress.CompareAndSwap(false, true) {
		logger.Warn("CEO review already in progress, skipping")
		return nil
	}
	defer o.inProgress.Store(false)

	log := logger.WithField("reason", reason)
	log.Info("CEO strategic review starting")

	cfg, err := settings.Load()
	if err != nil {
		return fmt.Errorf("load trading settings: %w", err)
	}

	prompt, err := o.buildPrompt(ctx, cfg, reason)
	if err != nil {
		return fmt.Errorf("build CEO prompt: %w", err)
	}

	raw, err := o.reasoner.Generate(ctx, ceoSystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("reasoning call: %w", err)
	}

	parsed := parseDirective(raw)
	if parsed == nil {
		log.Warn("CEO output had no parseable directive, keeping previous directive")
		o.notifier.Notify(ctx, "🧭 CEO review produced no parseable directive; previous directive remains in force")
		return nil
	}

	now := o.now()
	var coinsJSON, zonesJSON string
	if len(parsed.Coins) > 0 {
		coinsJSON = marshalOrEmpty(parsed.Coins)
	}
	if len(parsed.Zones) > 0 {
		zonesJSON = marshalOrEmpty(parsed.Zones)
	}
	directive := &model.CEODirective{
		Regime:             parsed.Regime,
		Bias:               parsed.Bias,
		RiskLevel:          parsed.RiskLevel,
		CoinsJSON:          coinsJSON,
		ZonesJSON:          zonesJSON,
		RiskGuidelines:     parsed.RiskGuidelines,
		AvoidList:          strings.Join(parsed.Avoid, ", "),
		EscalationTriggers: strings.Join(parsed.EscalationTriggers, "; "),
		Summary:            parsed.Summary,
		GeneratedAt:        now,
		ExpiresAt:          now.Add(directiveValidity),
	}
	if err := o.directives.Replace(ctx, directive); err != nil {
		return fmt.Errorf("store directive: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"regime":     directive.Regime,
		"bias":       directive.Bias,
		"risk_level": directive.RiskLevel,
	}).Info("New CEO directive in force")

	o.notifier.Notify(ctx, fmt.Sprintf("🧭 New directive (%s): regime %s, bias %s, risk %d/10. %s",
		reason, directive.Regime, directive.Bias, directive.RiskLevel, directive.Summary))
	return nil
}

// CheckEscalation evaluates the escalation rules and, at most once per
// debounce window, forces an out-of-schedule review.
func (o *Overlay) CheckEscalation(ctx context.Context) {
	cfg, err := settings.Load()
	if err != nil || !cfg.CEOEnabled || !cfg.CEOEscalationEnabled {
		return
	}

	reason, triggered := o.escalationReason(ctx, cfg)
	if !triggered {
		return
	}

	state, err := o.engine.Get(ctx)
	if err != nil {
		logger.WithError(err).Error("Cannot read engine state for escalation debounce")
		return
	}
	now := o.now()
	if state.LastEscalationAt != nil && now.Sub(*state.LastEscalationAt) < escalationDebounce {
		logger.WithField("reason", reason).Debug("Escalation suppressed by debounce window")
		return
	}

	logger.WithField("reason", reason).Warn("Escalating to CEO review")

	state.LastEscalationAt = &now
	if err := o.engine.Save(ctx, state); err != nil {
		logger.WithError(err).Error("Failed to persist escalation timestamp")
	}

	if err := o.Run(ctx, "escalation: "+reason); err != nil {
		logger.WithError(err).Error("Escalated CEO run failed")
	}
}

// escalationReason returns the first matching escalation rule: expired
// directive, price more than zoneBreakoutPct outside its directive
// zone, or today's loss at half the daily limit.
func (o *Overlay) escalationReason(ctx context.Context, cfg *settings.Trading) (string, bool) {
	now := o.now()

	directive, err := o.directives.GetCurrent(ctx)
	if err == nil && directive != nil && directive.IsExpired(now) {
		return "directive expired", true
	}

	if directive != nil {
		if symbol, detail := o.zoneBreakout(ctx, directive); symbol != "" {
			return fmt.Sprintf("%s %s", symbol, detail), true
		}
	}

	state, err := o.risk.Read(ctx)
	if err == nil && cfg.DailyLossLimitUSD > 0 {
		threshold := -cfg.DailyLossLimitUSD * lossEscalationFraction
		if pnl, _ := state.PnlToday.Float64(); pnl <= threshold {
			return fmt.Sprintf("daily loss %.2f USD reached half the limit", pnl), true
		}
	}

	return "", false
}

// zoneBreakout returns the first symbol trading more than
// zoneBreakoutPct outside its directive price zone.
func (o *Overlay) zoneBreakout(ctx context.Context, directive *model.CEODirective) (string, string) {
	zones := directive.Zones()
	if len(zones) == 0 {
		return "", ""
	}

	symbols := make([]string, 0, len(zones))
	for symbol := range zones {
		symbols = append(symbols, symbol)
	}
	tickers, err := o.gateway.Tickers(ctx, symbols)
	if err != nil {
		return "", ""
	}

	for symbol, zone := range zones {
		ticker, ok := tickers[symbol]
		if !ok || ticker.Last <= 0 {
			continue
		}
		if detail := zoneBreach(zone, ticker.Last); detail != "" {
			return symbol, detail
		}
	}
	return "", ""
}

// zoneBreach reports how price sits more than zoneBreakoutPct outside
// the zone, or "" while it is within tolerance.
func zoneBreach(zone model.PriceZone, price float64) string {
	if zone.BuyMin > 0 && price < zone.BuyMin*(1-zoneBreakoutPct/100) {
		return fmt.Sprintf("price %.2f is more than %.0f%% below its zone floor %.2f", price, zoneBreakoutPct, zone.BuyMin)
	}
	if zone.SellMax > 0 && price > zone.SellMax*(1+zoneBreakoutPct/100) {
		return fmt.Sprintf("price %.2f is more than %.0f%% above its zone ceiling %.2f", price, zoneBreakoutPct, zone.SellMax)
	}
	return ""
}

func marshalOrEmpty(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
