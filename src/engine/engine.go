// Package engine wires the loops together: one gateway, one ledger, one
// risk manager and the three loops (guardian, sentinel, CEO overlay)
// sharing them.
package engine

import (
	"context"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/ceo"
	"tradesentinel/src/gateway"
	"tradesentinel/src/guardian"
	"tradesentinel/src/ledger"
	"tradesentinel/src/notify"
	"tradesentinel/src/reasoning"
	"tradesentinel/src/repository"
	"tradesentinel/src/risk"
	"tradesentinel/src/sentinel"
	"tradesentinel/src/server"
	"tradesentinel/src/settings"
	"tradesentinel/src/sources"
)

// Engine owns the wired component graph.
type Engine struct {
	Settings *settings.Trading

	Gateway  *gateway.Service
	Ledger   *ledger.Service
	Risk     *risk.Manager
	Notifier *notify.Notifier

	Guardian *guardian.Guardian
	Sentinel *sentinel.Service
	Overlay  *ceo.Overlay
	Server   *server.Server
}

// New builds the full component graph. The database must already be
// initialized.
func New() (*Engine, error) {
	cfg, err := settings.Load()
	if err != nil {
		return nil, fmt.Errorf("load trading settings: %w", err)
	}

	positions := repository.NewPositionRepository()
	trades := repository.NewTradeRepository()
	dailyStates := repository.NewDailyStateRepository()
	runs := repository.NewSentinelRunRepository()
	directives := repository.NewDirectiveRepository()
	engineStates := repository.NewEngineStateRepository()
	credentials := repository.NewCredentialRepository()

	gw := gateway.NewService(cfg.Exchange, cfg.Sandbox, credentials)
	led := ledger.NewService(positions, trades)
	riskMgr := risk.NewManager(dailyStates)
	notifier := notify.NewNotifier(notify.GetConfig())
	reasoner := reasoning.NewClient(reasoning.GetConfig())

	srcCfg := sources.GetConfig()
	feeds := []sources.Source{
		sources.NewNewsSource(srcCfg),
		sources.NewForumSource(srcCfg),
		sources.NewSearchSource(srcCfg),
	}

	overlay := ceo.New(gw, led, riskMgr, reasoner, notifier, directives, runs, engineStates)
	sent := sentinel.New(gw, led, riskMgr, reasoner, notifier, runs, directives, feeds, overlay)
	guard := guardian.New(gw, led, riskMgr, notifier)
	srv := server.New(gw, led, riskMgr, runs, directives)

	return &Engine{
		Settings: cfg,
		Gateway:  gw,
		Ledger:   led,
		Risk:     riskMgr,
		Notifier: notifier,
		Guardian: guard,
		Sentinel: sent,
		Overlay:  overlay,
		Server:   srv,
	}, nil
}

// Run starts every loop plus the status server and blocks until ctx is
// canceled.
func (e *Engine) Run(ctx context.Context, port string) {
	logger.WithFields(map[string]interface{}{
		"exchange": e.Settings.Exchange,
		"sandbox":  e.Settings.Sandbox,
		"coins":    e.Settings.TrackedCoins,
	}).Info("Engine starting")

	e.Gateway.StartStream(ctx, e.Settings.TrackedCoins)

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		e.Guardian.Start(ctx, e.Settings.GuardianInterval)
	}()
	go func() {
		defer wg.Done()
		e.Sentinel.Start(ctx, e.Settings.SentinelInterval)
	}()
	go func() {
		defer wg.Done()
		e.Overlay.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		e.Server.Start(ctx, port)
	}()

	wg.Wait()
	logger.Info("Engine stopped")
}
