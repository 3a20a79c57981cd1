package risk

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/model"
	"tradesentinel/src/repository"
)

// Manager owns the daily risk state. Every trade-executing code path
// goes through Apply, which serializes read-modify-write cycles behind a
// process-wide mutex so concurrent loops can neither double-count nor
// undercount the daily limits.
type Manager struct {
	repo *repository.DailyStateRepository
	now  func() time.Time

	mu sync.Mutex
}

// NewManager creates a daily risk state manager.
func NewManager(repo *repository.DailyStateRepository) *Manager {
	return &Manager{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock overrides the time source. Useful for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Read loads the persisted state. A state carrying an earlier calendar
// date is returned zeroed and dated today without writing anything back:
// the reset happens at read time, not write time.
func (m *Manager) Read(ctx context.Context) (*model.DailyState, error) {
	stored, err := m.repo.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if stored == nil || stored.IsStale(now) {
		fresh := model.FreshDailyState(now)
		return &fresh, nil
	}
	return stored, nil
}

// Write persists the state unconditionally.
func (m *Manager) Write(ctx context.Context, state *model.DailyState) error {
	state.UpdatedAt = m.now()
	return m.repo.Upsert(ctx, state)
}

// Apply runs mutate against the current state under the process-wide
// lock: re-read (not a cached copy), mutate, persist, release. The
// mutated state is returned for logging.
func (m *Manager) Apply(ctx context.Context, mutate func(*model.DailyState)) (*model.DailyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.Read(ctx)
	if err != nil {
		return nil, err
	}

	mutate(state)

	if err := m.Write(ctx, state); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"trades_today": state.TradesToday,
		"pnl_today":    state.PnlToday.StringFixed(2),
	}).Debug("Daily risk state updated")

	return state, nil
}
