package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradesentinel/src/gateway"
	"tradesentinel/src/ledger"
	"tradesentinel/src/model"
	"tradesentinel/src/repository"
	"tradesentinel/src/risk"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func newTestServer(t *testing.T, db *gorm.DB) *Server {
	t.Helper()
	t.Setenv("EXCHANGE_API_KEY", "")
	t.Setenv("EXCHANGE_API_SECRET", "")

	return New(
		gateway.NewService("binance", true, nil),
		ledger.NewService(
			repository.NewPositionRepository().WithDB(db),
			repository.NewTradeRepository().WithDB(db),
		),
		risk.NewManager(repository.NewDailyStateRepository().WithDB(db)),
		repository.NewSentinelRunRepository().WithDB(db),
		repository.NewDirectiveRepository().WithDB(db),
	)
}

func TestHealthcheck(t *testing.T) {
	db, _ := newMockDB(t)
	srv := newTestServer(t, db)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestDirectiveNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	srv := newTestServer(t, db)

	mock.ExpectQuery(`SELECT \* FROM "ceo_directives"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/directive", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDirectiveReturnsCurrent(t *testing.T) {
	db, mock := newMockDB(t)
	srv := newTestServer(t, db)

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "ceo_directives"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "regime", "bias", "risk_level", "generated_at", "expires_at"}).
			AddRow(1, "ranging", model.BiasNeutral, 2, now, now.Add(24*time.Hour)))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/directive", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var directive model.CEODirective
	if err := json.Unmarshal(rec.Body.Bytes(), &directive); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if directive.Regime != "ranging" || directive.RiskLevel != 2 {
		t.Fatalf("directive = %+v", directive)
	}
}

func TestPositionsEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	srv := newTestServer(t, db)

	// Once for the symbol list, once inside the summary builder.
	mock.ExpectQuery(`SELECT \* FROM "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var summaries []ledger.PositionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no positions, got %+v", summaries)
	}
}

func TestRunsReturnsLatest(t *testing.T) {
	db, mock := newMockDB(t)
	srv := newTestServer(t, db)

	mock.ExpectQuery(`SELECT \* FROM "sentinel_runs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "sentiment"}).
			AddRow(2, "run-b", "bearish").
			AddRow(1, "run-a", "bullish"))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var runs []model.SentinelRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-b" {
		t.Fatalf("runs = %+v", runs)
	}
}
