package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/lifecycle"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/memory"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/notification"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/search"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
	"github.com/oksasatya/account-lifecycle/pkg/validation"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := validation.Init(Validators()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var testNow = time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type fixture struct {
	router *gin.Engine
	store  *memory.AccountStore
	locker *memory.Locker
	redis  *miniredis.Miniredis
}

type fakeStatus []application.RuleStatus

func (f fakeStatus) Status() []application.RuleStatus { return f }

type fakeSearcher struct {
	hits      []search.Hit
	err       error
	gotQ      string
	gotStatus string
}

func (f *fakeSearcher) Search(_ context.Context, q, status string, _ int) ([]search.Hit, error) {
	f.gotQ, f.gotStatus = q, status
	return f.hits, f.err
}

func newFixture(t *testing.T, searcher AccountSearcher, accounts ...entity.Account) *fixture {
	t.Helper()
	logger := helpers.NewDiscardLogger()
	clock := clockwork.NewFakeClockAt(testNow)
	ledger := memory.NewNoticeLedger()
	store := memory.NewAccountStore(ledger)
	store.Put(accounts...)
	locker := memory.NewLocker()

	engine := application.NewEngine(application.EngineDeps{
		Store:    store,
		Ledger:   ledger,
		Notifier: notification.NewLogGateway(logger),
		Locker:   locker,
		Clock:    clock,
		Logger:   logger,
	}, application.EngineOptions{Policy: lifecycle.DefaultPolicy()})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := fakeStatus{{Rule: application.RuleDemoteDormant, Order: 2, Cadence: "daily at 01:00 UTC", NextRun: testNow.Add(time.Hour), Runs: 3}}
	lh := NewLifecycleHandler(engine, status, rdb, logger)
	ah := NewAccountHandler(application.NewAccountService(store, clock, logger, nil), searcher, logger)

	r := gin.New()
	r.GET("/lifecycle/rules", lh.Rules)
	r.POST("/lifecycle/rules/:rule/run", lh.RunRule)
	r.POST("/lifecycle/cycle", lh.RunCycle)
	r.GET("/lifecycle/cycle/last", lh.LastCycle)
	r.GET("/accounts/search", ah.SearchAccounts)
	r.GET("/accounts/:id", ah.Get)
	r.POST("/accounts/:id/login", ah.RecordLogin)
	r.POST("/accounts/:id/withdraw", ah.Withdraw)
	return &fixture{router: r, store: store, locker: locker, redis: mr}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func stalePending() entity.Account {
	created := testNow.AddDate(0, 0, -5)
	return entity.Account{ID: "p1", Email: "p1@example.com", Status: entity.StatusPending, CreatedAt: created, StatusChangedAt: created}
}

func TestRulesListsEveryRuleInOrder(t *testing.T) {
	f := newFixture(t, nil)
	code, env := f.do(t, http.MethodGet, "/lifecycle/rules", "")
	require.Equal(t, http.StatusOK, code)

	var rules []ruleView
	require.NoError(t, json.Unmarshal(env.Data, &rules))
	require.Len(t, rules, len(application.RuleOrder))
	for i, r := range rules {
		assert.Equal(t, application.RuleOrder[i], r.Rule)
		assert.Equal(t, i+1, r.Order)
		assert.NotEmpty(t, r.Description)
	}
	assert.False(t, rules[0].Scheduled)
	assert.True(t, rules[1].Scheduled)
	assert.Equal(t, 3, rules[1].Runs)
	require.NotNil(t, rules[1].NextRun)
	assert.True(t, testNow.Add(time.Hour).Equal(*rules[1].NextRun))
}

func TestRunRuleAppliesSweep(t *testing.T) {
	f := newFixture(t, nil, stalePending())
	code, env := f.do(t, http.MethodPost, "/lifecycle/rules/expire_pending/run", "")
	require.Equal(t, http.StatusOK, code)

	var res application.SweepResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, application.RuleExpirePending, res.Rule)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 0, f.store.Len())
}

func TestRunRuleUnknown(t *testing.T) {
	f := newFixture(t, nil)
	code, env := f.do(t, http.MethodPost, "/lifecycle/rules/make_coffee/run", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestRunRuleLockHeld(t *testing.T) {
	f := newFixture(t, nil, stalePending())
	lease, err := f.locker.Acquire(context.Background(), application.LockKey(application.RuleExpirePending), time.Minute)
	require.NoError(t, err)
	defer func() { _ = lease.Release(context.Background()) }()

	code, _ := f.do(t, http.MethodPost, "/lifecycle/rules/expire_pending/run", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, 1, f.store.Len())
}

func TestRunCycleIsCached(t *testing.T) {
	f := newFixture(t, nil, stalePending())

	code, _ := f.do(t, http.MethodGet, "/lifecycle/cycle/last", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env := f.do(t, http.MethodPost, "/lifecycle/cycle", "")
	require.Equal(t, http.StatusOK, code)
	var v cycleView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Len(t, v.Results, len(application.RuleOrder))
	assert.Equal(t, 1, v.Results[0].Applied)
	assert.Empty(t, v.Errors)
	assert.True(t, f.redis.Exists(LastCycleKey))

	code, env = f.do(t, http.MethodGet, "/lifecycle/cycle/last", "")
	require.Equal(t, http.StatusOK, code)
	var cached cycleView
	require.NoError(t, json.Unmarshal(env.Data, &cached))
	assert.Len(t, cached.Results, len(application.RuleOrder))
	assert.True(t, v.At.Equal(cached.At))
}

func TestGetAccount(t *testing.T) {
	f := newFixture(t, nil, stalePending())

	code, env := f.do(t, http.MethodGet, "/accounts/p1", "")
	require.Equal(t, http.StatusOK, code)
	var v accountView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "PENDING", v.Status)
	assert.Nil(t, v.LastLoginAt)

	code, _ = f.do(t, http.MethodGet, "/accounts/nobody", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRecordLoginReactivates(t *testing.T) {
	then := testNow.AddDate(-1, 0, 0)
	f := newFixture(t, nil, entity.Account{ID: "d1", Status: entity.StatusDormant, StatusChangedAt: then, LastLoginAt: &then})

	code, env := f.do(t, http.MethodPost, "/accounts/d1/login", "")
	require.Equal(t, http.StatusOK, code)
	var v accountView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "ACTIVE", v.Status)
	require.NotNil(t, v.LastLoginAt)
	assert.True(t, testNow.Equal(*v.LastLoginAt))
}

func TestWithdraw(t *testing.T) {
	then := testNow.AddDate(0, -1, 0)
	f := newFixture(t, nil,
		entity.Account{ID: "a1", Status: entity.StatusActive, LastLoginAt: &then},
		stalePending(),
	)

	code, env := f.do(t, http.MethodPost, "/accounts/a1/withdraw", `{"reason":"moving on"}`)
	require.Equal(t, http.StatusOK, code)
	var v accountView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "DELETED", v.Status)
	require.Len(t, f.store.Withdrawals(), 1)
	assert.Equal(t, "moving on", f.store.Withdrawals()[0].Reason)

	code, _ = f.do(t, http.MethodPost, "/accounts/p1/withdraw", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(t, http.MethodPost, "/accounts/a1/withdraw", `{"reason":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSearchAccounts(t *testing.T) {
	s := &fakeSearcher{hits: []search.Hit{{ID: "a1", Email: "a1@example.com", Status: "ACTIVE"}}}
	f := newFixture(t, s)

	code, env := f.do(t, http.MethodGet, "/accounts/search?q=a1&status=ACTIVE", "")
	require.Equal(t, http.StatusOK, code)
	var hits []search.Hit
	require.NoError(t, json.Unmarshal(env.Data, &hits))
	assert.Len(t, hits, 1)
	assert.Equal(t, "a1", s.gotQ)
	assert.Equal(t, "ACTIVE", s.gotStatus)

	code, env = f.do(t, http.MethodGet, "/accounts/search?status=SLEEPING", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(env.Error), "status")

	s.err = errors.New("es down")
	code, _ = f.do(t, http.MethodGet, "/accounts/search?q=x", "")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestSearchDisabled(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := f.do(t, http.MethodGet, "/accounts/search?q=x", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	for name, tc := range map[string]struct {
		checks map[string]Check
		code   int
	}{
		"healthy":  {checks: map[string]Check{"postgres": ok, "redis": ok}, code: http.StatusOK},
		"degraded": {checks: map[string]Check{"postgres": ok, "redis": down}, code: http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(time.Second, tc.checks).Health)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), "postgres")
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(application.ErrUnknownRule))
	assert.Equal(t, http.StatusConflict, statusOf(&application.SweepError{Rule: application.RuleAnonymize, Err: application.ErrLockHeld}))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(application.ErrStoreUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}
