package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/config"
	"github.com/vanshika/mint/internal/domain"
	"github.com/vanshika/mint/internal/generator"
	"github.com/vanshika/mint/internal/logging"
	"github.com/vanshika/mint/internal/service"
)

const testKey = "secret-key"

type apiStubRepo struct {
	mu    sync.Mutex
	txs   map[int64]domain.Transaction
	calls int
	err   error
}

func newAPIStubRepo() *apiStubRepo {
	return &apiStubRepo{txs: map[int64]domain.Transaction{}}
}

func (a *apiStubRepo) touch() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.err
}

func (a *apiStubRepo) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *apiStubRepo) Insert(ctx context.Context, tx domain.Transaction) (int64, error) {
	if err := a.touch(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.txs[tx.TransactionID]; ok {
		return 0, service.ErrDuplicateTransaction
	}
	tx.ID = int64(len(a.txs) + 1)
	a.txs[tx.TransactionID] = tx
	return tx.TransactionID, nil
}

func (a *apiStubRepo) GetByExternalID(ctx context.Context, id int64) (domain.Transaction, error) {
	if err := a.touch(); err != nil {
		return domain.Transaction{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, ok := a.txs[id]
	if !ok {
		return domain.Transaction{}, service.ErrNotFound
	}
	return tx, nil
}

func (a *apiStubRepo) filter(keep func(domain.Transaction) bool) []domain.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []domain.Transaction{}
	for _, tx := range a.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *apiStubRepo) SearchByAmount(ctx context.Context, amount decimal.Decimal) ([]domain.Transaction, error) {
	if err := a.touch(); err != nil {
		return nil, err
	}
	return a.filter(func(tx domain.Transaction) bool {
		return tx.OriginAmountDetails.TransactionAmount.Equal(amount)
	}), nil
}

func (a *apiStubRepo) SearchByDateRange(ctx context.Context, start, end time.Time) ([]domain.Transaction, error) {
	if err := a.touch(); err != nil {
		return nil, err
	}
	return a.filter(func(tx domain.Transaction) bool {
		return !tx.Timestamp.Before(start) && !tx.Timestamp.After(end)
	}), nil
}

func (a *apiStubRepo) SearchByType(ctx context.Context, txType domain.TransactionType) ([]domain.Transaction, error) {
	if err := a.touch(); err != nil {
		return nil, err
	}
	return a.filter(func(tx domain.Transaction) bool { return tx.Type == txType }), nil
}

func (a *apiStubRepo) Summary(ctx context.Context, start, end time.Time) ([]domain.TypeSummary, error) {
	txs, err := a.SearchByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byType := map[domain.TransactionType]*domain.TypeSummary{}
	for _, tx := range txs {
		s, ok := byType[tx.Type]
		if !ok {
			s = &domain.TypeSummary{Type: tx.Type}
			byType[tx.Type] = s
		}
		s.Count++
		s.TotalAmount = s.TotalAmount.Add(tx.OriginAmountDetails.TransactionAmount)
	}
	out := []domain.TypeSummary{}
	for _, s := range byType {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (a *apiStubRepo) TotalAmount(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	txs, err := a.SearchByDateRange(ctx, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.OriginAmountDetails.TransactionAmount)
	}
	return total, nil
}

type stubKeys map[string]bool

func (k stubKeys) Verify(_ context.Context, key string) bool { return k[key] }

type stubGenerator struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (g *stubGenerator) Start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.starts++
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *stubGenerator) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	if !g.running {
		return false
	}
	g.running = false
	return true
}

func (g *stubGenerator) Status() generator.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	state := generator.StateStopped
	if g.running {
		state = generator.StateRunning
	}
	return generator.Status{State: state}
}

type testEnv struct {
	handler http.Handler
	repo    *apiStubRepo
	gen     *stubGenerator
}

func newTestEnv(t *testing.T, limit config.RateLimitConfig) *testEnv {
	t.Helper()
	logger := logging.Discard()
	repo := newAPIStubRepo()
	gen := &stubGenerator{}
	svc := service.NewTransactionService(repo, nil, logger)
	handler := NewRouter(logger, RouterDependencies{
		API:            NewAPIHandlers(logger, svc, gen),
		Keys:           stubKeys{testKey: true},
		AuthHeader:     "access_token",
		RateLimit:      limit,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	return &testEnv{handler: handler, repo: repo, gen: gen}
}

func (e *testEnv) do(method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) authed(method, target, body, contentType string) *httptest.ResponseRecorder {
	headers := map[string]string{"access_token": testKey}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return e.do(method, target, body, headers)
}

func createForm(amount, txType string) string {
	return url.Values{
		"amount":         {amount},
		"sender_id":      {"alice"},
		"destination_id": {"bob"},
		"type":           {txType},
		"currency":       {"USD"},
		"country":        {"US"},
	}.Encode()
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

var protectedRoutes = []struct {
	method string
	path   string
}{
	{http.MethodPost, "/create_transactions"},
	{http.MethodGet, "/get_transactions/123456"},
	{http.MethodGet, "/search_transaction_by_amount?amount=10"},
	{http.MethodGet, "/search_transaction_by_date_range?start_date=2024-01-01&end_date=2024-01-02"},
	{http.MethodGet, "/transactions/search_by_type?type=DEPOSIT"},
	{http.MethodGet, "/transactions/summary?start_date=2024-01-01&end_date=2024-01-02"},
	{http.MethodGet, "/transactions/total_amount?start_date=2024-01-01&end_date=2024-01-02"},
	{http.MethodPost, "/cron/start"},
	{http.MethodPost, "/cron/stop"},
	{http.MethodGet, "/cron/status"},
}

func TestProtectedRoutesRejectInvalidKeys(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	for _, route := range protectedRoutes {
		for name, headers := range map[string]map[string]string{
			"missing": nil,
			"wrong":   {"access_token": "nope"},
		} {
			rec := env.do(route.method, route.path, "", headers)
			if rec.Code != http.StatusForbidden {
				t.Errorf("%s %s with %s key: expected 403, got %d", route.method, route.path, name, rec.Code)
			}
		}
	}

	if env.repo.callCount() != 0 {
		t.Fatalf("rejected requests must not reach storage, got %d calls", env.repo.callCount())
	}
	if env.gen.starts != 0 || env.gen.stops != 0 {
		t.Fatalf("rejected requests must not touch the generator")
	}
}

func TestOpenRoutesNeedNoKey(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rec := env.do(http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for root, got %d", rec.Code)
	}
	info := decodeBody[map[string]string](t, rec)
	if info["name"] != serviceName {
		t.Fatalf("unexpected root payload %v", info)
	}

	if rec := env.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for healthz, got %d", rec.Code)
	}
}

func TestCreateAndFetchTransaction(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	rec := env.authed(http.MethodPost, "/create_transactions", createForm("100.5", "deposit"), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Transaction](t, rec)
	if created.TransactionID < 100000 || created.TransactionID > 999999 {
		t.Fatalf("unexpected transaction id %d", created.TransactionID)
	}
	if created.Type != domain.TransactionTypeDeposit || created.OriginUserID != "alice" {
		t.Fatalf("unexpected created record %+v", created)
	}

	rec = env.authed(http.MethodGet, "/get_transactions/"+strconv.FormatInt(created.TransactionID, 10), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	fetched := decodeBody[domain.Transaction](t, rec)
	if fetched.TransactionID != created.TransactionID ||
		!fetched.OriginAmountDetails.TransactionAmount.Equal(decimal.RequireFromString("100.5")) ||
		!fetched.DestinationAmountDetails.TransactionAmount.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("fetched record differs: %+v", fetched)
	}
}

func TestCreateTransactionJSON(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	body := `{"amount": "42.10", "sender_id": "a", "destination_id": "b", "type": "TRANSFER", "currency": "EUR", "country": "DE", "tags": [{"key": "k", "value": "v"}]}`
	rec := env.authed(http.MethodPost, "/create_transactions", body, "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Transaction](t, rec)
	if created.OriginAmountDetails.TransactionCurrency != domain.CurrencyEUR || len(created.Tags) != 1 {
		t.Fatalf("unexpected record %+v", created)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	form := "application/x-www-form-urlencoded"

	cases := map[string]struct {
		body        string
		contentType string
	}{
		"zero amount":     {createForm("0", "DEPOSIT"), form},
		"non numeric":     {createForm("ten", "DEPOSIT"), form},
		"unknown type":    {createForm("10", "LOAN"), form},
		"missing amount":  {"sender_id=a&destination_id=b&type=DEPOSIT&currency=USD&country=US", form},
		"unknown field":   {`{"amount": 1, "bogus": true}`, "application/json"},
		"malformed json":  {`{"amount": `, "application/json"},
		"bad promo value": {createForm("10", "DEPOSIT") + "&promotion_code_used=maybe", form},
	}
	for name, tc := range cases {
		rec := env.authed(http.MethodPost, "/create_transactions", tc.body, tc.contentType)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
	if env.repo.callCount() != 0 {
		t.Fatalf("invalid creates must not reach storage")
	}
}

func TestGetTransactionErrors(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	if rec := env.authed(http.MethodGet, "/get_transactions/999999", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.authed(http.MethodGet, "/get_transactions/abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAmountSearchScenario(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	form := "application/x-www-form-urlencoded"

	for _, amount := range []string{"100", "250"} {
		if rec := env.authed(http.MethodPost, "/create_transactions", createForm(amount, "DEPOSIT"), form); rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d %s", amount, rec.Code, rec.Body.String())
		}
	}

	rec := env.authed(http.MethodGet, "/search_transaction_by_amount?amount=250", "", "")
	matches := decodeBody[[]domain.Transaction](t, rec)
	if rec.Code != http.StatusOK || len(matches) != 1 {
		t.Fatalf("expected one match for 250, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.authed(http.MethodGet, "/search_transaction_by_amount?amount=999", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected 200 [], got %d %q", rec.Code, rec.Body.String())
	}

	start := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = env.authed(http.MethodGet, "/transactions/total_amount?start_date="+url.QueryEscape(start)+"&end_date="+url.QueryEscape(end), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("total: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	total := decodeBody[service.TotalAmount](t, rec)
	if !total.TotalAmount.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("expected total 350, got %s", total.TotalAmount)
	}

	rec = env.authed(http.MethodGet, "/transactions/summary?start_date="+url.QueryEscape(start)+"&end_date="+url.QueryEscape(end), "", "")
	summaries := decodeBody[[]domain.TypeSummary](t, rec)
	if len(summaries) != 1 || summaries[0].Count != 2 || !summaries[0].TotalAmount.Equal(total.TotalAmount) {
		t.Fatalf("summary disagrees with total: %+v", summaries)
	}
}

func TestRangeEndpointsRejectBadRanges(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	for _, path := range []string{
		"/transactions/summary?start_date=2024-01-02&end_date=2024-01-02",
		"/transactions/total_amount?start_date=2024-01-03&end_date=2024-01-02",
		"/search_transaction_by_date_range?start_date=2024-01-03&end_date=2024-01-02",
		"/transactions/summary?start_date=yesterday&end_date=2024-01-02",
		"/transactions/total_amount?start_date=2024-01-01",
		"/search_transaction_by_amount",
		"/transactions/search_by_type?type=LOAN",
	} {
		if rec := env.authed(http.MethodGet, path, "", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
	if env.repo.callCount() != 0 {
		t.Fatalf("rejected queries must not reach storage, got %d calls", env.repo.callCount())
	}
}

func TestStorageErrorsAreMasked(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	env.repo.err = errors.New(`pq: relation "transactions" does not exist`)

	rec := env.authed(http.MethodGet, "/transactions/search_by_type?type=DEPOSIT", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "relation") {
		t.Fatalf("database error leaked to client: %s", rec.Body.String())
	}
}

func TestGeneratorControlRoutes(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})

	first := decodeBody[generatorResponse](t, env.authed(http.MethodPost, "/cron/start", "", ""))
	second := decodeBody[generatorResponse](t, env.authed(http.MethodPost, "/cron/start", "", ""))
	if first.Message != "generator started" || second.Message != "generator already running" {
		t.Fatalf("unexpected start messages %q / %q", first.Message, second.Message)
	}
	if second.Status.State != generator.StateRunning {
		t.Fatalf("expected RUNNING, got %s", second.Status.State)
	}

	status := decodeBody[generator.Status](t, env.authed(http.MethodGet, "/cron/status", "", ""))
	if status.State != generator.StateRunning {
		t.Fatalf("expected RUNNING status, got %s", status.State)
	}

	stop := decodeBody[generatorResponse](t, env.authed(http.MethodPost, "/cron/stop", "", ""))
	again := decodeBody[generatorResponse](t, env.authed(http.MethodPost, "/cron/stop", "", ""))
	if stop.Message != "generator stopped" || again.Message != "generator not running" {
		t.Fatalf("unexpected stop messages %q / %q", stop.Message, again.Message)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, config.RateLimitConfig{})
	if rec := env.authed(http.MethodGet, "/cron/start", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
