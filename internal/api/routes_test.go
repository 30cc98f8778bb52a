package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/ledger"
	"github.com/kjannette/stonks-backend/internal/portfolio"
	"github.com/kjannette/stonks-backend/internal/quote"
	"github.com/kjannette/stonks-backend/internal/repository"
	"github.com/kjannette/stonks-backend/internal/sector"
	"github.com/kjannette/stonks-backend/internal/stream"
	"github.com/kjannette/stonks-backend/internal/watchlist"
)

const testInitialCash = 1_000_000 // $10,000.00

type testEnv struct {
	srv    *httptest.Server
	engine *ledger.Engine
}

// newTestServer wires the full router over the in-memory store. The quote
// adapter has no providers, so every price comes from the stub table.
func newTestServer(t *testing.T, apiKey string) (*Server, *ledger.Engine) {
	t.Helper()
	log := zerolog.Nop()
	store := repository.NewMemoryStore()
	cache := quote.NewCache(quote.NewAdapter(log, time.Second), nil, quote.DefaultTTL, log)
	engine := ledger.NewEngine(store, cache, log)
	wl := watchlist.NewService(store, store, cache)

	s := NewServer(Deps{
		Store:       store,
		Quotes:      cache,
		Ledger:      engine,
		Portfolio:   portfolio.NewAggregator(store, cache, sector.Default(), log),
		Watchlist:   wl,
		Stream:      stream.NewPoller(wl, 20*time.Millisecond, log),
		InitialCash: testInitialCash,
		Log:         log,
	}, 0, apiKey, "*")
	return s, engine
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	s, engine := newTestServer(t, apiKey)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		engine.Wait()
	})
	return &testEnv{srv: srv, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func (e *testEnv) createUser(t *testing.T, name string) int64 {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/v1/users", `{"username":"`+name+`"}`)
	if code != http.StatusCreated {
		t.Fatalf("create user: %d %s", code, body)
	}
	return decode[struct {
		ID int64 `json:"id"`
	}](t, body).ID
}

func userPath(id int64, rest string) string {
	return "/v1/users/" + strconv.FormatInt(id, 10) + rest
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	code, body := env.do(t, http.MethodGet, "/health", "")
	if code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	h := decode[healthResponse](t, body)
	if h.Status != "ok" || h.Services.Database != "connected" {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h.Services.Store != "memory" || !h.Services.StubOnly || len(h.Services.Quotes) != 0 {
		t.Fatalf("unexpected services: %+v", h.Services)
	}
}

type downStore struct {
	*repository.MemoryStore
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_Degraded(t *testing.T) {
	s := NewServer(Deps{
		Store:     downStore{repository.NewMemoryStore()},
		Providers: []string{"fmp", "secondary"},
		Log:       zerolog.Nop(),
	}, 0, "", "*")

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health: %d", rr.Code)
	}
	h := decode[healthResponse](t, rr.Body.Bytes())
	if h.Status != "degraded" || h.Services.Database != "disconnected" {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h.Services.StubOnly || len(h.Services.Quotes) != 2 || h.Services.Quotes[0] != "fmp" {
		t.Fatalf("unexpected services: %+v", h.Services)
	}
}

func TestQuoteRoute(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/v1/quotes/aapl", "")
	if code != http.StatusOK {
		t.Fatalf("quote: %d %s", code, body)
	}
	q := decode[struct {
		Symbol     string `json:"symbol"`
		PriceCents int64  `json:"priceCents"`
		Provenance string `json:"provenance"`
		Display    string `json:"display"`
	}](t, body)
	if q.Symbol != "AAPL" || q.PriceCents != 18012 || q.Provenance != "stub" || q.Display != "$180.12" {
		t.Fatalf("unexpected quote: %+v", q)
	}

	code, _ = env.do(t, http.MethodGet, "/v1/quotes/bad$sym", "")
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid symbol: expected 422, got %d", code)
	}
}

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodPost, "/v1/users", `{"username":"alice"}`)
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	u := decode[struct {
		ID          int64  `json:"id"`
		Cash        int64  `json:"cash"`
		CashDisplay string `json:"cashDisplay"`
	}](t, body)
	if u.Cash != testInitialCash || u.CashDisplay != "$10,000.00" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if code, _ := env.do(t, http.MethodPost, "/v1/users", `{"username":"alice"}`); code != http.StatusConflict {
		t.Fatalf("duplicate username: expected 409, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/users", `{"username":"  "}`); code != http.StatusBadRequest {
		t.Fatalf("blank username: expected 400, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/v1/users", `{nope`); code != http.StatusBadRequest {
		t.Fatalf("bad JSON: expected 400, got %d", code)
	}

	if code, _ := env.do(t, http.MethodGet, userPath(u.ID, ""), ""); code != http.StatusOK {
		t.Fatalf("get user: expected 200, got %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/v1/users/999", ""); code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/v1/users/abc", ""); code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", code)
	}
}

func TestTradeRoundTrip(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.createUser(t, "bob")

	code, body := env.do(t, http.MethodPost, userPath(id, "/buy"), `{"symbol":"aapl","shares":10}`)
	if code != http.StatusOK {
		t.Fatalf("buy: %d %s", code, body)
	}
	buy := decode[struct {
		Symbol    string `json:"symbol"`
		Shares    int64  `json:"shares"`
		Price     int64  `json:"price"`
		Total     int64  `json:"total"`
		CashAfter int64  `json:"cashAfter"`
	}](t, body)
	if buy.Symbol != "AAPL" || buy.Shares != 10 || buy.Price != 18012 || buy.Total != 180120 || buy.CashAfter != 819880 {
		t.Fatalf("unexpected buy receipt: %+v", buy)
	}

	// shares given as a string
	code, body = env.do(t, http.MethodPost, userPath(id, "/sell"), `{"symbol":"AAPL","shares":"4"}`)
	if code != http.StatusOK {
		t.Fatalf("sell: %d %s", code, body)
	}

	code, body = env.do(t, http.MethodGet, userPath(id, "/portfolio"), "")
	if code != http.StatusOK {
		t.Fatalf("portfolio: %d %s", code, body)
	}
	p := decode[portfolio.Portfolio](t, body)
	if p.Cash != 819880+4*18012 {
		t.Fatalf("cash = %d", p.Cash)
	}
	if len(p.Positions) != 1 || p.Positions[0].Shares != 6 || p.Positions[0].Sector != "Technology" {
		t.Fatalf("unexpected positions: %+v", p.Positions)
	}
	if p.GrandTotal != testInitialCash {
		t.Fatalf("grand total = %d, want %d at unchanged price", p.GrandTotal, testInitialCash)
	}

	code, body = env.do(t, http.MethodGet, userPath(id, "/history?limit=1"), "")
	if code != http.StatusOK {
		t.Fatalf("history: %d %s", code, body)
	}
	hist := decode[[]portfolio.HistoryEntry](t, body)
	if len(hist) != 1 || hist[0].Side != "sell" || hist[0].Shares != -4 {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestTradeRejections(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.createUser(t, "carol")

	cases := []struct {
		name string
		path string
		body string
		code int
		kind string
	}{
		{"fractional shares", "/buy", `{"symbol":"AAPL","shares":1.5}`, http.StatusBadRequest, "InvalidQuantity"},
		{"zero shares", "/buy", `{"symbol":"AAPL","shares":0}`, http.StatusBadRequest, "InvalidQuantity"},
		{"missing shares", "/buy", `{"symbol":"AAPL"}`, http.StatusBadRequest, "InvalidQuantity"},
		{"text shares", "/buy", `{"symbol":"AAPL","shares":"ten"}`, http.StatusBadRequest, "InvalidQuantity"},
		{"bad symbol", "/buy", `{"symbol":"!!","shares":1}`, http.StatusUnprocessableEntity, "UnknownSymbol"},
		{"too expensive", "/buy", `{"symbol":"AAPL","shares":1000}`, http.StatusUnprocessableEntity, "InsufficientFunds"},
		{"nothing to sell", "/sell", `{"symbol":"TSLA","shares":1}`, http.StatusUnprocessableEntity, "InsufficientShares"},
	}
	for _, tc := range cases {
		code, body := env.do(t, http.MethodPost, userPath(id, tc.path), tc.body)
		if code != tc.code {
			t.Fatalf("%s: expected %d, got %d %s", tc.name, tc.code, code, body)
		}
		got := decode[map[string]string](t, body)
		if got["kind"] != tc.kind || got["error"] == "" {
			t.Fatalf("%s: unexpected body %s", tc.name, body)
		}
	}

	code, body := env.do(t, http.MethodGet, userPath(id, ""), "")
	if code != http.StatusOK {
		t.Fatalf("get user: %d", code)
	}
	if cash := decode[struct {
		Cash int64 `json:"cash"`
	}](t, body).Cash; cash != testInitialCash {
		t.Fatalf("rejections changed cash to %d", cash)
	}

	if code, _ := env.do(t, http.MethodPost, "/v1/users/404/buy", `{"symbol":"AAPL","shares":1}`); code != http.StatusNotFound {
		t.Fatalf("unknown user buy: expected 404, got %d", code)
	}
}

func TestWatchlistRoutes(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.createUser(t, "dave")

	for _, sym := range []string{"tsla", "IBM"} {
		code, body := env.do(t, http.MethodPost, userPath(id, "/watchlist"), `{"symbol":"`+sym+`"}`)
		if code != http.StatusCreated {
			t.Fatalf("watch %s: %d %s", sym, code, body)
		}
	}
	if code, _ := env.do(t, http.MethodPost, userPath(id, "/watchlist"), `{"symbol":"$$"}`); code != http.StatusUnprocessableEntity {
		t.Fatalf("watch invalid: expected 422, got %d", code)
	}

	code, body := env.do(t, http.MethodGet, userPath(id, "/watchlist"), "")
	if code != http.StatusOK {
		t.Fatalf("market: %d %s", code, body)
	}
	rows := decode[[]watchlist.Row](t, body)
	if len(rows) != 2 || rows[0].Symbol != "IBM" || rows[1].Symbol != "TSLA" || rows[1].PriceCents != 17244 {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	code, body = env.do(t, http.MethodGet, userPath(id, "/quotes"), "")
	if code != http.StatusOK {
		t.Fatalf("quotes: %d %s", code, body)
	}
	snaps := decode[map[string]json.RawMessage](t, body)
	if _, ok := snaps["IBM"]; !ok || len(snaps) != 2 {
		t.Fatalf("unexpected quotes: %s", body)
	}

	if code, _ := env.do(t, http.MethodDelete, userPath(id, "/watchlist/ibm"), ""); code != http.StatusNoContent {
		t.Fatalf("unwatch: expected 204, got %d", code)
	}
	_, body = env.do(t, http.MethodGet, userPath(id, "/watchlist"), "")
	if rows := decode[[]watchlist.Row](t, body); len(rows) != 1 || rows[0].Symbol != "TSLA" {
		t.Fatalf("after unwatch: %+v", rows)
	}

	if code, _ := env.do(t, http.MethodGet, "/v1/users/77/watchlist", ""); code != http.StatusNotFound {
		t.Fatalf("unknown user watchlist: expected 404, got %d", code)
	}
}

func TestAuthRequiredOnRoutes(t *testing.T) {
	env := newTestEnv(t, "secret123")

	if code, _ := env.do(t, http.MethodGet, "/v1/quotes/AAPL", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/quotes/AAPL", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store, got %q", resp.Header.Get("Cache-Control"))
	}

	if code, _ := env.do(t, http.MethodGet, "/metrics", ""); code != http.StatusOK {
		t.Fatalf("metrics should bypass auth, got %d", code)
	}
}

func TestSSERoute(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.createUser(t, "erin")
	env.do(t, http.MethodPost, userPath(id, "/watchlist"), `{"symbol":"AAPL"}`)

	resp, err := http.Get(env.srv.URL + userPath(id, "/stream"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		rows := decode[[]watchlist.Row](t, bytes.TrimPrefix(line, []byte("data: ")))
		if len(rows) != 1 || rows[0].Symbol != "AAPL" {
			t.Fatalf("unexpected event: %s", line)
		}
		return
	}
	t.Fatalf("stream closed without an event: %v", sc.Err())
}

func TestStreamUnknownUser(t *testing.T) {
	env := newTestEnv(t, "")
	if code, _ := env.do(t, http.MethodGet, "/v1/users/55/stream", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestWSRoute(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.createUser(t, "frank")
	env.do(t, http.MethodPost, userPath(id, "/watchlist"), `{"symbol":"IBM"}`)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + userPath(id, "/ws")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rows []watchlist.Row
	if err := conn.ReadJSON(&rows); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "IBM" || rows[0].PriceCents != 14567 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
