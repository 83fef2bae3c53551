package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/finmarket/internal/chart"
	"github.com/seenimoa/finmarket/internal/config"
	"github.com/seenimoa/finmarket/internal/favorites"
	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/internal/kv"
	"github.com/seenimoa/finmarket/internal/newsclient"
	"github.com/seenimoa/finmarket/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

// stubRemote serves the feed fetcher and the direct remote calls.
type stubRemote struct {
	mu         sync.Mutex
	lastBasket []string
	newsErr    error
	healthErr  error
	summaryErr error
}

func (r *stubRemote) FetchNews(_ context.Context, f newsclient.Filters) ([]models.NewsItem, error) {
	if r.newsErr != nil {
		return nil, r.newsErr
	}
	all := []models.NewsItem{
		{ID: 1, Title: "Fed holds rates", Summary: "Rates unchanged", Sentiment: models.SentimentNeutral, Category: models.CategoryMarket},
		{ID: 2, Title: "Chip rally", Summary: "Semis up", Sentiment: models.SentimentPositive, Category: models.CategoryTech},
		{ID: 3, Title: "Bitcoin dips", Summary: "BTC down", Sentiment: models.SentimentNegative, Category: models.CategoryCrypto},
	}
	return f.Category.Filter(all), nil
}

func (r *stubRemote) FetchInsights(_ context.Context, symbols []string) (models.InsightSummary, error) {
	r.mu.Lock()
	r.lastBasket = symbols
	r.mu.Unlock()
	return models.InsightSummary{Summary: "Watching " + strings.Join(symbols, ", "), Confidence: 0.7}, nil
}

func (r *stubRemote) FetchNewsSummary(_ context.Context, id int64) (*models.NewsDetail, error) {
	if r.summaryErr != nil {
		return nil, r.summaryErr
	}
	return &models.NewsDetail{ID: id, Title: "Fed holds rates", Content: "Full story"}, nil
}

func (r *stubRemote) Health(context.Context) (*models.Health, error) {
	if r.healthErr != nil {
		return nil, r.healthErr
	}
	return &models.Health{Status: "healthy", Version: "1.0.0"}, nil
}

func (r *stubRemote) basket() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBasket
}

type failingKV struct{ kv.Store }

func (failingKV) Set(context.Context, string, []byte) error { return errors.New("read-only filesystem") }

type testEnv struct {
	srv    *Server
	remote *stubRemote
	favs   *favorites.Controller
	feed   *feed.Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithKV(t, kv.NewMemory())
}

func newTestEnvWithKV(t *testing.T, backend kv.Store) *testEnv {
	t.Helper()
	remote := &stubRemote{}
	metrics := NewMetrics()

	fc, err := feed.New(remote, feed.WithObserver(metrics.ObserveRetrieval))
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	t.Cleanup(fc.Close)

	favs := favorites.NewController(favorites.NewStore(backend),
		favorites.WithOnChange(func(ev favorites.Event) { fc.SetBasket(ev.Symbols) }))

	cfg := &config.Config{
		Remote:  config.RemoteConfig{BaseURL: "http://remote:8000", APIToken: "tok-secret-123456"},
		Storage: config.StorageConfig{Driver: "memory", RedisPassword: "redis-secret-123456"},
		API:     config.APIConfig{CORSOrigins: []string{"*"}},
	}

	srv := NewServer(Deps{
		Config:    cfg,
		Feed:      fc,
		Favorites: favs,
		Remote:    remote,
		Chart:     chart.Widget{Exchange: "NASDAQ", Locale: "br", DateRange: "12M", Theme: "dark"},
		Metrics:   metrics,
		Version:   "test",
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)

	return &testEnv{srv: srv, remote: remote, favs: favs, feed: fc}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// decodeData decodes the envelope's data field into v.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) APIResponse {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return APIResponse{Success: env.Success, Error: env.Error}
}

type feedJSON struct {
	Phase    string            `json:"phase"`
	Category string            `json:"category"`
	Items    []models.NewsItem `json:"items"`
	Insight  *struct {
		Summary string `json:"summary"`
	} `json:"insight"`
	Error  string `json:"error"`
	Source string `json:"source"`
}

// ════════════════════════════════════════════════════════════════════
// Envelope
// ════════════════════════════════════════════════════════════════════

func TestAPIResponseJSON(t *testing.T) {
	tests := []struct {
		name string
		resp APIResponse
		want string
	}{
		{"success with data", APIResponse{Success: true, Data: map[string]string{"key": "value"}}, `{"success":true,"data":{"key":"value"}}`},
		{"error", APIResponse{Success: false, Error: "something went wrong"}, `{"success":false,"error":"something went wrong"}`},
		{"success with nil data", APIResponse{Success: true}, `{"success":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusTeapot, "short and stout")

	if rec.Code != http.StatusTeapot {
		t.Errorf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	resp := decodeResponse(t, rec)
	if resp.Success || resp.Error != "short and stout" {
		t.Errorf("got %+v", resp)
	}
}

// ════════════════════════════════════════════════════════════════════
// Health
// ════════════════════════════════════════════════════════════════════

func TestHandleHealth(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := e.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		var h HealthResult
		resp := decodeData(t, rec, &h)
		if !resp.Success || h.Status != "ok" || h.Version != "test" {
			t.Errorf("%s: got %+v", path, h)
		}
		if h.Remote == nil || h.Remote.Status != "healthy" {
			t.Errorf("%s: remote: got %+v", path, h.Remote)
		}
	}
}

func TestHandleHealthRemoteDown(t *testing.T) {
	e := newTestEnv(t)
	e.remote.healthErr = &newsclient.Error{Kind: newsclient.KindTransport, Op: "GET /health", Err: errors.New("refused")}

	var h HealthResult
	decodeData(t, e.do(t, http.MethodGet, "/health", ""), &h)
	if h.Status != "degraded" || h.RemoteError == "" {
		t.Errorf("got %+v", h)
	}
}

// ════════════════════════════════════════════════════════════════════
// Feed
// ════════════════════════════════════════════════════════════════════

func TestHandleFeedStartsFirstRetrieval(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/feed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var st feedJSON
	decodeData(t, rec, &st)
	if st.Phase != "ready" || st.Category != "all" || len(st.Items) != 3 {
		t.Errorf("got %+v", st)
	}
	if st.Insight == nil || st.Insight.Summary != "Watching AAPL, TSLA" {
		t.Errorf("insight: got %+v", st.Insight)
	}
}

func TestHandleSelectCategory(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/feed/category", `{"category":"Crypto"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var st feedJSON
	decodeData(t, rec, &st)
	if st.Category != "crypto" || len(st.Items) != 1 || st.Items[0].Category != models.CategoryCrypto {
		t.Errorf("got %+v", st)
	}
}

func TestHandleSelectCategoryBadRequests(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{category`},
		{"unknown category", `{"category":"commodities"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/v1/feed/category", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rec.Code)
			}
			if resp := decodeResponse(t, rec); resp.Success || resp.Error == "" {
				t.Errorf("got %+v", resp)
			}
		})
	}
}

func TestHandleRefreshDegraded(t *testing.T) {
	e := newTestEnv(t)
	e.remote.newsErr = &newsclient.Error{Kind: newsclient.KindService, Op: "GET /api/news", StatusCode: 500}

	rec := e.do(t, http.MethodPost, "/api/v1/feed/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded feed is not an HTTP error, got %d", rec.Code)
	}
	var st feedJSON
	decodeData(t, rec, &st)
	if st.Phase != "degraded" || st.Source != "mixed" || st.Error == "" {
		t.Errorf("got %+v", st)
	}
	if len(st.Items) != len(feed.DefaultCorpus().Items) {
		t.Errorf("fallback items: got %d", len(st.Items))
	}
}

func TestHandleSearch(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/feed/refresh", "")

	var res SearchResult
	decodeData(t, e.do(t, http.MethodGet, "/api/v1/feed/search?q=RATES", ""), &res)
	if len(res.Items) != 1 || res.Items[0].ID != 1 {
		t.Errorf("got %+v", res.Items)
	}
	if res.Query != "RATES" || res.Category != models.CategoryAll {
		t.Errorf("got query %q category %q", res.Query, res.Category)
	}
}

// ════════════════════════════════════════════════════════════════════
// News summary
// ════════════════════════════════════════════════════════════════════

func TestHandleNewsSummary(t *testing.T) {
	e := newTestEnv(t)

	var d models.NewsDetail
	rec := e.do(t, http.MethodGet, "/api/v1/news/7/summary", "")
	decodeData(t, rec, &d)
	if rec.Code != http.StatusOK || d.ID != 7 {
		t.Errorf("status %d detail %+v", rec.Code, d)
	}

	if rec := e.do(t, http.MethodGet, "/api/v1/news/abc/summary", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: got %d, want 400", rec.Code)
	}
}

func TestRemoteStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &newsclient.Error{Kind: newsclient.KindService, StatusCode: 404}, http.StatusNotFound},
		{"service", &newsclient.Error{Kind: newsclient.KindService, StatusCode: 500}, http.StatusBadGateway},
		{"decode", &newsclient.Error{Kind: newsclient.KindDecode}, http.StatusBadGateway},
		{"transport", &newsclient.Error{Kind: newsclient.KindTransport}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := remoteStatus(tt.err); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestHandleNewsSummaryRemoteError(t *testing.T) {
	e := newTestEnv(t)
	e.remote.summaryErr = &newsclient.Error{Kind: newsclient.KindService, Op: "GET /api/news/{id}/summary", StatusCode: 404, Body: "News not found"}

	rec := e.do(t, http.MethodGet, "/api/v1/news/99/summary", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

// ════════════════════════════════════════════════════════════════════
// Favorites
// ════════════════════════════════════════════════════════════════════

func TestHandleToggleFavorite(t *testing.T) {
	e := newTestEnv(t)

	for _, sym := range []string{"AAPL", "TSLA"} {
		rec := e.do(t, http.MethodPost, "/api/v1/favorites/"+sym+"/toggle", "")
		var ev favorites.Event
		decodeData(t, rec, &ev)
		if rec.Code != http.StatusOK || !ev.Added || ev.Symbol != sym {
			t.Fatalf("toggle %s: status %d event %+v", sym, rec.Code, ev)
		}
	}

	var ev favorites.Event
	decodeData(t, e.do(t, http.MethodPost, "/api/v1/favorites/AAPL/toggle", ""), &ev)
	if ev.Added || strings.Join(ev.Symbols, ",") != "TSLA" {
		t.Errorf("second toggle: got %+v", ev)
	}

	// The favorites become the insight basket.
	if got := strings.Join(e.feed.Basket(), ","); got != "TSLA" {
		t.Errorf("basket: got %q", got)
	}
	e.do(t, http.MethodPost, "/api/v1/feed/refresh", "")
	if got := strings.Join(e.remote.basket(), ","); got != "TSLA" {
		t.Errorf("insights requested for %q, want TSLA", got)
	}
}

func TestHandleFavoritesFilter(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/favorites/AAPL/toggle", "")
	e.do(t, http.MethodPost, "/api/v1/favorites/TSLA/toggle", "")

	tests := []struct {
		query string
		want  string
	}{
		{"", "AAPL,TSLA"},
		{"ts", "TSLA"},
		{"ZZ", ""},
	}
	for _, tt := range tests {
		var res FavoritesResult
		decodeData(t, e.do(t, http.MethodGet, "/api/v1/favorites?q="+tt.query, ""), &res)
		if got := strings.Join(res.Symbols, ","); got != tt.want {
			t.Errorf("q=%q: got %q, want %q", tt.query, got, tt.want)
		}
		if res.Symbols == nil {
			t.Errorf("q=%q: symbols should encode as an array", tt.query)
		}
		if res.Total != 2 {
			t.Errorf("q=%q: total %d, want 2", tt.query, res.Total)
		}
	}
}

func TestHandleToggleFavoriteInvalidSymbol(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/favorites/%20/toggle", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestHandleToggleFavoriteStorageFailure(t *testing.T) {
	e := newTestEnvWithKV(t, failingKV{kv.NewMemory()})
	rec := e.do(t, http.MethodPost, "/api/v1/favorites/AAPL/toggle", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
	if e.favs.Len() != 0 {
		t.Errorf("failed write should roll back, got %v", e.favs.Symbols())
	}
}

func TestHandleReloadFavorites(t *testing.T) {
	backend := kv.NewMemory()
	e := newTestEnvWithKV(t, backend)

	// Another screen writes to the same store.
	other := favorites.NewController(favorites.NewStore(backend))
	other.Toggle(context.Background(), "NVDA")

	var res FavoritesResult
	resp := decodeData(t, e.do(t, http.MethodPost, "/api/v1/favorites/reload", ""), &res)
	if !resp.Success || strings.Join(res.Symbols, ",") != "NVDA" {
		t.Errorf("got %+v %+v", resp, res)
	}
	if got := strings.Join(e.feed.Basket(), ","); got != "NVDA" {
		t.Errorf("basket after reload: got %q", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Chart
// ════════════════════════════════════════════════════════════════════

func TestHandleChart(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/chart/AAPL", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"symbol":"NASDAQ:AAPL"`) {
		t.Error("chart document should embed NASDAQ:AAPL")
	}
}

func TestHandleChartURL(t *testing.T) {
	e := newTestEnv(t)
	var link ChartLink
	decodeData(t, e.do(t, http.MethodGet, "/api/v1/chart/TSLA/url", ""), &link)
	if link.Qualified != "NASDAQ:TSLA" || link.URL != "https://www.tradingview.com/symbols/NASDAQ-TSLA/" {
		t.Errorf("got %+v", link)
	}
}

// ════════════════════════════════════════════════════════════════════
// Config, metrics
// ════════════════════════════════════════════════════════════════════

func TestHandleGetConfigHidesSecrets(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/config", "")
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(body, "tok-secret") || strings.Contains(body, "redis-secret") {
		t.Errorf("config response leaks a secret: %s", body)
	}
	if !strings.Contains(body, `"base_url":"http://remote:8000"`) {
		t.Errorf("config response missing base_url: %s", body)
	}
}

func TestHandleGetConfigKeys(t *testing.T) {
	e := newTestEnv(t)
	var keys []config.SecretStatus
	decodeData(t, e.do(t, http.MethodGet, "/api/v1/config/keys", ""), &keys)
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
	for _, k := range keys {
		if !k.IsSet || !strings.Contains(k.Masked, "...") {
			t.Errorf("key %q: got %+v", k.Name, k)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/feed/refresh", "")
	e.do(t, http.MethodPost, "/api/v1/favorites/AAPL/toggle", "")

	rec := e.do(t, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{
		`finmarket_feed_retrievals_total{phase="ready",source="remote"} 1`,
		`finmarket_favorites_toggles_total{result="added"} 1`,
		`finmarket_http_requests_total{method="POST",route="/api/v1/feed/refresh",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/feed", nil)
	req.Header.Set("Origin", "http://localhost:19006")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("preflight should set Access-Control-Allow-Origin")
	}
}

func TestErrorResponsesAreValidJSON(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/v1/feed/category", `nope`},
		{http.MethodGet, "/api/v1/news/x/summary", ""},
		{http.MethodPost, "/api/v1/favorites/%09/toggle", ""},
	}
	for _, tt := range tests {
		rec := e.do(t, tt.method, tt.path, tt.body)
		var resp APIResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Errorf("%s %s: invalid JSON: %v", tt.method, tt.path, err)
			continue
		}
		if resp.Success || resp.Error == "" {
			t.Errorf("%s %s: got %+v", tt.method, tt.path, resp)
		}
	}
}

func TestServerDefaults(t *testing.T) {
	fc, err := feed.New(&stubRemote{})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	defer fc.Close()
	srv := NewServer(Deps{Feed: fc, Favorites: favorites.NewController(favorites.NewStore(kv.NewMemory()))})
	if srv.version != "dev" || srv.metrics == nil || srv.logger == nil {
		t.Errorf("defaults not applied: %+v", srv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go srv.Hub().Run(ctx)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var h HealthResult
	decodeData(t, rec, &h)
	if h.Remote != nil || h.Status != "ok" {
		t.Errorf("health without remote: got %+v", h)
	}
}
