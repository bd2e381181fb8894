// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/waypost/internal/aggregate"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/livesync"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/store"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{MaxBodyBytes: DefaultMaxBodyBytes},
		Store:  config.StoreConfig{Backend: config.BackendMemory},
		Security: config.SecurityConfig{
			CollectorRateLimitReqs:   1000,
			CollectorRateLimitWindow: time.Minute,
			RateLimitReqs:            1000,
			RateLimitWindow:          time.Minute,
			RateLimitDisabled:        true,
		},
		Live: config.LiveConfig{
			TickInterval:  time.Hour,
			RecentLimit:   20,
			DefaultWindow: "24h",
			FetchTimeout:  5 * time.Second,
		},
		Aggregate: config.AggregateConfig{TopN: 5},
	}
}

// brokerPublisher delivers published visits straight to a broker, standing
// in for the event bus and bridge.
type brokerPublisher struct {
	broker *livesync.Broker
}

func (p brokerPublisher) PublishVisit(_ context.Context, e *models.VisitEvent) error {
	p.broker.Deliver(*e)
	return nil
}

// failingStore fails every operation.
type failingStore struct{}

var errBackendDown = errors.New("connection refused")

func (failingStore) Insert(context.Context, *models.VisitEvent) error {
	return &store.StorageError{Op: "insert", Err: errBackendDown}
}

func (failingStore) ListSince(context.Context, string, time.Time, int) ([]models.VisitEvent, error) {
	return nil, &store.StorageError{Op: "list", Err: errBackendDown}
}

func (failingStore) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, &store.StorageError{Op: "count", Err: errBackendDown}
}

func (failingStore) Ping(context.Context) error { return errBackendDown }
func (failingStore) Close() error               { return nil }

// panickingStore panics on Insert.
type panickingStore struct{ failingStore }

func (panickingStore) Insert(context.Context, *models.VisitEvent) error {
	panic("insert exploded")
}

type testServer struct {
	cfg     *config.Config
	store   store.Store
	memory  *store.Memory
	broker  *livesync.Broker
	hub     *ws.Hub
	handler *Handler
	http    http.Handler
}

func newTestServer(t *testing.T, cfg *config.Config, s store.Store) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	ts := &testServer{cfg: cfg, store: s, broker: livesync.NewBroker(16), hub: ws.NewHub()}
	if s == nil {
		ts.memory = store.NewMemory()
		ts.store = ts.memory
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ts.hub.RunWithContext(ctx) }()

	ts.handler = NewHandler(cfg, Deps{
		Store:    ts.store,
		Recorder: ingest.NewRecorder(ts.store, brokerPublisher{ts.broker}),
		Engine:   aggregate.NewEngine(ts.store, aggregate.Options{TopN: cfg.Aggregate.TopN}, nil),
		Broker:   ts.broker,
		Hub:      ts.hub,
	})
	ts.http = NewRouter(ts.handler, NewChiMiddlewareFromConfig(cfg.Security)).SetupChi()

	t.Cleanup(func() {
		cancel()
		ts.handler.Close()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	ts.http.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seed(t *testing.T, trackerID, url, device string, age time.Duration) {
	t.Helper()
	e := &models.VisitEvent{
		ID:         trackerID + url + age.String(),
		TrackerID:  trackerID,
		URL:        url,
		Referrer:   models.DirectReferrer,
		IP:         models.UnknownIP,
		UserAgent:  models.UnknownDevice,
		Country:    models.Unknown,
		Browser:    models.Unknown,
		OS:         models.Unknown,
		DeviceType: device,
		CreatedAt:  time.Now().UTC().Add(-age),
	}
	if err := ts.store.Insert(context.Background(), e); err != nil {
		t.Fatal(err)
	}
}

func decodeTrack(t *testing.T, rec *httptest.ResponseRecorder) TrackResponse {
	t.Helper()
	var resp TrackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return resp
}

func assertOpenCORS(t *testing.T, rec *httptest.ResponseRecorder, methods string) {
	t.Helper()
	h := rec.Header()
	if got := h.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := h.Get("Access-Control-Allow-Methods"); got != methods {
		t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, methods)
	}
	if got := h.Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Access-Control-Allow-Headers = %q", got)
	}
}

// ========================
// Collector
// ========================

func TestTrackRecordsVisit(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/track",
		`{"tracker_id":"T1","url":"https://example.com/pricing?plan=pro","referrer":"https://www.google.com/"}`,
		http.Header{
			"Content-Type":    {"application/json"},
			"User-Agent":      {"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"},
			"X-Forwarded-For": {"203.0.113.7, 10.0.0.1"},
			"Cf-Ipcountry":    {"de"},
		})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if resp := decodeTrack(t, rec); !resp.Success || resp.Error != "" {
		t.Errorf("response = %+v", resp)
	}
	assertOpenCORS(t, rec, "POST, OPTIONS")

	events, err := ts.store.ListSince(context.Background(), "T1", time.Now().Add(-time.Minute), 0)
	if err != nil || len(events) != 1 {
		t.Fatalf("stored = %d, %v", len(events), err)
	}
	e := events[0]
	if e.IP != "203.0.113.7" || e.Country != "DE" || e.DeviceType != "Mobile" || e.Referrer != "https://www.google.com/" {
		t.Errorf("stored event = %+v", e)
	}
}

func TestTrackAcceptsCamelCaseTrackerID(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/track", `{"trackerId":"T9"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ts.memory.Len() != 1 {
		t.Errorf("stored = %d, want 1", ts.memory.Len())
	}
}

func TestTrackErrors(t *testing.T) {
	tests := []struct {
		name       string
		store      store.Store
		body       string
		wantStatus int
		wantError  string
	}{
		{"missing tracker", nil, `{"url":"https://example.com/"}`, http.StatusBadRequest, "tracker_id is required"},
		{"blank tracker", nil, `{"tracker_id":"   "}`, http.StatusBadRequest, "tracker_id is required"},
		{"nul in tracker", nil, `{"tracker_id":"T1\u0000x"}`, http.StatusBadRequest, "tracker_id must not contain control characters"},
		{"malformed JSON", nil, `{"tracker_id":`, http.StatusBadRequest, msgInvalidJSON},
		{"empty body", nil, ``, http.StatusBadRequest, msgInvalidJSON},
		{"wrong type", nil, `{"tracker_id":42}`, http.StatusBadRequest, msgInvalidJSON},
		{"oversize body", nil, `{"tracker_id":"T1","url":"` + strings.Repeat("a", int(DefaultMaxBodyBytes)) + `"}`, http.StatusRequestEntityTooLarge, msgBodyTooLarge},
		{"storage failure", failingStore{}, `{"tracker_id":"T1"}`, http.StatusInternalServerError, msgStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil, tt.store)
			rec := ts.do(t, http.MethodPost, "/api/track", tt.body, nil)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			resp := decodeTrack(t, rec)
			if resp.Success || resp.Error != tt.wantError {
				t.Errorf("response = %+v, want error %q", resp, tt.wantError)
			}
			assertOpenCORS(t, rec, "POST, OPTIONS")
			if ts.memory != nil && ts.memory.Len() != 0 {
				t.Errorf("stored %d visits on a failed request", ts.memory.Len())
			}
		})
	}
}

func TestTrackPanicKeepsOpenCORS(t *testing.T) {
	ts := newTestServer(t, nil, panickingStore{})
	rec := ts.do(t, http.MethodPost, "/api/track", `{"tracker_id":"T1"}`, http.Header{"Origin": {"https://customer.example"}})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	assertOpenCORS(t, rec, "POST, OPTIONS")
}

func TestTrackPreflight(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodOptions, "/api/track", "", http.Header{
		"Origin":                        {"https://customer.example"},
		"Access-Control-Request-Method": {"POST"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", rec.Body)
	}
	assertOpenCORS(t, rec, "POST, OPTIONS")
}

func TestTrackIsNotIdempotent(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	for i := 0; i < 2; i++ {
		if rec := ts.do(t, http.MethodPost, "/api/track", `{"tracker_id":"T1","url":"/"}`, nil); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if ts.memory.Len() != 2 {
		t.Errorf("stored = %d, want 2", ts.memory.Len())
	}
}

func TestTrackConcurrent(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	const n = 50
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/track", bytes.NewBufferString(`{"tracker_id":"T1"}`))
			rec := httptest.NewRecorder()
			ts.http.ServeHTTP(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Errorf("status = %d", code)
		}
	}
	if ts.memory.Len() != n {
		t.Errorf("stored = %d, want %d", ts.memory.Len(), n)
	}
}

func TestTrackRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitDisabled = false
	cfg.Security.CollectorRateLimitReqs = 2
	ts := newTestServer(t, cfg, nil)
	hits := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("collector"))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = ts.do(t, http.MethodPost, "/api/track", `{"tracker_id":"T1"}`, nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if resp := decodeTrack(t, last); resp.Success || resp.Error != msgRateLimited {
		t.Errorf("response = %+v", resp)
	}
	assertOpenCORS(t, last, "POST, OPTIONS")
	if ts.memory.Len() != 2 {
		t.Errorf("stored = %d, want 2", ts.memory.Len())
	}
	if got := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("collector")) - hits; got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}
}

// ========================
// Dashboard reads
// ========================

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestStatsReturnsSummary(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seed(t, "T1", "https://example.com/a", "Mobile", time.Minute)
	ts.seed(t, "T1", "https://example.com/a", "Desktop", 2*time.Hour)
	ts.seed(t, "T1", "https://example.com/b", "Desktop", 3*time.Hour)
	ts.seed(t, "T1", "https://example.com/old", "Desktop", 48*time.Hour)
	ts.seed(t, "T2", "https://other.example/", "Desktop", time.Minute)

	rec := ts.do(t, http.MethodGet, "/api/v1/trackers/T1/stats?range=24h&top=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	env := decodeEnvelope(t, rec)
	var s models.Summary
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatal(err)
	}

	if s.TrackerID != "T1" || s.Window != models.WindowDay {
		t.Errorf("summary identity = %s %s", s.TrackerID, s.Window)
	}
	if s.Total != 3 || s.ActiveNow != 1 {
		t.Errorf("total=%d active=%d, want 3 and 1", s.Total, s.ActiveNow)
	}
	if len(s.TopPages) != 1 || s.TopPages[0].Path != "/a" || s.TopPages[0].Count != 2 {
		t.Errorf("top pages = %+v", s.TopPages)
	}
	if env.Meta == nil || env.Meta.RequestID == "" {
		t.Errorf("meta = %+v, want request id", env.Meta)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestStatsValidation(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		target    string
		wantField string
	}{
		{"/api/v1/trackers/T1/stats?range=90d", "range"},
		{"/api/v1/trackers/T1/stats?top=abc", "top"},
		{"/api/v1/trackers/T1/stats?top=500", "top"},
		{"/api/v1/trackers/%20/stats", "tracker_id"},
		{"/api/v1/trackers/T1/visits?limit=0", "limit"},
		{"/api/v1/trackers/T1/visits?limit=501", "limit"},
		{"/api/v1/trackers/T1/breakdown/planet", "field"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.target, "", nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			env := decodeEnvelope(t, rec)
			if env.Success || env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
				t.Fatalf("error = %+v", env.Error)
			}
			details, _ := env.Error.Details.(map[string]interface{})
			if details["field"] != tt.wantField {
				t.Errorf("details = %v, want field %s", env.Error.Details, tt.wantField)
			}
		})
	}
}

func TestStatsStorageError(t *testing.T) {
	ts := newTestServer(t, nil, failingStore{})

	for _, target := range []string{
		"/api/v1/trackers/T1/stats",
		"/api/v1/trackers/T1/visits",
		"/api/v1/trackers/T1/breakdown/device",
	} {
		rec := ts.do(t, http.MethodGet, target, "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d", target, rec.Code)
			continue
		}
		env := decodeEnvelope(t, rec)
		if env.Success || env.Error.Code != ErrCodeStorageError {
			t.Errorf("%s error = %+v", target, env.Error)
		}
		if strings.Contains(rec.Body.String(), errBackendDown.Error()) {
			t.Errorf("%s leaked backend error: %s", target, rec.Body)
		}
	}
}

func TestStatsCachedWithinTTL(t *testing.T) {
	cfg := testConfig()
	cfg.Aggregate.CacheTTL = time.Minute
	ts := newTestServer(t, cfg, nil)
	ts.seed(t, "T1", "/a", "Desktop", time.Minute)

	total := func() int {
		rec := ts.do(t, http.MethodGet, "/api/v1/trackers/T1/stats", "", nil)
		var s models.Summary
		if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &s); err != nil {
			t.Fatal(err)
		}
		return s.Total
	}

	if got := total(); got != 1 {
		t.Fatalf("first total = %d", got)
	}
	ts.seed(t, "T1", "/b", "Desktop", 2*time.Minute)
	if got := total(); got != 1 {
		t.Errorf("cached total = %d, want 1", got)
	}

	ts.handler.responses.Clear()
	if got := total(); got != 2 {
		t.Errorf("total after clear = %d, want 2", got)
	}
}

func TestVisitsPagination(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seed(t, "T1", "/newest", "Desktop", time.Minute)
	ts.seed(t, "T1", "/middle", "Desktop", 2*time.Minute)
	ts.seed(t, "T1", "/oldest", "Desktop", 3*time.Minute)

	rec := ts.do(t, http.MethodGet, "/api/v1/trackers/T1/visits?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	env := decodeEnvelope(t, rec)
	var events []models.VisitEvent
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].URL != "/newest" || events[1].URL != "/middle" {
		t.Errorf("events = %+v", events)
	}
	if p := env.Meta.Pagination; p == nil || p.Count != 2 || !p.HasMore {
		t.Errorf("pagination = %+v", p)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/trackers/EMPTY/visits", "", nil)
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("empty list body = %s", rec.Body)
	}
}

func TestBreakdown(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seed(t, "T1", "/a", "Mobile", time.Minute)
	ts.seed(t, "T1", "/b", "Desktop", 2*time.Minute)
	ts.seed(t, "T1", "/c", "Mobile", 3*time.Minute)

	rec := ts.do(t, http.MethodGet, "/api/v1/trackers/T1/breakdown/device_type?range=1h", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var counts []models.CategoryCount
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &counts); err != nil {
		t.Fatal(err)
	}
	want := []models.CategoryCount{{Name: "Mobile", Count: 2}, {Name: "Desktop", Count: 1}}
	if len(counts) != len(want) {
		t.Fatalf("counts = %+v", counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %+v, want %+v", i, counts[i], want[i])
		}
	}
}

func TestOnline(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.seed(t, "T1", "/a", "Desktop", time.Minute)
	ts.seed(t, "T1", "/b", "Desktop", 4*time.Minute)
	ts.seed(t, "T1", "/c", "Desktop", 10*time.Minute)

	rec := ts.do(t, http.MethodGet, "/api/v1/trackers/T1/online", "", http.Header{"Origin": {"https://customer.example"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var status models.OnlineStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.OnlineUsers != 2 || status.Status != "active" || status.TrackerID != "T1" {
		t.Errorf("status = %+v", status)
	}
	assertOpenCORS(t, rec, "GET, OPTIONS")

	failing := newTestServer(t, nil, failingStore{})
	rec = failing.do(t, http.MethodGet, "/api/v1/trackers/T1/online", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failing store status = %d", rec.Code)
	}
	if resp := decodeTrack(t, rec); resp.Success || resp.Error != msgStorageUnavailable {
		t.Errorf("failing store response = %+v", resp)
	}
}

func TestDashboardCORSRestrictedToConfiguredOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.Security.CORSOrigins = []string{"https://dash.example"}
	ts := newTestServer(t, cfg, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/trackers/T1/stats", "", http.Header{"Origin": {"https://dash.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Errorf("allowed origin header = %q", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/trackers/T1/stats", "", http.Header{"Origin": {"https://evil.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}
}

// ========================
// Health, metrics, routing
// ========================

func TestHealthProbes(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	if rec := ts.do(t, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d, body %s", rec.Code, rec.Body)
	}
	var status HealthStatus
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "ready" || !status.StoreConnected || status.StoreBackend != config.BackendMemory {
		t.Errorf("ready = %+v", status)
	}

	_ = ts.store.Close()
	rec = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready after close = %d, want 503", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("not ready envelope = %+v", env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.do(t, http.MethodPost, "/api/track", `{"tracker_id":"T1"}`, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "waypost_visits_recorded_total") {
		t.Error("visit counter not exported")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound || decodeEnvelope(t, rec).Error.Code != ErrCodeNotFound {
		t.Errorf("404 = %d %s", rec.Code, rec.Body)
	}

	rec = ts.do(t, http.MethodGet, "/api/track", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/track = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("collector 405 missing open CORS")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodGet, "/health/live", "", http.Header{"X-Request-ID": {"req-123"}})
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if env := decodeEnvelope(t, rec); env.Meta.RequestID != "req-123" {
		t.Errorf("meta request id = %q", env.Meta.RequestID)
	}
}

// ========================
// Helpers
// ========================

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Security.CORSOrigins = []string{"https://dash.example/"}
	h := NewHandler(cfg, Deps{})
	defer h.Close()

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "waypost.local", true},
		{"https://waypost.local", "waypost.local", true},
		{"https://dash.example", "waypost.local", true},
		{"https://evil.example", "waypost.local", false},
		{"://bad", "waypost.local", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/live", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("T1\nforged"); got != `T1\x0aforged` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
	if got := sanitizeLogValue("plain"); got != "plain" {
		t.Errorf("sanitizeLogValue(plain) = %q", got)
	}
}
