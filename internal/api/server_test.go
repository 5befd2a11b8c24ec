package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/batch"
	"github.com/ramonehamilton/Pokedex-Companion/internal/instances"
	"github.com/ramonehamilton/Pokedex-Companion/internal/metrics"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/tags"
	"github.com/ramonehamilton/Pokedex-Companion/internal/trades"
	"github.com/ramonehamilton/Pokedex-Companion/internal/variants"
)

type fakeCatalog struct {
	refreshed int
}

func (f *fakeCatalog) Variants() []models.Variant {
	return []models.Variant{{VariantID: "0025-default", PokedexNumber: 25, Name: "Pikachu"}}
}

func (f *fakeCatalog) Lookup() map[string]*models.Variant {
	return map[string]*models.Variant{"0025-default": {VariantID: "0025-default", PokedexNumber: 25, Name: "Pikachu"}}
}

func (f *fakeCatalog) GroupingLists() models.GroupingLists {
	return models.GroupingLists{"kanto": {"0025-default"}}
}
func (f *fakeCatalog) Loading() bool   { return false }
func (f *fakeCatalog) Version() uint64 { return 3 }

func (f *fakeCatalog) ForceRefresh(context.Context) variants.RefreshOutcome {
	f.refreshed++
	return variants.RefreshFetched
}

type fakeInstances struct {
	mu       sync.Mutex
	data     map[string]*models.Instance
	statuses []string
	patches  map[string]*models.InstancePatch
}

func newFakeInstances() *fakeInstances {
	return &fakeInstances{data: map[string]*models.Instance{
		"0025-default_a": {InstanceID: "0025-default_a", VariantID: "0025-default", IsCaught: true},
		"0025-default_b": {InstanceID: "0025-default_b", VariantID: "0025-default", IsWanted: true},
	}}
}

func (f *fakeInstances) Snapshot() (map[string]*models.Instance, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, 1
}
func (f *fakeInstances) Loading() bool { return false }

func (f *fakeInstances) UpdateInstanceStatus(_ context.Context, targets []string, status string) ([]string, error) {
	if !models.IsKnownStatus(status) {
		return nil, instances.ErrUnknownStatus
	}
	f.statuses = append(f.statuses, status)
	return targets, nil
}

func (f *fakeInstances) UpdateInstanceDetails(_ context.Context, patches map[string]*models.InstancePatch) error {
	f.patches = patches
	return nil
}

func (f *fakeInstances) DeleteInstance(_ context.Context, id string) error {
	if _, ok := f.data[id]; !ok {
		return instances.ErrNotFound
	}
	return nil
}

type fakeTags struct{}

func (fakeTags) Tags() *models.TagBuckets {
	b := models.NewTagBuckets()
	b.Caught["0025-default_a"] = models.TagItem{}
	return b
}
func (fakeTags) SystemChildren() *models.SystemChildren {
	return tags.ComputeSystemChildren(models.NewTagBuckets())
}
func (fakeTags) ForeignTags() (*models.TagBuckets, string) { return nil, "" }

type fakeTrades struct {
	proposeErr  error
	acceptErr   error
	cancelledBy string
}

func (f *fakeTrades) Trades() []*models.TradeRecord { return nil }
func (f *fakeTrades) RelatedInstances() map[string]*models.RelatedInstance {
	return nil
}

func (f *fakeTrades) Propose(_ context.Context, p *trades.TradeProposal) (*models.TradeRecord, error) {
	if f.proposeErr != nil {
		return nil, f.proposeErr
	}
	return &models.TradeRecord{TradeID: "trade_1", Status: models.TradeStatusProposed, UsernameProposed: p.UsernameProposed}, nil
}

func (f *fakeTrades) Accept(_ context.Context, id string) (*models.TradeRecord, error) {
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &models.TradeRecord{TradeID: id, Status: models.TradeStatusAccepted}, nil
}

func (f *fakeTrades) Complete(_ context.Context, id string) (*models.TradeRecord, error) {
	return nil, trades.ErrNotParticipant
}

func (f *fakeTrades) Cancel(_ context.Context, id, by string) (*models.TradeRecord, error) {
	f.cancelledBy = by
	return &models.TradeRecord{TradeID: id, Status: models.TradeStatusCancelled}, nil
}

func (f *fakeTrades) RateTrade(_ context.Context, id string, _ bool) (*models.TradeRecord, error) {
	return nil, trades.ErrTradeNotFound
}

type fakeQueue struct{}

func (fakeQueue) GetAll(context.Context) ([]*models.BatchedUpdate, error) {
	return []*models.BatchedUpdate{{Key: "instance:0025-default_a", Operation: "update_instance"}}, nil
}

func (fakeQueue) CheckAndFlush(context.Context) (*batch.FlushReport, error) {
	return &batch.FlushReport{Attempted: 1, Succeeded: 1}, nil
}

type testServer struct {
	*Server
	catalog   *fakeCatalog
	instances *fakeInstances
	trades    *fakeTrades
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{catalog: &fakeCatalog{}, instances: newFakeInstances(), trades: &fakeTrades{}}
	ts.Server = NewServer(nil, Deps{
		Variants:  ts.catalog,
		Instances: ts.instances,
		Tags:      fakeTags{},
		Trades:    ts.trades,
		Queue:     fakeQueue{},
		Metrics:   metrics.NewSyncMetrics(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func TestNewServer_NilConfig(t *testing.T) {
	s := NewServer(nil, Deps{})
	assert.Equal(t, DefaultConfig().Port, s.Port())
	assert.NotNil(t, s.WebSocketHub())
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, false, data["variantsLoading"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/v1/variants", "")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/variants/")
}

func TestVariantsRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/variants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Len(t, data["variants"], 1)
	assert.EqualValues(t, 3, data["version"])

	rec = ts.do(t, http.MethodPost, "/api/v1/variants/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fetched", decodeData(t, rec)["outcome"])
	assert.Equal(t, 1, ts.catalog.refreshed)
}

func TestInstanceRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/instances?page=1&page_size=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []models.Instance `json:"data"`
		TotalCount int               `json:"total_count"`
		TotalPages int               `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, "0025-default_a", page.Data[0].InstanceID)
	assert.Equal(t, 2, page.TotalPages)

	rec = ts.do(t, http.MethodPost, "/api/v1/instances/status", `{"targets":["0025-default_a"],"status":"trade"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"trade"}, ts.instances.statuses)

	rec = ts.do(t, http.MethodPost, "/api/v1/instances/status", `{"targets":["0025-default_a"],"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/instances/status", `{"targets":[],"status":"trade"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/instances", `{"0025-default_a":{"nickname":"Sparky"}}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, ts.instances.patches, "0025-default_a")
	assert.Equal(t, "Sparky", *ts.instances.patches["0025-default_a"].Nickname)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/v1/instances/0025-default_a", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/v1/instances/nope", "").Code)
}

func TestInstanceExclusions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/instances/0025-default_a/exclusions",
		`{"list":"not_trade_list","changes":{"0025-default_b":true}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Contains(t, ts.instances.patches, "0025-default_a")
	assert.Equal(t, map[string]bool{"0025-default_b": true}, ts.instances.patches["0025-default_a"].NotTradeList)
	require.Contains(t, ts.instances.patches, "0025-default_b")
	assert.True(t, ts.instances.patches["0025-default_b"].NotWantedList["0025-default_a"])

	rec = ts.do(t, http.MethodPost, "/api/v1/instances/0025-default_a/exclusions", `{"list":"bogus","changes":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/instances/missing/exclusions", `{"list":"not_trade_list","changes":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTagRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeData(t, rec), "children")

	rec = ts.do(t, http.MethodGet, "/api/v1/tags/caught", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0025-default_a")

	rec = ts.do(t, http.MethodGet, "/api/v1/tags/bogus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/tags/foreign", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decodeData(t, rec)["owner"])
}

const validProposal = `{
	"username_proposed": "ash",
	"username_accepting": "misty",
	"pokemon_instance_id_user_proposed": "0025-default_a",
	"pokemon_instance_id_user_accepting": "0120-default_x",
	"trade_friendship_level": 2
}`

func TestProposeTrade(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/trades", validProposal)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "trade_1", decodeData(t, rec)["trade_id"])

	rec = ts.do(t, http.MethodPost, "/api/v1/trades", strings.Replace(validProposal, `"trade_friendship_level": 2`, `"trade_friendship_level": 9`, 1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "trade_friendship_level must be an integer between 1 and 4.")

	ts.trades.proposeErr = &trades.DuplicateTradeError{ExistingTradeID: "trade_0"}
	rec = ts.do(t, http.MethodPost, "/api/v1/trades", validProposal)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "This trade proposal already exists.")
	assert.Contains(t, rec.Body.String(), "trade_0")
}

func TestTradeLifecycleRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData(t, rec)["trades"])

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/accept", "").Code)

	ts.trades.acceptErr = &trades.TransitionError{TradeID: "trade_1", From: "completed", To: "accepted"}
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/accept", "").Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/complete", "").Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/cancel", `{"cancelled_by":"misty"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "misty", ts.trades.cancelledBy)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/cancel", "").Code)
	assert.Equal(t, "", ts.trades.cancelledBy)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/rate", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/trades/trade_1/rate", `{"satisfied":true}`).Code)
}

func TestSyncRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/sync/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeData(t, rec)["count"])

	rec = ts.do(t, http.MethodPost, "/api/v1/sync/flush", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeData(t, rec)["succeeded"])
}

func TestJSONContentTypeMiddleware(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/trades", strings.NewReader(validProposal))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/trades", strings.NewReader(validProposal))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMissingComponentsAreNotMounted(t *testing.T) {
	s := NewServer(nil, Deps{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHostPatterns(t *testing.T) {
	assert.Equal(t, []string{"localhost:*", "example.com"}, hostPatterns([]string{"http://localhost:*", "example.com"}))
}
