package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silberengel/epaperpub/cache"
	"github.com/silberengel/epaperpub/config"
	"github.com/silberengel/epaperpub/event"
	"github.com/silberengel/epaperpub/nostraddr"
	"github.com/silberengel/epaperpub/orchestrator"
)

type stubFetcher struct {
	results    []event.Event
	lastRelays []string
}

func (f *stubFetcher) Fetch(ctx context.Context, filters []event.Filter, relaySet []string, budget time.Duration, earlyExit bool, minResults int) []event.Event {
	f.lastRelays = relaySet
	return f.results
}

func newTestDeps(results []event.Event) Deps {
	store := cache.New()
	relayCfg := config.RelayConfig{
		URLs:          []string{"wss://relay.test"},
		DetailBudget:  time.Second,
		ProfileBudget: time.Second,
		ListLimit:     100,
	}
	svc := orchestrator.New(store, &stubFetcher{results: results}, relayCfg)
	return Deps{Orchestrator: svc, Renderer: NewRendererClient("http://localhost:0"), HTTPClient: http.DefaultClient}
}

func TestHandleListReturnsTopLevelPublications(t *testing.T) {
	index := event.Event{ID: "idx", Kind: event.KindPublicationIndex, PubKey: "pk", Tags: [][]string{{"d", "idx"}}}
	deps := newTestDeps([]event.Event{index})

	e := echo.New()
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []event.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "idx", got[0].ID)
}

func TestHandleDetailReturnsNotFoundAs404(t *testing.T) {
	deps := newTestDeps(nil)
	e := echo.New()
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/?author=pk&d=missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDetailRejectsMissingAddressParams(t *testing.T) {
	deps := newTestDeps(nil)
	e := echo.New()
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDetailUsesNaddrRelayHints(t *testing.T) {
	author := strings.Repeat("ab", 32)
	disc := "book"
	hints := []string{"wss://hinted.example"}
	naddr, err := nostraddr.EncodeNaddr(event.Address{Kind: event.KindPublicationIndex, Author: author, Discriminator: disc}, hints)
	require.NoError(t, err)

	ev := event.Event{ID: "e1", Kind: event.KindPublicationIndex, PubKey: author, Tags: [][]string{{"d", disc}}}
	store := cache.New()
	fetcher := &stubFetcher{results: []event.Event{ev}}
	// No process-wide relay list, so the naddr's own hints apply.
	relayCfg := config.RelayConfig{DetailBudget: time.Second, ProfileBudget: time.Second, ListLimit: 100}
	deps := Deps{
		Orchestrator: orchestrator.New(store, fetcher, relayCfg),
		Renderer:     NewRendererClient("http://localhost:0"),
		HTTPClient:   http.DefaultClient,
	}

	e := echo.New()
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/?naddr="+naddr, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, hints, fetcher.lastRelays, "the naddr's embedded relay hints must reach the fetcher")
}

func TestHandleDetailQueryOverrideOutranksNaddrHints(t *testing.T) {
	author := strings.Repeat("cd", 32)
	naddr, err := nostraddr.EncodeNaddr(event.Address{Kind: event.KindPublicationIndex, Author: author, Discriminator: "d1"}, []string{"wss://hinted.example"})
	require.NoError(t, err)

	fetcher := &stubFetcher{}
	relayCfg := config.RelayConfig{DetailBudget: time.Second, ProfileBudget: time.Second, ListLimit: 100}
	deps := Deps{
		Orchestrator: orchestrator.New(cache.New(), fetcher, relayCfg),
		Renderer:     NewRendererClient("http://localhost:0"),
		HTTPClient:   http.DefaultClient,
	}

	e := echo.New()
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/?naddr="+naddr+"&relays=wss://override.example", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, []string{"wss://override.example"}, fetcher.lastRelays)
}

func TestHandleDownloadRejectsUnknownFormat(t *testing.T) {
	deps := newTestDeps(nil)
	e := echo.New()
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/download?format=txt&author=pk&d=x", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHighlightsServesFlatList(t *testing.T) {
	highlight := event.Event{ID: "h1", Kind: event.KindHighlight, PubKey: "pk"}
	deps := newTestDeps([]event.Event{highlight})

	e := echo.New()
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/highlights", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []event.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "h1", got[0].ID)
}

func TestHandleStatusReportsCacheStats(t *testing.T) {
	deps := newTestDeps(nil)
	e := echo.New()
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleClearCacheEmptiesStore(t *testing.T) {
	deps := newTestDeps(nil)
	deps.Orchestrator.Cache.Set(cache.NsListPublications, "", []event.Event{{ID: "x"}}, nil)

	e := echo.New()
	RegisterRoutes(e, deps)

	req := httptest.NewRequest(http.MethodPost, "/clear-cache", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := deps.Orchestrator.Cache.Get(cache.NsListPublications, "", cache.Forever)
	assert.False(t, ok)
}
