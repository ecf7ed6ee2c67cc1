package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/basket/internal/basket"
	"github.com/mesh-intelligence/basket/internal/metrics"
	"github.com/mesh-intelligence/basket/internal/sheet/memory"
	"github.com/mesh-intelligence/basket/internal/store"
	"github.com/mesh-intelligence/basket/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	sheet   *memory.Sheet
	list    *basket.List
	handler http.Handler
}

func newFixture(t *testing.T, opts basket.Options) *fixture {
	t.Helper()
	sh := memory.New(
		types.Header,
		[]string{"a", "Milk", "False", "Dairy", "Aldi"},
		[]string{"b", "Eggs", "False", "Dairy", "Lidl"},
	)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	opts.Metrics = m
	l, err := basket.New(store.New(sh, nil, m), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	srv, err := New(l, Options{Gatherer: reg})
	require.NoError(t, err)
	return &fixture{sheet: sh, list: l, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		if strings.HasPrefix(body, "{") {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) items(t *testing.T) []types.Item {
	t.Helper()
	items, err := f.list.Items(context.Background())
	require.NoError(t, err)
	return items
}

func TestIndexRendersGroupedList(t *testing.T) {
	f := newFixture(t, basket.Options{})
	rec := f.do(t, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Milk")
	assert.Contains(t, body, "Eggs")
	assert.Contains(t, body, `href="/?toggle=a"`)
	assert.Contains(t, body, `href="/?delete=b"`)
	assert.Less(t, strings.Index(body, "Aldi"), strings.Index(body, "Lidl"))
}

func TestToggleLinkIsConsumedOnce(t *testing.T) {
	f := newFixture(t, basket.Options{})

	rec := f.do(t, http.MethodGet, "/?toggle=a&tab=2", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/", loc.Path)
	assert.Equal(t, url.Values{"tab": {"2"}}, loc.Query())

	assert.True(t, f.items(t)[0].Purchased)
	assert.Equal(t, "True", f.sheet.Snapshot()[1][2])

	// Following the redirect renders without reapplying the action.
	rec = f.do(t, http.MethodGet, loc.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.items(t)[0].Purchased)
}

func TestDeleteLinkWithEscapedID(t *testing.T) {
	f := newFixture(t, basket.Options{})
	rec := f.do(t, http.MethodGet, "/?delete=%20b%20", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	items := f.items(t)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestUnknownIDIsSilentlyDropped(t *testing.T) {
	f := newFixture(t, basket.Options{})
	rec := f.do(t, http.MethodGet, "/?toggle=nope", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Empty(t, f.sheet.Writes())
}

func TestFailedSaveIsShownToUser(t *testing.T) {
	f := newFixture(t, basket.Options{})
	_ = f.items(t)
	f.sheet.FailWith(errors.New("store unreachable"))

	rec := f.do(t, http.MethodGet, "/?toggle=a", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	notice := loc.Query().Get("notice")
	assert.Contains(t, notice, "store unreachable")
	assert.True(t, f.list.Dirty())

	rec = f.do(t, http.MethodGet, loc.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "store unreachable")
	assert.Contains(t, rec.Body.String(), "unsaved change")

	f.sheet.FailWith(nil)
	rec = f.do(t, http.MethodPost, "/save", "x=1")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "notice=Saved")
	assert.False(t, f.list.Dirty())
}

func TestPendingRewriteIsShownWithoutCount(t *testing.T) {
	sh := memory.New(
		[]string{"item", "purchased", "category", "store"},
		[]string{"Milk", "False", "Dairy", "Aldi"},
	)
	l, err := basket.New(store.New(sh, nil, nil), basket.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sh.FailWith(nil)
		_ = l.Close(context.Background())
	})
	srv, err := New(l, Options{})
	require.NoError(t, err)
	f := &fixture{sheet: sh, list: l, handler: srv.Handler()}

	_ = f.items(t)
	sh.FailWith(errors.New("store unreachable"))
	rec := f.do(t, http.MethodPost, "/save", "x=1")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.True(t, l.Dirty())
	require.Zero(t, l.Status().Pending)

	rec = f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "not been saved in the current format")
	assert.NotContains(t, body, "0 unsaved change(s)")
}

func TestAddForm(t *testing.T) {
	f := newFixture(t, basket.Options{})

	rec := f.do(t, http.MethodPost, "/items", "item=Bread&category=Bakery&store=Aldi")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	items := f.items(t)
	require.Len(t, items, 3)
	assert.Equal(t, "Bread", items[2].Name)

	rec = f.do(t, http.MethodPost, "/items", "item=+&category=Bakery")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "notice=Item+name+is+required")

	rec = f.do(t, http.MethodGet, "/items", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshForm(t *testing.T) {
	f := newFixture(t, basket.Options{})
	_ = f.items(t)
	require.NoError(t, f.sheet.Append(context.Background(), []string{"c", "Soap", "False", "Household", "Lidl"}))

	rec := f.do(t, http.MethodPost, "/refresh", "x=1")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, f.items(t), 3)
}

func TestItemsAPI(t *testing.T) {
	f := newFixture(t, basket.Options{SyncStrategy: types.SyncOnClose})

	rec := f.do(t, http.MethodPost, "/api/items", `{"item":"Tea"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "Tea", created.Name)
	assert.Equal(t, types.DefaultStore, created.Store)

	rec = f.do(t, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp itemsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Items, 3)
	assert.True(t, resp.Status.Dirty)
	assert.Equal(t, 1, resp.Status.Pending)

	rec = f.do(t, http.MethodPost, "/api/items", `{"item":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionsAPI(t *testing.T) {
	f := newFixture(t, basket.Options{})

	rec := f.do(t, http.MethodPost, "/api/actions", `{"kind":"delete","id":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp actionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Applied)
	require.Len(t, resp.Removed, 1)
	assert.Equal(t, "Milk", resp.Removed[0].Name)

	rec = f.do(t, http.MethodPost, "/api/actions", `{"kind":"rename","id":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, basket.Options{})
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.do(t, http.MethodGet, "/?toggle=a", "")
	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `basket_actions_total{kind="toggle",result="applied"} 1`)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, basket.Options{})
	rec := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, basket.Options{})
	srv, err := New(f.list, Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
