package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/checkpoint"
	"finset/internal/config"
	"finset/internal/files"
	"finset/internal/infrastructure"
	"finset/pkg/contracts/domain"
)

func TestReplayTransport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "price_600519SH.csv")
	require.NoError(t, os.WriteFile(src, []byte("date;close\n2024-01-02;100\n"), 0644))

	tasks := []domain.FetchTask{
		{TaskID: "a", InterfaceID: "px", Ticker: "600519.SH", ReplayPath: src, OutputPath: filepath.Join(dir, "raw", "a.csv")},
		{TaskID: "b", InterfaceID: "px", Ticker: "601318.SH", ReplayPath: filepath.Join(dir, "missing.csv"), OutputPath: filepath.Join(dir, "raw", "b.csv")},
	}

	results, err := NewReplayTransport(discardLogger()).Fetch(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.TaskStatusCompleted, results[0].Task.Status)

	content, err := os.ReadFile(results[0].RawPath)
	require.NoError(t, err)
	assert.Equal(t, "date,close\n2024-01-02,100\n", string(content))

	_, err = NewReplayTransport(discardLogger()).Fetch(context.Background(), tasks[1:])
	assert.Error(t, err, "no successes is an error")

	results, err = NewReplayTransport(discardLogger()).Fetch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

// metricValue reads one counter or gauge sample from the registry
func metricValue(t *testing.T, m *infrastructure.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			match := true
			for _, lp := range metric.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

type httpFixture struct {
	transport *HTTPTransport
	store     *checkpoint.MemoryStore
	metrics   *infrastructure.Metrics
	delays    []time.Duration
	dir       string
}

func newHTTPFixture(t *testing.T, serverURL string, proxy *Proxy) *httpFixture {
	t.Helper()
	reg, err := NewRegistry([]config.Interface{
		{ID: "pledge", SourceDomain: "eastmoney", URL: serverURL + "/pledge", Format: FormatJSON},
		{ID: "deals", SourceDomain: "sse", URL: serverURL + "/deals", Format: FormatCSV},
	})
	require.NoError(t, err)

	f := &httpFixture{
		store:   checkpoint.NewMemoryStore(),
		metrics: infrastructure.NewMetrics("test"),
		dir:     t.TempDir(),
	}
	f.transport, err = NewHTTPTransport(HTTPOptions{
		Registry: reg,
		RateLimits: []config.DomainRateLimit{
			{Domain: config.DefaultDomain, Rate: 1000, Capacity: 10, Retry: 3, Concurrency: 2},
			{Domain: "sse", Rate: 1000, Capacity: 10, Retry: 2, Concurrency: 1},
		},
		Fetch:   config.FetchConfig{RequestTimeout: 5 * time.Second, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
		Proxy:   proxy,
		Store:   f.store,
		Metrics: f.metrics,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	f.transport.jitter = func() float64 { return 0 }
	f.transport.sleep = func(_ context.Context, d time.Duration) error {
		f.delays = append(f.delays, d)
		return nil
	}
	return f
}

func (f *httpFixture) task(iface, domainName, date string) domain.FetchTask {
	params := map[string]string{"date": date}
	id := TaskID(iface, params)
	return domain.FetchTask{
		TaskID:       id,
		InterfaceID:  iface,
		SourceDomain: domainName,
		Params:       params,
		OutputPath:   filepath.Join(f.dir, iface, date, "part-"+id[:10]+".csv"),
	}
}

func TestHTTPTransport_FetchAndCheckpoint(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/pledge":
			fmt.Fprintf(w, `[{"code": "600519", "date": "%s", "ratio": 1.5}]`, r.URL.Query().Get("date"))
		case "/deals":
			fmt.Fprintf(w, "date,amount\n%s,42\n", r.URL.Query().Get("date"))
		}
	}))
	defer srv.Close()

	f := newHTTPFixture(t, srv.URL, nil)
	tasks := []domain.FetchTask{
		f.task("pledge", "eastmoney", "20240906"),
		f.task("deals", "sse", "2024-09-06"),
		f.task("pledge", "eastmoney", "20240913"),
	}

	results, err := f.transport.Fetch(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, tasks[i].TaskID, r.Task.TaskID, "results follow manifest order")
	}

	deals, err := files.ReadTable(results[1].RawPath, files.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2024-09-06", "42"}}, deals.Rows)

	done, err := f.store.Completed(context.Background())
	require.NoError(t, err)
	assert.Len(t, done, 3)
	assert.Equal(t, 2.0, metricValue(t, f.metrics, "test_fetch_tasks_total", map[string]string{"interface": "pledge", "status": "success"}))

	results, err = f.transport.Fetch(context.Background(), tasks)
	require.NoError(t, err)
	assert.Empty(t, results, "checkpointed tasks are skipped")
	assert.EqualValues(t, 3, hits.Load())
}

func TestHTTPTransport_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"code": "600519"}]`)
	}))
	defer srv.Close()

	f := newHTTPFixture(t, srv.URL, nil)
	results, err := f.transport.Fetch(context.Background(), []domain.FetchTask{f.task("pledge", "eastmoney", "20240906")})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, f.delays)
	assert.Equal(t, 2.0, metricValue(t, f.metrics, "test_fetch_retries_total", map[string]string{"interface": "pledge"}))
}

func TestHTTPTransport_GivesUpAfterBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "date,amount\n")
	}))
	defer srv.Close()

	f := newHTTPFixture(t, srv.URL, nil)
	results, err := f.transport.Fetch(context.Background(), []domain.FetchTask{f.task("deals", "sse", "2024-09-06")})
	require.NoError(t, err, "task failures are logged, not returned")
	assert.Empty(t, results)
	assert.EqualValues(t, 2, hits.Load(), "sse allows two attempts")
	assert.Equal(t, 1.0, metricValue(t, f.metrics, "test_fetch_tasks_total", map[string]string{"interface": "deals", "status": "failed"}))

	done, err := f.store.Completed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestHTTPTransport_UnknownInterfaceFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := newHTTPFixture(t, srv.URL, nil)
	_, err := f.transport.Fetch(context.Background(), []domain.FetchTask{
		f.task("pledge", "eastmoney", "20240906"),
		f.task("stock_unknown", "eastmoney", "20240906"),
	})
	assert.ErrorIs(t, err, ErrUnknownInterface)
	assert.Zero(t, hits.Load())
}

func TestHTTPTransport_UsesProxySession(t *testing.T) {
	var auth atomic.Value
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Proxy-Authorization"))
		fmt.Fprint(w, `[{"code": "600519"}]`)
	}))
	defer proxySrv.Close()

	u, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	proxy := &Proxy{
		Host:         u.Hostname(),
		Port:         port,
		UsernameBase: "user-zone",
		Password:     "secret",
		SessionID:    func() string { return "123456" },
	}
	f := newHTTPFixture(t, "http://upstream.invalid", proxy)

	results, err := f.transport.Fetch(context.Background(), []domain.FetchTask{f.task("pledge", "eastmoney", "20240906")})
	require.NoError(t, err)
	require.Len(t, results, 1)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user-zone-session-123456:secret"))
	assert.Equal(t, want, auth.Load())
}

func TestProxy_URL(t *testing.T) {
	assert.Nil(t, NewProxy(config.ProxyConfig{}))

	p := NewProxy(config.ProxyConfig{Enabled: true, Host: "brd.superproxy.io", Port: 33335, UsernameBase: "u", Password: "p"})
	require.NotNil(t, p)
	assert.Equal(t, "http://u-session-42:p@brd.superproxy.io:33335", p.URL("42").String())

	first, second := p.SessionID(), p.SessionID()
	assert.Len(t, first, 32)
	assert.NotContains(t, first, "-")
	assert.NotEqual(t, first, second, "each request gets a fresh session")
}
