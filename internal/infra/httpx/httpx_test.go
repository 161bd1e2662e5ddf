package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080")
	require.NoError(t, err)
	tr, ok := c.Transport.(*Transport)
	require.True(t, ok, "期望 *Transport，实际 %T", c.Transport)
	assert.NotNil(t, tr.Base.Proxy, "期望启用代理")
	assert.True(t, tr.Base.DisableKeepAlives, "代理模式应禁用 keep-alive")
	assert.True(t, tr.DisableKeepAlives)
}

func TestNewClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewClient("  ")
	require.NoError(t, err)
	tr := c.Transport.(*Transport)
	assert.Nil(t, tr.Base.Proxy, "不期望启用代理")
	assert.False(t, tr.Base.DisableKeepAlives)
	assert.Equal(t, defaultTimeout, c.Timeout)
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	for _, in := range []string{"http://[::1", "127.0.0.1:8080"} {
		_, err := NewClient(in)
		assert.Error(t, err, "%q", in)
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
	}))
	defer srv.Close()

	c, err := NewClient("")
	require.NoError(t, err)
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	ua, _ := got.Load().(string)
	assert.True(t, strings.HasPrefix(ua, "Mozilla/5.0"), "UA=%q，期望来自 UA 池", ua)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom/1.0")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom/1.0", got.Load().(string), "调用方设置的 UA 被覆盖")
}

func countingTransport(calls *int32) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			atomic.AddInt32(calls, 1)
			return nil, errors.New("dial refused")
		},
	}
}

func TestTransport_RetryOnlyIdempotent(t *testing.T) {
	var getCalls int32
	tr := &Transport{Base: countingTransport(&getCalls), ua: globalUA, RetryMax: 2}
	req, _ := http.NewRequest(http.MethodGet, "http://catalog.invalid/buscar", nil)
	_, err := tr.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&getCalls), "GET 期望 3 次尝试")

	var postCalls int32
	tr = &Transport{Base: countingTransport(&postCalls), ua: globalUA, RetryMax: 2}
	req, _ = http.NewRequest(http.MethodPost, "http://catalog.invalid/buscar", strings.NewReader("x"))
	_, err = tr.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&postCalls), "带 body 的 POST 不应重试")
}

func TestTransport_CanceledContextStopsRetry(t *testing.T) {
	var calls int32
	tr := &Transport{Base: countingTransport(&calls), ua: globalUA, RetryMax: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://catalog.invalid/", nil)
	_, err := tr.RoundTrip(req)
	assert.Error(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(1), "ctx 已取消时不应重试")
}
