package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"api-gateway/internal/apierror"
	"api-gateway/internal/route"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Method  string
	Path    string
	Escaped string
	Query   string
	Host    string
	Body    string
	XFF     string
}

func echoBackend(t *testing.T, seen chan<- seenRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- seenRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Escaped: r.URL.EscapedPath(),
			Query:   r.URL.RawQuery,
			Host:    r.Host,
			Body:    string(body),
			XFF:     r.Header.Get("X-Forwarded-For"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Backend", "products")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1,"name":"Product 1","price":99.99}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDispatcher(t *testing.T, opts Options, routes ...route.Route) *Dispatcher {
	t.Helper()
	table, err := route.NewTable(routes)
	require.NoError(t, err)
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	opts.Logger = zerolog.Nop()
	return NewDispatcher(table, opts)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDispatcher_StripsPrefixAndRelaysResponse(t *testing.T) {
	seen := make(chan seenRequest, 1)
	backend := echoBackend(t, seen)
	d := newDispatcher(t, Options{}, route.Route{Name: "product-service", Prefix: "/api/products", Target: mustURL(t, backend.URL), ChangeOrigin: true})

	req := httptest.NewRequest(http.MethodPost, "http://gateway.local/api/products/1?expand=true", strings.NewReader(`{"qty":2}`))
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	got := <-seen
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/1", got.Path)
	assert.Equal(t, "expand=true", got.Query)
	assert.Equal(t, `{"qty":2}`, got.Body)
	assert.Equal(t, mustURL(t, backend.URL).Host, got.Host)
	assert.Equal(t, "10.1.2.3", got.XFF)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "products", w.Header().Get("X-Backend"))
	assert.Equal(t, `[{"id":1,"name":"Product 1","price":99.99}]`, w.Body.String())
}

func TestDispatcher_ExactPrefixForwardsRoot(t *testing.T) {
	seen := make(chan seenRequest, 1)
	backend := echoBackend(t, seen)
	d := newDispatcher(t, Options{}, route.Route{Prefix: "/api/orders", Target: mustURL(t, backend.URL)})

	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://gateway.local/api/orders", nil))

	assert.Equal(t, "/", (<-seen).Path)
}

func TestDispatcher_KeepsEncodedSlashInForwardedPath(t *testing.T) {
	seen := make(chan seenRequest, 1)
	backend := echoBackend(t, seen)
	d := newDispatcher(t, Options{}, route.Route{Prefix: "/api/products", Target: mustURL(t, backend.URL)})

	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://gateway.local/api/products/a%2Fb", nil))

	got := <-seen
	assert.Equal(t, "/a%2Fb", got.Escaped)
	assert.Equal(t, "/a/b", got.Path)
}

func TestDispatcher_KeepsClientHostWithoutChangeOrigin(t *testing.T) {
	seen := make(chan seenRequest, 1)
	backend := echoBackend(t, seen)
	d := newDispatcher(t, Options{}, route.Route{Prefix: "/api/users", Target: mustURL(t, backend.URL)})

	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://gateway.local/api/users/register", nil))

	got := <-seen
	assert.Equal(t, "gateway.local", got.Host)
	assert.Equal(t, "/register", got.Path)
}

func TestDispatcher_RelaysBackendErrorsVerbatim(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("already exists"))
	}))
	defer backend.Close()
	d := newDispatcher(t, Options{}, route.Route{Prefix: "/api/users", Target: mustURL(t, backend.URL)})

	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://gateway.local/api/users", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already exists", w.Body.String())
}

func TestDispatcher_NoRouteIs404(t *testing.T) {
	d := newDispatcher(t, Options{}, route.Route{Prefix: "/api/products", Target: mustURL(t, "http://127.0.0.1:1")})

	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://gateway.local/api/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assertErrorBody(t, w, http.StatusNotFound, "Not Found")
}

func TestDispatcher_UnreachableBackendIs502(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	target := backend.URL
	backend.Close()
	d := newDispatcher(t, Options{}, route.Route{Prefix: "/api/products", Target: mustURL(t, target)})

	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://gateway.local/api/products", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assertErrorBody(t, w, http.StatusBadGateway, "Bad Gateway")
}

func TestDispatcher_SlowBackendIs504(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer backend.Close()
	d := newDispatcher(t, Options{Timeout: 50 * time.Millisecond}, route.Route{Prefix: "/api/orders", Target: mustURL(t, backend.URL)})

	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://gateway.local/api/orders", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assertErrorBody(t, w, http.StatusGatewayTimeout, "Gateway Timeout")
}

func TestDispatcher_ClientCancelAbortsBackendRequest(t *testing.T) {
	backendDone := make(chan struct{})
	started := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		close(backendDone)
	}))
	defer backend.Close()
	d := newDispatcher(t, Options{Timeout: 10 * time.Second}, route.Route{Prefix: "/api/orders", Target: mustURL(t, backend.URL)})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "http://gateway.local/api/orders", nil).WithContext(ctx)
	go func() {
		<-started
		cancel()
	}()
	d.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case <-backendDone:
	case <-time.After(2 * time.Second):
		t.Fatal("backend request was not aborted after client cancel")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(&url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(errors.New("connection refused")))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func assertErrorBody(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	var body apierror.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, status, body.Error.Status)
	assert.Equal(t, message, body.Error.Message)
}
