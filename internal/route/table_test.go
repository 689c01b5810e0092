package route

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func defaultRoutes(t *testing.T) []Route {
	return []Route{
		{Name: "product-service", Prefix: "/api/products", Target: mustURL(t, "http://product-service:8081"), ChangeOrigin: true},
		{Name: "order-service", Prefix: "/api/orders", Target: mustURL(t, "http://order-service:8082"), ChangeOrigin: true},
		{Name: "user-service", Prefix: "/api/users", Target: mustURL(t, "http://user-service:8083"), ChangeOrigin: true},
	}
}

func TestResolve_MatchesOnSegmentBoundary(t *testing.T) {
	table, err := NewTable(defaultRoutes(t))
	require.NoError(t, err)

	cases := []struct {
		path   string
		name   string
		wantOK bool
	}{
		{"/api/products", "product-service", true},
		{"/api/products/", "product-service", true},
		{"/api/products/1", "product-service", true},
		{"/api/orders/7/items", "order-service", true},
		{"/api/users/register", "user-service", true},
		{"/api/productsX", "", false},
		{"/api/unknown", "", false},
		{"/api", "", false},
		{"/health", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			r, ok := table.Resolve(tc.path)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.name, r.Name)
		})
	}
}

func TestResolve_LongestPrefixWinsRegardlessOfOrder(t *testing.T) {
	routes := []Route{
		{Name: "catalog", Prefix: "/api", Target: mustURL(t, "http://catalog")},
		{Name: "products", Prefix: "/api/products", Target: mustURL(t, "http://products")},
	}
	for _, rs := range [][]Route{routes, {routes[1], routes[0]}} {
		table, err := NewTable(rs)
		require.NoError(t, err)

		r, ok := table.Resolve("/api/products/1")
		require.True(t, ok)
		assert.Equal(t, "products", r.Name)

		r, ok = table.Resolve("/api/orders")
		require.True(t, ok)
		assert.Equal(t, "catalog", r.Name)
	}
}

func TestNewTable_RejectsDuplicatePrefixes(t *testing.T) {
	_, err := NewTable([]Route{
		{Name: "a", Prefix: "/api/products", Target: mustURL(t, "http://a")},
		{Name: "b", Prefix: "/api/products/", Target: mustURL(t, "http://b")},
	})
	assert.ErrorIs(t, err, ErrDuplicatePrefix)
}

func TestNewTable_Validation(t *testing.T) {
	_, err := NewTable([]Route{{Prefix: "api", Target: mustURL(t, "http://a")}})
	assert.ErrorIs(t, err, ErrInvalidPrefix)

	_, err = NewTable([]Route{{Prefix: "/api"}})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = NewTable([]Route{{Prefix: "/api", Target: mustURL(t, "ftp://files")}})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestPrefixes_KeepsConfigurationOrder(t *testing.T) {
	table, err := NewTable(defaultRoutes(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/products", "/api/orders", "/api/users"}, table.Prefixes())
	assert.Len(t, table.Routes(), 3)
}

func TestRewritePath(t *testing.T) {
	table, err := NewTable(defaultRoutes(t))
	require.NoError(t, err)
	r, _ := table.Resolve("/api/products/1")

	assert.Equal(t, "/1", r.RewritePath("/api/products/1"))
	assert.Equal(t, "/", r.RewritePath("/api/products"))

	rw, err := RegexpRewrite("^/api/products", "/v2/products")
	require.NoError(t, err)
	r.Rewrite = rw
	assert.Equal(t, "/v2/products/1", r.RewritePath("/api/products/1"))

	_, err = RegexpRewrite("(", "")
	assert.Error(t, err)
}

func TestRewriteURL_KeepsEscapedForm(t *testing.T) {
	table, err := NewTable(defaultRoutes(t))
	require.NoError(t, err)
	r, ok := table.Resolve("/api/products/a/b")
	require.True(t, ok)

	path, raw := r.RewriteURL(mustURL(t, "http://gw/api/products/a%2Fb?x=1"))
	assert.Equal(t, "/a/b", path)
	assert.Equal(t, "/a%2Fb", raw)

	path, raw = r.RewriteURL(mustURL(t, "http://gw/api/products/plain"))
	assert.Equal(t, "/plain", path)
	assert.Empty(t, raw)

	rw, err := RegexpRewrite("^/api/products/a/", "/v2/")
	require.NoError(t, err)
	r.Rewrite = rw
	path, raw = r.RewriteURL(mustURL(t, "http://gw/api/products/a%2Fb"))
	assert.Equal(t, "/v2/b", path)
	assert.Empty(t, raw, "escaped form dropped when it no longer decodes to the rewritten path")
}
