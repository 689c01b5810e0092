// Package route holds the gateway's static route table: URL path prefix to backend
// target plus a path rewrite. The table is validated once at startup and is
// read-only afterwards, so lookups need no locking.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidPrefix   = errors.New("route prefix must start with /")
	ErrInvalidTarget   = errors.New("route target must be an absolute http(s) URL")
	ErrDuplicatePrefix = errors.New("duplicate route prefix")
)

// Rewriter maps the incoming request path to the path sent to the backend.
type Rewriter func(path string) string

// StripPrefix removes prefix from the start of the path.
func StripPrefix(prefix string) Rewriter {
	return func(path string) string {
		return strings.TrimPrefix(path, prefix)
	}
}

// RegexpRewrite replaces every match of pattern with replacement,
// e.g. RegexpRewrite("^/api/products", "").
func RegexpRewrite(pattern, replacement string) (Rewriter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile rewrite %q: %w", pattern, err)
	}
	return func(path string) string {
		return re.ReplaceAllString(path, replacement)
	}, nil
}

type Route struct {
	Name   string
	Prefix string
	Target *url.URL
	// Rewrite defaults to StripPrefix(Prefix).
	Rewrite Rewriter
	// ChangeOrigin sends the target's host in the Host header instead of the client's.
	ChangeOrigin bool
}

// Matches reports whether path falls under the route prefix on a segment boundary:
// "/api/products" matches "/api/products" and "/api/products/1" but not "/api/productsX".
func (r Route) Matches(path string) bool {
	if r.Prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	return len(path) == len(r.Prefix) || path[len(r.Prefix)] == '/'
}

// RewritePath applies the route's rewrite rule. An empty result becomes "/".
func (r Route) RewritePath(path string) string {
	rw := r.Rewrite
	if rw == nil {
		rw = StripPrefix(r.Prefix)
	}
	out := rw(path)
	if out == "" {
		return "/"
	}
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// RewriteURL rewrites both forms of u's path. rawPath is empty unless u carried an
// escaped form (e.g. %2F) that still decodes to the rewritten path.
func (r Route) RewriteURL(u *url.URL) (path, rawPath string) {
	path = r.RewritePath(u.Path)
	if u.RawPath == "" {
		return path, ""
	}
	raw := r.RewritePath(u.RawPath)
	if decoded, err := url.PathUnescape(raw); err != nil || decoded != path {
		return path, ""
	}
	return path, raw
}

func normalizePrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p, nil
}
