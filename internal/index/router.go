package index

import (
	"context"
	"net/http"
	"strings"
)

// RouteKind is the outcome of matching a request
type RouteKind int

const (
	RouteReject RouteKind = iota
	RoutePackage
	RouteRoot
	RouteRedirect
)

func (k RouteKind) String() string {
	switch k {
	case RoutePackage:
		return "package"
	case RouteRoot:
		return "root"
	case RouteRedirect:
		return "redirect"
	default:
		return "reject"
	}
}

// Match is a resolved route
type Match struct {
	Kind    RouteKind
	Package string // set for RoutePackage
}

// Handlers serves the two dynamic routes
type Handlers interface {
	PackageIndex(ctx context.Context, name string) (Response, error)
	RootIndex(ctx context.Context) (Response, error)
}

// Router maps (method, path) to a response
type Router struct {
	basePath string
	baseSegs []string
	handlers Handlers
}

// NewRouter creates a router for basePath; surrounding slashes are ignored
func NewRouter(basePath string, handlers Handlers) *Router {
	basePath = strings.Trim(basePath, "/")
	return &Router{
		basePath: basePath,
		baseSegs: splitPath(basePath),
		handlers: handlers,
	}
}

// BasePath returns the normalized base path
func (r *Router) BasePath() string {
	return r.basePath
}

// Resolve decides which route applies without doing any I/O.
//
// Checks run in order: method, exactly one segment below the base path
// (package), the base path itself (root), the empty path (redirect). With an
// empty base path every single-segment path is a package and "/" is the root
// index, so the redirect never fires.
func (r *Router) Resolve(method, path string) Match {
	if method != http.MethodGet && method != http.MethodHead {
		return Match{Kind: RouteReject}
	}

	normalized := strings.Trim(path, "/")
	segs := splitPath(normalized)

	if len(segs) == len(r.baseSegs)+1 && hasPrefix(segs, r.baseSegs) {
		if name := segs[len(segs)-1]; name != "" {
			return Match{Kind: RoutePackage, Package: name}
		}
	}

	if normalized == r.basePath {
		return Match{Kind: RouteRoot}
	}

	if normalized == "" {
		return Match{Kind: RouteRedirect}
	}

	return Match{Kind: RouteReject}
}

// Route resolves and serves one request. Errors come only from the store and
// are left for the boundary to turn into a status code.
func (r *Router) Route(ctx context.Context, method, path string) (Response, error) {
	m := r.Resolve(method, path)
	switch m.Kind {
	case RoutePackage:
		return r.handlers.PackageIndex(ctx, m.Package)
	case RouteRoot:
		return r.handlers.RootIndex(ctx)
	case RouteRedirect:
		return Redirect("/" + r.basePath), nil
	default:
		return Reject(http.StatusForbidden), nil
	}
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func hasPrefix(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}
