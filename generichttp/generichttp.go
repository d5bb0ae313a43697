// Package generichttp defines interfaces for generic devices
// and an extensible type that wraps them in an HTTP interface
package generichttp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is a method (Get, Post, ...) and a URL path fragment
type MethodPath struct {
	// Method is the HTTP method, from http.MethodGet and friends
	Method string

	// Path is the path the handler lives at, e.g. /power
	Path string
}

// RouteTable maps method-paths to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints returns the URL paths in the table, for the supergraph
// of routes served by a process
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	seen := map[string]struct{}{}
	for k := range rt {
		if _, ok := seen[k.Path]; ok {
			continue
		}
		seen[k.Path] = struct{}{}
		routes = append(routes, k.Path)
	}
	return routes
}

// Bind attaches every route in the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
}

// HTTPer is an object which can yield a route table to bind to a router
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize ensures the stem used to mount a submux is of the form
// "/a/b", with a leading slash and no trailing slash or wildcard.
// "omc/rf/*" => "/omc/rf"
func SubMuxSanitize(stem string) string {
	stem = strings.TrimSuffix(stem, "*")
	stem = strings.Trim(stem, "/")
	return "/" + stem
}
