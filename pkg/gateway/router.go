package gateway

import (
	"net/http"
	"strings"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

type route struct {
	method  string
	pattern string
	handler handlerFunc
}

// router matches method plus path patterns with :param segments.
type router struct {
	routes []route
}

func newRouter() *router {
	return &router{}
}

func (rt *router) handle(method, pattern string, handler handlerFunc) {
	rt.routes = append(rt.routes, route{method: method, pattern: pattern, handler: handler})
}

func (rt *router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	for _, route := range rt.routes {
		if route.method != req.Method {
			continue
		}
		params, ok := matchPath(route.pattern, req.URL.Path)
		if !ok {
			continue
		}
		route.handler(w, req, params)
		return
	}

	writeJSONError(w, http.StatusNotFound, ErrCodeResourceNotFound,
		"route not found: "+req.Method+" "+req.URL.Path)
}

func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := map[string]string{}
	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") {
			if pathParts[i] == "" {
				return nil, false
			}
			params[part[1:]] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}
	return params, true
}
