package server

import "net/http"

var _ Router = (*BasicRouter)(nil)

// BasicRouter is the [Router] the CLI serves from.
//
// Patterns use [http.ServeMux] syntax, including a leading method ("GET /api/state"). The mux answers
// 405 for a known path requested with an unregistered method.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

// NewBasicRouter creates an empty router.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware. Middleware added first runs first, and only wraps handlers registered after it.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for pattern behind the current middleware stack.
func (r *BasicRouter) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, r.wrap(handler))
}

// Handler registers every route h exposes.
func (r *BasicRouter) Handler(h Handler) {
	for _, route := range h.Routes() {
		r.Handle(route.Pattern, route.Handler)
	}
}

func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *BasicRouter) wrap(handler http.Handler) http.Handler {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	return handler
}
