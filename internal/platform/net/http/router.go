package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	perr "detention/internal/platform/errors"
)

// Handler is the platform handler type used everywhere
type Handler = func(stdhttp.ResponseWriter, *stdhttp.Request)

// Router is the surface modules mount against
type Router interface {
	Get(path string, h Handler)
	Post(path string, h Handler)
	Put(path string, h Handler)
	Patch(path string, h Handler)
	Delete(path string, h Handler)

	Handle(path string, h stdhttp.Handler)
	Use(mw ...func(stdhttp.Handler) stdhttp.Handler)
	Group(fn func(Router))
	Route(pattern string, fn func(Router))

	Mux() stdhttp.Handler
}

// AdaptChi wraps a chi router as a Router. A root mux also answers unknown
// routes and methods with the JSON error envelope
func AdaptChi(r chi.Router) Router {
	if m, ok := r.(*chi.Mux); ok {
		m.NotFound(Handle(func(r *stdhttp.Request) Response {
			return Error(perr.NotFoundf("no route for %s %s", r.Method, r.URL.Path))
		}))
		m.MethodNotAllowed(Handle(func(r *stdhttp.Request) Response {
			return Error(perr.Newf(perr.ErrorCodeMethodNotAllowed, "%s not allowed on %s", r.Method, r.URL.Path))
		}))
	}
	return chiRouter{r: r}
}

type chiRouter struct{ r chi.Router }

func (c chiRouter) Get(p string, h Handler)    { c.r.Get(p, h) }
func (c chiRouter) Post(p string, h Handler)   { c.r.Post(p, h) }
func (c chiRouter) Put(p string, h Handler)    { c.r.Put(p, h) }
func (c chiRouter) Patch(p string, h Handler)  { c.r.Patch(p, h) }
func (c chiRouter) Delete(p string, h Handler) { c.r.Delete(p, h) }

func (c chiRouter) Handle(p string, h stdhttp.Handler)              { c.r.Handle(p, h) }
func (c chiRouter) Use(mw ...func(stdhttp.Handler) stdhttp.Handler) { c.r.Use(mw...) }

func (c chiRouter) Group(fn func(Router)) {
	c.r.Group(func(sub chi.Router) { fn(chiRouter{r: sub}) })
}

func (c chiRouter) Route(pattern string, fn func(Router)) {
	c.r.Route(pattern, func(sub chi.Router) { fn(chiRouter{r: sub}) })
}

func (c chiRouter) Mux() stdhttp.Handler { return c.r }
