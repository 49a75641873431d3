// Package httpkit is what API modules mount handlers with, so they do not
// import the platform http package directly
package httpkit

import (
	"net/http"
	"strings"

	phttp "detention/internal/platform/net/http"
)

type (
	// Envelope is the response body type, re-exported for swagger annotations
	Envelope = phttp.Envelope

	// Response is a return-style handler result
	Response = phttp.Response

	// Router is the platform router seam
	Router = phttp.Router
)

// Created returns a 201 response
func Created(data any) Response { return phttp.Created(data) }

// NoContent returns a 204 response
func NoContent() Response { return phttp.NoContent() }

// List returns a 200 response with items and pagination
func List(items any, total, page, size int, cursor string) Response {
	return phttp.List(items, total, page, size, cursor)
}

// call wraps a plain handler: an error becomes an error envelope, a Response
// passes through and anything else is sent as 200 data
func call(fn func(*http.Request) (any, error)) phttp.Handler {
	return phttp.Handle(func(r *http.Request) phttp.Response {
		out, err := fn(r)
		if err != nil {
			return phttp.Error(err)
		}
		if resp, ok := out.(phttp.Response); ok {
			return resp
		}
		return phttp.OK(out)
	})
}

// Get mounts fn under GET
func Get(r Router, path string, fn func(*http.Request) (any, error)) { r.Get(path, call(fn)) }

// Post mounts fn under POST. Handlers decode their own bodies with bind.ParseJSON
func Post(r Router, path string, fn func(*http.Request) (any, error)) { r.Post(path, call(fn)) }

// MountAPIV1 mounts a subrouter at /api/v1 with mw applied, then calls mount on it
func MountAPIV1(r Router, mw []func(http.Handler) http.Handler, mount func(Router)) {
	mountVersion(r, "v1", mw, mount)
}

func mountVersion(r Router, version string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	r.Route("/api/"+strings.Trim(version, "/"), func(api Router) {
		if len(mw) > 0 {
			api.Use(mw...)
		}
		mount(api)
	})
}
