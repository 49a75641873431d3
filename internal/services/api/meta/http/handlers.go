// Package http serves liveness, readiness, build and TMS session status
package http

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"detention/internal/core/version"
	"detention/internal/modkit/httpkit"
	"detention/internal/platform/config"
	sessiondom "detention/internal/services/session/domain"
)

// SessionStatus reports the TMS session token lifetime
type SessionStatus interface {
	Status() sessiondom.Status
}

// Check is one readiness dependency. A nil Ping is reported as skipped
type Check struct {
	Name string
	Ping func(context.Context) error
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	Checks      []Check
	Session     SessionStatus
	Now         func() time.Time
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	httpkit.Get(r, "/health", d.health)
	httpkit.Get(r, "/ready", d.ready)
	httpkit.Get(r, "/version", d.version)
	httpkit.Get(r, "/session", d.session)
}

// Health is the liveness payload
type Health struct {
	OK      bool   `json:"ok"      example:"true"`
	Service string `json:"service" example:"detention-api"`
	Started string `json:"started" example:"2025-09-03T13:00:00Z"`
	Uptime  int64  `json:"uptime"  example:"300"`
	// ConfigKeys lists keys served from the CONFIG_FILE overlay, never values
	ConfigKeys []string `json:"config_keys,omitempty"`
}

// CheckResult is the outcome of one dependency check
type CheckResult struct {
	Name   string `json:"name"            example:"pg"`
	Status string `json:"status"          example:"ok"` // ok fail skipped
	Error  string `json:"error,omitempty" example:"dial tcp 127.0.0.1:5432: connect: connection refused"`
}

// Readiness is ok when every check passes, degraded when some are skipped
// and fail otherwise
type Readiness struct {
	Status string        `json:"status" example:"ok"`
	Checks []CheckResult `json:"checks"`
}

// @Summary Liveness and uptime
// @Tags Meta
// @Produce json
// @Success 200 {object} Health "ok"
// @Router /meta/health [get]
func (d Deps) health(_ *http.Request) (any, error) {
	return Health{
		OK:         true,
		Service:    d.ServiceName,
		Started:    d.StartedAt.UTC().Format(time.RFC3339),
		Uptime:     int64(d.Now().Sub(d.StartedAt) / time.Second),
		ConfigKeys: config.OverlayKeys(),
	}, nil
}

// @Summary Readiness with dependency checks
// @Tags Meta
// @Produce json
// @Success 200 {object} Readiness "ok or degraded"
// @Failure 503 {object} Readiness "a dependency failed"
// @Router /meta/ready [get]
func (d Deps) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make([]CheckResult, len(d.Checks))
	var g errgroup.Group
	for i, c := range d.Checks {
		results[i] = CheckResult{Name: c.Name, Status: "skipped"}
		if c.Ping == nil {
			continue
		}
		g.Go(func() error {
			if err := c.Ping(ctx); err != nil {
				results[i].Status, results[i].Error = "fail", err.Error()
				return nil
			}
			results[i].Status = "ok"
			return nil
		})
	}
	_ = g.Wait()

	out := Readiness{Status: "ok", Checks: results}
	for _, p := range results {
		if p.Status == "fail" {
			out.Status = "fail"
			return httpkit.Response{Status: http.StatusServiceUnavailable, Body: out}, nil
		}
		if p.Status == "skipped" {
			out.Status = "degraded"
		}
	}
	return out, nil
}

// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 {object} version.BuildInfo "ok"
// @Router /meta/version [get]
func (d Deps) version(_ *http.Request) (any, error) {
	return version.Info(d.ServiceName), nil
}

// @Summary TMS session token lifetime
// @Tags Meta
// @Produce json
// @Success 200 {object} sessiondom.Status "ok"
// @Router /meta/session [get]
func (d Deps) session(_ *http.Request) (any, error) {
	if d.Session == nil {
		return sessiondom.Status{}, nil
	}
	return d.Session.Status(), nil
}
