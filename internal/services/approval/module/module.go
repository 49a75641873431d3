// Package module wires the approval hub
package module

import (
	"strings"
	"time"

	"detention/internal/modkit"
	"detention/internal/platform/config"
	ptime "detention/internal/platform/time"
	"detention/internal/services/approval/domain"
	"detention/internal/services/approval/service"
)

// Options holds approval settings
type Options struct {
	Timeout    time.Duration
	Policy     string
	AuthNumber string
}

// FromConfig reads options with the DETENTION_APPROVAL_ prefix
func FromConfig(cfg config.Conf) Options {
	a := cfg.Prefix("DETENTION_APPROVAL_")
	return Options{
		Timeout:    a.MayDuration("TIMEOUT", 30*time.Second),
		Policy:     strings.ToLower(a.MayEnum("POLICY", "wait", "wait", "approve", "decline", "skip")),
		AuthNumber: a.MayString("AUTH_NUMBER", ""),
	}
}

// Ports defines the approval module ports
type Ports struct {
	Hub domain.HubPort
}

// Module implements the approval module
type Module struct {
	hub   *service.Hub
	ports Ports
}

// New builds the hub; opts overrides the configured options when non-nil
func New(deps modkit.Deps, clock ptime.Clock, opts *Options) *Module {
	o := FromConfig(deps.Cfg)
	if opts != nil {
		o = *opts
	}
	hub := service.New(service.Config{
		Timeout:    o.Timeout,
		Policy:     domain.Decision(o.Policy),
		AuthNumber: o.AuthNumber,
	}, clock)
	return &Module{hub: hub, ports: Ports{Hub: hub}}
}

// Hub returns the concrete hub
func (m *Module) Hub() *service.Hub { return m.hub }

// Name returns the module name
func (m *Module) Name() string { return "approval" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
