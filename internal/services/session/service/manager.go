// Package service implements the session token manager
package service

import (
	"context"
	stderrs "errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
	"detention/internal/services/session/domain"
)

// Config holds the lifetime settings
type Config struct {
	// MaxAge is how long a token is trusted after acquisition
	MaxAge time.Duration
	// WarnBelow triggers a proactive refresh once remaining lifetime drops under it
	WarnBelow time.Duration
	// CheckEvery is the background refresher tick
	CheckEvery time.Duration
}

const sfKey = "session-token"

// Manager holds at most one token and serialises refreshes
type Manager struct {
	cfg     Config
	sources []domain.Source
	clock   ptime.Clock
	log     logger.Logger

	sf singleflight.Group

	mu  sync.RWMutex
	tok *domain.Token
}

// New builds a Manager that tries sources in order
func New(cfg Config, clock ptime.Clock, sources ...domain.Source) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	if cfg.WarnBelow <= 0 || cfg.WarnBelow >= cfg.MaxAge {
		cfg.WarnBelow = cfg.MaxAge / 6
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = time.Minute
	}
	return &Manager{
		cfg:     cfg,
		sources: sources,
		clock:   ptime.OrSystem(clock),
		log:     *logger.Named("session"),
	}
}

var _ domain.ManagerPort = (*Manager)(nil)

// Ensure returns the current token, acquiring one if none is valid.
// Concurrent callers share one acquisition
func (m *Manager) Ensure(ctx context.Context) (domain.Token, error) {
	if t, ok := m.current(); ok {
		return t, nil
	}
	return m.acquire(ctx, false)
}

// EnsureFresh refreshes when the remaining lifetime is under minRemaining
func (m *Manager) EnsureFresh(ctx context.Context, minRemaining time.Duration) (domain.Token, error) {
	if t, ok := m.current(); ok && m.remainingOf(t) >= minRemaining {
		return t, nil
	}
	return m.acquire(ctx, true)
}

// Refresh forces a new acquisition
func (m *Manager) Refresh(ctx context.Context) (domain.Token, error) { return m.acquire(ctx, true) }

// Token satisfies the transport token source
func (m *Manager) Token(ctx context.Context) (string, error) {
	t, err := m.Ensure(ctx)
	if err != nil {
		return "", err
	}
	return t.Value, nil
}

// Invalidate drops the token if it is still the one upstream rejected
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok != nil && (token == "" || m.tok.Value == token) {
		m.log.Info().Str("source", m.tok.Source).Msg("session token invalidated")
		m.tok = nil
	}
}

// Reset drops any token
func (m *Manager) Reset() { m.Invalidate("") }

// Remaining is the token's remaining lifetime, zero when there is none
func (m *Manager) Remaining() time.Duration {
	t, ok := m.current()
	if !ok {
		return 0
	}
	return m.remainingOf(t)
}

// Status returns the lifetime view
func (m *Manager) Status() domain.Status {
	t, ok := m.current()
	if !ok {
		return domain.Status{}
	}
	rem := m.remainingOf(t)
	return domain.Status{
		Valid:      true,
		Source:     t.Source,
		AcquiredAt: t.AcquiredAt,
		ExpiresAt:  t.AcquiredAt.Add(m.cfg.MaxAge),
		Remaining:  rem,
		Warning:    rem < m.cfg.WarnBelow,
	}
}

// RunRefresher refreshes ahead of expiry until ctx is done
func (m *Manager) RunRefresher(ctx context.Context) {
	tick := time.NewTicker(m.cfg.CheckEvery)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		t, ok := m.current()
		if !ok || m.remainingOf(t) >= m.cfg.WarnBelow {
			continue
		}
		if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("proactive session refresh failed")
		}
	}
}

func (m *Manager) current() (domain.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tok == nil || m.remainingOf(*m.tok) <= 0 {
		return domain.Token{}, false
	}
	return *m.tok, true
}

func (m *Manager) remainingOf(t domain.Token) time.Duration {
	return max(0, t.AcquiredAt.Add(m.cfg.MaxAge).Sub(m.clock.Now()))
}

// acquire runs one shared acquisition. The shared call is detached from any
// single caller's cancellation; each caller still stops waiting on its own ctx
func (m *Manager) acquire(ctx context.Context, force bool) (domain.Token, error) {
	ch := m.sf.DoChan(sfKey, func() (any, error) {
		if !force {
			if t, ok := m.current(); ok {
				return t, nil
			}
		}
		return m.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return domain.Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Token{}, res.Err
		}
		return res.Val.(domain.Token), nil
	}
}

func (m *Manager) fetch(ctx context.Context) (domain.Token, error) {
	var errs []error
	for _, src := range m.sources {
		v, err := src.Acquire(ctx)
		if err == nil && v != "" {
			t := domain.Token{Value: v, AcquiredAt: m.clock.Now(), Source: src.Name()}
			m.mu.Lock()
			m.tok = &t
			m.mu.Unlock()
			metrics.TokenRefreshes.WithLabelValues("ok").Inc()
			m.log.Info().Str("source", t.Source).Dur("max_age", m.cfg.MaxAge).Msg("session token acquired")
			return t, nil
		}
		if err == nil {
			err = perr.Newf(perr.ErrorCodeUnauthorized, "%s returned an empty token", src.Name())
		}
		m.log.Debug().Err(err).Str("source", src.Name()).Msg("session source failed")
		errs = append(errs, err)
	}
	metrics.TokenRefreshes.WithLabelValues("failed").Inc()
	if len(errs) == 0 {
		return domain.Token{}, perr.Newf(perr.ErrorCodeUnauthorized, "no session token sources configured")
	}
	return domain.Token{}, perr.Wrap(stderrs.Join(errs...), perr.ErrorCodeUnauthorized, "session token acquisition failed")
}
