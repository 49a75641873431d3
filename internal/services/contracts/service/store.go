// Package service implements the shipper contract store
package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"detention/internal/core/detention"
	"detention/internal/core/normalize"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/net/http/bind"
	ptime "detention/internal/platform/time"
	"detention/internal/services/contracts/domain"
)

// Config holds store settings
type Config struct {
	// TTL is how long a fetched table is served before the next fetch; zero caches until Reset
	TTL time.Duration
}

// snapshot is one fetched and partitioned contract table
type snapshot struct {
	fetchedAt time.Time
	table     map[string]detention.Contract
	rejected  map[string]domain.Diagnostic
	diags     []domain.Diagnostic
}

// Store is the process-wide contract table, refreshed single-flight
type Store struct {
	cfg     Config
	sources []domain.Source
	clock   ptime.Clock
	log     logger.Logger

	sf singleflight.Group

	mu   sync.RWMutex
	snap *snapshot
}

// New builds a store over the given sources; on duplicate shippers the earlier source wins
func New(cfg Config, clock ptime.Clock, sources ...domain.Source) *Store {
	return &Store{
		cfg:     cfg,
		sources: sources,
		clock:   ptime.OrSystem(clock),
		log:     *logger.Named("contracts"),
	}
}

var _ domain.StorePort = (*Store)(nil)

// Reset drops the cached table
func (s *Store) Reset() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}

// ValidateShipper is the gate every pipeline goes through
func (s *Store) ValidateShipper(ctx context.Context, shipper string) (domain.Lookup, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return domain.Lookup{}, err
	}
	key := normalize.Key(shipper)
	if key == "" {
		return domain.Lookup{Status: domain.StatusNotConfigured}, nil
	}
	if c, ok := snap.table[key]; ok {
		return domain.Lookup{Status: domain.StatusOK, Contract: &c}, nil
	}
	if d, ok := snap.rejected[key]; ok {
		return domain.Lookup{Status: d.Status, Issues: d.Issues}, nil
	}
	return domain.Lookup{Status: domain.StatusNotConfigured}, nil
}

// Summary returns counts and every diagnostic of the current table
func (s *Store) Summary(ctx context.Context) (domain.Summary, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	sum := domain.Summary{FetchedAt: snap.fetchedAt, Valid: len(snap.table), Diagnostics: slices.Clone(snap.diags)}
	for _, d := range snap.diags {
		switch d.Status {
		case domain.StatusDisabled:
			sum.Disabled++
		case domain.StatusIncomplete:
			sum.Incomplete++
		}
	}
	return sum, nil
}

func (s *Store) cached() (*snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, false
	}
	if s.cfg.TTL > 0 && s.clock.Now().Sub(s.snap.fetchedAt) >= s.cfg.TTL {
		return s.snap, false
	}
	return s.snap, true
}

// fetch returns the cached table or loads a new one. When a refresh fails and
// an older table exists, the older table keeps serving
func (s *Store) fetch(ctx context.Context) (*snapshot, error) {
	if snap, fresh := s.cached(); fresh {
		return snap, nil
	}
	ch := s.sf.DoChan("contracts", func() (any, error) {
		return s.load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(*snapshot), nil
		}
		if stale, _ := s.cached(); stale != nil {
			logger.C(ctx).Warn().Err(res.Err).Msg("contract refresh failed, serving previous table")
			return stale, nil
		}
		return nil, res.Err
	}
}

func (s *Store) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{
		fetchedAt: s.clock.Now(),
		table:     map[string]detention.Contract{},
		rejected:  map[string]domain.Diagnostic{},
	}
	seen := map[string]bool{}
	for _, src := range s.sources {
		raws, err := src.Load(ctx)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeContractStore, "load contracts from %s", src.Name())
		}
		for _, raw := range raws {
			d, c := Classify(raw)
			d.Source = src.Name()
			if d.Key != "" && seen[d.Key] {
				d.Status = domain.StatusIncomplete
				d.Issues = append(d.Issues, domain.FieldIssue{Field: "shipper", Message: "duplicate of an earlier record"})
				snap.diags = append(snap.diags, d)
				continue
			}
			if d.Key != "" {
				seen[d.Key] = true
			}
			if c != nil {
				snap.table[d.Key] = *c
			} else if d.Key != "" {
				snap.rejected[d.Key] = d
			}
			if d.Status != domain.StatusOK || len(d.Issues) > 0 {
				snap.diags = append(snap.diags, d)
			}
		}
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	s.log.Info().Int("valid", len(snap.table)).Int("rejected", len(snap.diags)).Msg("contract table loaded")
	return snap, nil
}

// Classify parses and validates one raw record. The contract is nil unless the
// record is active and complete
func Classify(raw map[string]any) (domain.Diagnostic, *detention.Contract) {
	rec, issues := parseRecord(raw)
	d := domain.Diagnostic{Shipper: rec.Shipper, Key: normalize.Key(rec.Shipper)}

	if err := bind.Get().Validator.Struct(rec); err != nil {
		for _, v := range bind.Violations(err) {
			issues = append(issues, domain.FieldIssue{Field: v.Field, Message: v.Message})
		}
	}
	issues = append(issues, duplicateRules(rec.Rules)...)
	d.Issues = issues

	switch {
	case !rec.Active:
		d.Status = domain.StatusDisabled
		return d, nil
	case len(issues) > 0:
		d.Status = domain.StatusIncomplete
		return d, nil
	}
	d.Status = domain.StatusOK
	c := toContract(rec)
	return d, &c
}

func duplicateRules(rules []domain.RuleRecord) []domain.FieldIssue {
	var out []domain.FieldIssue
	seen := map[string]bool{}
	for _, r := range rules {
		k := r.Role + "/" + r.Load
		if seen[k] {
			out = append(out, domain.FieldIssue{Field: "rules", Message: "duplicate rule for " + k})
		}
		seen[k] = true
	}
	return out
}

func toContract(rec domain.Record) detention.Contract {
	c := detention.Contract{
		Shipper:              strings.TrimSpace(rec.Shipper),
		Rate:                 *rec.Rate,
		Unit:                 detention.RateUnit(rec.Unit),
		MaxCharge:            *rec.MaxCharge,
		BillingIncrement:     rec.BillingIncrement,
		Rounding:             detention.Rounding(rec.Rounding),
		MinimumMinutes:       rec.MinimumMinutes,
		LateThresholdMinutes: rec.LateThreshold,
		Rules:                make(map[detention.RuleKey]detention.FreeTimeRule, len(rec.Rules)),
		RequiresApproval:     rec.RequiresApproval,
		AutoChargeAllowed:    rec.AutoChargeAllowed,
		AuthNumberRequired:   rec.AuthNumberRequired,
	}
	for _, r := range rec.Rules {
		c.Rules[detention.RuleKey{Role: detention.StopRole(r.Role), Load: detention.LoadType(r.Load)}] = detention.FreeTimeRule{
			Eligible:    r.Eligible,
			FreeMinutes: r.FreeMinutes,
		}
	}
	return c
}
