// Package domain holds the contract store types and ports
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"detention/internal/core/detention"
)

// Status is the gate outcome for a shipper
type Status string

const (
	StatusOK            Status = "ok"
	StatusNotConfigured Status = "not_configured"
	StatusDisabled      Status = "disabled"
	StatusIncomplete    Status = "incomplete"
)

// ResultType maps a non-ok gate status onto the per-stop result
func (s Status) ResultType() detention.ResultType {
	switch s {
	case StatusNotConfigured:
		return detention.ResultSOWNotConfigured
	case StatusDisabled:
		return detention.ResultSOWDisabled
	case StatusIncomplete:
		return detention.ResultSOWIncomplete
	}
	return ""
}

// Record is the typed form of one contract record before validation.
// Pointers mark values that must be present
type Record struct {
	Shipper            string           `json:"shipper" yaml:"shipper" validate:"required"`
	Active             bool             `json:"active" yaml:"active"`
	Rate               *decimal.Decimal `json:"rate" yaml:"rate" validate:"required,gt=0"`
	Unit               string           `json:"rate_unit" yaml:"rate_unit" validate:"required,oneof=hour minute"`
	MaxCharge          *decimal.Decimal `json:"max_charge" yaml:"max_charge" validate:"required,gt=0"`
	BillingIncrement   int              `json:"billing_increment" yaml:"billing_increment" validate:"min=0,max=240"`
	Rounding           string           `json:"rounding" yaml:"rounding" validate:"omitempty,oneof=up down nearest"`
	MinimumMinutes     int              `json:"minimum_minutes" yaml:"minimum_minutes" validate:"min=0"`
	LateThreshold      *int             `json:"late_threshold_minutes" yaml:"late_threshold_minutes" validate:"omitempty,min=0"`
	Rules              []RuleRecord     `json:"rules" yaml:"rules" validate:"required,min=1,dive"`
	RequiresApproval   bool             `json:"requires_approval" yaml:"requires_approval"`
	AutoChargeAllowed  bool             `json:"auto_charge_allowed" yaml:"auto_charge_allowed"`
	AuthNumberRequired bool             `json:"auth_number_required" yaml:"auth_number_required"`
}

// RuleRecord is one (role, load type) eligibility cell
type RuleRecord struct {
	Role        string `json:"role" yaml:"role" validate:"required,oneof=pickup delivery"`
	Load        string `json:"load_type" yaml:"load_type" validate:"required,oneof=live drop_hook"`
	Eligible    bool   `json:"eligible" yaml:"eligible"`
	FreeMinutes int    `json:"free_minutes" yaml:"free_minutes" validate:"min=0,max=1440"`
}

// FieldIssue is one field level problem with a record
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Diagnostic describes one record that did or did not make it into the lookup table
type Diagnostic struct {
	Shipper string       `json:"shipper"`
	Key     string       `json:"key"`
	Source  string       `json:"source"`
	Status  Status       `json:"status"`
	Issues  []FieldIssue `json:"issues,omitempty"`
}

// Lookup is the answer to a shipper gate query
type Lookup struct {
	Status   Status              `json:"status"`
	Contract *detention.Contract `json:"contract,omitempty"`
	Issues   []FieldIssue        `json:"issues,omitempty"`
}

// OK reports whether the contract may be used
func (l Lookup) OK() bool { return l.Status == StatusOK && l.Contract != nil }

// Summary is the diagnostics view
type Summary struct {
	FetchedAt   time.Time    `json:"fetched_at"`
	Valid       int          `json:"valid"`
	Disabled    int          `json:"disabled"`
	Incomplete  int          `json:"incomplete"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Source loads raw contract records
type Source interface {
	Name() string
	Load(ctx context.Context) ([]map[string]any, error)
}

// StorePort is the gate used by pipelines and the diagnostics API
type StorePort interface {
	ValidateShipper(ctx context.Context, shipper string) (Lookup, error)
	Summary(ctx context.Context) (Summary, error)
	Reset()
}
