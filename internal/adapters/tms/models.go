package tms

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"detention/internal/core/detention"
	"detention/internal/core/timing"
)

// Order is the full order document. Update calls send it back whole,
// version included; fields not named here are re-emitted as received
type Order struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Shipper string `json:"shipper"`
	Stops   []Stop `json:"stops"`
	Lines   []Line `json:"lines"`

	doc document
}

// Stop is one physical stop on the order
type Stop struct {
	ID       string `json:"id"`
	Sequence int    `json:"sequence"`
	Type     string `json:"type"`
	LoadType string `json:"load_type"`
	Name     string `json:"name,omitempty"`

	doc document
}

// Role maps the backend stop type onto the two-stop model
func (s Stop) Role() detention.StopRole {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "pickup", "pu", "origin", "shipper":
		return detention.RolePickup
	default:
		return detention.RoleDelivery
	}
}

// Load maps the backend load type string
func (s Stop) Load() detention.LoadType {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "", "&", "").Replace(s.LoadType)) {
	case "drop", "drophook", "dropandhook", "dh":
		return detention.LoadDropHook
	default:
		return detention.LoadLive
	}
}

// Line is a priced line item
type Line struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`

	doc document
}

// Execution links the order to its tour
type Execution struct {
	OrderID     string `json:"order_id"`
	TourID      string `json:"tour_id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// TimingDoc is the timing payload for a tour
type TimingDoc struct {
	TourID string      `json:"tour_id"`
	Runs   []TimingRun `json:"runs"`
}

// TimingRun is one vehicle run
type TimingRun struct {
	RunID string       `json:"run_id"`
	Stops []TimingStop `json:"stops"`
}

// TimingStop holds the stamps a run recorded for a stop
type TimingStop struct {
	StopID           string     `json:"stop_id"`
	PlannedArrival   *time.Time `json:"planned_arrival"`
	PlannedDeparture *time.Time `json:"planned_departure"`
	ActualArrival    *time.Time `json:"actual_arrival"`
	ActualDeparture  *time.Time `json:"actual_departure"`
}

// MatchRuns converts the payload for the matcher
func (d TimingDoc) MatchRuns() []timing.Run {
	out := make([]timing.Run, 0, len(d.Runs))
	for _, r := range d.Runs {
		run := timing.Run{ID: r.RunID, Records: make([]timing.Record, 0, len(r.Stops))}
		for _, s := range r.Stops {
			run.Records = append(run.Records, timing.Record{
				StopID:           s.StopID,
				PlannedArrival:   deref(s.PlannedArrival),
				PlannedDeparture: deref(s.PlannedDeparture),
				ActualArrival:    deref(s.ActualArrival),
				ActualDeparture:  deref(s.ActualDeparture),
			})
		}
		out = append(out, run)
	}
	return out
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// lineRequest adds a priced line item
type lineRequest struct {
	Version     string          `json:"version"`
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// commentRequest adds a free-text comment
type commentRequest struct {
	Text string `json:"text"`
}

// versionResponse is returned by mutating endpoints
type versionResponse struct {
	Version string `json:"version"`
}
