// Package timing matches tour timing records to an order's stops
package timing

import (
	"time"

	"detention/internal/core/detention"
)

// StopRef identifies one of the order's stops
type StopRef struct {
	ID   string
	Role detention.StopRole
}

// Record is one run's stamps for one stop. Zero times mean not recorded
type Record struct {
	StopID           string
	PlannedArrival   time.Time
	PlannedDeparture time.Time
	ActualArrival    time.Time
	ActualDeparture  time.Time
}

// Run is one vehicle run on the tour
type Run struct {
	ID      string
	Records []Record
}

// BorrowSource is the provenance label for a value taken from run id
func BorrowSource(runID string) string { return "run:" + runID }

// Match picks the primary run and fills gaps from sibling runs.
// The primary run is the one with the most actual stamps on the order's stops;
// ties keep input order. Stops no run mentions are absent from the result
func Match(stops []StopRef, runs []Run) map[detention.StopRole]*detention.StopTimes {
	out := make(map[detention.StopRole]*detention.StopTimes, len(stops))
	if len(stops) == 0 || len(runs) == 0 {
		return out
	}

	want := make(map[string]bool, len(stops))
	for _, s := range stops {
		want[s.ID] = true
	}

	primary, best := 0, -1
	for i, r := range runs {
		n := 0
		for _, rec := range r.Records {
			if !want[rec.StopID] {
				continue
			}
			if !rec.ActualArrival.IsZero() {
				n++
			}
			if !rec.ActualDeparture.IsZero() {
				n++
			}
		}
		if n > best {
			primary, best = i, n
		}
	}

	order := make([]int, 0, len(runs))
	order = append(order, primary)
	for i := range runs {
		if i != primary {
			order = append(order, i)
		}
	}

	for _, s := range stops {
		var st detention.StopTimes
		seen := false
		for rank, idx := range order {
			rec, ok := find(runs[idx].Records, s.ID)
			if !ok {
				continue
			}
			seen = true
			src := ""
			if rank > 0 {
				src = BorrowSource(runs[idx].ID)
			}
			fill(&st.PlannedArrival, rec.PlannedArrival, src)
			fill(&st.PlannedDeparture, rec.PlannedDeparture, src)
			fill(&st.ActualArrival, rec.ActualArrival, src)
			fill(&st.ActualDeparture, rec.ActualDeparture, src)
		}
		if seen {
			out[s.Role] = &st
		}
	}
	return out
}

func find(recs []Record, stopID string) (Record, bool) {
	for _, r := range recs {
		if r.StopID == stopID {
			return r, true
		}
	}
	return Record{}, false
}

// fill sets dst once; later sources never overwrite an earlier value
func fill(dst *detention.Stamp, t time.Time, src string) {
	if dst.Present() || t.IsZero() {
		return
	}
	*dst = detention.Stamp{At: t, Source: src}
}
