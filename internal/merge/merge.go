// Package merge sums worker payloads into the final per route, per day
// visit counts.
package merge

import (
	"slices"

	"github.com/ianlewis/visits-go/internal/catalog"
	"github.com/ianlewis/visits-go/internal/datecodec"
	"github.com/ianlewis/visits-go/internal/wire"
)

// Day is the visit count of one route on one day.
type Day struct {
	Date  string
	Count uint64
}

// Route is the visit counts of one route, by ascending date.
type Route struct {
	Path string
	Days []Day
}

// Result is the merged output. Routes appear in catalog order and only
// if they have at least one visit.
type Result struct {
	Routes []Route
}

// Count returns the number of visits to path on date.
func (r *Result) Count(path, date string) uint64 {
	for _, rt := range r.Routes {
		if rt.Path != path {
			continue
		}
		for _, d := range rt.Days {
			if d.Date == date {
				return d.Count
			}
		}
	}
	return 0
}

// Map returns the result as nested maps.
func (r *Result) Map() map[string]map[string]uint64 {
	m := make(map[string]map[string]uint64, len(r.Routes))
	for _, rt := range r.Routes {
		days := make(map[string]uint64, len(rt.Days))
		for _, d := range rt.Days {
			days[d.Date] = d.Count
		}
		m[rt.Path] = days
	}
	return m
}

// Stats counts what a merge saw.
type Stats struct {
	// Records is the number of wire records decoded.
	Records int64
	// Dropped is the number of records with an unknown route or date.
	Dropped int64
}

// Merger accumulates wire payloads. Adding is commutative, so payloads
// may be added in any order.
type Merger struct {
	routes *catalog.Catalog
	dates  *datecodec.Codec
	counts map[uint16]map[uint16]uint64
	stats  Stats
}

// New returns an empty merger that resolves ids against routes and dates.
func New(routes *catalog.Catalog, dates *datecodec.Codec) *Merger {
	return &Merger{
		routes: routes,
		dates:  dates,
		counts: make(map[uint16]map[uint16]uint64),
	}
}

// Add sums the records of payload. Records whose route or date id is
// unknown are dropped. A payload that is not a whole number of records is
// rejected without adding anything.
func (m *Merger) Add(payload []byte) error {
	return wire.Each(payload, func(r wire.Record) {
		m.stats.Records++
		if _, ok := m.routes.Path(r.Route); !ok {
			m.stats.Dropped++
			return
		}
		if _, ok := m.dates.Decode(r.Date); !ok {
			m.stats.Dropped++
			return
		}
		days, ok := m.counts[r.Route]
		if !ok {
			days = make(map[uint16]uint64)
			m.counts[r.Route] = days
		}
		days[r.Date] += uint64(r.Count)
	})
}

// Stats returns the merge statistics so far.
func (m *Merger) Stats() Stats {
	return m.stats
}

// Result returns the merged counts. Date ids increase with the calendar,
// so sorting by id sorts by date.
func (m *Merger) Result() *Result {
	ids := make([]uint16, 0, len(m.counts))
	for id := range m.counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	res := &Result{Routes: make([]Route, 0, len(ids))}
	for _, id := range ids {
		path, _ := m.routes.Path(id)
		days := m.counts[id]

		dates := make([]uint16, 0, len(days))
		for d := range days {
			dates = append(dates, d)
		}
		slices.Sort(dates)

		rt := Route{Path: path, Days: make([]Day, 0, len(dates))}
		for _, d := range dates {
			date, _ := m.dates.Decode(d)
			rt.Days = append(rt.Days, Day{Date: date, Count: days[d]})
		}
		res.Routes = append(res.Routes, rt)
	}
	return res
}
