// Package stint derives tyre stint summaries from aggregated lap data. A
// stint is a maximal run of consecutive laps by one driver in one session on
// the same set of tyres.
package stint

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/paddockdata/gridbase/internal/store"
)

// Build groups laps into stints and summarises each one. Laps may arrive in
// any order; they are sorted by session, driver and lap number first. A new
// stint starts when the compound changes or the tyre life counter resets,
// which is how a pit stop shows up in the lap feed.
func Build(laps []store.Lap) []store.TyreStint {
	if len(laps) == 0 {
		return nil
	}

	sorted := make([]store.Lap, len(laps))
	copy(sorted, laps)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SessionType != b.SessionType {
			return a.SessionType < b.SessionType
		}
		if a.DriverNumber != b.DriverNumber {
			return a.DriverNumber < b.DriverNumber
		}
		return a.LapNumber < b.LapNumber
	})

	var (
		stints  []store.TyreStint
		current []store.Lap
		number  int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		number++
		stints = append(stints, summarise(current, number))
		current = current[:0]
	}

	for i, lap := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			switch {
			case lap.SessionType != prev.SessionType || lap.DriverNumber != prev.DriverNumber:
				flush()
				number = 0
			case lap.Compound != prev.Compound || lap.TyreLife <= prev.TyreLife:
				flush()
			}
		}
		current = append(current, lap)
	}
	flush()
	return stints
}

// summarise reduces one stint's laps to its stored form. The degradation
// slope is the linear-fit change in lap time per lap of tyre life; stints of
// a single lap have no trend and report zero.
func summarise(laps []store.Lap, number int) store.TyreStint {
	first := laps[0]
	st := store.TyreStint{
		RaceID:       first.RaceID,
		SessionType:  first.SessionType,
		DriverNumber: first.DriverNumber,
		Compound:     first.Compound,
		StintNumber:  number,
		LapCount:     len(laps),
		BestLapTime:  first.LapTime,
	}

	xs := make([]float64, len(laps))
	ys := make([]float64, len(laps))
	var sum float64
	for i, lap := range laps {
		xs[i] = float64(lap.TyreLife)
		ys[i] = lap.LapTime
		sum += lap.LapTime
		if lap.LapTime < st.BestLapTime {
			st.BestLapTime = lap.LapTime
		}
	}
	st.AvgLapTime = sum / float64(len(laps))

	if len(laps) >= 2 {
		_, slope := stat.LinearRegression(xs, ys, nil, false)
		st.DegradationSlope = slope
	}
	return st
}
