package stint

import (
	"math"
	"testing"

	"github.com/paddockdata/gridbase/internal/store"
)

func lap(session string, driver, lapNo, tyreLife int, compound string, t float64) store.Lap {
	return store.Lap{
		RaceID:       1,
		SessionType:  session,
		DriverNumber: driver,
		LapNumber:    lapNo,
		TyreLife:     tyreLife,
		Compound:     compound,
		LapTime:      t,
	}
}

func TestBuildSplitsOnCompoundChange(t *testing.T) {
	laps := []store.Lap{
		lap("R", 44, 1, 1, "SOFT", 92.0),
		lap("R", 44, 2, 2, "SOFT", 92.3),
		lap("R", 44, 3, 1, "HARD", 93.1),
		lap("R", 44, 4, 2, "HARD", 93.2),
		lap("R", 44, 5, 3, "HARD", 93.4),
	}

	stints := Build(laps)
	if len(stints) != 2 {
		t.Fatalf("got %d stints, want 2", len(stints))
	}
	if stints[0].Compound != "SOFT" || stints[0].LapCount != 2 {
		t.Errorf("first stint = %+v, want SOFT with 2 laps", stints[0])
	}
	if stints[1].Compound != "HARD" || stints[1].LapCount != 3 {
		t.Errorf("second stint = %+v, want HARD with 3 laps", stints[1])
	}
	if stints[0].StintNumber != 1 || stints[1].StintNumber != 2 {
		t.Errorf("stint numbers = %d, %d, want 1, 2", stints[0].StintNumber, stints[1].StintNumber)
	}
}

func TestBuildSplitsOnTyreLifeReset(t *testing.T) {
	// Same compound twice: only the tyre life reset marks the stop.
	laps := []store.Lap{
		lap("R", 1, 1, 5, "MEDIUM", 91.0),
		lap("R", 1, 2, 6, "MEDIUM", 91.1),
		lap("R", 1, 3, 1, "MEDIUM", 90.8),
	}

	stints := Build(laps)
	if len(stints) != 2 {
		t.Fatalf("got %d stints, want 2", len(stints))
	}
	if stints[0].LapCount != 2 || stints[1].LapCount != 1 {
		t.Errorf("lap counts = %d, %d, want 2, 1", stints[0].LapCount, stints[1].LapCount)
	}
}

func TestBuildPerDriverStintNumbers(t *testing.T) {
	laps := []store.Lap{
		lap("R", 44, 1, 1, "SOFT", 92.0),
		lap("R", 44, 2, 1, "HARD", 93.0),
		lap("R", 63, 1, 1, "SOFT", 92.5),
	}

	stints := Build(laps)
	if len(stints) != 3 {
		t.Fatalf("got %d stints, want 3", len(stints))
	}
	// Driver 63's first stint restarts numbering at 1.
	last := stints[len(stints)-1]
	if last.DriverNumber != 63 || last.StintNumber != 1 {
		t.Errorf("driver 63 stint = %+v, want stint number 1", last)
	}
}

func TestBuildDegradationSlope(t *testing.T) {
	// Lap time rises exactly 0.1s per lap of tyre life.
	laps := []store.Lap{
		lap("R", 44, 1, 1, "SOFT", 92.0),
		lap("R", 44, 2, 2, "SOFT", 92.1),
		lap("R", 44, 3, 3, "SOFT", 92.2),
		lap("R", 44, 4, 4, "SOFT", 92.3),
	}

	stints := Build(laps)
	if len(stints) != 1 {
		t.Fatalf("got %d stints, want 1", len(stints))
	}
	st := stints[0]
	if math.Abs(st.DegradationSlope-0.1) > 1e-9 {
		t.Errorf("slope = %v, want 0.1", st.DegradationSlope)
	}
	if math.Abs(st.AvgLapTime-92.15) > 1e-9 {
		t.Errorf("avg = %v, want 92.15", st.AvgLapTime)
	}
	if st.BestLapTime != 92.0 {
		t.Errorf("best = %v, want 92.0", st.BestLapTime)
	}
}

func TestBuildSingleLapStint(t *testing.T) {
	stints := Build([]store.Lap{lap("Q", 44, 1, 1, "SOFT", 90.0)})
	if len(stints) != 1 {
		t.Fatalf("got %d stints, want 1", len(stints))
	}
	if stints[0].DegradationSlope != 0 {
		t.Errorf("slope = %v, want 0 for a single lap", stints[0].DegradationSlope)
	}
}

func TestBuildEmpty(t *testing.T) {
	if got := Build(nil); got != nil {
		t.Errorf("Build(nil) = %v, want nil", got)
	}
}

func TestBuildUnorderedInput(t *testing.T) {
	laps := []store.Lap{
		lap("R", 44, 3, 3, "SOFT", 92.2),
		lap("R", 44, 1, 1, "SOFT", 92.0),
		lap("R", 44, 2, 2, "SOFT", 92.1),
	}
	stints := Build(laps)
	if len(stints) != 1 {
		t.Fatalf("got %d stints, want 1", len(stints))
	}
	if stints[0].LapCount != 3 {
		t.Errorf("lap count = %d, want 3", stints[0].LapCount)
	}
}
