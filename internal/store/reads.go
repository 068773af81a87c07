package store

import (
	"context"
	"fmt"

	"github.com/paddockdata/gridbase/internal/cache"
)

// Typed reads. Every query lists its columns explicitly so the row-to-struct
// mapping below stays positional, and every result is ordered by natural key
// so cached and fresh reads agree byte-for-byte.

// GetRaces returns the full race calendar, newest season first.
func (s *Store) GetRaces(ctx context.Context) ([]Race, error) {
	rs, err := s.cached(ctx, cache.Key("races", "all"), s.ttl.Default,
		`SELECT id, season, round, name, country, location, date
		 FROM races ORDER BY season DESC, round`)
	if err != nil {
		return nil, err
	}
	races := make([]Race, 0, rs.Len())
	for _, row := range rs.Rows {
		races = append(races, Race{
			ID:       cellInt64(row[0]),
			Season:   cellInt(row[1]),
			Round:    cellInt(row[2]),
			Name:     cellStr(row[3]),
			Country:  cellStr(row[4]),
			Location: cellStr(row[5]),
			Date:     cellStr(row[6]),
		})
	}
	return races, nil
}

// GetRace looks one race up by its natural key.
func (s *Store) GetRace(ctx context.Context, season, round int) (*Race, error) {
	rs, err := s.cached(ctx, cache.Key("races", season, round), s.ttl.Default,
		`SELECT id, season, round, name, country, location, date
		 FROM races WHERE season = ? AND round = ?`, season, round)
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return nil, fmt.Errorf("race %d round %d: %w", season, round, ErrNotFound)
	}
	row := rs.Rows[0]
	return &Race{
		ID:       cellInt64(row[0]),
		Season:   cellInt(row[1]),
		Round:    cellInt(row[2]),
		Name:     cellStr(row[3]),
		Country:  cellStr(row[4]),
		Location: cellStr(row[5]),
		Date:     cellStr(row[6]),
	}, nil
}

// GetDrivers returns the driver roster for a season.
func (s *Store) GetDrivers(ctx context.Context, season int) ([]Driver, error) {
	rs, err := s.cached(ctx, cache.Key("drivers", season), s.ttl.Default,
		`SELECT id, number, code, full_name, team_name, season
		 FROM drivers WHERE season = ? ORDER BY number`, season)
	if err != nil {
		return nil, err
	}
	drivers := make([]Driver, 0, rs.Len())
	for _, row := range rs.Rows {
		drivers = append(drivers, Driver{
			ID:       cellInt64(row[0]),
			Number:   cellInt(row[1]),
			Code:     cellStr(row[2]),
			FullName: cellStr(row[3]),
			TeamName: cellStr(row[4]),
			Season:   cellInt(row[5]),
		})
	}
	return drivers, nil
}

// GetTeams returns the constructor roster for a season.
func (s *Store) GetTeams(ctx context.Context, season int) ([]Team, error) {
	rs, err := s.cached(ctx, cache.Key("teams", season), s.ttl.Default,
		`SELECT id, name, season FROM teams WHERE season = ? ORDER BY name`, season)
	if err != nil {
		return nil, err
	}
	teams := make([]Team, 0, rs.Len())
	for _, row := range rs.Rows {
		teams = append(teams, Team{
			ID:     cellInt64(row[0]),
			Name:   cellStr(row[1]),
			Season: cellInt(row[2]),
		})
	}
	return teams, nil
}

// GetSessions lists the sessions of one race weekend.
func (s *Store) GetSessions(ctx context.Context, raceID int64) ([]Session, error) {
	rs, err := s.cached(ctx, cache.Key("race", raceID, "sessions"), s.ttl.Default,
		`SELECT id, race_id, type, date, weather, track_temp, air_temp
		 FROM sessions WHERE race_id = ? ORDER BY type`, raceID)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, rs.Len())
	for _, row := range rs.Rows {
		sessions = append(sessions, Session{
			ID:        cellInt64(row[0]),
			RaceID:    cellInt64(row[1]),
			Type:      cellStr(row[2]),
			Date:      cellStr(row[3]),
			Weather:   cellStrPtr(row[4]),
			TrackTemp: cellFloatPtr(row[5]),
			AirTemp:   cellFloatPtr(row[6]),
		})
	}
	return sessions, nil
}

// GetRaceResults returns the classification of one race, joined against the
// season's driver roster for display names. A driver missing from the roster
// comes back with an empty name rather than dropping the result row.
func (s *Store) GetRaceResults(ctx context.Context, raceID int64) ([]RaceResult, error) {
	rs, err := s.cached(ctx, cache.Key("race", raceID, "results"), s.ttl.Results,
		`SELECT rr.id, rr.race_id, rr.driver_number, rr.position, rr.points,
		        rr.grid_position, rr.status, rr.fastest_lap_time,
		        COALESCE(d.full_name, '')
		 FROM race_results rr
		 JOIN races r ON r.id = rr.race_id
		 LEFT JOIN drivers d ON d.number = rr.driver_number AND d.season = r.season
		 WHERE rr.race_id = ? ORDER BY rr.position`, raceID)
	if err != nil {
		return nil, err
	}
	results := make([]RaceResult, 0, rs.Len())
	for _, row := range rs.Rows {
		results = append(results, RaceResult{
			ID:           cellInt64(row[0]),
			RaceID:       cellInt64(row[1]),
			DriverNumber: cellInt(row[2]),
			Position:     cellInt(row[3]),
			Points:       cellFloat(row[4]),
			GridPosition: cellInt(row[5]),
			Status:       cellStr(row[6]),
			FastestLap:   cellStrPtr(row[7]),
			DriverName:   cellStr(row[8]),
		})
	}
	return results, nil
}

// GetQualifyingResults returns one race's qualifying classification with
// driver names joined in.
func (s *Store) GetQualifyingResults(ctx context.Context, raceID int64) ([]QualifyingResult, error) {
	rs, err := s.cached(ctx, cache.Key("race", raceID, "qualifying"), s.ttl.Results,
		`SELECT q.id, q.race_id, q.driver_number, q.position,
		        q.q1_time, q.q2_time, q.q3_time,
		        COALESCE(d.full_name, '')
		 FROM qualifying_results q
		 JOIN races r ON r.id = q.race_id
		 LEFT JOIN drivers d ON d.number = q.driver_number AND d.season = r.season
		 WHERE q.race_id = ? ORDER BY q.position`, raceID)
	if err != nil {
		return nil, err
	}
	results := make([]QualifyingResult, 0, rs.Len())
	for _, row := range rs.Rows {
		results = append(results, QualifyingResult{
			ID:           cellInt64(row[0]),
			RaceID:       cellInt64(row[1]),
			DriverNumber: cellInt(row[2]),
			Position:     cellInt(row[3]),
			Q1:           cellStrPtr(row[4]),
			Q2:           cellStrPtr(row[5]),
			Q3:           cellStrPtr(row[6]),
			DriverName:   cellStr(row[7]),
		})
	}
	return results, nil
}

// GetSprintResults returns one race's sprint classification with driver
// names joined in.
func (s *Store) GetSprintResults(ctx context.Context, raceID int64) ([]SprintResult, error) {
	rs, err := s.cached(ctx, cache.Key("race", raceID, "sprint"), s.ttl.Results,
		`SELECT sr.id, sr.race_id, sr.driver_number, sr.position, sr.points, sr.status,
		        COALESCE(d.full_name, '')
		 FROM sprint_results sr
		 JOIN races r ON r.id = sr.race_id
		 LEFT JOIN drivers d ON d.number = sr.driver_number AND d.season = r.season
		 WHERE sr.race_id = ? ORDER BY sr.position`, raceID)
	if err != nil {
		return nil, err
	}
	results := make([]SprintResult, 0, rs.Len())
	for _, row := range rs.Rows {
		results = append(results, SprintResult{
			ID:           cellInt64(row[0]),
			RaceID:       cellInt64(row[1]),
			DriverNumber: cellInt(row[2]),
			Position:     cellInt(row[3]),
			Points:       cellFloat(row[4]),
			Status:       cellStr(row[5]),
			DriverName:   cellStr(row[6]),
		})
	}
	return results, nil
}

// LapFilter narrows lap and stint reads. RaceID is required; SessionType and
// DriverNumber are optional (zero value matches everything).
type LapFilter struct {
	RaceID       int64
	SessionType  string
	DriverNumber int
}

func (f LapFilter) where() (string, []interface{}) {
	clause := "race_id = ?"
	args := []interface{}{f.RaceID}
	if f.SessionType != "" {
		clause += " AND session_type = ?"
		args = append(args, f.SessionType)
	}
	if f.DriverNumber != 0 {
		clause += " AND driver_number = ?"
		args = append(args, f.DriverNumber)
	}
	return clause, args
}

// GetLaps returns aggregated lap telemetry matching the filter.
func (s *Store) GetLaps(ctx context.Context, f LapFilter) ([]Lap, error) {
	clause, args := f.where()
	key := cache.Key("race", f.RaceID, "laps", f.SessionType, f.DriverNumber)
	rs, err := s.cached(ctx, key, s.ttl.Results,
		`SELECT id, race_id, session_type, driver_number, lap_number, lap_time,
		        sector1_time, sector2_time, sector3_time, compound, tyre_life,
		        track_status, is_personal_best
		 FROM aggregated_laps WHERE `+clause+
			` ORDER BY session_type, driver_number, lap_number`, args...)
	if err != nil {
		return nil, err
	}
	laps := make([]Lap, 0, rs.Len())
	for _, row := range rs.Rows {
		laps = append(laps, Lap{
			ID:           cellInt64(row[0]),
			RaceID:       cellInt64(row[1]),
			SessionType:  cellStr(row[2]),
			DriverNumber: cellInt(row[3]),
			LapNumber:    cellInt(row[4]),
			LapTime:      cellFloat(row[5]),
			Sector1:      cellFloatPtr(row[6]),
			Sector2:      cellFloatPtr(row[7]),
			Sector3:      cellFloatPtr(row[8]),
			Compound:     cellStr(row[9]),
			TyreLife:     cellInt(row[10]),
			TrackStatus:  cellStr(row[11]),
			PersonalBest: cellBool(row[12]),
		})
	}
	return laps, nil
}

// GetTyreStints returns tyre stint summaries matching the filter.
func (s *Store) GetTyreStints(ctx context.Context, f LapFilter) ([]TyreStint, error) {
	clause, args := f.where()
	key := cache.Key("race", f.RaceID, "stints", f.SessionType, f.DriverNumber)
	rs, err := s.cached(ctx, key, s.ttl.Results,
		`SELECT id, race_id, session_type, driver_number, compound, stint_number,
		        lap_count, avg_lap_time, best_lap_time, degradation_slope
		 FROM tyre_stints WHERE `+clause+
			` ORDER BY session_type, driver_number, stint_number`, args...)
	if err != nil {
		return nil, err
	}
	stints := make([]TyreStint, 0, rs.Len())
	for _, row := range rs.Rows {
		stints = append(stints, TyreStint{
			ID:               cellInt64(row[0]),
			RaceID:           cellInt64(row[1]),
			SessionType:      cellStr(row[2]),
			DriverNumber:     cellInt(row[3]),
			Compound:         cellStr(row[4]),
			StintNumber:      cellInt(row[5]),
			LapCount:         cellInt(row[6]),
			AvgLapTime:       cellFloat(row[7]),
			BestLapTime:      cellFloat(row[8]),
			DegradationSlope: cellFloat(row[9]),
		})
	}
	return stints, nil
}

// GetPredictions returns prediction rows for one race session, newest run
// first so callers can take the leading rows as the current model output.
func (s *Store) GetPredictions(ctx context.Context, raceID int64, sessionType string) ([]Prediction, error) {
	key := cache.Key("race", raceID, "predictions", sessionType)
	rs, err := s.cached(ctx, key, s.ttl.Predictions,
		`SELECT id, race_id, session_type, driver_number, model_name,
		        predicted_position, predicted_time, confidence, top10_probability,
		        features_json, explanation_json, created_at
		 FROM predictions WHERE race_id = ? AND session_type = ?
		 ORDER BY created_at DESC, predicted_position`, raceID, sessionType)
	if err != nil {
		return nil, err
	}
	preds := make([]Prediction, 0, rs.Len())
	for _, row := range rs.Rows {
		preds = append(preds, Prediction{
			ID:                cellInt64(row[0]),
			RaceID:            cellInt64(row[1]),
			SessionType:       cellStr(row[2]),
			DriverNumber:      cellInt(row[3]),
			ModelName:         cellStr(row[4]),
			PredictedPosition: cellInt(row[5]),
			PredictedTime:     cellFloatPtr(row[6]),
			Confidence:        cellFloat(row[7]),
			Top10Probability:  cellFloatPtr(row[8]),
			Features:          cellStr(row[9]),
			Explanation:       cellStrPtr(row[10]),
			CreatedAt:         cellStr(row[11]),
		})
	}
	return preds, nil
}
