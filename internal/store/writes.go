package store

import (
	"context"

	"github.com/paddockdata/gridbase/internal/cache"
)

// Typed writes. Each one commits through the engine first and touches the
// cache only afterwards, so a rolled-back transaction never evicts anything
// and readers keep serving the last committed state.

// UpsertDriver writes one roster entry keyed on (number, season).
func (s *Store) UpsertDriver(ctx context.Context, d *Driver) error {
	id, err := s.engine.Upsert(ctx, "drivers", d.values())
	if err != nil {
		return err
	}
	d.ID = id
	s.cache.DeletePattern(ctx, "drivers:*")
	return nil
}

// UpsertTeam writes one constructor entry keyed on (name, season).
func (s *Store) UpsertTeam(ctx context.Context, t *Team) error {
	id, err := s.engine.Upsert(ctx, "teams", t.values())
	if err != nil {
		return err
	}
	t.ID = id
	s.cache.DeletePattern(ctx, "teams:*")
	return nil
}

// UpsertRace writes one calendar entry keyed on (season, round).
func (s *Store) UpsertRace(ctx context.Context, r *Race) error {
	id, err := s.engine.Upsert(ctx, "races", r.values())
	if err != nil {
		return err
	}
	r.ID = id
	s.cache.DeletePattern(ctx, "races:*")
	return nil
}

// UpsertSession writes one session keyed on (race_id, type).
func (s *Store) UpsertSession(ctx context.Context, sess *Session) error {
	id, err := s.engine.Upsert(ctx, "sessions", sess.values())
	if err != nil {
		return err
	}
	sess.ID = id
	s.invalidateRace(ctx, sess.RaceID)
	return nil
}

// UpsertRaceResults writes a race classification atomically: either the
// whole grid lands or none of it does.
func (s *Store) UpsertRaceResults(ctx context.Context, raceID int64, results []RaceResult) error {
	rows := make([][]interface{}, len(results))
	for i := range results {
		results[i].RaceID = raceID
		rows[i] = results[i].values()
	}
	if err := s.engine.UpsertBatch(ctx, "race_results", rows); err != nil {
		return err
	}
	s.invalidateRace(ctx, raceID)
	return nil
}

// UpsertQualifyingResults writes a qualifying classification atomically.
func (s *Store) UpsertQualifyingResults(ctx context.Context, raceID int64, results []QualifyingResult) error {
	rows := make([][]interface{}, len(results))
	for i := range results {
		results[i].RaceID = raceID
		rows[i] = results[i].values()
	}
	if err := s.engine.UpsertBatch(ctx, "qualifying_results", rows); err != nil {
		return err
	}
	s.invalidateRace(ctx, raceID)
	return nil
}

// UpsertSprintResults writes a sprint classification atomically.
func (s *Store) UpsertSprintResults(ctx context.Context, raceID int64, results []SprintResult) error {
	rows := make([][]interface{}, len(results))
	for i := range results {
		results[i].RaceID = raceID
		rows[i] = results[i].values()
	}
	if err := s.engine.UpsertBatch(ctx, "sprint_results", rows); err != nil {
		return err
	}
	s.invalidateRace(ctx, raceID)
	return nil
}

// UpsertLaps writes a batch of aggregated laps atomically. Re-ingesting a
// session overwrites the prior rows lap by lap via the natural key.
func (s *Store) UpsertLaps(ctx context.Context, raceID int64, laps []Lap) error {
	rows := make([][]interface{}, len(laps))
	for i := range laps {
		laps[i].RaceID = raceID
		rows[i] = laps[i].values()
	}
	if err := s.engine.UpsertBatch(ctx, "aggregated_laps", rows); err != nil {
		return err
	}
	s.invalidateRace(ctx, raceID)
	return nil
}

// UpsertTyreStints writes a batch of stint summaries atomically.
func (s *Store) UpsertTyreStints(ctx context.Context, raceID int64, stints []TyreStint) error {
	rows := make([][]interface{}, len(stints))
	for i := range stints {
		stints[i].RaceID = raceID
		rows[i] = stints[i].values()
	}
	if err := s.engine.UpsertBatch(ctx, "tyre_stints", rows); err != nil {
		return err
	}
	s.invalidateRace(ctx, raceID)
	return nil
}

// InsertPrediction appends one model output row. Prediction rows are
// append-only: a duplicate of an existing (race, session, driver, model,
// created_at) key leaves the stored row untouched and returns its id.
func (s *Store) InsertPrediction(ctx context.Context, p *Prediction) error {
	id, err := s.engine.Upsert(ctx, "predictions", p.values())
	if err != nil {
		return err
	}
	p.ID = id
	s.cache.DeletePattern(ctx, cache.Key("race", p.RaceID, "predictions")+":*")
	return nil
}
