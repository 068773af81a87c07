package store

import "github.com/paddockdata/gridbase/internal/tabular"

// Driver identity is the (number, season) pair; there is no cross-season
// surrogate link.
type Driver struct {
	ID       int64  `json:"id"`
	Number   int    `json:"number"`
	Code     string `json:"code"`
	FullName string `json:"full_name"`
	TeamName string `json:"team_name"`
	Season   int    `json:"season"`
}

type Team struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Season int    `json:"season"`
}

type Race struct {
	ID       int64  `json:"id"`
	Season   int    `json:"season"`
	Round    int    `json:"round"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	Location string `json:"location"`
	Date     string `json:"date"`
}

type Session struct {
	ID        int64    `json:"id"`
	RaceID    int64    `json:"race_id"`
	Type      string   `json:"type"`
	Date      string   `json:"date"`
	Weather   *string  `json:"weather"`
	TrackTemp *float64 `json:"track_temp"`
	AirTemp   *float64 `json:"air_temp"`
}

type QualifyingResult struct {
	ID           int64   `json:"id"`
	RaceID       int64   `json:"race_id"`
	DriverNumber int     `json:"driver_number"`
	Position     int     `json:"position"`
	Q1           *string `json:"q1_time"`
	Q2           *string `json:"q2_time"`
	Q3           *string `json:"q3_time"`
	// DriverName is filled on reads by joining the season's driver roster;
	// empty when the roster row has not been ingested yet.
	DriverName string `json:"driver_name"`
}

type SprintResult struct {
	ID           int64   `json:"id"`
	RaceID       int64   `json:"race_id"`
	DriverNumber int     `json:"driver_number"`
	Position     int     `json:"position"`
	Points       float64 `json:"points"`
	Status       string  `json:"status"`
	DriverName   string  `json:"driver_name"`
}

type RaceResult struct {
	ID           int64   `json:"id"`
	RaceID       int64   `json:"race_id"`
	DriverNumber int     `json:"driver_number"`
	Position     int     `json:"position"`
	Points       float64 `json:"points"`
	GridPosition int     `json:"grid_position"`
	Status       string  `json:"status"`
	FastestLap   *string `json:"fastest_lap_time"`
	DriverName   string  `json:"driver_name"`
}

type Lap struct {
	ID           int64    `json:"id"`
	RaceID       int64    `json:"race_id"`
	SessionType  string   `json:"session_type"`
	DriverNumber int      `json:"driver_number"`
	LapNumber    int      `json:"lap_number"`
	LapTime      float64  `json:"lap_time"`
	Sector1      *float64 `json:"sector1_time"`
	Sector2      *float64 `json:"sector2_time"`
	Sector3      *float64 `json:"sector3_time"`
	Compound     string   `json:"compound"`
	TyreLife     int      `json:"tyre_life"`
	TrackStatus  string   `json:"track_status"`
	PersonalBest bool     `json:"is_personal_best"`
}

type TyreStint struct {
	ID               int64   `json:"id"`
	RaceID           int64   `json:"race_id"`
	SessionType      string  `json:"session_type"`
	DriverNumber     int     `json:"driver_number"`
	Compound         string  `json:"compound"`
	StintNumber      int     `json:"stint_number"`
	LapCount         int     `json:"lap_count"`
	AvgLapTime       float64 `json:"avg_lap_time"`
	BestLapTime      float64 `json:"best_lap_time"`
	DegradationSlope float64 `json:"degradation_slope"`
}

// Prediction rows are immutable once written: one row per model, session,
// driver and run timestamp.
type Prediction struct {
	ID                int64    `json:"id"`
	RaceID            int64    `json:"race_id"`
	SessionType       string   `json:"session_type"`
	DriverNumber      int      `json:"driver_number"`
	ModelName         string   `json:"model_name"`
	PredictedPosition int      `json:"predicted_position"`
	PredictedTime     *float64 `json:"predicted_time"`
	Confidence        float64  `json:"confidence"`
	Top10Probability  *float64 `json:"top10_probability"`
	Features          string   `json:"features_json"`
	Explanation       *string  `json:"explanation_json"`
	CreatedAt         string   `json:"created_at"`
}

// Column-value builders. Order must match the table registry.

func (d *Driver) values() []interface{} {
	return []interface{}{d.Number, d.Code, d.FullName, d.TeamName, d.Season}
}

func (t *Team) values() []interface{} {
	return []interface{}{t.Name, t.Season}
}

func (r *Race) values() []interface{} {
	return []interface{}{r.Season, r.Round, r.Name, r.Country, r.Location, r.Date}
}

func (s *Session) values() []interface{} {
	return []interface{}{s.RaceID, s.Type, s.Date, s.Weather, s.TrackTemp, s.AirTemp}
}

func (q *QualifyingResult) values() []interface{} {
	return []interface{}{q.RaceID, q.DriverNumber, q.Position, q.Q1, q.Q2, q.Q3}
}

func (s *SprintResult) values() []interface{} {
	return []interface{}{s.RaceID, s.DriverNumber, s.Position, s.Points, s.Status}
}

func (r *RaceResult) values() []interface{} {
	return []interface{}{r.RaceID, r.DriverNumber, r.Position, r.Points, r.GridPosition, r.Status, r.FastestLap}
}

func (l *Lap) values() []interface{} {
	pb := 0
	if l.PersonalBest {
		pb = 1
	}
	return []interface{}{
		l.RaceID, l.SessionType, l.DriverNumber, l.LapNumber, l.LapTime,
		l.Sector1, l.Sector2, l.Sector3, l.Compound, l.TyreLife,
		l.TrackStatus, pb,
	}
}

func (s *TyreStint) values() []interface{} {
	return []interface{}{
		s.RaceID, s.SessionType, s.DriverNumber, s.Compound, s.StintNumber,
		s.LapCount, s.AvgLapTime, s.BestLapTime, s.DegradationSlope,
	}
}

func (p *Prediction) values() []interface{} {
	return []interface{}{
		p.RaceID, p.SessionType, p.DriverNumber, p.ModelName,
		p.PredictedPosition, p.PredictedTime, p.Confidence, p.Top10Probability,
		p.Features, p.Explanation, p.CreatedAt,
	}
}

// Cell accessors used when mapping ResultSet rows back onto entities.

func cellInt64(v tabular.Value) int64 { return int64(v.Number) }

func cellInt(v tabular.Value) int { return int(v.Number) }

func cellFloat(v tabular.Value) float64 { return v.Number }

func cellStr(v tabular.Value) string { return v.Text }

func cellBool(v tabular.Value) bool { return v.Kind == tabular.Number && v.Number != 0 }

func cellStrPtr(v tabular.Value) *string {
	if v.Kind == tabular.Null {
		return nil
	}
	s := v.Text
	return &s
}

func cellFloatPtr(v tabular.Value) *float64 {
	if v.Kind == tabular.Null {
		return nil
	}
	f := v.Number
	return &f
}
