package insight

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// SymptomRecord is one logged symptom.
type SymptomRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"symptom_type"`
	Severity  int       `json:"severity"`
}

// WeatherSnapshot is an observed or forecast weather point.
type WeatherSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	Wind        float64   `json:"wind"`
}

// AnalysisRequest carries everything one analysis attempt needs. Nil
// forecast, diagnosis and user fields are sent as null.
type AnalysisRequest struct {
	Symptoms       []SymptomRecord
	Weather        []WeatherSnapshot
	HourlyForecast []WeatherSnapshot
	WeeklyForecast []WeatherSnapshot
	Diagnoses      []string
	UserID         *string
}

// CurrentWeather returns the most recent weather snapshot. Ties resolve to
// the later element.
func (r AnalysisRequest) CurrentWeather() (WeatherSnapshot, bool) {
	if len(r.Weather) == 0 {
		return WeatherSnapshot{}, false
	}
	current := r.Weather[0]
	for _, snap := range r.Weather[1:] {
		if !snap.Timestamp.Before(current.Timestamp) {
			current = snap
		}
	}
	return current, true
}

// Risk is the backend's risk classification.
type Risk string

const (
	RiskLow      Risk = "LOW"
	RiskModerate Risk = "MODERATE"
	RiskHigh     Risk = "HIGH"
)

// ParseRisk accepts the three known classifications case-insensitively.
func ParseRisk(raw string) (Risk, bool) {
	switch Risk(strings.ToUpper(strings.TrimSpace(raw))) {
	case RiskLow:
		return RiskLow, true
	case RiskModerate:
		return RiskModerate, true
	case RiskHigh:
		return RiskHigh, true
	default:
		return "", false
	}
}

// AnalysisResult is the outcome of a successful analysis.
type AnalysisResult struct {
	Message            string             `json:"message"`
	CorrelationSummary string             `json:"correlationSummary,omitempty"`
	StrongestFactors   map[string]float64 `json:"strongestFactors,omitempty"`
	Risk               *Risk              `json:"risk,omitempty"`
	Forecast           *string            `json:"forecast,omitempty"`
	Why                *string            `json:"why,omitempty"`
	WeeklyInsight      *string            `json:"weeklyInsight,omitempty"`
	Citations          []string           `json:"citations,omitempty"`
}

func (r *AnalysisResult) clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.StrongestFactors = maps.Clone(r.StrongestFactors)
	out.Citations = slices.Clone(r.Citations)
	out.Risk = clonePtr(r.Risk)
	out.Forecast = clonePtr(r.Forecast)
	out.Why = clonePtr(r.Why)
	out.WeeklyInsight = clonePtr(r.WeeklyInsight)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// State is what a coordinator publishes to observers.
type State struct {
	Loading     bool            `json:"loading"`
	Message     string          `json:"message"`
	Result      *AnalysisResult `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	Version     uint64          `json:"version"`
}

func (s State) clone() State {
	out := s
	out.Result = s.Result.clone()
	out.CompletedAt = clonePtr(s.CompletedAt)
	return out
}

// Credential is the opaque bearer token supplied by the auth collaborator.
// An empty token means the analysis runs anonymously.
type Credential struct {
	BearerToken string
}
