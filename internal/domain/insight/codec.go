package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/yanqian/flarecast/pkg/util"
)

type symptomWire struct {
	Timestamp   string `json:"timestamp"`
	SymptomType string `json:"symptom_type"`
	Severity    int    `json:"severity"`
}

type weatherWire struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Wind        float64 `json:"wind"`
}

type requestWire struct {
	Symptoms       []symptomWire `json:"symptoms"`
	Weather        []weatherWire `json:"weather"`
	HourlyForecast []weatherWire `json:"hourly_forecast"`
	WeeklyForecast []weatherWire `json:"weekly_forecast"`
	UserID         *string       `json:"user_id"`
	Diagnoses      []string      `json:"diagnoses"`
}

type responseWire struct {
	CorrelationSummary    string             `json:"correlation_summary"`
	StrongestFactors      map[string]float64 `json:"strongest_factors"`
	AIMessage             string             `json:"ai_message"`
	Citations             []string           `json:"citations"`
	Risk                  *string            `json:"risk"`
	Forecast              *string            `json:"forecast"`
	Why                   *string            `json:"why"`
	WeeklyForecastInsight *string            `json:"weekly_forecast_insight"`
}

var errNonFinite = errors.New("non-finite weather value")

// EncodeRequest serialises req into the backend's JSON contract.
func EncodeRequest(req AnalysisRequest) ([]byte, error) {
	wire := requestWire{
		Symptoms:  make([]symptomWire, 0, len(req.Symptoms)),
		UserID:    req.UserID,
		Diagnoses: req.Diagnoses,
	}
	for i, s := range req.Symptoms {
		if s.Severity < 1 || s.Severity > 10 {
			return nil, fmt.Errorf("symptoms[%d]: severity %d outside 1..10", i, s.Severity)
		}
		wire.Symptoms = append(wire.Symptoms, symptomWire{
			Timestamp:   util.FormatISO8601(s.Timestamp),
			SymptomType: s.Category,
			Severity:    s.Severity,
		})
	}
	var err error
	if wire.Weather, err = encodeWeather("weather", req.Weather); err != nil {
		return nil, err
	}
	if wire.Weather == nil {
		wire.Weather = []weatherWire{}
	}
	if wire.HourlyForecast, err = encodeWeather("hourly_forecast", req.HourlyForecast); err != nil {
		return nil, err
	}
	if wire.WeeklyForecast, err = encodeWeather("weekly_forecast", req.WeeklyForecast); err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

func encodeWeather(field string, snaps []WeatherSnapshot) ([]weatherWire, error) {
	if snaps == nil {
		return nil, nil
	}
	out := make([]weatherWire, 0, len(snaps))
	for i, s := range snaps {
		for _, v := range []float64{s.Temperature, s.Humidity, s.Pressure, s.Wind} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%s[%d]: %w", field, i, errNonFinite)
			}
		}
		out = append(out, weatherWire{
			Timestamp:   util.FormatISO8601(s.Timestamp),
			Temperature: s.Temperature,
			Humidity:    s.Humidity,
			Pressure:    s.Pressure,
			Wind:        s.Wind,
		})
	}
	return out, nil
}

// DecodeResponse parses a 2xx backend body. A body that is not a JSON object
// of the expected shape, or that carries neither a message nor a summary, is
// malformed.
func DecodeResponse(body []byte) (AnalysisResult, error) {
	var wire responseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return AnalysisResult{}, fmt.Errorf("decode analysis response: %w", err)
	}
	message := strings.TrimSpace(wire.AIMessage)
	if message == "" {
		message = strings.TrimSpace(wire.CorrelationSummary)
	}
	if message == "" {
		return AnalysisResult{}, errors.New("analysis response carries no message")
	}
	result := AnalysisResult{
		Message:            message,
		CorrelationSummary: wire.CorrelationSummary,
		StrongestFactors:   wire.StrongestFactors,
		Forecast:           nonBlank(wire.Forecast),
		Why:                nonBlank(wire.Why),
		WeeklyInsight:      nonBlank(wire.WeeklyForecastInsight),
		Citations:          normalizeList(wire.Citations),
	}
	if wire.Risk != nil {
		if risk, ok := ParseRisk(*wire.Risk); ok {
			result.Risk = &risk
		}
	}
	return result, nil
}

// serverDetail extracts a human readable detail from an error body.
func serverDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{payload.Detail, payload.Error} {
		var text string
		if len(raw) > 0 && json.Unmarshal(raw, &text) == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return strings.TrimSpace(payload.Message)
}

func nonBlank(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func normalizeList(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{})
	for _, item := range items {
		clean := strings.TrimSpace(item)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}
