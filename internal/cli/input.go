package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/yanqian/flarecast/internal/domain/insight"
)

// inputFile mirrors the analyze endpoint payload.
type inputFile struct {
	Symptoms       []insight.SymptomRecord   `json:"symptoms"`
	Weather        []insight.WeatherSnapshot `json:"weather"`
	HourlyForecast []insight.WeatherSnapshot `json:"hourly_forecast"`
	WeeklyForecast []insight.WeatherSnapshot `json:"weekly_forecast"`
	Diagnoses      []string                  `json:"diagnoses"`
	UserID         *string                   `json:"user_id"`
}

// readRequest loads analysis inputs from path, or stdin when path is "-".
func readRequest(path string, stdin io.Reader) (insight.AnalysisRequest, error) {
	if path == "" {
		return insight.AnalysisRequest{}, fmt.Errorf("--file is required")
	}
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return insight.AnalysisRequest{}, fmt.Errorf("opening input file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in inputFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return insight.AnalysisRequest{}, fmt.Errorf("parsing input file: %w", err)
	}
	return insight.AnalysisRequest{
		Symptoms:       in.Symptoms,
		Weather:        in.Weather,
		HourlyForecast: in.HourlyForecast,
		WeeklyForecast: in.WeeklyForecast,
		Diagnoses:      in.Diagnoses,
		UserID:         in.UserID,
	}, nil
}
