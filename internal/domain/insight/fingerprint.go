package insight

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

const (
	defaultHourlyWindow = 8
	defaultDailyWindow  = 3
)

// Fingerprint summarises the inputs that influence an analysis outcome.
type Fingerprint string

// SessionCacheState records what the current session has already analysed.
type SessionCacheState struct {
	HasCompleted bool
	Fingerprint  Fingerprint
}

// Inputs are the request fields the change detector looks at.
type Inputs struct {
	Current   *WeatherSnapshot
	Hourly    []WeatherSnapshot
	Daily     []WeatherSnapshot
	Diagnoses []string
}

// InputsOf extracts detector inputs from a request.
func InputsOf(req AnalysisRequest) Inputs {
	in := Inputs{
		Hourly:    req.HourlyForecast,
		Daily:     req.WeeklyForecast,
		Diagnoses: req.Diagnoses,
	}
	if current, ok := req.CurrentWeather(); ok {
		in.Current = &current
	}
	return in
}

// ChangeDetector decides whether a new analysis is warranted. Values are
// rounded to whole units so sub-unit sensor noise does not trigger calls.
type ChangeDetector struct {
	HourlyWindow int
	DailyWindow  int
}

// NewChangeDetector returns a detector, substituting defaults for
// non-positive windows.
func NewChangeDetector(hourly, daily int) ChangeDetector {
	if hourly <= 0 {
		hourly = defaultHourlyWindow
	}
	if daily <= 0 {
		daily = defaultDailyWindow
	}
	return ChangeDetector{HourlyWindow: hourly, DailyWindow: daily}
}

// Fingerprint computes the fingerprint of in. It has no side effects.
func (d ChangeDetector) Fingerprint(in Inputs) Fingerprint {
	var b strings.Builder
	b.WriteString("w:")
	if in.Current == nil {
		b.WriteString("-")
	} else {
		b.WriteString(wholeUnit(in.Current.Temperature))
		b.WriteByte('|')
		b.WriteString(wholeUnit(in.Current.Humidity))
		b.WriteByte('|')
		b.WriteString(wholeUnit(in.Current.Pressure))
		b.WriteByte('|')
		b.WriteString(wholeUnit(in.Current.Wind))
	}
	b.WriteString(";h:")
	writePressures(&b, in.Hourly, d.HourlyWindow)
	b.WriteString(";d:")
	writePressures(&b, in.Daily, d.DailyWindow)
	b.WriteString(";dx:")
	b.WriteString(strings.Join(canonicalDiagnoses(in.Diagnoses), ","))
	return Fingerprint(b.String())
}

// ShouldSkip reports whether in matches the last successful analysis of the
// session. The first call of a session never skips.
func (d ChangeDetector) ShouldSkip(in Inputs, cache SessionCacheState) bool {
	if !cache.HasCompleted || cache.Fingerprint == "" {
		return false
	}
	return d.Fingerprint(in) == cache.Fingerprint
}

func writePressures(b *strings.Builder, snaps []WeatherSnapshot, window int) {
	if snaps == nil {
		b.WriteString("-")
		return
	}
	for i, snap := range snaps {
		if i >= window {
			break
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(wholeUnit(snap.Pressure))
	}
}

// wholeUnit rounds half down, so 18.5 and 18.0 share a bucket while any
// change of one unit or more moves to another.
func wholeUnit(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	r := math.Ceil(v - 0.5)
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}

func canonicalDiagnoses(diagnoses []string) []string {
	out := make([]string, 0, len(diagnoses))
	for _, dx := range diagnoses {
		if clean := strings.TrimSpace(dx); clean != "" {
			out = append(out, clean)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	for i, dx := range out {
		out[i] = strconv.Quote(dx)
	}
	return out
}
