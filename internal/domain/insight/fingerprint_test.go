package insight

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresSubUnitNoise(t *testing.T) {
	d := NewChangeDetector(0, 0)

	a := Inputs{Current: &WeatherSnapshot{Temperature: 18.0, Humidity: 80.4, Pressure: 1007.3, Wind: 4}}
	b := Inputs{Current: &WeatherSnapshot{Temperature: 18.5, Humidity: 80.0, Pressure: 1007.0, Wind: 4.2}}
	require.Equal(t, d.Fingerprint(a), d.Fingerprint(b))

	c := Inputs{Current: &WeatherSnapshot{Temperature: 19.6, Humidity: 80, Pressure: 1007, Wind: 4}}
	require.NotEqual(t, d.Fingerprint(a), d.Fingerprint(c))
}

func TestFingerprintRoundTripExample(t *testing.T) {
	d := NewChangeDetector(0, 0)
	noisy := d.Fingerprint(Inputs{Current: &WeatherSnapshot{Temperature: 18.5, Humidity: 80.4, Pressure: 1007.3, Wind: 15.0}})
	clean := d.Fingerprint(Inputs{Current: &WeatherSnapshot{Temperature: 18.0, Humidity: 80.0, Pressure: 1007.0, Wind: 15.0}})
	require.Equal(t, clean, noisy)

	dropped := d.Fingerprint(Inputs{Current: &WeatherSnapshot{Temperature: 18.5, Humidity: 80.4, Pressure: 1005.0, Wind: 15.0}})
	require.NotEqual(t, noisy, dropped)
}

func TestFingerprintOneUnitChangeAtHalfValues(t *testing.T) {
	d := NewChangeDetector(0, 0)
	cases := []struct{ a, b float64 }{
		{1007.5, 1008.5},
		{1006.5, 1007.5},
		{-0.5, 0.5},
		{17.9, 18.9},
	}
	for _, tc := range cases {
		fa := d.Fingerprint(Inputs{Current: &WeatherSnapshot{Pressure: tc.a}})
		fb := d.Fingerprint(Inputs{Current: &WeatherSnapshot{Pressure: tc.b}})
		require.NotEqual(t, fa, fb, "%v vs %v", tc.a, tc.b)
	}
}

func TestWholeUnit(t *testing.T) {
	cases := map[float64]string{
		18.5:    "18",
		18.51:   "19",
		1007.5:  "1007",
		1008.5:  "1008",
		-0.3:    "0",
		-0.5:    "-1",
		-1.2:    "-1",
		1e19:    "10000000000000000000",
		5e19:    "50000000000000000000",
		-2.5e19: "-25000000000000000000",
	}
	for in, want := range cases {
		require.Equal(t, want, wholeUnit(in), "%v", in)
	}
}

func TestFingerprintDiagnosesAreOrderInsensitive(t *testing.T) {
	d := NewChangeDetector(0, 0)

	a := d.Fingerprint(Inputs{Diagnoses: []string{"migraine", " arthritis", "migraine"}})
	b := d.Fingerprint(Inputs{Diagnoses: []string{"arthritis", "migraine"}})
	require.Equal(t, a, b)

	c := d.Fingerprint(Inputs{Diagnoses: []string{"arthritis"}})
	require.NotEqual(t, a, c)
}

func TestFingerprintForecastWindows(t *testing.T) {
	d := NewChangeDetector(2, 1)
	hourly := []WeatherSnapshot{{Pressure: 1010}, {Pressure: 1008}, {Pressure: 990}}
	daily := []WeatherSnapshot{{Pressure: 1012}, {Pressure: 980}}

	base := d.Fingerprint(Inputs{Hourly: hourly, Daily: daily})

	outside := []WeatherSnapshot{{Pressure: 1010}, {Pressure: 1008}, {Pressure: 1030}}
	require.Equal(t, base, d.Fingerprint(Inputs{Hourly: outside, Daily: daily}))

	inside := []WeatherSnapshot{{Pressure: 1010}, {Pressure: 1002}, {Pressure: 990}}
	require.NotEqual(t, base, d.Fingerprint(Inputs{Hourly: inside, Daily: daily}))

	require.NotEqual(t, base, d.Fingerprint(Inputs{Hourly: hourly}))
}

func TestFingerprintDistinguishesAbsentFromEmpty(t *testing.T) {
	d := NewChangeDetector(0, 0)
	require.NotEqual(t,
		d.Fingerprint(Inputs{Hourly: nil}),
		d.Fingerprint(Inputs{Hourly: []WeatherSnapshot{}}),
	)
	require.Equal(t, Fingerprint("w:-;h:-;d:-;dx:"), d.Fingerprint(Inputs{}))
}

func TestFingerprintHandlesNonFiniteValues(t *testing.T) {
	d := NewChangeDetector(0, 0)
	fp := d.Fingerprint(Inputs{Current: &WeatherSnapshot{Temperature: math.NaN(), Humidity: math.Inf(1), Pressure: math.Inf(-1)}})
	require.Equal(t, Fingerprint("w:nan|inf|-inf|0;h:-;d:-;dx:"), fp)
}

func TestShouldSkip(t *testing.T) {
	d := NewChangeDetector(0, 0)
	in := Inputs{Current: &WeatherSnapshot{Temperature: 18, Pressure: 1007}}
	fp := d.Fingerprint(in)

	cases := []struct {
		name  string
		cache SessionCacheState
		want  bool
	}{
		{name: "first call of session", cache: SessionCacheState{}, want: false},
		{name: "completed without fingerprint", cache: SessionCacheState{HasCompleted: true}, want: false},
		{name: "fingerprint without completion", cache: SessionCacheState{Fingerprint: fp}, want: false},
		{name: "unchanged", cache: SessionCacheState{HasCompleted: true, Fingerprint: fp}, want: true},
		{name: "changed", cache: SessionCacheState{HasCompleted: true, Fingerprint: "w:-"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, d.ShouldSkip(in, tc.cache))
		})
	}
}

func TestInputsOfUsesLatestWeather(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req := AnalysisRequest{Weather: []WeatherSnapshot{
		{Timestamp: base, Pressure: 1000},
		{Timestamp: base.Add(2 * time.Hour), Pressure: 1010},
		{Timestamp: base.Add(time.Hour), Pressure: 1020},
	}}

	in := InputsOf(req)
	require.NotNil(t, in.Current)
	require.Equal(t, 1010.0, in.Current.Pressure)

	require.Nil(t, InputsOf(AnalysisRequest{}).Current)
}
