package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/flarecast/internal/domain/auth"
	"github.com/yanqian/flarecast/internal/domain/insight"
)

const sampleInputs = `{
  "symptoms": [{"timestamp": "2026-03-01T09:00:00Z", "symptom_type": "joint pain", "severity": 6}],
  "weather": [{"timestamp": "2026-03-01T09:00:00Z", "temperature": 11.2, "humidity": 84, "pressure": 1003.4, "wind": 5}],
  "hourly_forecast": [{"timestamp": "2026-03-01T10:00:00Z", "temperature": 11, "humidity": 85, "pressure": 1001, "wind": 6}],
  "diagnoses": ["arthritis"]
}`

func TestFingerprintCommandJSON(t *testing.T) {
	cfgPath := writeConfig(t, "http://unused.test")
	input := writeFile(t, "inputs.json", sampleInputs)

	out, err := runCLI(t, "fingerprint", "--config", cfgPath, "--file", input, "--format", "json")
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))

	req, err := readRequest(input, nil)
	require.NoError(t, err)
	want := insight.NewChangeDetector(4, 2).Fingerprint(insight.InputsOf(req))
	require.Equal(t, string(want), payload["fingerprint"])
}

func TestAnalyzeCommandRendersResult(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ai_message":"Pressure drop ahead","risk":"high","strongest_factors":{"pressure":0.71}}`)
	}))
	t.Cleanup(srv.Close)

	cfgPath := writeConfig(t, srv.URL)
	input := writeFile(t, "inputs.json", sampleInputs)

	out, err := runCLI(t, "analyze", "--config", cfgPath, "--file", input, "--token", "abc")
	require.NoError(t, err)
	require.Equal(t, "Bearer abc", gotAuth)
	require.Contains(t, out, "Pressure drop ahead")
	require.Contains(t, out, "HIGH")
	require.Contains(t, out, "0.71")
}

func TestAnalyzeCommandRunsAnonymously(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = io.WriteString(w, `{"ai_message":"Calm period ahead","risk":"LOW"}`)
	}))
	t.Cleanup(srv.Close)

	cfgPath := writeConfig(t, srv.URL)
	input := writeFile(t, "inputs.json", `{"symptoms": [], "weather": [{"timestamp": "2026-03-01T09:00:00Z", "temperature": 12, "humidity": 65, "pressure": 1016, "wind": 8}]}`)

	out, err := runCLI(t, "analyze", "--config", cfgPath, "--file", input, "--format", "json")
	require.NoError(t, err)
	require.False(t, hasAuth)

	var state insight.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	require.Equal(t, "Calm period ahead", state.Message)
}

func TestAnalyzeCommandReportsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":"symptoms required"}`)
	}))
	t.Cleanup(srv.Close)

	cfgPath := writeConfig(t, srv.URL)
	input := writeFile(t, "inputs.json", sampleInputs)

	out, err := runCLI(t, "analyze", "--config", cfgPath, "--file", input, "--format", "json")
	require.EqualError(t, err, "Analysis failed: symptoms required")

	var state insight.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	require.False(t, state.Loading)
	require.Nil(t, state.Result)
}

func TestAnalyzeCommandRequiresFile(t *testing.T) {
	cfgPath := writeConfig(t, "http://unused.test")
	_, err := runCLI(t, "analyze", "--config", cfgPath)
	require.EqualError(t, err, "--file is required")
}

func TestTokenCommandIssuesValidToken(t *testing.T) {
	cfgPath := writeConfig(t, "http://unused.test")

	out, err := runCLI(t, "token", "--config", cfgPath, "--user", "u-42", "--entitled", "--format", "json")
	require.NoError(t, err)

	var issued auth.IssuedToken
	require.NoError(t, json.Unmarshal([]byte(out), &issued))

	svc := auth.NewService(auth.Config{Secret: "cli-test-secret"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	claims, err := svc.ValidateToken(context.Background(), issued.Token)
	require.NoError(t, err)
	require.Equal(t, "u-42", claims.UserID)
	require.True(t, claims.Entitled)
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	cfgPath := writeConfig(t, "http://unused.test")
	_, err := runCLI(t, "token", "--config", cfgPath, "--user", "u-1", "--format", "xml")
	require.ErrorContains(t, err, "unsupported format")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeConfig(t *testing.T, backendURL string) string {
	t.Helper()
	return writeFile(t, "config.yaml", fmt.Sprintf(`environment: test
log:
  level: error
  format: text
backend:
  baseUrl: %s
  analyzePath: /analyze
  timeout: 5s
  retry:
    enabled: false
auth:
  secret: cli-test-secret
insight:
  hourlyWindow: 4
  dailyWindow: 2
`, backendURL))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
