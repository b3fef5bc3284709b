package insight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/flarecast/pkg/errors"
)

func TestAnalyzePublishesSuccessfulResult(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	call := coord.Analyze(sampleRequest(1013), Credential{BearerToken: "tok"})
	send := tr.next(t)
	require.Equal(t, "/analyze", send.req.Path)
	require.Equal(t, "tok", send.req.BearerToken)

	loading := coord.Snapshot()
	require.True(t, loading.Loading)
	require.Equal(t, analyzingMessage, loading.Message)
	require.Nil(t, loading.Result)
	require.Equal(t, call.ID(), loading.RequestID)

	send.succeed(`{"ai_message":"Pressure drops line up with headaches.","risk":"high","citations":["a"]}`)
	waitCall(t, call)

	state := coord.Snapshot()
	require.False(t, state.Loading)
	require.False(t, call.Superseded())
	require.Equal(t, "Pressure drops line up with headaches.", state.Message)
	require.NotNil(t, state.Result)
	require.Equal(t, RiskHigh, *state.Result.Risk)
	require.Empty(t, state.Error)
	require.NotNil(t, state.CompletedAt)
	require.True(t, coord.Session().HasCompleted)
}

func TestAnalyzeMigraineScenarioWithoutSymptoms(t *testing.T) {
	var sent []byte
	tr := transportFunc(func(ctx context.Context, req TransportRequest) (TransportResponse, error) {
		sent = req.Body
		return TransportResponse{StatusCode: 200, Body: []byte(`{"ai_message":"Calm period ahead","risk":"LOW"}`)}, nil
	})
	coord := newTestCoordinator(t, tr)

	req := AnalysisRequest{
		Symptoms:  []SymptomRecord{},
		Weather:   []WeatherSnapshot{{Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Temperature: 12, Humidity: 65, Pressure: 1016, Wind: 8}},
		Diagnoses: []string{"migraine"},
	}
	waitCall(t, coord.Analyze(req, Credential{}))

	require.Contains(t, string(sent), `"diagnoses":["migraine"]`)
	state := coord.Snapshot()
	require.False(t, state.Loading)
	require.Empty(t, state.Error)
	require.Equal(t, "Calm period ahead", state.Message)
	require.NotNil(t, state.Result)
	require.Equal(t, "Calm period ahead", state.Result.Message)
	require.NotNil(t, state.Result.Risk)
	require.Equal(t, RiskLow, *state.Result.Risk)
}

func TestSupersededSuccessArrivingLastIsDiscarded(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	firstSend := tr.next(t)
	second := coord.Analyze(sampleRequest(1000), Credential{})
	secondSend := tr.next(t)

	require.ErrorIs(t, firstSend.ctx.Err(), context.Canceled)

	secondSend.succeed(`{"ai_message":"second"}`)
	waitCall(t, second)
	firstSend.succeed(`{"ai_message":"first"}`)
	waitCall(t, first)

	state := coord.Snapshot()
	require.True(t, first.Superseded())
	require.False(t, second.Superseded())
	require.Equal(t, "second", state.Message)
	require.Equal(t, second.ID(), state.RequestID)
	require.Equal(t, coord.detector.Fingerprint(InputsOf(sampleRequest(1000))), coord.Session().Fingerprint)
}

func TestSupersededOutcomeDoesNotEndLoading(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	firstSend := tr.next(t)
	second := coord.Analyze(sampleRequest(1000), Credential{})
	secondSend := tr.next(t)

	firstSend.fail(apperrors.Wrap(CodeTransportUnreachable, "dial", errors.New("refused")))
	waitCall(t, first)

	state := coord.Snapshot()
	require.True(t, state.Loading)
	require.Empty(t, state.Error)

	secondSend.succeed(`{"ai_message":"done"}`)
	waitCall(t, second)
	require.False(t, coord.Snapshot().Loading)
}

func TestLatestFailureWinsOverEarlierSuccess(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	firstSend := tr.next(t)
	second := coord.Analyze(sampleRequest(1000), Credential{})
	secondSend := tr.next(t)

	secondSend.fail(apperrors.Wrap(CodeTransportTimeout, "timeout", context.DeadlineExceeded))
	waitCall(t, second)
	firstSend.succeed(`{"ai_message":"stale"}`)
	waitCall(t, first)

	state := coord.Snapshot()
	require.False(t, state.Loading)
	require.Nil(t, state.Result)
	require.Contains(t, state.Error, "http://insights.test")
	require.False(t, coord.Session().HasCompleted)
}

func TestLoadingKeepsPriorResultWhileUpdating(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	tr.next(t).succeed(`{"ai_message":"first"}`)
	waitCall(t, first)

	second := coord.Analyze(sampleRequest(990), Credential{})
	send := tr.next(t)
	loading := coord.Snapshot()
	require.True(t, loading.Loading)
	require.Equal(t, updatingMessage, loading.Message)
	require.NotNil(t, loading.Result)
	require.Equal(t, "first", loading.Result.Message)

	send.succeed(`{"ai_message":"second"}`)
	waitCall(t, second)
	require.Equal(t, "second", coord.Snapshot().Result.Message)
}

func TestFailureRetainsLastValidResult(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	tr.next(t).succeed(`{"ai_message":"first"}`)
	waitCall(t, first)

	second := coord.Analyze(sampleRequest(990), Credential{})
	tr.next(t).fail(apperrors.Wrap(CodeServerError, "server error", &StatusError{StatusCode: 500, Body: []byte(`{"detail":"model offline"}`)}))
	waitCall(t, second)

	state := coord.Snapshot()
	require.False(t, state.Loading)
	require.Equal(t, "Analysis failed: model offline", state.Error)
	require.Equal(t, state.Error, state.Message)
	require.NotNil(t, state.Result)
	require.Equal(t, "first", state.Result.Message)
}

func TestMalformedResponseIsAFailure(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	call := coord.Analyze(sampleRequest(1013), Credential{})
	tr.next(t).succeed(`<html>oops</html>`)
	waitCall(t, call)

	state := coord.Snapshot()
	require.False(t, state.Loading)
	require.Nil(t, state.Result)
	require.Equal(t, "Analysis failed: the analysis service returned an unexpected response.", state.Error)
	require.False(t, coord.Session().HasCompleted)
}

func TestEncodingFailureSupersedesInFlightRequest(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	firstSend := tr.next(t)

	bad := sampleRequest(1000)
	bad.Weather[0].Temperature = math.NaN()
	failed := coord.Analyze(bad, Credential{})
	waitCall(t, failed)
	require.Empty(t, failed.ID())
	require.ErrorIs(t, firstSend.ctx.Err(), context.Canceled)

	state := coord.Snapshot()
	require.False(t, state.Loading)
	require.Equal(t, "Analysis failed: the request could not be prepared.", state.Error)

	firstSend.succeed(`{"ai_message":"late"}`)
	waitCall(t, first)
	require.True(t, first.Superseded())
	require.Equal(t, state.Version, coord.Snapshot().Version)
	require.Equal(t, 1, tr.count())
}

func TestRefreshSkipsUnchangedInputs(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	call, skipped := coord.Refresh(sampleRequest(1013), Credential{})
	require.False(t, skipped)
	tr.next(t).succeed(`{"ai_message":"ok"}`)
	waitCall(t, call)

	noisy := sampleRequest(1013.3)
	noisy.Weather[1].Temperature = 18.4
	call, skipped = coord.Refresh(noisy, Credential{})
	require.True(t, skipped)
	require.Nil(t, call)
	require.True(t, coord.ShouldSkip(noisy))

	changed := sampleRequest(1013)
	changed.Diagnoses = []string{"migraine", "arthritis"}
	call, skipped = coord.Refresh(changed, Credential{})
	require.False(t, skipped)
	tr.next(t).succeed(`{"ai_message":"ok"}`)
	waitCall(t, call)
	require.Equal(t, 2, tr.count())
}

func TestFailedAnalysisDoesNotArmSkip(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	call := coord.Analyze(sampleRequest(1013), Credential{})
	tr.next(t).fail(apperrors.Wrap(CodeTransportUnreachable, "dial", errors.New("refused")))
	waitCall(t, call)

	require.False(t, coord.ShouldSkip(sampleRequest(1013)))
}

func TestResetDiscardsInFlightOutcome(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	tr.next(t).succeed(`{"ai_message":"first"}`)
	waitCall(t, first)

	second := coord.Analyze(sampleRequest(990), Credential{})
	send := tr.next(t)
	coord.Reset()
	require.ErrorIs(t, send.ctx.Err(), context.Canceled)

	send.succeed(`{"ai_message":"after reset"}`)
	waitCall(t, second)

	state := coord.Snapshot()
	require.True(t, second.Superseded())
	require.False(t, state.Loading)
	require.Nil(t, state.Result)
	require.Empty(t, state.Message)
	require.False(t, coord.Session().HasCompleted)
}

func TestSubscribeDeliversLatestState(t *testing.T) {
	tr := newGatedTransport(t)
	coord := newTestCoordinator(t, tr)

	states, cancel := coord.Subscribe()
	defer cancel()
	initial := <-states
	require.Zero(t, initial.Version)

	call := coord.Analyze(sampleRequest(1013), Credential{})
	tr.next(t).succeed(`{"ai_message":"done"}`)
	waitCall(t, call)

	latest := <-states
	require.False(t, latest.Loading)
	require.Equal(t, "done", latest.Message)

	cancel()
	_, open := <-states
	require.False(t, open)
}

func TestConcurrentAnalyzeConvergesOnLastIssued(t *testing.T) {
	tr := transportFunc(func(ctx context.Context, req TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: 200, Body: []byte(fmt.Sprintf(`{"ai_message":%q}`, req.BearerToken))}, nil
	})
	coord := newTestCoordinator(t, tr)

	const workers = 32
	calls := make([]*Call, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calls[i] = coord.Analyze(sampleRequest(1000+float64(i)), Credential{BearerToken: fmt.Sprintf("w%d", i)})
		}(i)
	}
	wg.Wait()

	last := calls[0]
	for _, call := range calls {
		waitCall(t, call)
		if call.token.Seq > last.token.Seq {
			last = call
		}
	}

	state := coord.Snapshot()
	require.False(t, last.Superseded())
	require.False(t, state.Loading)
	require.Equal(t, last.ID(), state.RequestID)
	require.Equal(t, uint64(workers), last.token.Seq)
}

func TestAnalyzeAfterCloseIsANoop(t *testing.T) {
	tr := newGatedTransport(t)
	coord := NewCoordinator(Config{BackendAddress: "http://insights.test"}, tr, nil, discardLogger())
	coord.Close()

	call := coord.Analyze(sampleRequest(1013), Credential{})
	waitCall(t, call)
	require.True(t, call.Superseded())
	require.Equal(t, 0, tr.count())
}

func TestObserverSeesOutcomes(t *testing.T) {
	tr := newGatedTransport(t)
	obs := &recordingObserver{}
	coord := newObservedCoordinator(t, tr, obs)

	first := coord.Analyze(sampleRequest(1013), Credential{})
	firstSend := tr.next(t)
	second := coord.Analyze(sampleRequest(1000), Credential{})
	tr.next(t).succeed(`{"ai_message":"ok"}`)
	waitCall(t, second)
	firstSend.succeed(`{"ai_message":"stale"}`)
	waitCall(t, first)
	_, skipped := coord.Refresh(sampleRequest(1000), Credential{})
	require.True(t, skipped)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, 2, obs.issued)
	require.Equal(t, 1, obs.skipped)
	require.Equal(t, []string{OutcomeSuccess, OutcomeSuperseded}, obs.outcomes)
}

// helpers

type transportFunc func(ctx context.Context, req TransportRequest) (TransportResponse, error)

func (f transportFunc) Send(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	return f(ctx, req)
}

type pendingSend struct {
	ctx   context.Context
	req   TransportRequest
	reply chan sendReply
}

type sendReply struct {
	resp TransportResponse
	err  error
}

func (p *pendingSend) succeed(body string) {
	p.reply <- sendReply{resp: TransportResponse{StatusCode: 200, Body: []byte(body)}}
}

func (p *pendingSend) fail(err error) {
	p.reply <- sendReply{err: err}
}

// gatedTransport holds every Send until the test replies, ignoring
// cancellation so late outcomes can be forced.
type gatedTransport struct {
	arrived  chan *pendingSend
	shutdown chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	sends    int
}

func newGatedTransport(t *testing.T) *gatedTransport {
	tr := &gatedTransport{
		arrived:  make(chan *pendingSend, 64),
		shutdown: make(chan struct{}),
	}
	t.Cleanup(tr.stop)
	return tr
}

// stop releases sends nobody answered.
func (g *gatedTransport) stop() {
	g.stopOnce.Do(func() { close(g.shutdown) })
}

func (g *gatedTransport) Send(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	g.mu.Lock()
	g.sends++
	g.mu.Unlock()

	p := &pendingSend{ctx: ctx, req: req, reply: make(chan sendReply, 1)}
	g.arrived <- p
	select {
	case r := <-p.reply:
		return r.resp, r.err
	case <-g.shutdown:
		return TransportResponse{}, apperrors.Wrap(CodeCancelled, "shutdown", context.Canceled)
	}
}

func (g *gatedTransport) next(t *testing.T) *pendingSend {
	t.Helper()
	select {
	case p := <-g.arrived:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not called")
		return nil
	}
}

func (g *gatedTransport) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sends
}

type recordingObserver struct {
	mu       sync.Mutex
	issued   int
	skipped  int
	outcomes []string
}

func (r *recordingObserver) RequestIssued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
}

func (r *recordingObserver) RequestSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *recordingObserver) RequestFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func newTestCoordinator(t *testing.T, tr Transport) *Coordinator {
	t.Helper()
	return newObservedCoordinator(t, tr, nil)
}

func newObservedCoordinator(t *testing.T, tr Transport, obs Observer) *Coordinator {
	t.Helper()
	coord := NewCoordinator(Config{BackendAddress: "http://insights.test"}, tr, obs, discardLogger())
	t.Cleanup(func() {
		if gated, ok := tr.(*gatedTransport); ok {
			gated.stop()
		}
		coord.Close()
	})
	return coord
}

func waitCall(t *testing.T, call *Call) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, call.Wait(ctx))
}

func sampleRequest(pressure float64) AnalysisRequest {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return AnalysisRequest{
		Symptoms: []SymptomRecord{{Timestamp: base, Category: "headache", Severity: 6}},
		Weather: []WeatherSnapshot{
			{Timestamp: base.Add(-time.Hour), Temperature: 17, Humidity: 70, Pressure: 1020, Wind: 3},
			{Timestamp: base, Temperature: 18, Humidity: 72, Pressure: pressure, Wind: 4},
		},
		Diagnoses: []string{"migraine"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
