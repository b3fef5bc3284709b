package insight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/yanqian/flarecast/pkg/errors"
	"github.com/yanqian/flarecast/pkg/util"
)

// Config wires runtime knobs for the insight domain.
type Config struct {
	AnalyzePath    string
	BackendAddress string
	HourlyWindow   int
	DailyWindow    int
}

// Coordinator owns one session's analysis requests. Only the outcome of the
// most recently issued request may change the published state; everything
// else is discarded when it completes.
type Coordinator struct {
	cfg       Config
	transport Transport
	detector  ChangeDetector
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	// mu covers cancel+mint in Analyze and the token comparison on completion.
	mu      sync.Mutex
	gen     generation
	cancel  context.CancelFunc
	session SessionCacheState
	state   State
	subs    map[int]chan State
	nextSub int
	closed  bool
}

// NewCoordinator builds a coordinator. observer may be nil.
func NewCoordinator(cfg Config, transport Transport, observer Observer, logger *slog.Logger) *Coordinator {
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.AnalyzePath == "" {
		cfg.AnalyzePath = "/analyze"
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:       cfg,
		transport: transport,
		detector:  NewChangeDetector(cfg.HourlyWindow, cfg.DailyWindow),
		observer:  observer,
		logger:    logger.With("component", "insight.coordinator"),
		now:       util.NowUTC,
		baseCtx:   ctx,
		stop:      stop,
		subs:      make(map[int]chan State),
	}
}

// Call is the handle returned by Analyze and Refresh.
type Call struct {
	token      Token
	done       chan struct{}
	superseded bool
}

func finishedCall(token Token, superseded bool) *Call {
	call := &Call{token: token, done: make(chan struct{}), superseded: superseded}
	close(call.done)
	return call
}

// ID is the request identifier, empty when no request was issued.
func (c *Call) ID() string {
	return c.token.String()
}

// Done is closed once the outcome has been published or discarded.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Superseded reports whether the outcome was discarded because a newer
// request replaced this one. It is false until Done is closed.
func (c *Call) Superseded() bool {
	select {
	case <-c.done:
		return c.superseded
	default:
		return false
	}
}

// Wait blocks until the call resolves or ctx ends.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Analyze supersedes any in-flight request and starts a new one. It never
// fails; outcomes are observed through Snapshot and Subscribe.
func (c *Coordinator) Analyze(req AnalysisRequest, cred Credential) *Call {
	body, encErr := EncodeRequest(req)
	fp := c.detector.Fingerprint(InputsOf(req))

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(body, encErr, fp, cred)
}

// Refresh is Analyze guarded by the change detector. It returns skipped=true
// and a nil call when the inputs match the session's last successful
// analysis.
func (c *Coordinator) Refresh(req AnalysisRequest, cred Credential) (*Call, bool) {
	in := InputsOf(req)
	body, encErr := EncodeRequest(req)
	fp := c.detector.Fingerprint(in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detector.ShouldSkip(in, c.session) {
		c.observer.RequestSkipped()
		c.logger.Debug("analysis skipped, inputs unchanged", "fingerprint", string(fp))
		return nil, true
	}
	return c.startLocked(body, encErr, fp, cred), false
}

// ShouldSkip runs the change detector against this session's cache.
func (c *Coordinator) ShouldSkip(req AnalysisRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector.ShouldSkip(InputsOf(req), c.session)
}

// Snapshot returns a copy of the published state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Session returns a copy of the session cache.
func (c *Coordinator) Session() SessionCacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Subscribe returns a channel that always holds the latest published state.
// Intermediate states may be skipped by slow readers. The channel is closed
// by the returned cancel func or by Close.
func (c *Coordinator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Reset ends the session: in-flight work is cancelled and its outcome will
// be ignored, the session cache is cleared and an empty state is published.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.publishLocked(State{})
	c.logger.Info("insight session reset")
}

// Close resets the coordinator, closes all subscriptions and waits for
// in-flight goroutines to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.resetLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

func (c *Coordinator) resetLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen.invalidate()
	c.session = SessionCacheState{}
}

func (c *Coordinator) startLocked(body []byte, encErr error, fp Fingerprint, cred Credential) *Call {
	if c.closed {
		return finishedCall(Token{}, true)
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if encErr != nil {
		// The newest intent failed before reaching the network; nothing
		// older may publish after it.
		c.gen.invalidate()
		err := apperrors.Wrap(CodeEncodingFailure, "encode analysis request", encErr)
		c.logger.Error("analysis request encoding failed", "error", err)
		c.observer.RequestFinished(OutcomeEncodingFailure, 0)
		c.applyFailureLocked(Token{}, err)
		return finishedCall(Token{}, false)
	}

	token := c.gen.next()
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel

	next := c.state
	next.Loading = true
	next.Error = ""
	next.RequestID = token.String()
	if c.session.HasCompleted {
		next.Message = updatingMessage
	} else {
		next.Message = analyzingMessage
		next.Result = nil
	}
	c.publishLocked(next)
	c.observer.RequestIssued()
	c.logger.Info("analysis request issued", "request_id", token.String(), "seq", token.Seq, "authenticated", cred.BearerToken != "")

	call := &Call{token: token, done: make(chan struct{})}
	c.wg.Add(1)
	go c.run(ctx, cancel, call, TransportRequest{
		Path:        c.cfg.AnalyzePath,
		Body:        body,
		BearerToken: cred.BearerToken,
	}, fp)
	return call
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, call *Call, req TransportRequest, fp Fingerprint) {
	defer c.wg.Done()
	defer cancel()

	start := time.Now()
	resp, err := c.transport.Send(ctx, req)
	var result AnalysisResult
	if err == nil {
		result, err = DecodeResponse(resp.Body)
		if err != nil {
			err = apperrors.Wrap(CodeMalformedResponse, "analysis response malformed", err)
		}
	}
	c.complete(call, fp, result, err, time.Since(start))
}

func (c *Coordinator) complete(call *Call, fp Fingerprint, result AnalysisResult, err error, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(call.done)

	if !c.gen.isCurrent(call.token) {
		call.superseded = true
		c.observer.RequestFinished(OutcomeSuperseded, elapsed)
		c.logger.Debug("discarding superseded analysis outcome", "request_id", call.token.String(), "error", err)
		return
	}
	c.cancel = nil

	if err != nil {
		c.observer.RequestFinished(OutcomeFailure, elapsed)
		c.logger.Warn("analysis request failed", "request_id", call.token.String(), "code", apperrors.CodeOf(err), "error", err)
		c.applyFailureLocked(call.token, err)
		return
	}

	completedAt := c.now()
	c.session = SessionCacheState{HasCompleted: true, Fingerprint: fp}
	c.publishLocked(State{
		Loading:     false,
		Message:     result.Message,
		Result:      &result,
		CompletedAt: &completedAt,
		RequestID:   call.token.String(),
	})
	c.observer.RequestFinished(OutcomeSuccess, elapsed)
	c.logger.Info("analysis request completed", "request_id", call.token.String(), "latency_ms", elapsed.Milliseconds())
}

// applyFailureLocked keeps the last valid result when the session has one
// and clears it otherwise.
func (c *Coordinator) applyFailureLocked(token Token, err error) {
	message := failureMessage(err, c.cfg.BackendAddress)
	next := c.state
	next.Loading = false
	next.Message = message
	next.Error = message
	next.RequestID = token.String()
	if !c.session.HasCompleted {
		next.Result = nil
	}
	c.publishLocked(next)
}

func (c *Coordinator) publishLocked(next State) {
	next.Version = c.state.Version + 1
	c.state = next
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
}
