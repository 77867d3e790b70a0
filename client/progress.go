package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	sse "github.com/r3labs/sse/v2"
	backoff "gopkg.in/cenkalti/backoff.v1"

	"github.com/lorekeep/lorekeep/pkg/logger"
)

// Sync job statuses as reported by the backend.
const (
	StatusConnecting = "connecting"
	StatusSyncing    = "syncing"
	StatusParsing    = "parsing"
	StatusEmbedding  = "embedding"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Stream event names.
const (
	eventConnected    = "connected"
	eventCurrentState = "current_state"
	eventStarted      = "started"
	eventProgress     = "progress"
	eventComplete     = "complete"
	eventError        = "error"
)

// ProgressState is one full snapshot of a sync job. Every progress-bearing
// event replaces the held state wholesale; fields are never merged.
type ProgressState struct {
	SyncID          string     `json:"sync_id"`
	TenantID        string     `json:"tenant_id"`
	UserID          string     `json:"user_id"`
	ConnectorType   string     `json:"connector_type"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	TotalItems      int        `json:"total_items"`
	ProcessedItems  int        `json:"processed_items"`
	FailedItems     int        `json:"failed_items"`
	CurrentItem     string     `json:"current_item,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	PercentComplete float64    `json:"percent_complete"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

const (
	defaultWatchdogWindow = 15 * time.Second
	defaultAutoCloseDelay = 5 * time.Second
	defaultReconnectSpan  = 30 * time.Second
	notifyRequestTimeout  = 10 * time.Second
)

// ProgressStreamClient consumes the event stream for one sync job and keeps
// a coherent ProgressState plus a derived time-remaining estimate. The token
// is captured once at construction; streams authenticate via a connection
// parameter, not headers.
type ProgressStreamClient struct {
	api    *API
	syncID string
	token  string

	watchdogWindow time.Duration
	autoCloseDelay time.Duration
	reconnectSpan  time.Duration

	mu               sync.Mutex
	state            *ProgressState
	est              *estimator
	estimateText     string
	notifyOnComplete bool
	notified         bool
	completed        bool
	sawTerminal      bool
	watchdogDisarmed bool
	closed           bool
	watchdog         *time.Timer
	autoClose        *time.Timer

	updates chan ProgressState
	errs    chan *StreamError

	cancel context.CancelFunc
	done   chan struct{}
}

// StreamOption configures a ProgressStreamClient.
type StreamOption func(*ProgressStreamClient)

// WithWatchdogWindow sets how long the client waits for the first event
// before declaring a connection timeout.
func WithWatchdogWindow(d time.Duration) StreamOption {
	return func(p *ProgressStreamClient) { p.watchdogWindow = d }
}

// WithAutoCloseDelay sets the grace period between a complete event and the
// automatic teardown, giving a display time to show the terminal state.
func WithAutoCloseDelay(d time.Duration) StreamOption {
	return func(p *ProgressStreamClient) { p.autoCloseDelay = d }
}

// WithReconnectSpan bounds how long transport reconnects are attempted
// before the stream is declared lost.
func WithReconnectSpan(d time.Duration) StreamOption {
	return func(p *ProgressStreamClient) { p.reconnectSpan = d }
}

// NewProgressStream opens the event stream for syncID and starts consuming
// it immediately. The watchdog is armed now; any received event disarms it
// for the life of the connection.
func NewProgressStream(api *API, syncID, token string, opts ...StreamOption) *ProgressStreamClient {
	p := &ProgressStreamClient{
		api:            api,
		syncID:         syncID,
		token:          token,
		watchdogWindow: defaultWatchdogWindow,
		autoCloseDelay: defaultAutoCloseDelay,
		reconnectSpan:  defaultReconnectSpan,
		est:            newEstimator(),
		updates:        make(chan ProgressState, 16),
		errs:           make(chan *StreamError, 4),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.watchdog = time.AfterFunc(p.watchdogWindow, p.watchdogFired)

	conn := sse.NewClient(api.StreamURL(syncID, token))
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.reconnectSpan
	conn.ReconnectStrategy = bo

	go p.run(ctx, conn)
	return p
}

// State returns a copy of the latest snapshot, or nil before the first
// progress-bearing event.
func (p *ProgressStreamClient) State() *ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil
	}
	cp := *p.state
	return &cp
}

// Updates delivers state snapshots as they arrive. Slow consumers miss
// intermediate snapshots rather than stalling the stream.
func (p *ProgressStreamClient) Updates() <-chan ProgressState { return p.updates }

// Errors delivers stream-level failures and server-reported job failures.
func (p *ProgressStreamClient) Errors() <-chan *StreamError { return p.errs }

// Done is closed once the reader goroutine has exited.
func (p *ProgressStreamClient) Done() <-chan struct{} { return p.done }

// EstimatedTimeRemaining returns the current human-readable estimate, or ""
// when none applies.
func (p *ProgressStreamClient) EstimatedTimeRemaining() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimateText
}

// NotifyOnComplete opts in to the completion email. If the job already
// finished the request fires immediately; otherwise it fires on the
// transition into complete, at most once per stream instance.
func (p *ProgressStreamClient) NotifyOnComplete() {
	p.mu.Lock()
	p.notifyOnComplete = true
	fireNow := p.completed && !p.notified
	if fireNow {
		p.notified = true
	}
	p.mu.Unlock()
	if fireNow {
		go p.sendNotify()
	}
}

// Close tears the stream down: cancels the watchdog and auto-close timers,
// stops the reader, and releases the connection. Safe to call repeatedly;
// no timer fires after Close returns.
func (p *ProgressStreamClient) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.watchdog != nil {
		p.watchdog.Stop()
		p.watchdog = nil
	}
	if p.autoClose != nil {
		p.autoClose.Stop()
		p.autoClose = nil
	}
	cancel := p.cancel
	p.mu.Unlock()
	cancel()
}

func (p *ProgressStreamClient) run(ctx context.Context, conn *sse.Client) {
	defer close(p.done)
	err := conn.SubscribeRawWithContext(ctx, p.handleEvent)
	if ctx.Err() != nil || p.isClosed() {
		return
	}
	p.mu.Lock()
	terminal := p.sawTerminal
	p.mu.Unlock()
	if err == nil && terminal {
		// The server ended the stream after its terminal event.
		return
	}
	logger.Warnf("progress stream %s lost: %v", p.syncID, err)
	p.pushError(&StreamError{Kind: ConnectionLost, Message: "connection to sync progress stream lost"})
	p.Close()
}

func (p *ProgressStreamClient) handleEvent(msg *sse.Event) {
	p.disarmWatchdog()
	switch string(msg.Event) {
	case eventConnected:
		return
	case eventCurrentState, eventStarted, eventProgress, eventComplete, eventError:
		var st ProgressState
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			logger.Debugf("progress stream %s: bad %s payload: %v", p.syncID, msg.Event, err)
			return
		}
		p.apply(&st)
	default:
		// Unknown event types are liveness at most.
	}
}

// apply installs a snapshot, recomputes the estimate, and handles the
// complete/error transitions.
func (p *ProgressStreamClient) apply(st *ProgressState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state = st
	p.est.observe(st)
	p.estimateText = p.est.estimate(st)

	if st.Status == StatusComplete || st.Status == StatusError {
		p.sawTerminal = true
	}
	var fireNotify bool
	if st.Status == StatusComplete && !p.completed {
		p.completed = true
		fireNotify = p.notifyOnComplete && !p.notified
		if fireNotify {
			p.notified = true
		}
		if p.autoClose == nil {
			p.autoClose = time.AfterFunc(p.autoCloseDelay, p.Close)
		}
	}
	var jobErr *StreamError
	if st.Status == StatusError {
		jobErr = &StreamError{Kind: JobFailed, Message: st.ErrorMessage}
	}
	snapshot := *st
	p.mu.Unlock()

	select {
	case p.updates <- snapshot:
	default:
	}
	if jobErr != nil {
		p.pushError(jobErr)
	}
	if fireNotify {
		go p.sendNotify()
	}
}

func (p *ProgressStreamClient) sendNotify() {
	ctx, cancel := context.WithTimeout(context.Background(), notifyRequestTimeout)
	defer cancel()
	if err := p.api.Notify(ctx, p.syncID, p.token); err != nil {
		logger.Warnf("completion notification for sync %s failed: %v", p.syncID, err)
	}
}

// disarmWatchdog cancels the connection watchdog permanently; it is armed
// once per stream, not once per event.
func (p *ProgressStreamClient) disarmWatchdog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchdogDisarmed {
		return
	}
	p.watchdogDisarmed = true
	if p.watchdog != nil {
		p.watchdog.Stop()
		p.watchdog = nil
	}
}

func (p *ProgressStreamClient) watchdogFired() {
	p.mu.Lock()
	stale := !p.watchdogDisarmed && !p.closed
	p.mu.Unlock()
	if !stale {
		return
	}
	p.pushError(&StreamError{Kind: ConnectionTimeout, Message: "no events received from sync progress stream"})
	p.Close()
}

func (p *ProgressStreamClient) pushError(err *StreamError) {
	select {
	case p.errs <- err:
	default:
		logger.Debugf("progress stream %s: dropping error, channel full: %v", p.syncID, err)
	}
}

func (p *ProgressStreamClient) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
