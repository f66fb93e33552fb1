// Package refresh coordinates out-of-process ingestion with the in-memory
// catalog: trigger the ingestion job, wait for it, reload the record set.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/neotracker/neotracker/internal/catalog"
)

// ErrRefreshInProgress rejects a refresh request while another one runs.
var ErrRefreshInProgress = errors.New("refresh: already in progress")

// DefaultTimeout bounds one whole refresh run.
const DefaultTimeout = 2 * time.Minute

// State is the orchestrator state.
type State int32

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Ack acknowledges that ingestion was started.
type Ack struct {
	TaskID     string
	Queue      string
	EnqueuedAt time.Time
}

// Trigger starts out-of-process ingestion. It does not return records.
type Trigger interface {
	TriggerRefresh(ctx context.Context) (Ack, error)
}

// Waiter blocks until the acknowledged ingestion is believed finished.
type Waiter interface {
	Wait(ctx context.Context, ack Ack) error
}

// Recorder receives refresh outcome metrics.
type Recorder interface {
	ObserveRefresh(outcome string, duration time.Duration)
}

// Outcome reports how one refresh run ended.
type Outcome struct {
	RunID      string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	Rejected   int
	Replaced   bool
	Err        error
}

// Status is the presentation-facing view of the orchestrator.
type Status struct {
	State       State         `json:"state"`
	RunID       string        `json:"run_id,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	LastOutcome *OutcomeView  `json:"last_outcome,omitempty"`
	Snapshot    SnapshotStats `json:"snapshot"`
}

// OutcomeView is the JSON form of Outcome.
type OutcomeView struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Records    int       `json:"records"`
	Rejected   int       `json:"rejected"`
	Replaced   bool      `json:"replaced"`
	Error      string    `json:"error,omitempty"`
}

// SnapshotStats summarises the record set currently served.
type SnapshotStats struct {
	Records  int       `json:"records"`
	Version  int64     `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Config wires the orchestrator collaborators.
type Config struct {
	Trigger Trigger
	Fetcher catalog.RecordSource
	Waiter  Waiter
	Store   *catalog.Store
	Logger  *slog.Logger
	Metrics Recorder
	Timeout time.Duration
	// Base bounds background runs: cancelling it aborts a run in flight,
	// while the caller's context never does. Nil means runs are only bounded
	// by Timeout.
	Base context.Context
}

// Orchestrator is a two-state machine (Idle, Refreshing). At most one run is
// in flight; the store keeps serving the previous snapshot meanwhile.
type Orchestrator struct {
	state   atomic.Int32
	trigger Trigger
	fetcher catalog.RecordSource
	waiter  Waiter
	store   *catalog.Store
	logger  *slog.Logger
	metrics Recorder
	timeout time.Duration
	base    context.Context
	now     func() time.Time
	wg      sync.WaitGroup

	mu        sync.Mutex
	runID     string
	startedAt time.Time
	last      *Outcome
}

// New builds an Orchestrator. A nil Waiter means no wait between trigger and
// reload.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	store := cfg.Store
	if store == nil {
		store = catalog.NewStore()
	}
	return &Orchestrator{
		trigger: cfg.Trigger,
		fetcher: cfg.Fetcher,
		waiter:  cfg.Waiter,
		store:   store,
		logger:  logger.With(slog.String("component", "refresh")),
		metrics: cfg.Metrics,
		timeout: timeout,
		base:    cfg.Base,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the snapshot store the orchestrator writes to.
func (o *Orchestrator) Store() *catalog.Store {
	return o.store
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Request starts a refresh in the background and returns a channel that
// receives its outcome. It fails with ErrRefreshInProgress when a run is
// already active; the running refresh is not affected.
func (o *Orchestrator) Request(ctx context.Context) (<-chan Outcome, error) {
	if o.trigger == nil || o.fetcher == nil {
		return nil, errors.New("refresh: orchestrator not configured")
	}
	runID, err := o.begin()
	if err != nil {
		return nil, err
	}
	done := make(chan Outcome, 1)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := func() bool { return false }
	if o.base != nil {
		stop = context.AfterFunc(o.base, cancel)
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer stop()
		outcome := o.run(runCtx, runID)
		o.finish(outcome)
		done <- outcome
		close(done)
	}()
	return done, nil
}

// Reload fetches and installs the record set without triggering ingestion. It
// is used for the initial load and when an ingestion finishes on its own
// schedule.
func (o *Orchestrator) Reload(ctx context.Context) (Outcome, error) {
	if o.fetcher == nil {
		return Outcome{}, errors.New("refresh: orchestrator not configured")
	}
	runID, err := o.begin()
	if err != nil {
		return Outcome{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	outcome := Outcome{RunID: runID, Kind: "reload", StartedAt: o.now()}
	o.reload(ctx, o.logger.With(slog.String("run_id", runID)), &outcome)
	o.finish(outcome)
	return outcome, outcome.Err
}

// Wait blocks until background runs have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Status reports the state, the last outcome and the snapshot served.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	status := Status{State: o.State()}
	if status.State == Refreshing && !o.startedAt.IsZero() {
		started := o.startedAt
		status.RunID = o.runID
		status.StartedAt = &started
	}
	if o.last != nil {
		view := OutcomeView{
			RunID:      o.last.RunID,
			Kind:       o.last.Kind,
			StartedAt:  o.last.StartedAt,
			FinishedAt: o.last.FinishedAt,
			Records:    o.last.Records,
			Rejected:   o.last.Rejected,
			Replaced:   o.last.Replaced,
		}
		if o.last.Err != nil {
			view.Error = o.last.Err.Error()
		}
		status.LastOutcome = &view
	}
	snap := o.store.Snapshot()
	status.Snapshot = SnapshotStats{Records: snap.Len(), Version: snap.Version, LoadedAt: snap.LoadedAt}
	return status
}

func (o *Orchestrator) begin() (string, error) {
	if !o.state.CompareAndSwap(int32(Idle), int32(Refreshing)) {
		return "", ErrRefreshInProgress
	}
	runID := uuid.NewString()
	o.mu.Lock()
	o.runID = runID
	o.startedAt = o.now()
	o.mu.Unlock()
	return runID, nil
}

func (o *Orchestrator) finish(outcome Outcome) {
	o.mu.Lock()
	o.last = &outcome
	o.runID = ""
	o.startedAt = time.Time{}
	o.mu.Unlock()
	o.state.Store(int32(Idle))

	result := "success"
	if outcome.Err != nil {
		result = "failure"
	}
	if o.metrics != nil {
		o.metrics.ObserveRefresh(outcome.Kind+"_"+result, outcome.FinishedAt.Sub(outcome.StartedAt))
	}
}

func (o *Orchestrator) run(parent context.Context, runID string) Outcome {
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	outcome := Outcome{RunID: runID, Kind: "refresh", StartedAt: o.now()}
	logger := o.logger.With(slog.String("run_id", runID))
	logger.Info("refresh started")

	ack, err := o.trigger.TriggerRefresh(ctx)
	if err != nil {
		outcome.Err = catalog.NewTransportError("trigger refresh", err)
		outcome.FinishedAt = o.now()
		logger.Error("trigger ingestion", slog.Any("error", err))
		return outcome
	}
	logger = logger.With(slog.String("task_id", ack.TaskID))

	if o.waiter != nil {
		if err := o.waiter.Wait(ctx, ack); err != nil {
			logger.Warn("ingestion completion not confirmed, reloading anyway", slog.Any("error", err))
		}
	}

	o.reload(ctx, logger, &outcome)
	return outcome
}

func (o *Orchestrator) reload(ctx context.Context, logger *slog.Logger, outcome *Outcome) {
	defer func() { outcome.FinishedAt = o.now() }()

	records, err := o.fetcher.FetchRecords(ctx)
	if err != nil {
		outcome.Err = catalog.NewTransportError("fetch records", err)
		logger.Error("reload catalog, keeping previous snapshot", slog.Any("error", err))
		return
	}
	valid, rejected := catalog.Sanitize(records)
	snap := o.store.Replace(valid)
	outcome.Records = snap.Len()
	outcome.Rejected = len(rejected)
	outcome.Replaced = true
	logger.Info("catalog reloaded",
		slog.Int("records", snap.Len()),
		slog.Int("rejected", len(rejected)),
		slog.Int64("version", snap.Version),
	)
}
