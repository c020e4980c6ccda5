package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quantdesk/internal/backtest"
	"quantdesk/internal/logger"
	"quantdesk/internal/scheduler"
)

const DefaultPollInterval = 1500 * time.Millisecond

// MaxUnknownPolls is how many consecutive unrecognised statuses a job may
// report before the run is failed.
const MaxUnknownPolls = 5

// State is a snapshot of the orchestrator. Logs are the remote job's lines,
// each applied once; Journal holds the orchestrator's own timestamped lines.
type State struct {
	Status    JobStatus        `json:"status"`
	JobID     string           `json:"jobId,omitempty"`
	Logs      []string         `json:"logs"`
	Journal   []string         `json:"journal"`
	Result    *backtest.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorMeta *ErrorMeta       `json:"errorMeta,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (s State) clone() State {
	out := s
	out.Logs = append([]string{}, s.Logs...)
	out.Journal = append([]string{}, s.Journal...)
	if s.ErrorMeta != nil {
		meta := *s.ErrorMeta
		out.ErrorMeta = &meta
	}
	return out
}

// JobRecorder persists job snapshots.
type JobRecorder interface {
	Record(ctx context.Context, p Payload, st State) error
}

type Option func(*Orchestrator)

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithRiskDefaults(d RiskDefaults) Option {
	return func(o *Orchestrator) { o.defaults = d }
}

func WithJobStore(r JobRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator runs at most one remote job at a time. Starting a run or
// resetting always stops the previous poll loop first, and a generation
// counter discards anything a superseded loop still returns.
type Orchestrator struct {
	svc      Service
	interval time.Duration
	now      func() time.Time
	recorder JobRecorder
	log      *logger.Entry

	mu       sync.Mutex
	defaults RiskDefaults
	state    State
	payload  Payload
	gen      uint64
	applied  int
	unknown  int
	task     *scheduler.Task
	subs     map[int]func(State)
	nextSub  int
}

func NewOrchestrator(svc Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:      svc,
		interval: DefaultPollInterval,
		now:      time.Now,
		log:      logger.With("engine"),
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.state = State{Status: StatusIdle, Logs: []string{}, Journal: []string{}, UpdatedAt: o.now()}
	return o
}

func (o *Orchestrator) SetRiskDefaults(d RiskDefaults) {
	o.mu.Lock()
	o.defaults = d
	o.mu.Unlock()
}

func (o *Orchestrator) RiskDefaults() RiskDefaults {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.defaults
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe calls fn with every new state. fn runs on the orchestrator's
// goroutines and must not call Reset or RunLeanBacktest synchronously.
func (o *Orchestrator) Subscribe(fn func(State)) (cancel func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Wait blocks until the current poll loop, if any, has exited.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	t := o.task
	o.mu.Unlock()
	if t != nil {
		<-t.Done()
	}
}

// Reset stops polling and returns to idle, dropping job id, logs, result
// and error.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	prev := o.takeTaskLocked()
	o.gen++
	o.applied = 0
	o.unknown = 0
	o.payload = Payload{}
	o.state = State{Status: StatusIdle, Logs: []string{}, Journal: []string{}, UpdatedAt: o.now()}
	u := o.snapshotLocked()
	o.mu.Unlock()
	prev.Stop()
	o.log.Infof("[engine] reset")
	notify(u.subs, u.state)
}

// RunLeanBacktest merges the risk defaults into payload, submits it and
// returns the state after submission. Running jobs are polled in the
// background; a job that is already complete has its result fetched once.
func (o *Orchestrator) RunLeanBacktest(ctx context.Context, payload Payload) State {
	o.mu.Lock()
	prev := o.takeTaskLocked()
	o.gen++
	gen := o.gen
	o.applied = 0
	o.unknown = 0
	merged := payload.WithDefaults(o.defaults)
	o.payload = merged
	o.state = State{Status: StatusRunning, Logs: []string{}, Journal: []string{}}
	o.journalLocked("submitting %s %s", merged.Asset, merged.Timeframe)
	o.mu.Unlock()
	prev.Stop()

	if err := ValidatePayload(merged); err != nil {
		o.fail(gen, &JobSubmissionError{Reason: "invalid payload", Err: err}, nil)
		return o.State()
	}

	job, err := o.svc.SubmitJob(ctx, merged)
	if err != nil {
		o.fail(gen, &JobSubmissionError{Reason: "submit request", Err: err}, nil)
		return o.State()
	}
	if strings.TrimSpace(job.ID) == "" {
		reason := "engine returned no job id"
		if job.Error != "" {
			reason += ": " + job.Error
		}
		o.fail(gen, &JobSubmissionError{Reason: reason}, job.ErrorMeta)
		return o.State()
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return o.State()
	}
	o.state.JobID = job.ID
	o.applyLocked(job)
	status := ParseStatus(job.Status)
	o.journalLocked("job %s submitted (%s)", job.ID, orUnknown(status))
	switch status {
	case StatusCompleted:
		u := o.snapshotLocked()
		o.mu.Unlock()
		o.publish(u)
		o.fetchResult(context.WithoutCancel(ctx), gen, job.ID)
		return o.State()
	case StatusError:
		o.state.Status = StatusError
		o.state.Error = jobErrorMessage(job)
	default:
		if status == StatusQueued {
			o.state.Status = StatusQueued
		}
		id := job.ID
		o.task = scheduler.StartTask(context.WithoutCancel(ctx), o.interval, func(tctx context.Context) bool {
			return o.poll(tctx, gen, id)
		})
	}
	u := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(u)
	return u.state
}

func (o *Orchestrator) poll(ctx context.Context, gen uint64, id string) bool {
	job, err := o.svc.GetJobStatus(ctx, id)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return false
	}
	if err != nil {
		if ctx.Err() != nil {
			o.mu.Unlock()
			return false
		}
		o.mu.Unlock()
		o.fail(gen, &JobPollError{JobID: id, Phase: "status", Err: err}, nil)
		return false
	}
	o.applyLocked(job)
	status := ParseStatus(job.Status)
	keepPolling := true
	switch status {
	case StatusCompleted:
		o.journalLocked("job %s completed", id)
		o.mu.Unlock()
		o.fetchResult(ctx, gen, id)
		return false
	case StatusError:
		o.state.Status = StatusError
		o.state.Error = jobErrorMessage(job)
		o.journalLocked("job %s failed: %s", id, o.state.Error)
		keepPolling = false
	case StatusQueued, StatusRunning:
		o.unknown = 0
		if o.state.Status != status {
			o.journalLocked("job %s %s", id, status)
			o.state.Status = status
		}
	default:
		o.unknown++
		o.journalLocked("job %s reported unknown status %q (%d/%d)", id, job.Status, o.unknown, MaxUnknownPolls)
		if o.unknown >= MaxUnknownPolls {
			o.mu.Unlock()
			o.fail(gen, &JobPollError{JobID: id, Phase: "status", Err: fmt.Errorf("unrecognised status %q", job.Status)}, nil)
			return false
		}
	}
	u := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(u)
	return keepPolling
}

func (o *Orchestrator) fetchResult(ctx context.Context, gen uint64, id string) {
	res, err := o.svc.GetJobResult(ctx, id)
	if err != nil {
		o.fail(gen, &JobPollError{JobID: id, Phase: "result", Err: err}, nil)
		return
	}
	if ParseStatus(res.Status) == StatusError {
		o.fail(gen, &JobPollError{JobID: id, Phase: "result", Err: fmt.Errorf("engine reported error")}, nil)
		return
	}
	normalized := backtest.NormalizeRemote(id, res.Result)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.state.Result = &normalized
	o.state.Status = StatusCompleted
	o.journalLocked("result received: %d trades, profit %.2f", normalized.TotalTrades, normalized.TotalProfit)
	u := o.snapshotLocked()
	o.mu.Unlock()
	o.log.Infof("[engine] job %s completed trades=%d", id, normalized.TotalTrades)
	o.publish(u)
}

// fail moves the current generation into the error state.
func (o *Orchestrator) fail(gen uint64, err error, meta *ErrorMeta) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.state.Status = StatusError
	o.state.Error = err.Error()
	if meta != nil {
		o.state.ErrorMeta = meta
	}
	o.journalLocked("error: %s", err.Error())
	u := o.snapshotLocked()
	o.mu.Unlock()
	o.log.Warnf("[engine] %v", err)
	o.publish(u)
}

// applyLocked appends remote log lines past the last applied index.
func (o *Orchestrator) applyLocked(job Job) {
	if len(job.Logs) > o.applied {
		o.state.Logs = append(o.state.Logs, job.Logs[o.applied:]...)
		o.applied = len(job.Logs)
	}
	if job.ErrorMeta != nil {
		meta := *job.ErrorMeta
		o.state.ErrorMeta = &meta
	}
}

func (o *Orchestrator) journalLocked(format string, args ...any) {
	now := o.now()
	o.state.Journal = append(o.state.Journal, fmt.Sprintf("[%s] %s", now.UTC().Format("15:04:05"), fmt.Sprintf(format, args...)))
	o.state.UpdatedAt = now
}

func (o *Orchestrator) takeTaskLocked() *scheduler.Task {
	t := o.task
	o.task = nil
	return t
}

// update is a state snapshot taken together with the payload that produced
// it and the subscribers to tell.
type update struct {
	state   State
	payload Payload
	subs    []func(State)
}

func (o *Orchestrator) snapshotLocked() update {
	o.state.UpdatedAt = o.now()
	subs := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	return update{state: o.state.clone(), payload: o.payload, subs: subs}
}

func (o *Orchestrator) publish(u update) {
	if o.recorder != nil && u.state.JobID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.recorder.Record(ctx, u.payload, u.state); err != nil {
			o.log.Warnf("[engine] persist job %s failed: %v", u.state.JobID, err)
		}
		cancel()
	}
	notify(u.subs, u.state)
}

func notify(subs []func(State), snap State) {
	for _, fn := range subs {
		fn(snap.clone())
	}
}

func jobErrorMessage(job Job) string {
	switch {
	case strings.TrimSpace(job.Error) != "":
		return job.Error
	case job.ErrorMeta != nil && job.ErrorMeta.Message != "":
		return job.ErrorMeta.Message
	default:
		return "job failed"
	}
}

func orUnknown(s JobStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}
