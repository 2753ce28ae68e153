package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of the attendance job.
type Status string

// Status constants. complete and error persist until the next accepted submission.
const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

const (
	messageSaved       = "Attendance processed and saved successfully"
	messageProcessed   = "Attendance processed successfully"
	messageInterrupted = "Processing interrupted"

	persistTimeout = 30 * time.Second
)

// Event types sent to the job's event hook.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventComplete = "completed"
	EventError    = "error"
)

// Runner performs one attendance run. *Aggregator implements it.
type Runner interface {
	Capture(ctx context.Context, req Request) (*Record, error)
	StopWindow() bool
}

// RecordWriter persists finished records.
type RecordWriter interface {
	SaveRecord(ctx context.Context, rec *Record) error
}

// Snapshot is a consistent read of the job state.
type Snapshot struct {
	RunID          string    `json:"run_id,omitempty"`
	Status         Status    `json:"status"`
	Message        string    `json:"message"`
	Request        *Request  `json:"request,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}

// Event is emitted on every state change and progress update.
type Event struct {
	Type     string    `json:"type"`
	RunID    string    `json:"run_id"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Record   *Record   `json:"record,omitempty"`
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithEventHook registers fn to receive job events. fn must not block.
func WithEventHook(fn func(Event)) JobOption {
	return func(j *Job) { j.onEvent = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) JobOption {
	return func(j *Job) { j.now = now }
}

// Job is the asynchronous attendance job. At most one run is in flight; readers never block
// on it.
type Job struct {
	runner  Runner
	store   RecordWriter
	logger  *slog.Logger
	onEvent func(Event)
	now     func() time.Time

	mu        sync.RWMutex
	runID     string
	status    Status
	message   string
	request   *Request
	startedAt time.Time
	result    *Record
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewJob creates an idle job. store may be nil, in which case records are only kept in memory.
func NewJob(runner Runner, store RecordWriter, logger *slog.Logger, opts ...JobOption) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Job{
		runner: runner,
		store:  store,
		logger: logger,
		now:    time.Now,
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Submit validates req and starts a run in the background. It returns ErrJobConflict without
// touching the state while a run is processing.
func (j *Job) Submit(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	j.mu.Lock()
	if j.status == StatusProcessing {
		j.mu.Unlock()
		return "", ErrJobConflict
	}

	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.New().String()
	done := make(chan struct{})

	j.runID = runID
	j.status = StatusProcessing
	j.message = "Starting attendance capture..."
	j.request = &req
	j.startedAt = j.now()
	j.result = nil
	j.cancel = cancel
	j.done = done
	ev := j.eventLocked(EventStatus)
	j.mu.Unlock()

	j.logger.Info("attendance job accepted", "run_id", runID, "date", req.Date, "period", req.Period, "subject", req.Subject)
	j.emit(ev)

	go j.run(ctx, runID, req, done)
	return runID, nil
}

func (j *Job) run(ctx context.Context, runID string, req Request, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("attendance job panicked", "run_id", runID, "panic", r)
		}
		// Anything still processing at this point exited abnormally.
		j.finish(runID, StatusError, messageInterrupted, nil)
	}()

	rec, err := j.runner.Capture(ctx, req)
	if err != nil {
		j.logger.Error("attendance run failed", "run_id", runID, "error", err)
		j.finish(runID, StatusError, err.Error(), nil)
		return
	}

	message := messageProcessed
	if j.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		err := j.store.SaveRecord(saveCtx, rec)
		cancel()
		if err != nil {
			err = aggregationFailed("saving record failed", err)
			j.logger.Error("attendance record not saved", "run_id", runID, "error", err)
			j.finish(runID, StatusError, err.Error(), nil)
			return
		}
		message = messageSaved
	}

	j.logger.Info("attendance job complete", "run_id", runID, "verified", len(rec.Verified))
	j.finish(runID, StatusComplete, message, rec)
}

// finish moves the run to a terminal state. It is a no-op when the run already finished.
func (j *Job) finish(runID string, status Status, message string, rec *Record) {
	j.mu.Lock()
	if j.runID != runID || j.status != StatusProcessing {
		j.mu.Unlock()
		return
	}
	j.status = status
	j.message = message
	j.result = rec
	j.cancel()
	j.cancel = nil

	evType := EventComplete
	if status == StatusError {
		evType = EventError
	}
	ev := j.eventLocked(evType)
	ev.Record = rec
	j.mu.Unlock()

	j.emit(ev)
}

// ReportProgress records a progress update from the runner. Updates carrying a message
// become the job's status message.
func (j *Job) ReportProgress(p Progress) {
	j.mu.Lock()
	if j.status != StatusProcessing {
		j.mu.Unlock()
		return
	}
	if p.Message != "" {
		j.message = p.Message
	}
	ev := j.eventLocked(EventProgress)
	ev.Progress = &p
	j.mu.Unlock()

	j.emit(ev)
}

// Poll returns the current state. It never blocks on the running capture.
func (j *Job) Poll() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Snapshot{
		RunID:     j.runID,
		Status:    j.status,
		Message:   j.message,
		StartedAt: j.startedAt,
	}
	if j.request != nil {
		req := *j.request
		s.Request = &req
	}
	if !j.startedAt.IsZero() {
		s.ElapsedSeconds = j.now().Sub(j.startedAt).Seconds()
	}
	return s
}

// Result returns the record of the last completed run, or ErrNotAvailable.
func (j *Job) Result() (*Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.status != StatusComplete || j.result == nil {
		return nil, ErrNotAvailable
	}
	rec := *j.result
	return &rec, nil
}

// Stop ends the window currently being captured early. It reports whether a window was
// running.
func (j *Job) Stop() bool {
	j.mu.RLock()
	processing := j.status == StatusProcessing
	j.mu.RUnlock()
	if !processing {
		return false
	}
	return j.runner.StopWindow()
}

// Wait blocks until the current run, if any, has finished or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	j.mu.RLock()
	done := j.done
	j.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels a running capture and waits for the job to settle.
func (j *Job) Shutdown(ctx context.Context) error {
	j.mu.RLock()
	cancel := j.cancel
	j.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	if err := j.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for attendance job: %w", err)
	}
	return nil
}

func (j *Job) eventLocked(typ string) Event {
	return Event{
		Type:    typ,
		RunID:   j.runID,
		Status:  j.status,
		Message: j.message,
	}
}

func (j *Job) emit(ev Event) {
	if j.onEvent != nil {
		j.onEvent(ev)
	}
}
