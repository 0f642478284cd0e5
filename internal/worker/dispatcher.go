package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evantohost/tesseract/internal/model"
)

// SendFunc delivers one outbound response to the job's submitter.
type SendFunc func(model.Response)

// Journal persists job lifecycle records and progress events. A nil Journal
// disables persistence; journal failures never fail the job itself.
type Journal interface {
	CreateJob(ctx context.Context, rec *model.JobRecord) error
	UpdateJobStatus(ctx context.Context, id, status string) error
	FinishJob(ctx context.Context, id, status, errMsg string, durationMS int) error
	InsertEvent(ctx context.Context, rec *model.ProgressRecord) error
}

// Dispatcher routes jobs to session handlers and relays their responses.
// Jobs run strictly one at a time: the session mutates shared engine state,
// and serialization is also what keeps native progress callbacks attributable
// to the job that caused them.
type Dispatcher struct {
	session *Session
	journal Journal
	broker  *ProgressBroker
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(session *Session, journal Journal, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		session: session,
		journal: journal,
		broker:  NewProgressBroker(),
		logger:  logger,
	}
}

// Broker returns the dispatcher's progress broker for event subscription.
func (d *Dispatcher) Broker() *ProgressBroker {
	return d.broker
}

// responder emits the job's responses, enforcing the one-terminal-response
// contract: after the first resolve or reject, further terminal calls are
// logged and dropped, and progress events stop flowing.
type responder struct {
	job    model.Job
	send   SendFunc
	logger *slog.Logger

	// observe is invoked for every progress event, after send.
	observe func(model.Progress)

	done atomic.Bool
	seq  atomic.Int32
}

func (r *responder) progress(status string, fraction float64) {
	if r.done.Load() {
		return
	}
	p := model.Progress{
		WorkerID: r.job.WorkerID,
		JobID:    r.job.JobID,
		Status:   status,
		Progress: fraction,
	}
	r.send(model.Response{
		WorkerID: r.job.WorkerID,
		JobID:    r.job.JobID,
		Status:   model.StatusProgress,
		Data:     p,
	})
	if r.observe != nil {
		r.observe(p)
	}
}

func (r *responder) resolve(data any) bool {
	if !r.done.CompareAndSwap(false, true) {
		r.logger.Warn("dropping duplicate terminal response", "job_id", r.job.JobID)
		return false
	}
	r.send(model.Response{
		WorkerID: r.job.WorkerID,
		JobID:    r.job.JobID,
		Status:   model.StatusResolve,
		Data:     data,
	})
	return true
}

func (r *responder) reject(err error) bool {
	if !r.done.CompareAndSwap(false, true) {
		r.logger.Warn("dropping duplicate terminal response", "job_id", r.job.JobID, "error", err)
		return false
	}
	r.send(model.Response{
		WorkerID: r.job.WorkerID,
		JobID:    r.job.JobID,
		Status:   model.StatusReject,
		Data:     err.Error(),
	})
	return true
}

// Dispatch runs one job to its terminal response. It blocks while any other
// job is in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, job model.Job, send SendFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := &responder{job: job, send: send, logger: d.logger}
	r.observe = func(p model.Progress) {
		d.broker.Publish(job.JobID, p)
		if d.journal == nil {
			return
		}
		rec := &model.ProgressRecord{
			JobID:    job.JobID,
			Seq:      int(r.seq.Add(1) - 1),
			Status:   p.Status,
			Progress: p.Progress,
		}
		if err := d.journal.InsertEvent(ctx, rec); err != nil {
			d.logger.Error("persisting progress event", "job_id", job.JobID, "error", err)
		}
	}

	defer d.broker.Close(job.JobID)

	if !model.KnownAction(job.Action) {
		r.reject(fmt.Errorf("%w: %q", ErrUnknownAction, job.Action))
		jobsTotal.WithLabelValues("unknown", model.JobRejected).Inc()
		return
	}

	d.journalCreate(ctx, job)

	start := time.Now()
	prev := d.session.setProgressTarget(r.progress)
	defer d.session.setProgressTarget(prev)

	// A panicking handler must not take the dispatcher down; the job is
	// rejected and the journal closed out like any other failure.
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("job handler panicked", "job_id", job.JobID, "action", job.Action, "panic", rec)
			r.reject(fmt.Errorf("internal error handling %s", job.Action))
			d.finish(ctx, job, model.JobRejected, fmt.Sprintf("panic: %v", rec), start)
		}
	}()

	data, err := d.handle(ctx, job)
	jobDuration.WithLabelValues(job.Action).Observe(time.Since(start).Seconds())

	if err != nil {
		d.logger.Warn("job rejected", "job_id", job.JobID, "action", job.Action, "error", err)
		r.reject(err)
		d.finish(ctx, job, model.JobRejected, err.Error(), start)
		return
	}

	r.resolve(data)
	d.finish(ctx, job, model.JobResolved, "", start)
}

// handle decodes the payload and invokes the matching session handler.
func (d *Dispatcher) handle(ctx context.Context, job model.Job) (any, error) {
	switch job.Action {
	case model.ActionLoad:
		var p model.LoadPayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.Load(ctx, p)

	case model.ActionFS:
		var p model.FSPayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.FSCall(p)

	case model.ActionLoadLanguage:
		var p model.LoadLanguagePayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.LoadLanguage(ctx, p)

	case model.ActionInitialize:
		var p model.InitializePayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.Initialize(p)

	case model.ActionSetParameters:
		var p model.SetParametersPayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.SetParameters(p.Params)

	case model.ActionRecognize:
		var p model.RecognizePayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.Recognize(p)

	case model.ActionGetPDF:
		var p model.GetPDFPayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.GetPDF(p)

	case model.ActionDetect:
		var p model.DetectPayload
		if err := decodePayload(job.Payload, &p); err != nil {
			return nil, err
		}
		return d.session.Detect(p)

	case model.ActionTerminate:
		return d.session.Terminate()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, job.Action)
}

func (d *Dispatcher) journalCreate(ctx context.Context, job model.Job) {
	if d.journal == nil {
		return
	}
	rec := &model.JobRecord{
		ID:       job.JobID,
		WorkerID: job.WorkerID,
		Action:   job.Action,
		Status:   model.JobPending,
	}
	if err := d.journal.CreateJob(ctx, rec); err != nil {
		d.logger.Error("persisting job record", "job_id", job.JobID, "error", err)
		return
	}
	if err := d.journal.UpdateJobStatus(ctx, job.JobID, model.JobRunning); err != nil {
		d.logger.Error("marking job running", "job_id", job.JobID, "error", err)
	}
}

func (d *Dispatcher) finish(ctx context.Context, job model.Job, status, errMsg string, start time.Time) {
	jobsTotal.WithLabelValues(job.Action, status).Inc()
	if d.journal == nil {
		return
	}
	durationMS := int(time.Since(start).Milliseconds())
	if err := d.journal.FinishJob(ctx, job.JobID, status, errMsg, durationMS); err != nil {
		d.logger.Error("finishing job record", "job_id", job.JobID, "error", err)
	}
}

// decodePayload unmarshals a job payload; an absent payload decodes as the
// zero value.
func decodePayload(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
