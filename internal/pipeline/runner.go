package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

// Runner ties a batch to a persisted session: every finished row is saved
// and counted, and the session metrics are computed from the stored results.
type Runner struct {
	store store.Store
	orch  *Orchestrator
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, orch *Orchestrator) *Runner {
	return &Runner{store: st, orch: orch}
}

// Store returns the backing store.
func (r *Runner) Store() store.Store { return r.store }

// Orchestrator returns the underlying orchestrator.
func (r *Runner) Orchestrator() *Orchestrator { return r.orch }

// SessionRun is a batch bound to a stored session.
type SessionRun struct {
	run     *Run
	done    chan struct{}
	metrics model.Metrics
	err     error

	mu   sync.Mutex
	sess model.Session
}

// Session returns a snapshot of the session as last known to the run.
func (s *SessionRun) Session() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *SessionRun) update(fn func(*model.Session)) {
	s.mu.Lock()
	fn(&s.sess)
	s.mu.Unlock()
}

// Events yields row_complete events. Each row is already persisted when its
// event is delivered.
func (s *SessionRun) Events() <-chan model.RowEvent { return s.run.Events() }

// Wait blocks until the session is completed or failed and returns the
// session metrics. Session reports the final state afterwards.
func (s *SessionRun) Wait() (model.Metrics, error) {
	<-s.done
	return s.metrics, s.err
}

// Start validates the batch, creates a session and begins processing.
// Validation errors are returned before any session is created.
func (r *Runner) Start(ctx context.Context, b Batch) (*SessionRun, error) {
	if _, err := OrderFields(b.Fields, b.Rows, r.orch.opts.Limits); err != nil {
		return nil, err
	}

	sess, err := r.store.CreateSession(ctx, len(b.Rows))
	if err != nil {
		return nil, eris.Wrap(err, "runner: create session")
	}
	log := zap.L().With(zap.String("session_id", sess.ID))

	if err := r.store.UpdateStatus(ctx, sess.ID, model.SessionRunning); err != nil {
		r.fail(ctx, sess.ID, log)
		return nil, eris.Wrap(err, "runner: mark running")
	}
	sess.Status = model.SessionRunning

	b.SessionID = sess.ID
	b.OnRowComplete = func(ctx context.Context, res model.RowResult) error {
		if err := r.store.SaveRowResult(ctx, sess.ID, res); err != nil {
			return err
		}
		_, err := r.store.IncrementProcessed(ctx, sess.ID)
		return err
	}

	run, err := r.orch.Start(ctx, b)
	if err != nil {
		r.fail(ctx, sess.ID, log)
		return nil, err
	}

	sr := &SessionRun{sess: *sess, run: run, done: make(chan struct{})}
	go r.finish(ctx, sr, log)
	return sr, nil
}

// Run starts a session and waits for it, discarding events.
func (r *Runner) Run(ctx context.Context, b Batch) (*model.Session, model.Metrics, error) {
	sr, err := r.Start(ctx, b)
	if err != nil {
		return nil, model.Metrics{}, err
	}
	m, err := sr.Wait()
	sess := sr.Session()
	return &sess, m, err
}

func (r *Runner) finish(ctx context.Context, sr *SessionRun, log *zap.Logger) {
	defer close(sr.done)
	id := sr.sess.ID

	failed := func(err error) {
		sr.err = err
		if r.fail(ctx, id, log) {
			sr.update(func(s *model.Session) { s.Status = model.SessionFailed })
		}
	}

	if _, err := sr.run.Wait(); err != nil {
		failed(err)
		return
	}

	m, err := r.RecomputeMetrics(ctx, id)
	if err != nil {
		failed(err)
		return
	}
	sr.metrics = m

	if err := r.store.UpdateStatus(ctx, id, model.SessionCompleted); err != nil {
		failed(eris.Wrap(err, "runner: mark completed"))
		return
	}
	processed := 0
	if meta, err := r.store.GetSessionMetadata(ctx, id); err == nil {
		processed = meta.ProcessedRows
	}
	sr.update(func(s *model.Session) {
		s.Status = model.SessionCompleted
		s.ProcessedRows = processed
	})
	log.Info("session completed",
		zap.Int("processed_rows", processed),
		zap.Float64("average_confidence", m.AverageConfidence),
		zap.Int("error_count", m.ErrorCount),
	)
}

// fail marks the session failed even when ctx is already cancelled.
func (r *Runner) fail(ctx context.Context, sessionID string, log *zap.Logger) bool {
	if err := r.store.UpdateStatus(context.WithoutCancel(ctx), sessionID, model.SessionFailed); err != nil {
		log.Error("mark session failed", zap.Error(err))
		return false
	}
	log.Warn("session failed")
	return true
}

// RecomputeMetrics aggregates the full stored results of a session and saves
// the rollup.
func (r *Runner) RecomputeMetrics(ctx context.Context, sessionID string) (model.Metrics, error) {
	results, err := r.store.GetSessionResults(ctx, sessionID, store.All())
	if err != nil {
		return model.Metrics{}, eris.Wrap(err, "runner: load results")
	}
	m := Aggregate(results)
	if err := r.store.SaveMetrics(ctx, sessionID, m); err != nil {
		return model.Metrics{}, eris.Wrap(err, "runner: save metrics")
	}
	return m, nil
}

// Metrics returns the stored metrics for a session, computing and caching
// them when none were saved yet.
func (r *Runner) Metrics(ctx context.Context, sessionID string) (model.Metrics, error) {
	if _, err := r.store.GetSessionMetadata(ctx, sessionID); err != nil {
		return model.Metrics{}, err
	}
	m, err := r.store.GetMetrics(ctx, sessionID)
	if err != nil {
		return model.Metrics{}, err
	}
	if m != nil {
		return *m, nil
	}
	return r.RecomputeMetrics(ctx, sessionID)
}
