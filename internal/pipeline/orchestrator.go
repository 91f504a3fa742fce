// Package pipeline drives dependency-aware, confidence-gated enrichment of
// tabular rows.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-cli/internal/extract"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Options controls batch execution.
type Options struct {
	// Concurrency is the number of rows in flight at once. Default: 3.
	Concurrency int

	// Policy bounds retries of a failed extraction call.
	Policy resilience.Policy

	// RowDelay is the minimum spacing between row starts. Zero disables pacing.
	RowDelay time.Duration

	// ConfidenceThreshold flags extracted values below it as low confidence.
	ConfidenceThreshold float64

	Limits Limits

	// CallTimeout bounds each extraction attempt. Zero means no timeout.
	CallTimeout time.Duration
}

// DefaultOptions returns the batch defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:         3,
		Policy:              resilience.DefaultPolicy(),
		RowDelay:            time.Second,
		ConfidenceThreshold: 0.5,
		Limits:              Limits{MaxFields: 50},
		CallTimeout:         2 * time.Minute,
	}
}

// Batch is a set of rows to enrich with a set of fields.
type Batch struct {
	SessionID string
	Rows      []model.Row
	Fields    []model.FieldDefinition
	Context   model.ContextConfig

	// FirstRow is the sheet index of Rows[0]. Directives and results carry
	// sheet indexes.
	FirstRow int

	// OnRowComplete, if set, is called with each finished row before its
	// event is emitted. An error aborts the batch.
	OnRowComplete func(ctx context.Context, res model.RowResult) error
}

// Orchestrator runs batches against an Extractor.
type Orchestrator struct {
	ext  extract.Extractor
	opts Options
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(ext extract.Extractor, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	return &Orchestrator{ext: ext, opts: opts}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Run is an in-progress batch.
type Run struct {
	events  chan model.RowEvent
	done    chan struct{}
	results []model.RowResult
	err     error
}

// Events yields one row_complete event per finished row in completion order.
// The channel is closed when the batch ends.
func (r *Run) Events() <-chan model.RowEvent { return r.events }

// Wait blocks until the batch ends and returns the completed rows ordered by
// row index. If the batch was cancelled or aborted by OnRowComplete, the rows
// finished before that are returned with the error.
func (r *Run) Wait() ([]model.RowResult, error) {
	<-r.done
	return r.results, r.err
}

// Start validates the batch and begins processing it. A configuration error is
// returned before any extraction call is made.
func (o *Orchestrator) Start(ctx context.Context, b Batch) (*Run, error) {
	order, err := OrderFields(b.Fields, b.Rows, o.opts.Limits)
	if err != nil {
		return nil, err
	}

	run := &Run{
		events: make(chan model.RowEvent, len(b.Rows)),
		done:   make(chan struct{}),
	}
	go o.run(ctx, b, order, run)
	return run, nil
}

// Enrich runs the batch to completion.
func (o *Orchestrator) Enrich(ctx context.Context, b Batch) ([]model.RowResult, error) {
	run, err := o.Start(ctx, b)
	if err != nil {
		return nil, err
	}
	return run.Wait()
}

// EnrichRow enriches a single row synchronously. allRows supplies neighbor
// context and may be nil, in which case row stands alone at rowIndex.
func (o *Orchestrator) EnrichRow(ctx context.Context, row model.Row, rowIndex int, allRows []model.Row, fields []model.FieldDefinition, cfg model.ContextConfig) (model.RowResult, error) {
	b := Batch{Fields: fields, Context: cfg}
	local := rowIndex
	switch {
	case rowIndex < 0 || (allRows != nil && rowIndex >= len(allRows)):
		return model.RowResult{}, eris.Errorf("pipeline: row index %d out of range", rowIndex)
	case allRows == nil:
		b.Rows = []model.Row{row}
		b.FirstRow = rowIndex
		local = 0
	default:
		b.Rows = append([]model.Row(nil), allRows...)
		b.Rows[rowIndex] = row
	}
	order, err := OrderFields(fields, b.Rows, o.opts.Limits)
	if err != nil {
		return model.RowResult{}, err
	}
	res, ok := o.enrichRow(ctx, b, order, local, zap.L())
	if !ok {
		return model.RowResult{}, eris.Wrap(ctx.Err(), "pipeline: enrich row cancelled")
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, b Batch, order []model.FieldDefinition, run *Run) {
	defer close(run.done)
	defer close(run.events)

	log := zap.L().With(zap.String("session_id", b.SessionID))
	log.Info("batch started",
		zap.Int("rows", len(b.Rows)),
		zap.Int("fields", len(order)),
		zap.Int("concurrency", o.opts.Concurrency),
	)

	limit := rate.Inf
	if o.opts.RowDelay > 0 {
		limit = rate.Every(o.opts.RowDelay)
	}
	pacer := rate.NewLimiter(limit, 1)

	slots := make([]*model.RowResult, len(b.Rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i := range b.Rows {
		if err := pacer.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			rowLog := log.With(zap.Int("row_index", i))
			res, ok := o.enrichRow(gctx, b, order, i, rowLog)
			if !ok {
				rowLog.Debug("row discarded after cancellation")
				return nil
			}
			if b.OnRowComplete != nil {
				if err := b.OnRowComplete(gctx, res); err != nil {
					return eris.Wrapf(err, "pipeline: row %d", i)
				}
			}
			slots[i] = &res
			run.events <- model.RowEvent{
				Type:        model.EventRowComplete,
				RowIndex:    res.RowIndex,
				Status:      res.Status,
				CellResults: res.Enrichments,
			}
			rowLog.Info("row complete", zap.String("status", string(res.Status)))
			return nil
		})
	}
	groupErr := g.Wait()

	for _, s := range slots {
		if s != nil {
			run.results = append(run.results, *s)
		}
	}
	sort.Slice(run.results, func(i, j int) bool { return run.results[i].RowIndex < run.results[j].RowIndex })

	if groupErr != nil {
		run.err = groupErr
		log.Error("batch aborted", zap.Int("completed_rows", len(run.results)), zap.Error(groupErr))
		return
	}
	if err := ctx.Err(); err != nil {
		run.err = eris.Wrap(err, "pipeline: batch cancelled")
		log.Warn("batch cancelled", zap.Int("completed_rows", len(run.results)))
		return
	}
	log.Info("batch complete", zap.Int("rows", len(run.results)))
}

// enrichRow processes every field of one row in dependency order. It returns
// false when the batch context was cancelled before the row finished, in
// which case nothing from the row may be written.
func (o *Orchestrator) enrichRow(ctx context.Context, b Batch, order []model.FieldDefinition, i int, log *zap.Logger) (model.RowResult, bool) {
	row := b.Rows[i].Clone()
	cells := make(map[string]model.CellResult, len(order))

	for _, f := range order {
		if ctx.Err() != nil {
			return model.RowResult{}, false
		}

		plan := BuildPlan(PlanInput{
			Field:    f,
			Row:      row,
			RowIndex: b.FirstRow + i,
			AllRows:  b.Rows,
			FirstRow: b.FirstRow,
			Existing: cells,
			Context:  b.Context,
		})

		var cell model.CellResult
		if len(plan.MissingDependencies) > 0 {
			cell = model.CellResult{
				Field:               f.Name,
				Confidence:          model.Float(0),
				MissingDependencies: plan.MissingDependencies,
			}
		} else {
			cell = o.extractCell(ctx, f, plan, log)
		}

		if ctx.Err() != nil {
			return model.RowResult{}, false
		}
		cells[f.Name] = cell
		if !cell.Failed() && model.IsPresent(cell.Value) {
			row.Set(f.Name, model.FormatValue(cell.Value))
		}
	}

	res := model.RowResult{
		RowIndex:     b.FirstRow + i,
		OriginalData: b.Rows[i],
		Enrichments:  cells,
		Status:       rowStatus(cells),
	}
	if res.Status == model.RowStatusError {
		res.Error = "all fields failed"
	}
	return res, true
}

func (o *Orchestrator) extractCell(ctx context.Context, f model.FieldDefinition, plan Plan, log *zap.Logger) model.CellResult {
	policy := o.opts.Policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger(log, "extract "+f.Name)
	}

	req := extract.Request{Field: f.Name, Directive: plan.Directive, ExpectedType: f.ExpectedType()}

	// Attempts run detached from the batch context so an in-flight call can
	// finish; the caller discards its result if the batch was cancelled.
	callCtx := context.WithoutCancel(ctx)
	got, out := resilience.Retry(ctx, policy, func(_ context.Context, _ int) (*extract.Extraction, error) {
		attemptCtx := callCtx
		if o.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(callCtx, o.opts.CallTimeout)
			defer cancel()
		}
		e, err := o.ext.Extract(attemptCtx, req)
		if err == nil && e == nil {
			err = eris.New("extractor returned no result")
		}
		// A call cut off by its own timeout is retried unless the batch is done.
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = resilience.NewTransientError(eris.Wrapf(err, "extract %s: call timed out after %s", f.Name, o.opts.CallTimeout), 0)
		}
		return e, err
	})

	if out.Err != nil {
		log.Warn("cell extraction failed",
			zap.String("field", f.Name),
			zap.Int("attempts", out.Attempts),
			zap.Error(out.Err),
		)
		return model.CellResult{Field: f.Name, Error: out.Err.Error(), Attempts: out.Attempts}
	}

	cell := model.CellResult{
		Field:      f.Name,
		Value:      got.Value,
		Confidence: got.Confidence,
		Sources:    got.Sources,
		Attempts:   out.Attempts,
	}
	if effectiveConfidence(cell) < o.opts.ConfidenceThreshold {
		cell.LowConfidence = true
	}
	return cell
}

func rowStatus(cells map[string]model.CellResult) model.RowStatus {
	failed := 0
	for _, c := range cells {
		if c.Failed() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return model.RowStatusSuccess
	case failed == len(cells):
		return model.RowStatusError
	default:
		return model.RowStatusPartial
	}
}
