// Package batch refreshes many entities in one sequential, throttled run.
//
// Entities are processed one at a time. A failure is recorded and the run
// moves on; there are no retries within a run. After each success the
// pipeline waits for the cooldown before starting the next entity, which
// keeps the generative service under its rate limits. Cancelling the run
// context stops the next entity from starting but never interrupts the one
// in flight.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/model"
)

// DefaultCooldown is the pause after each successful entity.
const DefaultCooldown = 2 * time.Second

// ReconcileFunc produces the refreshed version of an entity.
type ReconcileFunc func(ctx context.Context, e *model.Entity) (*model.Entity, error)

// PersistFunc stores a refreshed entity.
type PersistFunc func(ctx context.Context, e *model.Entity) error

// ProgressFunc is called before each entity is processed.
type ProgressFunc func(Progress)

// Progress identifies the entity about to be processed. Index is 1-based.
type Progress struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	Name  string `json:"name"`
}

// Outcome is the result for one entity.
type Outcome struct {
	Slug     string        `json:"slug"`
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Report summarizes a run. Outcomes are in processing order.
type Report struct {
	Total     int           `json:"total"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Canceled  bool          `json:"canceled,omitempty"`
	Outcomes  []Outcome     `json:"outcomes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failures returns the failed outcomes in order.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK {
			out = append(out, o)
		}
	}
	return out
}

// Update is one element of a streamed run: exactly one field is set.
type Update struct {
	Progress *Progress
	Outcome  *Outcome
	Report   *Report
}

// Pipeline runs batch refreshes.
type Pipeline struct {
	Cooldown time.Duration
	Logger   *zap.Logger
	Metrics  *Metrics

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time

	// mu guards Cooldown once the pipeline is shared.
	mu sync.RWMutex
}

// NewPipeline returns a pipeline with the default cooldown.
func NewPipeline(logger *zap.Logger, metrics *Metrics) *Pipeline {
	return &Pipeline{Cooldown: DefaultCooldown, Logger: logger, Metrics: metrics}
}

// SetCooldown changes the cooldown, including for a run in progress.
func (p *Pipeline) SetCooldown(d time.Duration) {
	p.mu.Lock()
	p.Cooldown = d
	p.mu.Unlock()
}

func (p *Pipeline) cooldown() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Cooldown
}

// Run processes entities in order and returns the report. onProgress may be
// nil.
func (p *Pipeline) Run(ctx context.Context, entities []*model.Entity, reconcile ReconcileFunc, persist PersistFunc, onProgress ProgressFunc) *Report {
	return p.run(ctx, entities, reconcile, persist, func(u Update) {
		if u.Progress != nil && onProgress != nil {
			onProgress(*u.Progress)
		}
	})
}

// Stream runs the pipeline in a goroutine and delivers progress and outcome
// updates on the returned channel, followed by the final report. The channel
// is closed after the report. It is buffered for the whole run, so a slow or
// absent reader never blocks the pipeline.
func (p *Pipeline) Stream(ctx context.Context, entities []*model.Entity, reconcile ReconcileFunc, persist PersistFunc) <-chan Update {
	ch := make(chan Update, 2*len(entities)+1)
	go func() {
		defer close(ch)
		report := p.run(ctx, entities, reconcile, persist, func(u Update) { ch <- u })
		ch <- Update{Report: report}
	}()
	return ch
}

func (p *Pipeline) run(ctx context.Context, entities []*model.Entity, reconcile ReconcileFunc, persist PersistFunc, emit func(Update)) *Report {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	report := &Report{Total: len(entities), StartedAt: now()}
	p.Metrics.start()
	log.Info("batch run started", zap.Int("total", len(entities)), zap.Duration("cooldown", p.cooldown()))

	for i, e := range entities {
		if ctx.Err() != nil {
			report.Canceled = true
			log.Warn("batch run canceled", zap.Int("processed", i), zap.Int("total", len(entities)))
			break
		}

		name, slug := "", ""
		if e != nil {
			name, slug = e.Name, e.Slug
		}
		emit(Update{Progress: &Progress{Index: i + 1, Total: len(entities), Name: name}})

		start := now()
		err := process(context.WithoutCancel(ctx), e, reconcile, persist)
		out := Outcome{Slug: slug, Name: name, OK: err == nil, Err: err, Duration: now().Sub(start)}
		report.Attempted++
		if err != nil {
			out.Error = err.Error()
			report.Failed++
			log.Warn("entity refresh failed", zap.String("slug", slug), zap.Error(err))
		} else {
			report.Succeeded++
			log.Debug("entity refreshed", zap.String("slug", slug), zap.Duration("took", out.Duration))
		}
		report.Outcomes = append(report.Outcomes, out)
		p.Metrics.observe(out.OK, out.Duration)
		emit(Update{Outcome: &out})

		if d := p.cooldown(); err == nil && i < len(entities)-1 && d > 0 {
			sleep(ctx, d)
		}
	}

	report.Duration = now().Sub(report.StartedAt)
	p.Metrics.finish(now())
	log.Info("batch run finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Bool("canceled", report.Canceled),
		zap.Duration("took", report.Duration))
	return report
}

var errNilEntity = errors.New("nil entity")

// process refreshes one entity. A panic in reconcile or persist is
// returned as that entity's error.
func process(ctx context.Context, e *model.Entity, reconcile ReconcileFunc, persist PersistFunc) (err error) {
	if e == nil {
		return errNilEntity
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh %s: panic: %v", e.Slug, r)
		}
	}()
	updated, err := reconcile(ctx, e)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", e.Slug, err)
	}
	if updated == nil {
		return fmt.Errorf("reconcile %s: no entity returned", e.Slug)
	}
	if err := persist(ctx, updated); err != nil {
		return fmt.Errorf("persist %s: %w", e.Slug, err)
	}
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
