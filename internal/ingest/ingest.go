// Package ingest wires extraction, matching and merging into the flows an
// operator runs against the tracked entity set: applying link and news
// analyses, refreshing records, executing chat actions and bulk updates.
//
// Flows that produce a change return a Draft. Nothing is persisted until
// the caller hands the draft entity to Save; bulk refresh is the exception
// and saves each entity as it goes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/gremio/internal/batch"
	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/investigate"
	"github.com/hurttlocker/gremio/internal/merge"
	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/store"
)

// Draft is a proposed entity state, not yet saved.
type Draft struct {
	Entity *model.Entity `json:"entity"`
	IsNew  bool          `json:"isNew"`
	// Added and Skipped count merged events (Skipped: duplicates) and
	// inserted agreements.
	Added    int      `json:"added"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

// Options configures an Ingester. View and Service are required.
type Options struct {
	View     *store.View
	Configs  store.ConfigStore
	Service  *investigate.Service
	Merger   *merge.Merger
	Pipeline *batch.Pipeline
	Logger   *zap.Logger
}

// Ingester runs the single-entity and bulk flows.
type Ingester struct {
	view     *store.View
	configs  store.ConfigStore
	svc      *investigate.Service
	merger   *merge.Merger
	pipeline *batch.Pipeline
	log      *zap.Logger

	mu  sync.RWMutex
	app *config.AppConfig
}

// New builds an Ingester from opts, filling defaults for the optional
// collaborators.
func New(opts Options) *Ingester {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Merger
	if m == nil {
		m = merge.New(nil)
	}
	p := opts.Pipeline
	if p == nil {
		p = batch.NewPipeline(log, nil)
	}
	return &Ingester{
		view:     opts.View,
		configs:  opts.Configs,
		svc:      opts.Service,
		merger:   m,
		pipeline: p,
		log:      log,
		app:      config.DefaultAppConfig(),
	}
}

// View returns the entity view the ingester works against.
func (in *Ingester) View() *store.View { return in.view }

// AppConfig returns the application config loaded by LoadAll.
func (in *Ingester) AppConfig() *config.AppConfig {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.app
}

// LoadAll loads the entity view and the application config concurrently.
// A config that cannot be read falls back to the defaults; only an entity
// load failure is returned.
func (in *Ingester) LoadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return in.view.Load(gctx)
	})

	app := config.DefaultAppConfig()
	if in.configs != nil {
		g.Go(func() error {
			cfg, err := in.configs.GetAppConfig(gctx)
			if err != nil {
				in.log.Warn("app config unavailable, using defaults", zap.Error(err))
				return nil
			}
			app = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range app.Check() {
		in.log.Warn("app config problem", zap.String("problem", p))
	}
	in.mu.Lock()
	in.app = app
	in.mu.Unlock()
	if in.svc != nil {
		in.svc.SetAppConfig(app)
	}
	in.log.Info("loaded", zap.Int("entities", in.view.Len()), zap.Int("custom_fields", len(app.CustomFields)))
	return nil
}

// Save persists e through the view.
func (in *Ingester) Save(ctx context.Context, e *model.Entity) error {
	return in.view.Save(ctx, e)
}

// Delete removes slug through the view.
func (in *Ingester) Delete(ctx context.Context, slug string) error {
	return in.view.Delete(ctx, slug)
}

func (in *Ingester) get(slug string) (*model.Entity, error) {
	e, ok := in.view.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%s: %w", slug, store.ErrNotFound)
	}
	return e, nil
}

func (in *Ingester) requireService() error {
	if in.svc == nil {
		return errors.New("no investigation service configured")
	}
	return nil
}
