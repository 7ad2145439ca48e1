package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/batch"
	"github.com/hurttlocker/gremio/internal/merge"
	"github.com/hurttlocker/gremio/internal/model"
)

// Section names a part of an entity that can be refreshed on its own.
type Section string

const (
	SectionLeadership Section = "comisionDirectiva"
	SectionAgreements Section = "paritarias"
	SectionEvents     Section = "acciones"
)

// ParseSection accepts the stored field names and their English aliases.
func ParseSection(s string) (Section, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "comisiondirectiva", "comision", "leadership":
		return SectionLeadership, nil
	case "paritarias", "agreements":
		return SectionAgreements, nil
	case "acciones", "events":
		return SectionEvents, nil
	}
	return "", fmt.Errorf("unknown section %q: expected comisionDirectiva, paritarias or acciones", s)
}

// Refresh re-investigates a stored entity and reconciles the fresh profile
// into it. Nothing is saved.
func (in *Ingester) Refresh(ctx context.Context, slug string) (*Draft, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	existing, err := in.get(slug)
	if err != nil {
		return nil, err
	}
	fresh, warnings, err := in.svc.Profile(ctx, existing.Name)
	if err != nil {
		return nil, fmt.Errorf("refreshing %s: %w", slug, err)
	}
	return &Draft{Entity: merge.Reconcile(existing, fresh), Warnings: warnings}, nil
}

// Investigate researches a union by name. When the result resolves to a
// stored slug it is reconciled into the stored record.
func (in *Ingester) Investigate(ctx context.Context, name string) (*Draft, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	fresh, warnings, err := in.svc.Profile(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing, ok := in.view.Get(fresh.Slug); ok {
		return &Draft{Entity: merge.Reconcile(existing, fresh), Warnings: warnings}, nil
	}
	return &Draft{Entity: model.Sanitize(fresh), IsNew: true, Warnings: warnings}, nil
}

// RefreshSection re-investigates one section of a stored entity. Leadership
// is replaced, agreements are unioned, events are merged treating same date
// and category as duplicates. Nothing is saved.
func (in *Ingester) RefreshSection(ctx context.Context, slug string, section Section) (*Draft, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	existing, err := in.get(slug)
	if err != nil {
		return nil, err
	}

	d := &Draft{}
	switch section {
	case SectionLeadership:
		leaders, err := in.svc.Leadership(ctx, existing.Name)
		if err != nil {
			return nil, fmt.Errorf("refreshing %s leadership: %w", slug, err)
		}
		d.Entity = merge.ReplaceLeadership(existing, leaders)
		d.Added = len(leaders)
	case SectionAgreements:
		agreements, warnings, err := in.svc.Agreements(ctx, existing.Name)
		if err != nil {
			return nil, fmt.Errorf("refreshing %s agreements: %w", slug, err)
		}
		d.Entity = merge.MergeAgreements(existing, agreements)
		d.Added, d.Warnings = len(agreements), warnings
	case SectionEvents:
		events, warnings, err := in.svc.Events(ctx, existing.Name)
		if err != nil {
			return nil, fmt.Errorf("refreshing %s events: %w", slug, err)
		}
		e, c := in.merger.MergeInvestigatedEvents(existing, sortedEvents(events))
		d.Entity, d.Added, d.Skipped, d.Warnings = e, c.Added, c.Skipped, warnings
	default:
		return nil, fmt.Errorf("unknown section %q", section)
	}
	return d, nil
}

// LogoCandidates returns logo image URLs for a stored entity.
func (in *Ingester) LogoCandidates(ctx context.Context, slug string) ([]string, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	existing, err := in.get(slug)
	if err != nil {
		return nil, err
	}
	return in.svc.Logos(ctx, existing.Name, existing.Slug), nil
}

// BulkRefresh re-investigates every entity of the current snapshot in
// order and saves each reconciled record as it goes. Failures are recorded
// in the report and do not stop the run.
func (in *Ingester) BulkRefresh(ctx context.Context, onProgress batch.ProgressFunc) (*batch.Report, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	entities := in.view.Entities()
	in.log.Info("bulk refresh starting", zap.Int("entities", len(entities)))
	return in.pipeline.Run(ctx, entities, in.reconcileFresh, in.view.Save, onProgress), nil
}

// BulkRefreshStream is BulkRefresh delivering progress, outcomes and the
// final report on a channel.
func (in *Ingester) BulkRefreshStream(ctx context.Context) (<-chan batch.Update, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	return in.pipeline.Stream(ctx, in.view.Entities(), in.reconcileFresh, in.view.Save), nil
}

func (in *Ingester) reconcileFresh(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	fresh, _, err := in.svc.Profile(ctx, e.Name)
	if err != nil {
		return nil, err
	}
	return merge.Reconcile(e, fresh), nil
}
