package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/extract"
	"github.com/hurttlocker/gremio/internal/match"
	"github.com/hurttlocker/gremio/internal/merge"
	"github.com/hurttlocker/gremio/internal/model"
)

// ApplyAnalysis resolves the entity an analysis is about and folds its
// findings into a copy of it (or into a new shell). Nothing is saved.
func (in *Ingester) ApplyAnalysis(a *extract.Analysis) (*Draft, error) {
	if a == nil {
		return nil, errors.New("nil analysis")
	}
	if err := a.Err(); err != nil {
		return nil, err
	}
	res, err := match.Match(a.Match, in.view.Directory())
	if err != nil {
		return nil, err
	}

	base := res.Shell()
	if !res.IsNew {
		existing, ok := in.view.Get(res.Ref.Slug)
		if !ok {
			// Deleted between the directory snapshot and now.
			base = model.NewShell(res.Ref)
			res.IsNew = true
		} else {
			base = existing
		}
	}

	d := in.fold(base, a)
	d.IsNew = res.IsNew
	in.log.Debug("analysis applied",
		zap.String("slug", d.Entity.Slug),
		zap.String("kind", string(a.Kind)),
		zap.String("matched_by", res.By),
		zap.Int("added", d.Added),
		zap.Int("skipped", d.Skipped))
	return d, nil
}

// AnalyzeLink analyzes the article at url against the current directory and
// applies the result. Nothing is saved.
func (in *Ingester) AnalyzeLink(ctx context.Context, url string) (*Draft, error) {
	if err := in.requireService(); err != nil {
		return nil, err
	}
	a, err := in.svc.AnalyzeLink(ctx, url, in.view.Directory())
	if err != nil {
		return nil, err
	}
	return in.ApplyAnalysis(a)
}

// fold merges the payload of a into base.
func (in *Ingester) fold(base *model.Entity, a *extract.Analysis) *Draft {
	d := &Draft{Warnings: append([]string(nil), a.Warnings...)}
	switch a.Kind {
	case extract.KindEvent, extract.KindEvents:
		e, c := in.merger.MergeEvents(base, a.Events)
		d.Entity, d.Added, d.Skipped = e, c.Added, c.Skipped
	case extract.KindAgreement:
		d.Entity = base.Clone()
		if a.Agreement != nil {
			d.Entity = in.merger.MergeAgreement(base, *a.Agreement)
			d.Added = 1
		}
	case extract.KindProfile:
		e := merge.Reconcile(base, a.Profile)
		if a.Profile != nil {
			var c merge.Counts
			e, c = in.merger.MergeEvents(e, sortedEvents(a.Profile.Events))
			d.Added, d.Skipped = c.Added, c.Skipped
		}
		d.Entity = e
	default:
		d.Entity = base.Clone()
	}
	return d
}

// AcceptSuggestion turns a news suggestion into a draft. Suggestions about a
// known slug are applied like a link analysis. For unknown unions a full
// profile is investigated first and the suggested item added to it; if that
// investigation fails the suggestion is applied to a basic shell instead and
// the failure reported in Draft.Warnings.
func (in *Ingester) AcceptSuggestion(ctx context.Context, a *extract.Analysis) (*Draft, error) {
	if a == nil {
		return nil, errors.New("nil analysis")
	}
	if err := a.Err(); err != nil {
		return nil, err
	}
	if _, ok := in.view.Get(a.Match.Slug); ok {
		return in.ApplyAnalysis(a)
	}
	if _, ok := in.view.Get(model.Slugify(a.Match.Slug)); ok && a.Match.Slug != "" {
		return in.ApplyAnalysis(a)
	}
	if err := in.requireService(); err != nil {
		return nil, err
	}

	name := a.Match.Name
	if name == "" {
		name = a.Match.Slug
	}
	profile, warnings, err := in.svc.Profile(ctx, name)
	if err != nil {
		in.log.Warn("investigation of suggested union failed, creating a basic record",
			zap.String("name", name), zap.Error(err))
		d, applyErr := in.ApplyAnalysis(a)
		if applyErr != nil {
			return nil, applyErr
		}
		d.Warnings = append(d.Warnings, fmt.Sprintf("investigation failed, basic record created: %v", err))
		return d, nil
	}

	isNew := true
	base := profile
	if existing, ok := in.view.Get(profile.Slug); ok {
		base = merge.Reconcile(existing, profile)
		isNew = false
	}
	suggestion := *a
	suggestion.Profile = nil
	if suggestion.Kind == extract.KindProfile {
		suggestion.Kind = ""
	}
	d := in.fold(base, &suggestion)
	d.IsNew = isNew
	d.Warnings = append(warnings, d.Warnings...)
	return d, nil
}

// sortedEvents returns the events of m ordered by key.
func sortedEvents(m map[string]model.Event) []model.Event {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
