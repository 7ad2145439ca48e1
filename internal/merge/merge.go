// Package merge folds freshly extracted facts into stored entities.
//
// Every operation is clone-on-write: the input entity is never modified, so
// callers keep the previous value for rollback. None of them fail on
// well-formed input.
package merge

import (
	"github.com/google/uuid"
	"github.com/hurttlocker/gremio/internal/model"
)

// KeyFunc generates collection keys for inserted events and agreements.
type KeyFunc func() string

// Merger inserts events and agreements into entity collections.
type Merger struct {
	newKey KeyFunc
}

// New returns a Merger keyed by random UUIDs. A non-nil key overrides the
// generator.
func New(key KeyFunc) *Merger {
	if key == nil {
		key = uuid.NewString
	}
	return &Merger{newKey: key}
}

// Counts reports the outcome of a multi-item merge.
type Counts struct {
	Added   int
	Skipped int
}

// MergeEvent inserts ev under a fresh key unless e already holds an event
// with the same date and title (exact, case-sensitive). It reports whether
// ev was inserted.
func (m *Merger) MergeEvent(e *model.Entity, ev model.Event) (*model.Entity, bool) {
	out := cloneOrEmpty(e)
	return out, m.insertEvent(out, ev, sameDateTitle)
}

// MergeEvents applies MergeEvent for each item in order; later items see the
// insertions of earlier ones.
func (m *Merger) MergeEvents(e *model.Entity, evs []model.Event) (*model.Entity, Counts) {
	return m.mergeAll(e, evs, sameDateTitle)
}

// MergeInvestigatedEvents merges the result of an event investigation,
// treating events with the same date and category as duplicates.
func (m *Merger) MergeInvestigatedEvents(e *model.Entity, evs []model.Event) (*model.Entity, Counts) {
	return m.mergeAll(e, evs, sameDateCategory)
}

// MergeAgreement inserts ag under a fresh key. Agreements are never
// deduplicated.
func (m *Merger) MergeAgreement(e *model.Entity, ag model.Agreement) *model.Entity {
	out := cloneOrEmpty(e)
	out.Agreements[m.uniqueKey(func(k string) bool { _, ok := out.Agreements[k]; return ok })] = ag
	return out
}

func (m *Merger) mergeAll(e *model.Entity, evs []model.Event, same func(a, b model.Event) bool) (*model.Entity, Counts) {
	out := cloneOrEmpty(e)
	var c Counts
	for _, ev := range evs {
		if m.insertEvent(out, ev, same) {
			c.Added++
		} else {
			c.Skipped++
		}
	}
	return out, c
}

func (m *Merger) insertEvent(e *model.Entity, ev model.Event, same func(a, b model.Event) bool) bool {
	for _, existing := range e.Events {
		if same(existing, ev) {
			return false
		}
	}
	e.Events[m.uniqueKey(func(k string) bool { _, ok := e.Events[k]; return ok })] = ev
	return true
}

// uniqueKey draws keys until one is free. An injected generator may repeat.
func (m *Merger) uniqueKey(taken func(string) bool) string {
	k := m.newKey()
	for i := 0; taken(k); i++ {
		if i >= 8 {
			return uuid.NewString()
		}
		k = m.newKey()
	}
	return k
}

func cloneOrEmpty(e *model.Entity) *model.Entity {
	out := e.Clone()
	if out == nil {
		out = &model.Entity{}
	}
	if out.Events == nil {
		out.Events = map[string]model.Event{}
	}
	if out.Agreements == nil {
		out.Agreements = map[string]model.Agreement{}
	}
	return out
}

func sameDateTitle(a, b model.Event) bool {
	return a.Date == b.Date && a.Title == b.Title
}

func sameDateCategory(a, b model.Event) bool {
	return a.Date == b.Date && a.Category == b.Category
}
