package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/match"
	"github.com/hurttlocker/gremio/internal/model"
)

// View is the in-memory snapshot of a Store. Writes are applied to the
// snapshot first and then sent to the store; when the store rejects a write
// the snapshot is reloaded from the store. Writes still in flight during a
// reload are laid back over the reloaded snapshot. View is safe for
// concurrent use. Values handed out are clones.
type View struct {
	store Store
	log   *zap.Logger

	mu       sync.RWMutex
	entities map[string]*model.Entity
	pending  map[string]pendingWrite
	seq      uint64

	// settled keeps writes confirmed while a Load was reading the store.
	loading int
	settled map[string]pendingWrite
}

// pendingWrite is a local write not yet confirmed by the store. A nil
// entity is a delete.
type pendingWrite struct {
	seq    uint64
	entity *model.Entity
}

// NewView wraps s. The snapshot is empty until Load.
func NewView(s Store, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		store:    s,
		log:      logger,
		entities: map[string]*model.Entity{},
		pending:  map[string]pendingWrite{},
		settled:  map[string]pendingWrite{},
	}
}

// Load replaces the snapshot with the store's contents, keeping local
// writes that are still in flight.
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	v.loading++
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.loading--
		if v.loading == 0 {
			clear(v.settled)
		}
		v.mu.Unlock()
	}()

	all, err := v.store.GetAllEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	next := make(map[string]*model.Entity, len(all))
	for _, e := range all {
		if e == nil {
			continue
		}
		next[e.Slug] = e
	}
	v.mu.Lock()
	for slug, w := range v.settled {
		if w.entity == nil {
			delete(next, slug)
		} else {
			next[slug] = w.entity
		}
	}
	for slug, w := range v.pending {
		if w.entity == nil {
			delete(next, slug)
		} else {
			next[slug] = w.entity
		}
	}
	v.entities = next
	v.mu.Unlock()
	v.log.Debug("view loaded", zap.Int("entities", len(next)))
	return nil
}

// Len returns the number of entities in the snapshot.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entities)
}

// Get returns a clone of the entity stored under slug.
func (v *View) Get(slug string) (*model.Entity, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.entities[slug]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Entities returns clones of every entity, ordered by name then slug.
func (v *View) Entities() []*model.Entity {
	v.mu.RLock()
	out := make([]*model.Entity, 0, len(v.entities))
	for _, e := range v.entities {
		out = append(out, e.Clone())
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// Directory returns the identity pairs of the snapshot, ordered by name.
func (v *View) Directory() []model.EntityRef {
	v.mu.RLock()
	all := make([]*model.Entity, 0, len(v.entities))
	for _, e := range v.entities {
		all = append(all, e)
	}
	v.mu.RUnlock()
	return match.Directory(all)
}

// Save stores e, replacing any entity with the same slug.
func (v *View) Save(ctx context.Context, e *model.Entity) error {
	if err := checkIdentity(e); err != nil {
		return err
	}
	local := e.Clone()

	v.mu.Lock()
	prev, existed := v.entities[local.Slug]
	v.entities[local.Slug] = local
	seq := v.begin(local.Slug, local)
	v.mu.Unlock()

	err := v.store.PutEntity(ctx, local.Clone())
	v.done(local.Slug, seq, err == nil)
	if err != nil {
		v.recover(ctx, local.Slug, prev, existed, err)
		return fmt.Errorf("saving %s: %w", local.Slug, err)
	}
	return nil
}

// Delete removes slug from the snapshot and the store.
func (v *View) Delete(ctx context.Context, slug string) error {
	if strings.TrimSpace(slug) == "" {
		return &model.IncompleteEntityError{Missing: []string{"slug"}}
	}
	v.mu.Lock()
	prev, existed := v.entities[slug]
	delete(v.entities, slug)
	seq := v.begin(slug, nil)
	v.mu.Unlock()

	err := v.store.DeleteEntity(ctx, slug)
	v.done(slug, seq, err == nil)
	if err != nil {
		v.recover(ctx, slug, prev, existed, err)
		return fmt.Errorf("deleting %s: %w", slug, err)
	}
	return nil
}

// begin records a write in flight. Callers hold mu.
func (v *View) begin(slug string, e *model.Entity) uint64 {
	v.seq++
	v.pending[slug] = pendingWrite{seq: v.seq, entity: e}
	return v.seq
}

// done clears the write unless a newer one for the same slug took its
// place. A confirmed write is remembered while a Load is running.
func (v *View) done(slug string, seq uint64, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	w, found := v.pending[slug]
	if !found || w.seq != seq {
		return
	}
	delete(v.pending, slug)
	if ok && v.loading > 0 {
		v.settled[slug] = w
	}
}

// recover resynchronizes after a failed write: reload from the store, or,
// when the store cannot be read either, put back the previous entry.
func (v *View) recover(ctx context.Context, slug string, prev *model.Entity, existed bool, cause error) {
	v.log.Warn("store write failed, reloading view", zap.String("slug", slug), zap.Error(cause))
	err := v.Load(context.WithoutCancel(ctx))
	if err == nil {
		return
	}
	v.log.Warn("reload failed, restoring previous entry", zap.String("slug", slug), zap.Error(err))
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, newer := v.pending[slug]; newer {
		return
	}
	if existed {
		v.entities[slug] = prev
	} else {
		delete(v.entities, slug)
	}
}
