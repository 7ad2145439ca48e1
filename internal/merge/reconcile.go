package merge

import (
	"strings"

	"github.com/hurttlocker/gremio/internal/model"
)

// Reconcile folds a freshly investigated profile into the stored entity.
//
// Profile and leadership are replaced by fresh; agreements are unioned with
// fresh keys winning; events are kept as stored. The stored slug never
// changes, and the stored name is kept unless it is blank or the sanitize
// placeholder. Root extension fields are unioned, fresh values winning.
func Reconcile(existing, fresh *model.Entity) *model.Entity {
	if existing == nil {
		return cloneOrEmpty(fresh)
	}
	out := cloneOrEmpty(existing)
	if fresh == nil {
		return out
	}
	f := fresh.Clone()

	if name := strings.TrimSpace(out.Name); (name == "" || name == model.PlaceholderName) && strings.TrimSpace(f.Name) != "" {
		out.Name = f.Name
	}
	out.Profile = f.Profile
	out.Leadership = f.Leadership
	if out.Leadership == nil {
		out.Leadership = []model.Leader{}
	}
	for k, ag := range f.Agreements {
		out.Agreements[k] = ag
	}
	if len(f.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		for k, v := range f.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// ReplaceLeadership returns a copy of e whose leadership is leaders.
func ReplaceLeadership(e *model.Entity, leaders []model.Leader) *model.Entity {
	out := cloneOrEmpty(e)
	out.Leadership = append([]model.Leader{}, leaders...)
	return out
}

// MergeAgreements returns a copy of e with agreements unioned in, keys from
// agreements winning.
func MergeAgreements(e *model.Entity, agreements map[string]model.Agreement) *model.Entity {
	out := cloneOrEmpty(e)
	for k, ag := range agreements {
		out.Agreements[k] = ag
	}
	return out
}
