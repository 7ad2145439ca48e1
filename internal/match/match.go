// Package match resolves an extracted entity reference against the directory
// of known entities.
//
// Resolution is deliberately simple: an exact slug hit, then a
// case-insensitive check of whether a known display name appears inside the
// candidate's name ("Sindicato X" inside "Sindicato X Nacional"). There are
// no similarity thresholds; the first directory entry that qualifies wins.
package match

import (
	"sort"
	"strings"

	"github.com/hurttlocker/gremio/internal/model"
)

// Resolution is the outcome of Match.
type Resolution struct {
	// Ref identifies the resolved entity. For matches it is the directory
	// entry; for new entities it is built from the candidate.
	Ref   model.EntityRef
	IsNew bool
	// By reports which rule matched: "slug", "name", or "" for new entities.
	By string
}

// Shell returns an empty entity for a new resolution, nil otherwise.
func (r Resolution) Shell() *model.Entity {
	if !r.IsNew {
		return nil
	}
	return model.NewShell(r.Ref)
}

// Match resolves candidate against directory. The directory is never
// modified.
func Match(candidate model.EntityRef, directory []model.EntityRef) (Resolution, error) {
	rawSlug := strings.TrimSpace(candidate.Slug)
	name := strings.TrimSpace(candidate.Name)
	if rawSlug == "" && name == "" {
		return Resolution{}, &model.IncompleteEntityError{Missing: []string{"slug", "nombre"}}
	}

	slug := model.Slugify(rawSlug)
	if slug != "" {
		for _, ref := range directory {
			if ref.Slug == slug {
				return Resolution{Ref: ref, By: "slug"}, nil
			}
		}
	}

	if name != "" {
		lname := strings.ToLower(name)
		for _, ref := range directory {
			known := strings.ToLower(strings.TrimSpace(ref.Name))
			if known == "" {
				continue
			}
			if strings.Contains(lname, known) {
				return Resolution{Ref: ref, By: "name"}, nil
			}
		}
	}

	if slug == "" {
		slug = model.Slugify(name)
	}
	if name == "" {
		name = rawSlug
	}
	return Resolution{Ref: model.EntityRef{Slug: slug, Name: name}, IsNew: true}, nil
}

// Directory builds a directory snapshot from entities, sorted by name.
func Directory(entities []*model.Entity) []model.EntityRef {
	refs := make([]model.EntityRef, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		refs = append(refs, e.Ref())
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}
