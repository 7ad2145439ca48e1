// Package model defines the union records handled by gremio.
//
// JSON field names follow the document store the dashboard already writes to
// (nombre, slug, comisionDirectiva, datosBasicos, acciones, paritarias), so
// records round-trip through the remote store without translation. Every
// record type carries a fixed core schema plus an Extra map for the
// caller-declared extension fields (see Extensions).
package model

import (
	"regexp"
	"strings"
)

// Sanitize defaults, matching what the dashboard shows for incomplete records.
const (
	PlaceholderName  = "Sindicato Sin Nombre"
	PlaceholderSlug  = "sin-id"
	PlaceholderHQ    = "Sin datos"
	PlaceholderNewHQ = "A completar"
)

// maxIncreaseFraction caps decimals kept by NormalizeIncrease.
const maxIncreaseFraction = 2

// Event categories known out of the box. Deployments may declare more via
// AppConfig.EventCategories.
const (
	CategoryStrike       = "medida-fuerza"
	CategoryAssembly     = "asamblea"
	CategoryMeeting      = "reunion"
	CategoryComplaint    = "denuncia"
	CategoryMobilization = "movilizacion"
	CategoryOther        = "otro"
)

// DefaultCategories is the built-in event category set.
var DefaultCategories = []string{
	CategoryStrike, CategoryAssembly, CategoryMeeting,
	CategoryComplaint, CategoryMobilization, CategoryOther,
}

// Entity is a tracked union record.
type Entity struct {
	Name       string               `json:"nombre"`
	Slug       string               `json:"slug"`
	Leadership []Leader             `json:"comisionDirectiva"`
	Profile    Profile              `json:"datosBasicos"`
	Events     map[string]Event     `json:"acciones"`
	Agreements map[string]Agreement `json:"paritarias"`
	Extra      map[string]any       `json:"-"`
}

// Leader is one member of the governing board.
type Leader struct {
	Name string `json:"nombre"`
	Role string `json:"cargo"`
}

// Profile holds the volatile institutional attributes of an entity.
type Profile struct {
	Headquarters string         `json:"sedePrincipal"`
	Website      string         `json:"sitioWeb"`
	Logo         string         `json:"logo,omitempty"`
	Extra        map[string]any `json:"-"`
}

// Event is a dated union action (strike, assembly, meeting, complaint...).
type Event struct {
	Title       string         `json:"titulo"`
	Category    string         `json:"tipo"`
	Date        string         `json:"fecha"`
	Location    string         `json:"lugar"`
	Source      string         `json:"fuente"`
	Description string         `json:"descripcion"`
	Extra       map[string]any `json:"-"`
}

// Agreement is a negotiated wage settlement.
type Agreement struct {
	Period   string         `json:"periodo"`
	Increase string         `json:"porcentajeAumento"`
	SignedOn string         `json:"fechaFirma"`
	Detail   string         `json:"detalleTexto"`
	Source   string         `json:"enlaceFuente"`
	Extra    map[string]any `json:"-"`
}

// EntityRef is the identity pair used in directory snapshots.
type EntityRef struct {
	Slug string `json:"slug"`
	Name string `json:"nombre"`
}

// NewsItem is one feed entry handed to news analysis. Feeds are fetched by
// the caller.
type NewsItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	PubDate     string `json:"pubDate"`
	Source      string `json:"source"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
}

// Ref returns the identity pair of e.
func (e *Entity) Ref() EntityRef {
	return EntityRef{Slug: e.Slug, Name: e.Name}
}

// NewShell builds an empty entity for a ref that is not yet in the directory.
func NewShell(ref EntityRef) *Entity {
	return &Entity{
		Name:       ref.Name,
		Slug:       ref.Slug,
		Leadership: []Leader{},
		Profile:    Profile{Headquarters: PlaceholderNewHQ},
		Events:     map[string]Event{},
		Agreements: map[string]Agreement{},
	}
}

// Sanitize fills the defaults for fields the remote store drops when they are
// empty. It mutates and returns e.
func Sanitize(e *Entity) *Entity {
	if e == nil {
		return nil
	}
	if strings.TrimSpace(e.Name) == "" {
		e.Name = PlaceholderName
	}
	if strings.TrimSpace(e.Slug) == "" {
		e.Slug = PlaceholderSlug
	}
	if e.Leadership == nil {
		e.Leadership = []Leader{}
	}
	if e.Events == nil {
		e.Events = map[string]Event{}
	}
	if e.Agreements == nil {
		e.Agreements = map[string]Agreement{}
	}
	if e.Profile.Headquarters == "" && e.Profile.Website == "" && e.Profile.Logo == "" && len(e.Profile.Extra) == 0 {
		e.Profile = Profile{Headquarters: PlaceholderHQ}
	}
	return e
}

// Clone returns a deep copy of e. Merge operations work on clones so callers
// can keep the previous authoritative value for rollback.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := &Entity{
		Name:    e.Name,
		Slug:    e.Slug,
		Profile: e.Profile.clone(),
		Extra:   cloneExtras(e.Extra),
	}
	if e.Leadership != nil {
		out.Leadership = make([]Leader, len(e.Leadership))
		copy(out.Leadership, e.Leadership)
	}
	if e.Events != nil {
		out.Events = make(map[string]Event, len(e.Events))
		for k, v := range e.Events {
			v.Extra = cloneExtras(v.Extra)
			out.Events[k] = v
		}
	}
	if e.Agreements != nil {
		out.Agreements = make(map[string]Agreement, len(e.Agreements))
		for k, v := range e.Agreements {
			v.Extra = cloneExtras(v.Extra)
			out.Agreements[k] = v
		}
	}
	return out
}

func (p Profile) clone() Profile {
	p.Extra = cloneExtras(p.Extra)
	return p
}

func cloneExtras(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneExtras(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

var (
	increaseExact  = regexp.MustCompile(`^\d+(?:[.,]\d{1,2})?%$`)
	increaseSearch = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
)

// NormalizeIncrease coerces a percentage string into the "number + %" form,
// e.g. "aprox 85 % anual" → "85%". It reports false when no percentage can
// be found.
func NormalizeIncrease(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if increaseExact.MatchString(s) {
		return s, true
	}
	m := increaseSearch.FindStringSubmatch(s)
	if m == nil {
		return s, false
	}
	num := m[1]
	if i := strings.IndexAny(num, ".,"); i >= 0 && len(num)-i-1 > maxIncreaseFraction {
		num = num[:i+1+maxIncreaseFraction]
	}
	return num + "%", true
}

// NormalizeCategory maps c onto a known category; unknown values become
// CategoryOther. extra lists deployment-declared categories.
func NormalizeCategory(c string, extra []string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	for _, known := range DefaultCategories {
		if c == known {
			return c
		}
	}
	for _, known := range extra {
		if c == strings.ToLower(strings.TrimSpace(known)) {
			return c
		}
	}
	return CategoryOther
}
