package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hurttlocker/gremio/internal/model"
)

// Kind discriminates the payload of an Analysis.
type Kind string

const (
	KindEvent     Kind = "accion"
	KindEvents    Kind = "multi-accion"
	KindAgreement Kind = "paritaria"
	KindProfile   Kind = "general"
	KindError     Kind = "error"
)

// Analysis is the structured result of analyzing a link or a news item:
// which entity it is about and what was found.
type Analysis struct {
	Kind  Kind
	Match model.EntityRef

	Events    []model.Event    // KindEvent (one) and KindEvents
	Agreement *model.Agreement // KindAgreement
	Profile   *model.Entity    // KindProfile
	Message   string           // KindError

	// Warnings lists extension values dropped during coercion.
	Warnings []string
}

// Err returns the failure the model reported through the error kind, or nil.
func (a *Analysis) Err() error {
	if a == nil || a.Kind != KindError {
		return nil
	}
	return &model.AnalysisFailedError{Message: a.Message}
}

// Options tune how extracted payloads are normalized.
type Options struct {
	// SourceURL, when set, overwrites each event's source and fills an
	// agreement source that the model left empty.
	SourceURL string
	// Extensions are the deployment-declared custom fields.
	Extensions model.Extensions
	// Categories are event categories declared on top of the defaults.
	Categories []string
}

type envelope struct {
	Match        *model.EntityRef `json:"sindicatoMatch"`
	Kind         string           `json:"tipoDetectado"`
	Data         json.RawMessage  `json:"data"`
	ErrorMessage string           `json:"errorMessage"`
}

// ParseAnalysis decodes a single analysis envelope from model output.
//
// An envelope tagged "error" yields an Analysis of KindError and a nil
// error; callers surface it through Analysis.Err.
func ParseAnalysis(text string, opts Options) (*Analysis, error) {
	var env envelope
	if err := Decode(text, &env); err != nil {
		return nil, err
	}
	return fromEnvelope(env, opts)
}

// ParseAnalyses decodes an array of analysis envelopes. Output that is not
// an array yields no analyses. Items that fail to decode are skipped and
// reported in skipped, in input order.
func ParseAnalyses(text string, opts Options) (analyses []*Analysis, skipped []error, err error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, nil, nil
	}
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		var env envelope
		if err := json.Unmarshal(b, &env); err != nil {
			skipped = append(skipped, fmt.Errorf("item %d: %w", i, &model.MalformedOutputError{Fragment: string(b), Err: err}))
			continue
		}
		a, err := fromEnvelope(env, opts)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		if a.Kind == KindError {
			skipped = append(skipped, fmt.Errorf("item %d: %w", i, a.Err()))
			continue
		}
		analyses = append(analyses, a)
	}
	return analyses, skipped, nil
}

func fromEnvelope(env envelope, opts Options) (*Analysis, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(env.Kind)))
	if kind == KindError {
		return &Analysis{Kind: KindError, Message: env.ErrorMessage}, nil
	}

	var missing []string
	if env.Match == nil || (strings.TrimSpace(env.Match.Slug) == "" && strings.TrimSpace(env.Match.Name) == "") {
		missing = append(missing, "sindicatoMatch")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		missing = append(missing, "data")
	}
	if len(missing) > 0 {
		return nil, &model.IncompleteEntityError{Missing: missing}
	}

	a := &Analysis{
		Kind: kind,
		Match: model.EntityRef{
			Slug: strings.TrimSpace(env.Match.Slug),
			Name: strings.TrimSpace(env.Match.Name),
		},
	}
	isArray := data[0] == '['

	switch {
	case kind == KindEvents && !isArray:
		return nil, &model.MalformedOutputError{Fragment: string(data), Err: fmt.Errorf("multi-accion data must be an array")}

	case (kind == KindEvent || kind == KindEvents) && isArray:
		var events []model.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, &model.MalformedOutputError{Fragment: string(data), Err: err}
		}
		a.Kind = KindEvents
		for _, ev := range events {
			a.Events = append(a.Events, a.normalizeEvent(ev, opts))
		}

	case kind == KindEvent:
		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &model.MalformedOutputError{Fragment: string(data), Err: err}
		}
		a.Events = []model.Event{a.normalizeEvent(ev, opts)}

	case kind == KindAgreement:
		var ag model.Agreement
		if err := json.Unmarshal(data, &ag); err != nil {
			return nil, &model.MalformedOutputError{Fragment: string(data), Err: err}
		}
		ag, err := a.normalizeAgreement(ag, opts)
		if err != nil {
			return nil, err
		}
		if ag.Source == "" {
			ag.Source = opts.SourceURL
		}
		a.Agreement = &ag

	case kind == KindProfile:
		var e model.Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, &model.MalformedOutputError{Fragment: string(data), Err: err}
		}
		a.Warnings = append(a.Warnings, normalizeEntity(&e, opts)...)
		a.Profile = &e

	default:
		return nil, &model.MalformedOutputError{Fragment: string(data), Err: fmt.Errorf("unknown tipoDetectado %q", env.Kind)}
	}
	return a, nil
}

func (a *Analysis) normalizeEvent(ev model.Event, opts Options) model.Event {
	ev.Category = model.NormalizeCategory(ev.Category, opts.Categories)
	if opts.SourceURL != "" {
		ev.Source = opts.SourceURL
	}
	ev, w := opts.Extensions.CoerceEvent(ev)
	a.Warnings = append(a.Warnings, w...)
	return ev
}

func (a *Analysis) normalizeAgreement(ag model.Agreement, opts Options) (model.Agreement, error) {
	inc, ok := model.NormalizeIncrease(ag.Increase)
	if !ok {
		return ag, &model.MalformedOutputError{
			Fragment: ag.Increase,
			Err:      fmt.Errorf("porcentajeAumento %q is not a percentage", ag.Increase),
		}
	}
	ag.Increase = inc
	ag, w := opts.Extensions.CoerceAgreement(ag)
	a.Warnings = append(a.Warnings, w...)
	return ag, nil
}

// DecodeProfile decodes a complete entity profile. Name and slug are
// required; the slug is normalized. Agreements whose increase is not a
// percentage are dropped and reported as warnings.
func DecodeProfile(text string, opts Options) (*model.Entity, []string, error) {
	var e model.Entity
	if err := Decode(text, &e); err != nil {
		return nil, nil, err
	}
	var missing []string
	if strings.TrimSpace(e.Name) == "" {
		missing = append(missing, "nombre")
	}
	if strings.TrimSpace(e.Slug) == "" {
		missing = append(missing, "slug")
	}
	if len(missing) > 0 {
		return nil, nil, &model.IncompleteEntityError{Missing: missing}
	}
	warnings := normalizeEntity(&e, opts)
	return &e, warnings, nil
}

func normalizeEntity(e *model.Entity, opts Options) []string {
	var warnings []string
	e.Name = strings.TrimSpace(e.Name)
	if e.Slug != "" {
		e.Slug = model.Slugify(e.Slug)
	}
	if e.Leadership == nil {
		e.Leadership = []model.Leader{}
	}
	if e.Events == nil {
		e.Events = map[string]model.Event{}
	}
	if e.Agreements == nil {
		e.Agreements = map[string]model.Agreement{}
	}
	for k, ev := range e.Events {
		ev.Category = model.NormalizeCategory(ev.Category, opts.Categories)
		e.Events[k] = ev
	}
	for k, ag := range e.Agreements {
		inc, ok := model.NormalizeIncrease(ag.Increase)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("paritarias.%s: dropped, porcentajeAumento %q is not a percentage", k, ag.Increase))
			delete(e.Agreements, k)
			continue
		}
		ag.Increase = inc
		e.Agreements[k] = ag
	}
	return append(warnings, opts.Extensions.CoerceEntity(e)...)
}
