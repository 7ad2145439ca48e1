package extract

import (
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/gremio/internal/model"
)

// DecodeLeadership decodes a leadership list given either as a bare array
// or wrapped as {"comisionDirectiva": [...]}.
func DecodeLeadership(text string) ([]model.Leader, error) {
	span, err := Locate(text)
	if err != nil {
		return nil, err
	}
	var leaders []model.Leader
	if span[0] == '[' {
		if err := json.Unmarshal([]byte(span), &leaders); err != nil {
			return nil, &model.MalformedOutputError{Fragment: span, Err: err}
		}
		return leaders, nil
	}
	var wrapped struct {
		Leadership []model.Leader `json:"comisionDirectiva"`
	}
	if err := json.Unmarshal([]byte(span), &wrapped); err != nil {
		return nil, &model.MalformedOutputError{Fragment: span, Err: err}
	}
	if wrapped.Leadership == nil {
		return []model.Leader{}, nil
	}
	return wrapped.Leadership, nil
}

// DecodeAgreements decodes a keyed agreement map given either bare or
// wrapped under "paritarias". Increases are normalized; entries without a
// percentage are dropped and reported as warnings.
func DecodeAgreements(text string, opts Options) (map[string]model.Agreement, []string, error) {
	raw, err := decodeSection(text, "paritarias")
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string]model.Agreement, len(raw))
	var warnings []string
	for k, v := range raw {
		var ag model.Agreement
		if err := json.Unmarshal(v, &ag); err != nil {
			warnings = append(warnings, fmt.Sprintf("paritarias.%s: %v", k, err))
			continue
		}
		inc, ok := model.NormalizeIncrease(ag.Increase)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("paritarias.%s: dropped, porcentajeAumento %q is not a percentage", k, ag.Increase))
			continue
		}
		ag.Increase = inc
		ag, w := opts.Extensions.CoerceAgreement(ag)
		warnings = append(warnings, w...)
		out[k] = ag
	}
	return out, warnings, nil
}

// DecodeEvents decodes a keyed event map given either bare or wrapped under
// "acciones". Categories are normalized.
func DecodeEvents(text string, opts Options) (map[string]model.Event, []string, error) {
	raw, err := decodeSection(text, "acciones")
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string]model.Event, len(raw))
	var warnings []string
	for k, v := range raw {
		var ev model.Event
		if err := json.Unmarshal(v, &ev); err != nil {
			warnings = append(warnings, fmt.Sprintf("acciones.%s: %v", k, err))
			continue
		}
		ev.Category = model.NormalizeCategory(ev.Category, opts.Categories)
		ev, w := opts.Extensions.CoerceEvent(ev)
		warnings = append(warnings, w...)
		out[k] = ev
	}
	return out, warnings, nil
}

// DecodeStrings decodes a JSON array of strings. Output that is not an array
// yields an empty list; non-string items are ignored.
func DecodeStrings(text string) ([]string, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func decodeSection(text, key string) (map[string]json.RawMessage, error) {
	span, err := Locate(text)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, &model.MalformedOutputError{Fragment: span, Err: err}
	}
	if inner, ok := raw[key]; ok {
		var section map[string]json.RawMessage
		if err := json.Unmarshal(inner, &section); err != nil {
			return nil, &model.MalformedOutputError{Fragment: string(inner), Err: err}
		}
		raw = section
	}
	if raw == nil {
		raw = map[string]json.RawMessage{}
	}
	return raw, nil
}
