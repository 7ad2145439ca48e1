package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FieldSection names the record an extension field attaches to.
type FieldSection string

const (
	SectionRoot       FieldSection = "root"
	SectionProfile    FieldSection = "datosBasicos"
	SectionEvents     FieldSection = "acciones"
	SectionAgreements FieldSection = "paritarias"
)

// FieldType is the declared value type of an extension field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
)

const dateLayout = "2006-01-02"

// CustomField declares one extension field.
type CustomField struct {
	ID      string       `json:"id" yaml:"id"`
	Key     string       `json:"key" yaml:"key"`
	Label   string       `json:"label" yaml:"label"`
	Section FieldSection `json:"section" yaml:"section"`
	Type    FieldType    `json:"type" yaml:"type"`
}

// Extensions is the declared extension list of a deployment.
type Extensions []CustomField

// For returns the fields declared for section, keyed by property name.
func (x Extensions) For(section FieldSection) map[string]CustomField {
	out := map[string]CustomField{}
	for _, f := range x {
		if f.Section == section && f.Key != "" {
			out[f.Key] = f
		}
	}
	return out
}

// Coerce keeps the declared keys of extra and converts each value to its
// declared type. Undeclared keys and values that do not fit are dropped; the
// returned warnings describe every drop in key order.
func (x Extensions) Coerce(section FieldSection, extra map[string]any) (map[string]any, []string) {
	if len(extra) == 0 {
		return nil, nil
	}
	declared := x.For(section)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var warnings []string
	out := map[string]any{}
	for _, k := range keys {
		field, ok := declared[k]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s.%s: undeclared field dropped", section, k))
			continue
		}
		v, err := field.Coerce(extra[k])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s.%s: %v", section, k, err))
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		out = nil
	}
	return out, warnings
}

// Coerce converts v to the field's declared type.
func (f CustomField) Coerce(v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("null value")
	}
	switch f.Type {
	case FieldNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		case string:
			parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", n)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("not a number: %T", v)

	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("date must be a string, got %T", v)
		}
		s = strings.TrimSpace(s)
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t.Format(dateLayout), nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(dateLayout), nil
		}
		return nil, fmt.Errorf("not a YYYY-MM-DD date: %q", s)

	case FieldText, FieldTextarea, "":
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, bool:
			return fmt.Sprint(s), nil
		}
		return nil, fmt.Errorf("text field holds %T", v)
	}
	return nil, fmt.Errorf("unknown field type %q", f.Type)
}

// CoerceEvent applies the event extension fields to ev.
func (x Extensions) CoerceEvent(ev Event) (Event, []string) {
	var warnings []string
	ev.Extra, warnings = x.Coerce(SectionEvents, ev.Extra)
	return ev, warnings
}

// CoerceAgreement applies the agreement extension fields to a.
func (x Extensions) CoerceAgreement(a Agreement) (Agreement, []string) {
	var warnings []string
	a.Extra, warnings = x.Coerce(SectionAgreements, a.Extra)
	return a, warnings
}

// CoerceEntity applies root, profile, event and agreement extension fields to
// a freshly extracted entity in place.
func (x Extensions) CoerceEntity(e *Entity) []string {
	var all, w []string
	e.Extra, w = x.Coerce(SectionRoot, e.Extra)
	all = append(all, w...)
	e.Profile.Extra, w = x.Coerce(SectionProfile, e.Profile.Extra)
	all = append(all, w...)
	for k, ev := range e.Events {
		e.Events[k], w = x.CoerceEvent(ev)
		all = append(all, w...)
	}
	for k, a := range e.Agreements {
		e.Agreements[k], w = x.CoerceAgreement(a)
		all = append(all, w...)
	}
	return all
}
