// Package prompt renders the instruction templates sent to the generative
// text service.
package prompt

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"time"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Render replaces every {{name}} in tmpl with the value bound to name in
// vars. Placeholders without a binding are left verbatim.
//
// Strings are inserted as-is, time.Time values as YYYY-MM-DD, maps, slices
// and structs as compact JSON, and everything else through fmt.
func Render(tmpl string, vars map[string]any) string {
	if len(vars) == 0 {
		return tmpl
	}
	return placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			return m
		}
		return format(v)
	})
}

// Placeholders lists the distinct placeholder names in tmpl in order of first
// appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderRE.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case fmt.Stringer:
		return t.String()
	case json.RawMessage:
		return string(t)
	}
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
