// Package locale collapses per-locale field values to a single representative
// value so that read results stay small for the calling agent.
package locale

import (
	"reflect"
	"regexp"
	"sort"

	"golang.org/x/text/language"
)

// Options control a reduction.
type Options struct {
	// ReturnAllLocales disables reduction entirely.
	ReturnAllLocales bool
	// Locales is the locale declaration order of the site the data came from.
	// The first locale wins ties, and a map is a locale map only if every key
	// is one of these locales. When empty, every key must be a language tag
	// with a two-letter primary subtag ("en", "pt-BR"), and keys are ranked in
	// lexical order.
	Locales []string
}

var tagShape = regexp.MustCompile(`^[a-z]{2}(-[A-Za-z0-9]{2,8})*$`)

// Reduce returns a reduced copy of v. The input is never modified. With
// ReturnAllLocales set, v is returned as is.
func Reduce(v any, opts Options) any {
	if opts.ReturnAllLocales {
		return v
	}
	r := reducer{order: make(map[string]int, len(opts.Locales))}
	for i, l := range opts.Locales {
		if _, dup := r.order[l]; !dup {
			r.order[l] = i
		}
	}
	return r.walk(v)
}

type reducer struct {
	order map[string]int
}

func (r reducer) walk(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if r.isLocaleMap(t) {
			return r.walk(r.pick(t))
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = r.walk(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.walk(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.walk(val)
		}
		return out
	default:
		return v
	}
}

func (r reducer) isLocaleMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if len(r.order) > 0 {
			if _, ok := r.order[k]; !ok {
				return false
			}
			continue
		}
		if !isLanguageTag(k) {
			return false
		}
	}
	return true
}

func isLanguageTag(s string) bool {
	if !tagShape.MatchString(s) {
		return false
	}
	_, err := language.Parse(s)
	return err == nil
}

// pick selects the first non-empty value in declaration order, falling back
// to the first declared locale when every value is empty.
func (r reducer) pick(m map[string]any) any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := r.order[keys[i]]
		oj, jok := r.order[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})

	for _, k := range keys {
		if !IsEmpty(m[k]) {
			return m[k]
		}
	}
	for _, k := range keys {
		if m[k] != nil {
			return m[k]
		}
	}
	return nil
}

// IsEmpty reports whether v is nil, an empty string or an empty sequence.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
