package locale

import (
	"reflect"
	"testing"
)

func TestReduceField(t *testing.T) {
	title := map[string]any{"en": "Hello World", "fr": ""}

	if got := Reduce(title, Options{Locales: []string{"en", "fr"}}); got != "Hello World" {
		t.Fatalf("Reduce = %#v", got)
	}
	if got := Reduce(title, Options{}); got != "Hello World" {
		t.Fatalf("Reduce without order = %#v", got)
	}
}

func TestReturnAllLocalesIsIdentity(t *testing.T) {
	title := map[string]any{"en": "Hello World", "fr": ""}
	got := Reduce(title, Options{ReturnAllLocales: true, Locales: []string{"en", "fr"}})
	if !reflect.DeepEqual(got, title) {
		t.Fatalf("Reduce = %#v", got)
	}
}

func TestPrecedence(t *testing.T) {
	order := Options{Locales: []string{"it", "en", "de"}}
	cases := []struct {
		name string
		in   map[string]any
		want any
	}{
		{"first declared non-empty wins", map[string]any{"en": "b", "it": "a", "de": "c"}, "a"},
		{"skips empty string", map[string]any{"it": "", "en": "b"}, "b"},
		{"skips empty list", map[string]any{"it": []any{}, "en": []any{"x"}}, []any{"x"}},
		{"skips nil", map[string]any{"it": nil, "en": "b"}, "b"},
		{"all empty keeps first declared non-nil", map[string]any{"it": nil, "en": "", "de": []any{}}, ""},
		{"all nil is nil", map[string]any{"it": nil, "en": nil}, nil},
		{"non-string values", map[string]any{"it": nil, "en": 3.0}, 3.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Reduce(tc.in, order); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Reduce = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestRecursesIntoNestedStructures(t *testing.T) {
	record := map[string]any{
		"id":   "rec-1",
		"type": "item",
		"attributes": map[string]any{
			"title": map[string]any{"en": "", "it": "Ciao"},
			"blocks": []any{
				map[string]any{
					"type":       "item",
					"attributes": map[string]any{"caption": map[string]any{"en": "Caption", "it": "Didascalia"}},
				},
			},
			"hero": map[string]any{
				"en": map[string]any{"attributes": map[string]any{"alt": map[string]any{"en": "Alt", "it": ""}}},
				"it": nil,
			},
			"count": 4.0,
		},
	}
	got := Reduce(record, Options{Locales: []string{"en", "it"}}).(map[string]any)
	attrs := got["attributes"].(map[string]any)

	if attrs["title"] != "Ciao" {
		t.Fatalf("title = %#v", attrs["title"])
	}
	block := attrs["blocks"].([]any)[0].(map[string]any)
	if c := block["attributes"].(map[string]any)["caption"]; c != "Caption" {
		t.Fatalf("caption = %#v", c)
	}
	hero := attrs["hero"].(map[string]any)
	if alt := hero["attributes"].(map[string]any)["alt"]; alt != "Alt" {
		t.Fatalf("alt = %#v", alt)
	}
	if attrs["count"] != 4.0 || got["id"] != "rec-1" {
		t.Fatalf("non-locale values changed: %#v", got)
	}
}

func TestDoesNotMutateInput(t *testing.T) {
	in := map[string]any{"attributes": map[string]any{"title": map[string]any{"en": "a", "it": "b"}}}
	_ = Reduce(in, Options{Locales: []string{"en", "it"}})
	title := in["attributes"].(map[string]any)["title"]
	if _, ok := title.(map[string]any); !ok {
		t.Fatalf("input mutated: %#v", in)
	}
}

func TestOrdinaryMapsAreKept(t *testing.T) {
	in := map[string]any{"seo": map[string]any{"title": "t", "description": ""}}
	got := Reduce(in, Options{Locales: []string{"en"}})
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("Reduce = %#v", got)
	}
	// Without a known order only language-tag keyed maps are reduced.
	got = Reduce(map[string]any{"width": 10.0, "height": 5.0}, Options{})
	if _, ok := got.(map[string]any); !ok {
		t.Fatalf("non-locale map reduced: %#v", got)
	}
}

func TestThreeLetterKeysAreNotLocales(t *testing.T) {
	exif := map[string]any{"iso": 100.0, "fr": 8.0}
	for _, opts := range []Options{{}, {Locales: []string{"fr", "en"}}} {
		got := Reduce(map[string]any{"exif_info": exif}, opts).(map[string]any)
		if !reflect.DeepEqual(got["exif_info"], exif) {
			t.Fatalf("Reduce(%v): want exif_info kept, got %#v", opts.Locales, got["exif_info"])
		}
	}
	got := Reduce(map[string]any{"eng": "a", "deu": "b"}, Options{})
	if _, ok := got.(map[string]any); !ok {
		t.Fatalf("three-letter keyed map reduced: %#v", got)
	}
}

func TestKeysOutsideSiteLocalesAreNotLocales(t *testing.T) {
	in := map[string]any{"en": "a", "de": "b"}
	got := Reduce(in, Options{Locales: []string{"en", "it"}})
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("Reduce = %#v", got)
	}
}

func TestRegionalTags(t *testing.T) {
	got := Reduce(map[string]any{"en-US": "", "pt-BR": "Olá"}, Options{})
	if got != "Olá" {
		t.Fatalf("Reduce = %#v", got)
	}
}

func TestIsEmpty(t *testing.T) {
	for _, v := range []any{nil, "", []any{}, []string{}, [0]int{}, (*int)(nil)} {
		if !IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = false", v)
		}
	}
	for _, v := range []any{"x", 0, false, []any{nil}, map[string]any{}} {
		if IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = true", v)
		}
	}
}
