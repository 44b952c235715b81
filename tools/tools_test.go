package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/backend/backendtest"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
	"github.com/ggoodman/cms-mcp-server/session"
)

const token = "tok-primary-0001"

func newRouter(t *testing.T) (*router.Router, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	reg := registry.New()
	sessions := session.NewManager(func(string, string) (backend.Client, error) { return fake, nil })
	r := router.New(reg)
	if err := Register(r, handler.Deps{Registry: reg, Sessions: sessions}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r, fake
}

func call(t *testing.T, r *router.Router, domain, action string, args map[string]any) envelope.Envelope {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	if _, ok := args["apiToken"]; !ok {
		args["apiToken"] = token
	}
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	env := r.Dispatch(context.Background(), domain, action, raw)
	if err := env.Check(); err != nil {
		t.Fatalf("%s.%s: %v", domain, action, err)
	}
	return env
}

// roundTrip renders data as it would reach a caller.
func roundTrip(t *testing.T, env envelope.Envelope) any {
	t.Helper()
	var out struct {
		Data any `json:"data"`
	}
	if err := json.Unmarshal(env.JSON(), &out); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return out.Data
}

func TestCatalogue(t *testing.T) {
	r, _ := newRouter(t)
	want := map[string][]string{
		Records:      {"bulk_delete", "create", "delete", "list", "patch", "publish", "retrieve", "unpublish", "update"},
		Uploads:      {"bulk_delete", "create", "delete", "list", "list_tags", "retrieve", "update"},
		Schema:       {"create_field", "create_model", "delete_field", "delete_model", "list_fields", "list_models", "retrieve_field", "retrieve_model", "retrieve_site", "update_field", "update_model"},
		Environments: {"delete", "fork", "list", "promote", "rename", "retrieve"},
		Webhooks:     {"create", "delete", "list", "retrieve", "update"},
	}
	if got := r.Domains(); len(got) != len(want) {
		t.Fatalf("domains = %v", got)
	}
	for domain, actions := range want {
		got := r.Actions(domain)
		if len(got) != len(actions) {
			t.Fatalf("%s actions = %+v", domain, got)
		}
		for i, a := range got {
			if a.Name != actions[i] {
				t.Fatalf("%s action %d = %s, want %s", domain, i, a.Name, actions[i])
			}
			if a.Description == "" {
				t.Fatalf("%s.%s has no description", domain, a.Name)
			}
		}
		if Descriptions[domain] == "" {
			t.Fatalf("%s has no description", domain)
		}
	}
}

func TestEveryActionRequiresToken(t *testing.T) {
	r, fake := newRouter(t)
	for _, domain := range r.Domains() {
		for _, a := range r.Actions(domain) {
			env := r.Dispatch(context.Background(), domain, a.Name, json.RawMessage(`{}`))
			if env.Code() != envelope.KindValidationFailed {
				t.Fatalf("%s.%s without args: code = %s", domain, a.Name, env.Code())
			}
		}
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("validation failures reached the backend")
	}
}

func TestListTagsFilter(t *testing.T) {
	r, fake := newRouter(t)
	fake.AddTags("Banner", "homepage-banner", "logo", "banners-2024", "hero")

	env := call(t, r, Uploads, "list_tags", map[string]any{"filter": "banner"})
	if !env.Success {
		t.Fatalf("expected success: %+v", env.Error)
	}
	tags := roundTrip(t, env).([]any)
	var names []string
	for _, tg := range tags {
		names = append(names, tg.(map[string]any)["attributes"].(map[string]any)["name"].(string))
	}
	if strings.Join(names, ",") != "Banner,homepage-banner,banners-2024" {
		t.Fatalf("names = %v", names)
	}

	env = call(t, r, Uploads, "list_tags", nil)
	if n := len(roundTrip(t, env).([]any)); n != 5 {
		t.Fatalf("unfiltered tags = %d", n)
	}
}

func TestRetrieveMissingRecord(t *testing.T) {
	r, _ := newRouter(t)

	env := call(t, r, Records, "retrieve", map[string]any{"itemId": "missing-id"})
	if env.Success || env.Code() != envelope.KindNotFound {
		t.Fatalf("envelope = %s", env.JSON())
	}
	if !strings.Contains(env.Error.Message, "missing-id") {
		t.Fatalf("message = %q", env.Error.Message)
	}
}

func TestBulkLimitMakesNoRemoteCalls(t *testing.T) {
	r, fake := newRouter(t)
	ids := make([]string, 201)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	for _, tc := range []struct{ domain, action, field string }{
		{Records, "publish", "itemIds"},
		{Records, "unpublish", "itemIds"},
		{Records, "bulk_delete", "itemIds"},
		{Uploads, "bulk_delete", "uploadIds"},
	} {
		env := call(t, r, tc.domain, tc.action, map[string]any{tc.field: ids})
		if env.Code() != envelope.KindBulkLimitExceeded {
			t.Fatalf("%s.%s: code = %s", tc.domain, tc.action, env.Code())
		}
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("bulk limit violations reached the backend: %d calls", fake.TotalCalls())
	}
}

func TestRecordReadsReduceBySiteLocales(t *testing.T) {
	r, fake := newRouter(t)
	fake.SetLocales("it", "en")
	fake.PutRecord(backend.Resource{ID: "rec-1", Attributes: map[string]any{
		"title": map[string]any{"en": "Hello", "it": "Ciao"},
		"body":  map[string]any{"en": "Text", "it": ""},
	}})

	env := call(t, r, Records, "list", nil)
	items := roundTrip(t, env).([]any)
	attrs := items[0].(map[string]any)["attributes"].(map[string]any)
	if attrs["title"] != "Ciao" || attrs["body"] != "Text" {
		t.Fatalf("attrs = %#v", attrs)
	}

	env = call(t, r, Records, "retrieve", map[string]any{"itemId": "rec-1", "returnAllLocales": true})
	attrs = roundTrip(t, env).(map[string]any)["attributes"].(map[string]any)
	title := attrs["title"].(map[string]any)
	if title["en"] != "Hello" || title["it"] != "Ciao" {
		t.Fatalf("title = %#v", title)
	}
}

func TestUploadReadsReduceBySiteLocales(t *testing.T) {
	r, fake := newRouter(t)
	fake.SetLocales("fr", "en")
	fake.PutUpload(backend.Resource{ID: "up-1", Attributes: map[string]any{
		"filename": "cover.jpg",
		"default_field_metadata": map[string]any{
			"en": map[string]any{"alt": "english alt"},
			"fr": map[string]any{"alt": "texte alt"},
		},
		"exif_info": map[string]any{"iso": 100.0, "fr": 8.0},
	}})

	for _, action := range []string{"retrieve", "list"} {
		args := map[string]any{}
		if action == "retrieve" {
			args["uploadId"] = "up-1"
		}
		data := roundTrip(t, call(t, r, Uploads, action, args))
		if items, ok := data.([]any); ok {
			data = items[0]
		}
		attrs := data.(map[string]any)["attributes"].(map[string]any)
		meta, ok := attrs["default_field_metadata"].(map[string]any)
		if !ok || meta["alt"] != "texte alt" {
			t.Fatalf("%s: want french alt, got %#v", action, attrs["default_field_metadata"])
		}
		exif, ok := attrs["exif_info"].(map[string]any)
		if !ok || exif["iso"] != 100.0 {
			t.Fatalf("%s: want exif_info kept, got %#v", action, attrs["exif_info"])
		}
	}
	if fake.Calls("FindSite") == 0 {
		t.Fatalf("upload reads did not consult the site locales")
	}
}

func TestRecordListFilters(t *testing.T) {
	r, fake := newRouter(t)
	for i, model := range []string{"article", "article", "page"} {
		fake.PutRecord(backend.Resource{
			ID:            fmt.Sprintf("rec-%d", i),
			Relationships: map[string]any{"item_type": map[string]any{"data": map[string]any{"id": model}}},
		})
	}

	env := call(t, r, Records, "list", map[string]any{"modelId": "article", "page": map[string]any{"limit": 1}})
	if n := len(roundTrip(t, env).([]any)); n != 1 {
		t.Fatalf("records = %d", n)
	}
	env = call(t, r, Records, "list", map[string]any{"itemIds": []string{"rec-1", "rec-2"}})
	if n := len(roundTrip(t, env).([]any)); n != 2 {
		t.Fatalf("records = %d", n)
	}
}

func TestRecordPatch(t *testing.T) {
	r, fake := newRouter(t)
	fake.PutRecord(backend.Resource{ID: "rec-1", Attributes: map[string]any{
		"title":  map[string]any{"en": "Hello", "it": "Ciao"},
		"draft":  true,
		"rating": 3.0,
	}})

	env := call(t, r, Records, "patch", map[string]any{
		"itemId": "rec-1",
		"operations": []map[string]any{
			{"op": "replace", "path": "/title/en", "value": "Hi"},
			{"op": "remove", "path": "/draft"},
		},
	})
	if !env.Success {
		t.Fatalf("patch failed: %s", env.JSON())
	}
	got, _ := fake.Record("rec-1")
	title := got.Attributes["title"].(map[string]any)
	if title["en"] != "Hi" || title["it"] != "Ciao" {
		t.Fatalf("title = %#v", title)
	}
	if v, ok := got.Attributes["draft"]; !ok || v != nil {
		t.Fatalf("draft = %#v", got.Attributes["draft"])
	}
	if got.Attributes["rating"] != 3.0 {
		t.Fatalf("unchanged field was rewritten: %#v", got.Attributes["rating"])
	}
}

func TestRecordPatchInvalidPointer(t *testing.T) {
	r, fake := newRouter(t)
	fake.PutRecord(backend.Resource{ID: "rec-1", Attributes: map[string]any{"title": "x"}})

	env := call(t, r, Records, "patch", map[string]any{
		"itemId":     "rec-1",
		"operations": []map[string]any{{"op": "remove", "path": "/missing"}},
	})
	if env.Code() != envelope.KindValidationFailed {
		t.Fatalf("code = %s (%s)", env.Code(), env.JSON())
	}
	if fake.Calls("UpdateRecord") != 0 {
		t.Fatalf("invalid patch was sent")
	}

	env = call(t, r, Records, "patch", map[string]any{
		"itemId":     "rec-1",
		"operations": []map[string]any{{"op": "move", "path": "title"}},
	})
	if env.Code() != envelope.KindValidationFailed {
		t.Fatalf("code = %s", env.Code())
	}
	if fake.Calls("FindRecord") != 1 {
		t.Fatalf("FindRecord calls = %d", fake.Calls("FindRecord"))
	}
}

func TestUpdateRequiresAttributes(t *testing.T) {
	r, _ := newRouter(t)
	for _, tc := range []struct{ domain, action, idField string }{
		{Uploads, "update", "uploadId"},
		{Schema, "update_model", "modelId"},
		{Schema, "update_field", "fieldId"},
		{Webhooks, "update", "webhookId"},
	} {
		env := call(t, r, tc.domain, tc.action, map[string]any{tc.idField: "x", "attributes": map[string]any{}})
		if env.Code() != envelope.KindValidationFailed {
			t.Fatalf("%s.%s: code = %s", tc.domain, tc.action, env.Code())
		}
		issues := env.Error.Details.(map[string]any)["issues"].([]envelope.Issue)
		if issues[0].Path != "attributes" {
			t.Fatalf("%s.%s: issues = %+v", tc.domain, tc.action, issues)
		}
	}
}

func TestEnvironmentLifecycle(t *testing.T) {
	r, _ := newRouter(t)

	env := call(t, r, Environments, "fork", map[string]any{"environmentId": "main", "newId": "sandbox-1", "fast": true})
	if !env.Success {
		t.Fatalf("fork: %s", env.JSON())
	}
	env = call(t, r, Environments, "rename", map[string]any{"environmentId": "sandbox-1", "newId": "sandbox-2"})
	if !env.Success {
		t.Fatalf("rename: %s", env.JSON())
	}
	env = call(t, r, Environments, "promote", map[string]any{"environmentId": "sandbox-2"})
	if !env.Success {
		t.Fatalf("promote: %s", env.JSON())
	}
	meta := roundTrip(t, env).(map[string]any)["meta"].(map[string]any)
	if meta["primary"] != true {
		t.Fatalf("meta = %#v", meta)
	}

	env = call(t, r, Environments, "rename", map[string]any{"environmentId": "a", "newId": "a"})
	if env.Code() != envelope.KindValidationFailed {
		t.Fatalf("rename to self: code = %s", env.Code())
	}
	env = call(t, r, Environments, "fork", map[string]any{"environmentId": "main", "newId": "Bad Id"})
	if env.Code() != envelope.KindValidationFailed {
		t.Fatalf("bad id: code = %s", env.Code())
	}
	env = call(t, r, Environments, "delete", map[string]any{"environmentId": "ghost"})
	if env.Code() != envelope.KindNotFound || !strings.Contains(env.Error.Message, `Environment with id "ghost"`) {
		t.Fatalf("delete ghost: %s", env.JSON())
	}
}

func TestSchemaOperations(t *testing.T) {
	r, fake := newRouter(t)

	env := call(t, r, Schema, "create_model", map[string]any{"name": "Article", "apiKey": "article"})
	if !env.Success {
		t.Fatalf("create_model: %s", env.JSON())
	}
	modelID := roundTrip(t, env).(map[string]any)["id"].(string)

	env = call(t, r, Schema, "create_field", map[string]any{"modelId": modelID, "label": "Title", "apiKey": "title", "fieldType": "string", "localized": true})
	if !env.Success {
		t.Fatalf("create_field: %s", env.JSON())
	}
	env = call(t, r, Schema, "list_fields", map[string]any{"modelId": modelID})
	if n := len(roundTrip(t, env).([]any)); n != 1 {
		t.Fatalf("fields = %d", n)
	}

	env = call(t, r, Schema, "create_field", map[string]any{"modelId": modelID, "label": "X", "apiKey": "x", "fieldType": "spreadsheet"})
	if env.Code() != envelope.KindValidationFailed {
		t.Fatalf("unknown field type: code = %s", env.Code())
	}

	fake.SetLocales("en", "de")
	env = call(t, r, Schema, "retrieve_site", nil)
	locales := roundTrip(t, env).(map[string]any)["locales"].([]any)
	if len(locales) != 2 || locales[0] != "en" {
		t.Fatalf("locales = %v", locales)
	}
}

func TestWebhookCreate(t *testing.T) {
	r, _ := newRouter(t)

	env := call(t, r, Webhooks, "create", map[string]any{
		"name":   "Deploy",
		"url":    "https://example.com/hook",
		"events": []map[string]any{{"entityType": "item", "eventTypes": []string{"publish"}}},
	})
	if !env.Success {
		t.Fatalf("create: %s", env.JSON())
	}
	attrs := roundTrip(t, env).(map[string]any)["attributes"].(map[string]any)
	if attrs["enabled"] != true || attrs["name"] != "Deploy" {
		t.Fatalf("attrs = %#v", attrs)
	}

	env = call(t, r, Webhooks, "create", map[string]any{
		"name":   "Deploy",
		"url":    "https://example.com/hook",
		"events": []map[string]any{{"entityType": "planet", "eventTypes": []string{"publish"}}},
	})
	if env.Code() != envelope.KindValidationFailed {
		t.Fatalf("bad entity type: code = %s", env.Code())
	}
}

func TestUnauthorizedTokenIsClassified(t *testing.T) {
	r, fake := newRouter(t)
	fake.FailWith("ListWebhooks", &backend.Error{Status: 401, Code: "INVALID_AUTHORIZATION_HEADER"})

	env := call(t, r, Webhooks, "list", nil)
	if env.Code() != envelope.KindUnauthorized || env.Error.Message != envelope.UnauthorizedMessage {
		t.Fatalf("envelope = %s", env.JSON())
	}
}
