// Package backendtest provides an in-memory backend.Client for tests. Every
// method call is counted so tests can assert that no remote interaction took
// place.
package backendtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ggoodman/cms-mcp-server/backend"
)

// Fake is a call-counting, in-memory content backend.
type Fake struct {
	mu    sync.Mutex
	seq   int
	calls map[string]int
	fail  map[string]error

	records      map[string]backend.Resource
	uploads      map[string]backend.Resource
	models       map[string]backend.Resource
	fields       map[string]backend.Resource
	environments map[string]backend.Resource
	webhooks     map[string]backend.Resource
	tags         []backend.Resource
	site         backend.Site
}

var _ backend.Client = (*Fake)(nil)

// New returns an empty Fake whose site declares the "en" locale.
func New() *Fake {
	return &Fake{
		calls:        map[string]int{},
		fail:         map[string]error{},
		records:      map[string]backend.Resource{},
		uploads:      map[string]backend.Resource{},
		models:       map[string]backend.Resource{},
		fields:       map[string]backend.Resource{},
		environments: map[string]backend.Resource{"main": {ID: "main", Type: "environment", Meta: map[string]any{"primary": true}}},
		webhooks:     map[string]backend.Resource{},
		site:         backend.Site{ID: "site", Name: "Test site", Locales: []string{"en"}},
	}
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of backend calls of any kind.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// FailWith makes every subsequent call to method return err.
func (f *Fake) FailWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

// SetLocales replaces the site's locale declaration order.
func (f *Fake) SetLocales(locales ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.site.Locales = slices.Clone(locales)
}

// PutRecord stores r as a record.
func (f *Fake) PutRecord(r backend.Resource) { f.put(f.records, "item", r) }

// PutUpload stores r as an upload.
func (f *Fake) PutUpload(r backend.Resource) { f.put(f.uploads, "upload", r) }

// PutModel stores r as a model.
func (f *Fake) PutModel(r backend.Resource) { f.put(f.models, "item_type", r) }

// PutField stores r as a field.
func (f *Fake) PutField(r backend.Resource) { f.put(f.fields, "field", r) }

// PutWebhook stores r as a webhook.
func (f *Fake) PutWebhook(r backend.Resource) { f.put(f.webhooks, "webhook", r) }

// AddTags appends upload tags with the given names.
func (f *Fake) AddTags(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.tags = append(f.tags, backend.Resource{ID: n, Type: "upload_tag", Attributes: map[string]any{"name": n}})
	}
}

// Record returns the stored record with id.
func (f *Fake) Record(id string) (backend.Resource, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return clone(r), ok
}

func (f *Fake) put(store map[string]backend.Resource, typ string, r backend.Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Type == "" {
		r.Type = typ
	}
	store[r.ID] = clone(r)
}

// enter counts the call and returns the injected failure, if any. Callers
// hold f.mu after it returns.
func (f *Fake) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fail[method]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *Fake) list(ctx context.Context, method string, store map[string]backend.Resource, keep func(backend.Resource) bool) ([]backend.Resource, error) {
	if err := f.enter(ctx, method); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	defer f.mu.Unlock()
	out := []backend.Resource{}
	for _, id := range slices.Sorted(maps.Keys(store)) {
		if keep == nil || keep(store[id]) {
			out = append(out, clone(store[id]))
		}
	}
	return out, nil
}

func (f *Fake) find(ctx context.Context, method, resource string, store map[string]backend.Resource, id string) (backend.Resource, error) {
	if err := f.enter(ctx, method); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	r, ok := store[id]
	if !ok {
		return backend.Resource{}, backend.NotFound(resource, id)
	}
	return clone(r), nil
}

func (f *Fake) create(ctx context.Context, method, typ string, store map[string]backend.Resource, attrs map[string]any, rel map[string]any) (backend.Resource, error) {
	if err := f.enter(ctx, method); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	r := backend.Resource{ID: f.nextID(typ), Type: typ, Attributes: maps.Clone(attrs), Relationships: rel}
	store[r.ID] = r
	return clone(r), nil
}

func (f *Fake) update(ctx context.Context, method, resource string, store map[string]backend.Resource, id string, attrs map[string]any) (backend.Resource, error) {
	if err := f.enter(ctx, method); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	r, ok := store[id]
	if !ok {
		return backend.Resource{}, backend.NotFound(resource, id)
	}
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}
	for k, v := range attrs {
		r.Attributes[k] = v
	}
	store[id] = r
	return clone(r), nil
}

func (f *Fake) destroy(ctx context.Context, method, resource string, store map[string]backend.Resource, id string) (backend.Resource, error) {
	if err := f.enter(ctx, method); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	r, ok := store[id]
	if !ok {
		return backend.Resource{}, backend.NotFound(resource, id)
	}
	delete(store, id)
	return clone(r), nil
}

func (f *Fake) bulk(ctx context.Context, method string, ids []string, apply func(id string)) (backend.Job, error) {
	if err := f.enter(ctx, method); err != nil {
		f.mu.Unlock()
		return backend.Job{}, err
	}
	defer f.mu.Unlock()
	for _, id := range ids {
		apply(id)
	}
	return backend.Job{ID: f.nextID("job"), Status: "completed", Count: len(ids)}, nil
}

func clone(r backend.Resource) backend.Resource {
	r.Attributes = maps.Clone(r.Attributes)
	r.Relationships = maps.Clone(r.Relationships)
	r.Meta = maps.Clone(r.Meta)
	return r
}

// Records.

func (f *Fake) ListRecords(ctx context.Context, p backend.ListParams) ([]backend.Resource, error) {
	out, err := f.list(ctx, "ListRecords", f.records, func(r backend.Resource) bool {
		if model := p.Filter["type"]; model != "" && modelOf(r) != model {
			return false
		}
		if ids := p.Filter["ids"]; ids != "" && !slices.Contains(strings.Split(ids, ","), r.ID) {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return page(out, p), nil
}

func modelOf(r backend.Resource) string {
	rel, _ := r.Relationships["item_type"].(map[string]any)
	data, _ := rel["data"].(map[string]any)
	id, _ := data["id"].(string)
	return id
}

func page(in []backend.Resource, p backend.ListParams) []backend.Resource {
	if p.Offset >= len(in) {
		return []backend.Resource{}
	}
	in = in[p.Offset:]
	if p.Limit > 0 && p.Limit < len(in) {
		in = in[:p.Limit]
	}
	return in
}

func (f *Fake) FindRecord(ctx context.Context, id string) (backend.Resource, error) {
	return f.find(ctx, "FindRecord", "Record", f.records, id)
}

func (f *Fake) CreateRecord(ctx context.Context, modelID string, fields map[string]any) (backend.Resource, error) {
	rel := map[string]any{"item_type": map[string]any{"data": map[string]any{"id": modelID, "type": "item_type"}}}
	return f.create(ctx, "CreateRecord", "item", f.records, fields, rel)
}

func (f *Fake) UpdateRecord(ctx context.Context, id string, fields map[string]any) (backend.Resource, error) {
	return f.update(ctx, "UpdateRecord", "Record", f.records, id, fields)
}

func (f *Fake) DestroyRecord(ctx context.Context, id string) (backend.Resource, error) {
	return f.destroy(ctx, "DestroyRecord", "Record", f.records, id)
}

func (f *Fake) setStatus(id, status string) {
	r, ok := f.records[id]
	if !ok {
		return
	}
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}
	r.Meta["status"] = status
	f.records[id] = r
}

func (f *Fake) PublishRecords(ctx context.Context, ids []string) (backend.Job, error) {
	return f.bulk(ctx, "PublishRecords", ids, func(id string) { f.setStatus(id, "published") })
}

func (f *Fake) UnpublishRecords(ctx context.Context, ids []string) (backend.Job, error) {
	return f.bulk(ctx, "UnpublishRecords", ids, func(id string) { f.setStatus(id, "draft") })
}

func (f *Fake) DestroyRecords(ctx context.Context, ids []string) (backend.Job, error) {
	return f.bulk(ctx, "DestroyRecords", ids, func(id string) { delete(f.records, id) })
}

// Uploads.

func (f *Fake) ListUploads(ctx context.Context, p backend.ListParams) ([]backend.Resource, error) {
	out, err := f.list(ctx, "ListUploads", f.uploads, nil)
	if err != nil {
		return nil, err
	}
	return page(out, p), nil
}

func (f *Fake) FindUpload(ctx context.Context, id string) (backend.Resource, error) {
	return f.find(ctx, "FindUpload", "Upload", f.uploads, id)
}

func (f *Fake) CreateUpload(ctx context.Context, attrs map[string]any) (backend.Resource, error) {
	return f.create(ctx, "CreateUpload", "upload", f.uploads, attrs, nil)
}

func (f *Fake) UpdateUpload(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	return f.update(ctx, "UpdateUpload", "Upload", f.uploads, id, attrs)
}

func (f *Fake) DestroyUpload(ctx context.Context, id string) (backend.Resource, error) {
	return f.destroy(ctx, "DestroyUpload", "Upload", f.uploads, id)
}

func (f *Fake) DestroyUploads(ctx context.Context, ids []string) (backend.Job, error) {
	return f.bulk(ctx, "DestroyUploads", ids, func(id string) { delete(f.uploads, id) })
}

func (f *Fake) ListUploadTags(ctx context.Context) ([]backend.Resource, error) {
	if err := f.enter(ctx, "ListUploadTags"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	defer f.mu.Unlock()
	out := make([]backend.Resource, 0, len(f.tags))
	for _, t := range f.tags {
		out = append(out, clone(t))
	}
	return out, nil
}

// Schema.

func (f *Fake) ListModels(ctx context.Context) ([]backend.Resource, error) {
	return f.list(ctx, "ListModels", f.models, nil)
}

func (f *Fake) FindModel(ctx context.Context, id string) (backend.Resource, error) {
	return f.find(ctx, "FindModel", "Model", f.models, id)
}

func (f *Fake) CreateModel(ctx context.Context, attrs map[string]any) (backend.Resource, error) {
	return f.create(ctx, "CreateModel", "item_type", f.models, attrs, nil)
}

func (f *Fake) UpdateModel(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	return f.update(ctx, "UpdateModel", "Model", f.models, id, attrs)
}

func (f *Fake) DestroyModel(ctx context.Context, id string) (backend.Resource, error) {
	return f.destroy(ctx, "DestroyModel", "Model", f.models, id)
}

func (f *Fake) ListFields(ctx context.Context, modelID string) ([]backend.Resource, error) {
	return f.list(ctx, "ListFields", f.fields, func(r backend.Resource) bool {
		rel, _ := r.Relationships["item_type"].(map[string]any)
		data, _ := rel["data"].(map[string]any)
		return data["id"] == modelID
	})
}

func (f *Fake) FindField(ctx context.Context, id string) (backend.Resource, error) {
	return f.find(ctx, "FindField", "Field", f.fields, id)
}

func (f *Fake) CreateField(ctx context.Context, modelID string, attrs map[string]any) (backend.Resource, error) {
	rel := map[string]any{"item_type": map[string]any{"data": map[string]any{"id": modelID, "type": "item_type"}}}
	return f.create(ctx, "CreateField", "field", f.fields, attrs, rel)
}

func (f *Fake) UpdateField(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	return f.update(ctx, "UpdateField", "Field", f.fields, id, attrs)
}

func (f *Fake) DestroyField(ctx context.Context, id string) (backend.Resource, error) {
	return f.destroy(ctx, "DestroyField", "Field", f.fields, id)
}

func (f *Fake) FindSite(ctx context.Context) (backend.Site, error) {
	if err := f.enter(ctx, "FindSite"); err != nil {
		f.mu.Unlock()
		return backend.Site{}, err
	}
	defer f.mu.Unlock()
	s := f.site
	s.Locales = slices.Clone(s.Locales)
	return s, nil
}

// Environments.

func (f *Fake) ListEnvironments(ctx context.Context) ([]backend.Resource, error) {
	return f.list(ctx, "ListEnvironments", f.environments, nil)
}

func (f *Fake) FindEnvironment(ctx context.Context, id string) (backend.Resource, error) {
	return f.find(ctx, "FindEnvironment", "Environment", f.environments, id)
}

func (f *Fake) ForkEnvironment(ctx context.Context, sourceID, newID string, fast bool) (backend.Resource, error) {
	if err := f.enter(ctx, "ForkEnvironment"); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	if _, ok := f.environments[sourceID]; !ok {
		return backend.Resource{}, backend.NotFound("Environment", sourceID)
	}
	r := backend.Resource{ID: newID, Type: "environment", Meta: map[string]any{"primary": false, "forked_from": sourceID, "fast": fast}}
	f.environments[newID] = r
	return clone(r), nil
}

func (f *Fake) PromoteEnvironment(ctx context.Context, id string) (backend.Resource, error) {
	if err := f.enter(ctx, "PromoteEnvironment"); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	r, ok := f.environments[id]
	if !ok {
		return backend.Resource{}, backend.NotFound("Environment", id)
	}
	for k, e := range f.environments {
		e = clone(e)
		if e.Meta == nil {
			e.Meta = map[string]any{}
		}
		e.Meta["primary"] = k == id
		f.environments[k] = e
	}
	r = f.environments[id]
	return clone(r), nil
}

func (f *Fake) RenameEnvironment(ctx context.Context, id, newID string) (backend.Resource, error) {
	if err := f.enter(ctx, "RenameEnvironment"); err != nil {
		f.mu.Unlock()
		return backend.Resource{}, err
	}
	defer f.mu.Unlock()
	r, ok := f.environments[id]
	if !ok {
		return backend.Resource{}, backend.NotFound("Environment", id)
	}
	delete(f.environments, id)
	r.ID = newID
	f.environments[newID] = r
	return clone(r), nil
}

func (f *Fake) DestroyEnvironment(ctx context.Context, id string) (backend.Resource, error) {
	return f.destroy(ctx, "DestroyEnvironment", "Environment", f.environments, id)
}

// Webhooks.

func (f *Fake) ListWebhooks(ctx context.Context) ([]backend.Resource, error) {
	return f.list(ctx, "ListWebhooks", f.webhooks, nil)
}

func (f *Fake) FindWebhook(ctx context.Context, id string) (backend.Resource, error) {
	return f.find(ctx, "FindWebhook", "Webhook", f.webhooks, id)
}

func (f *Fake) CreateWebhook(ctx context.Context, attrs map[string]any) (backend.Resource, error) {
	return f.create(ctx, "CreateWebhook", "webhook", f.webhooks, attrs, nil)
}

func (f *Fake) UpdateWebhook(ctx context.Context, id string, attrs map[string]any) (backend.Resource, error) {
	return f.update(ctx, "UpdateWebhook", "Webhook", f.webhooks, id, attrs)
}

func (f *Fake) DestroyWebhook(ctx context.Context, id string) (backend.Resource, error) {
	return f.destroy(ctx, "DestroyWebhook", "Webhook", f.webhooks, id)
}
